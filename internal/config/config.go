package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreFile      = "file"
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	CardWidth       int

	// OpenAI analyzer configuration.
	OpenAIKey        string
	OpenAIModel      string
	OpenAIImageModel string
	OpenAIBaseURL    string
	OpenAITimeout    time.Duration

	// Mapbox geocoding and static map configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxStyle     string

	// Open-Meteo conditions configuration.
	OpenMeteoURL      string
	ConditionsTimeout time.Duration
	ConditionsRefresh string // cron spec; empty disables the scheduler

	// Snapshot store configuration.
	StoreBackend         string
	StoreDir             string
	FirestoreProject     string
	FirestoreCollection  string
	FirestoreCredentials string // base64 service-account JSON; empty uses ambient credentials

	// Kafka analysis events.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	openAITimeout, err := parseDuration("OPENAI_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	conditionsTimeout, err := parseDuration("CONDITIONS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	maxUpload, err := parsePositiveInt("MAX_UPLOAD_BYTES", 20<<20)
	if err != nil {
		return nil, err
	}
	cardWidth, err := parsePositiveInt("CARD_WIDTH", 1080)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		MaxUploadBytes:  int64(maxUpload),
		CardWidth:       cardWidth,

		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      sharedcfg.EnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		OpenAIImageModel: sharedcfg.EnvOrDefault("OPENAI_IMAGE_MODEL", "dall-e-3"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		OpenAITimeout:    openAITimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
		MapboxStyle:     sharedcfg.EnvOrDefault("MAPBOX_STYLE", "mapbox/satellite-streets-v12"),

		OpenMeteoURL:      sharedcfg.EnvOrDefault("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
		ConditionsTimeout: conditionsTimeout,
		ConditionsRefresh: envOrDefaultAllowEmpty("CONDITIONS_REFRESH", "@every 15m"),

		StoreBackend:         strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", StoreFile)),
		StoreDir:             sharedcfg.EnvOrDefault("STORE_DIR", "data"),
		FirestoreProject:     os.Getenv("FIRESTORE_PROJECT"),
		FirestoreCollection:  sharedcfg.EnvOrDefault("FIRESTORE_COLLECTION", "storm-vision"),
		FirestoreCredentials: os.Getenv("FIRESTORE_CREDENTIALS"),

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "weather-analyses"),
	}

	if cfg.OpenAIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	switch cfg.StoreBackend {
	case StoreFile, StoreMemory:
	case StoreFirestore:
		if cfg.FirestoreProject == "" {
			return nil, errors.New("FIRESTORE_PROJECT is required when STORE_BACKEND is firestore")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

// envOrDefaultAllowEmpty distinguishes an unset variable from one explicitly set to "".
func envOrDefaultAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

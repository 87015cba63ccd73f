// Package openai implements domain.Analyzer on the OpenAI chat and image APIs.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/observability"
)

// Config configures the analyzer.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for proxies and compatible servers
	Model      string
	ImageModel string
	Timeout    time.Duration
}

// Analyzer calls a vision chat model for the analysis and an image model for
// the enhanced rendition.
type Analyzer struct {
	client     *oai.Client
	model      string
	imageModel string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewAnalyzer creates an OpenAI-backed analyzer.
func NewAnalyzer(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Analyzer {
	clientCfg := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Analyzer{
		client:     oai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
		metrics:    metrics,
		logger:     logger,
	}
}

// Analyze sends the image to the vision model and returns its raw JSON reply.
func (a *Analyzer) Analyze(ctx context.Context, img domain.SourceImage) ([]byte, error) {
	if len(img.Data) == 0 {
		return nil, errors.New("analyze image: empty image")
	}
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)

	req := oai.ChatCompletionRequest{
		Model: a.model,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: analysisPrompt},
			{
				Role: oai.ChatMessageRoleUser,
				MultiContent: []oai.ChatMessagePart{
					{Type: oai.ChatMessagePartTypeText, Text: "Analyze this weather image."},
					{Type: oai.ChatMessagePartTypeImageURL, ImageURL: &oai.ChatMessageImageURL{URL: dataURL, Detail: oai.ImageURLDetailHigh}},
				},
			},
		},
		ResponseFormat: &oai.ChatCompletionResponseFormat{Type: oai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	a.metrics.AIRequestDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("analyze image: no choices returned")
	}

	content := resp.Choices[0].Message.Content
	a.logger.Debug("analysis received",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return []byte(content), nil
}

// Enhance asks the image model for a rendition of the analyzed scene.
func (a *Analyzer) Enhance(ctx context.Context, analysis domain.WeatherAnalysis) (domain.SourceImage, error) {
	req := oai.ImageRequest{
		Prompt:         enhancePrompt(analysis),
		Model:          a.imageModel,
		N:              1,
		Size:           oai.CreateImageSize1024x1024,
		ResponseFormat: oai.CreateImageResponseFormatB64JSON,
	}

	start := time.Now()
	resp, err := a.client.CreateImage(ctx, req)
	a.metrics.AIRequestDuration.WithLabelValues("enhance").Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("enhance image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return domain.SourceImage{}, errors.New("enhance image: no image returned")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("enhance image: decode: %w", err)
	}
	return domain.SourceImage{
		Data:     data,
		MIMEType: http.DetectContentType(data),
		FileName: "enhanced.png",
	}, nil
}

func enhancePrompt(a domain.WeatherAnalysis) string {
	var b strings.Builder
	b.WriteString("A photorealistic, high-detail meteorological visualization of the following conditions")
	if a.LocationName != "" {
		fmt.Fprintf(&b, " over %s", a.LocationName)
	}
	b.WriteString(". ")
	if a.Explanation != "" {
		b.WriteString(a.Explanation)
		b.WriteString(" ")
	}
	if a.WindSpeed != nil {
		fmt.Fprintf(&b, "Sustained winds around %.0f km/h. ", *a.WindSpeed)
	}
	if a.PrecipitationChance != nil {
		fmt.Fprintf(&b, "Precipitation chance %.0f%%. ", *a.PrecipitationChance)
	}
	b.WriteString("No text, labels or legends.")
	return b.String()
}

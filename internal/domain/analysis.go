package domain

import (
	"context"
	"errors"
	"time"
)

// Fixed persistence keys for the latest analysis and its source image.
const (
	AnalysisKey = "weather-analysis"
	ImageKey    = "weather-image"
)

var (
	// ErrNoAnalysis is returned when no analysis has been produced or loaded yet.
	ErrNoAnalysis = errors.New("no analysis available")

	// ErrNotFound is returned by a Store when a key has never been written.
	ErrNotFound = errors.New("not found")

	// ErrTrackOrder is returned when storm-track hours are not strictly increasing.
	ErrTrackOrder = errors.New("storm track hours must be strictly increasing")
)

// Point is a normalized coordinate, percent (0–100) of the source image box.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is the geographic box covered by the source image.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// TrackPoint is one forecast position of a tracked system.
type TrackPoint struct {
	Hour      float64 `json:"hour"`
	Intensity string  `json:"intensity,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Position returns the point's normalized coordinate.
func (p TrackPoint) Position() Point {
	return Point{X: p.X, Y: p.Y}
}

// Anomaly is a flagged atmospheric feature (an "anomaly streak").
type Anomaly struct {
	Points      []Point `json:"points"`
	Description string  `json:"description,omitempty"`
	Impact      string  `json:"impact,omitempty"`
}

// SurgeZone is an area expected to be affected by storm surge.
type SurgeZone struct {
	Level  string  `json:"level"`
	Height float64 `json:"height"` // metres
	Points []Point `json:"points"`
}

// Isobar is a pressure contour given as an SVG-style path in normalized units.
type Isobar struct {
	Path     string  `json:"path"`
	Pressure float64 `json:"pressure"` // hPa
	LabelX   float64 `json:"labelX"`
	LabelY   float64 `json:"labelY"`
}

// WindSample is one wind-field observation.
type WindSample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Speed     float64 `json:"speed"`     // km/h
	Direction float64 `json:"direction"` // degrees, clockwise from north
}

// WeatherAnalysis is the result of one AI call for one image.
type WeatherAnalysis struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	FileName     string    `json:"fileName,omitempty"`
	Explanation  string    `json:"explanation"`
	LocationName string    `json:"locationName,omitempty"`

	Temperature         *float64 `json:"temperature,omitempty"`
	WindSpeed           *float64 `json:"windSpeed,omitempty"`
	WindGust            *float64 `json:"windGust,omitempty"`
	WindDirection       string   `json:"windDirection,omitempty"`
	PrecipitationChance *float64 `json:"precipitationChance,omitempty"`
	Humidity            *float64 `json:"humidity,omitempty"`
	UVIndex             *float64 `json:"uvIndex,omitempty"`

	Center      *Geo    `json:"center,omitempty"`
	Zoom        float64 `json:"zoom,omitempty"`
	ImageBounds *Bounds `json:"imageBounds,omitempty"`

	StormTrack []TrackPoint `json:"stormTrack,omitempty"`
	Anomalies  []Anomaly    `json:"anomalies,omitempty"`
	StormSurge []SurgeZone  `json:"stormSurge,omitempty"`
	Isobars    []Isobar     `json:"isobars,omitempty"`
	WindField  []WindSample `json:"windField,omitempty"`

	// Geocoding enrichment.
	GeoSource string `json:"geoSource,omitempty"` // "forward", "reverse", "original", "failed"
}

// SourceImage is an uploaded or generated image.
type SourceImage struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
}

// Snapshot is the service's current view state: one analysis and its images.
type Snapshot struct {
	Analysis WeatherAnalysis
	Image    SourceImage
	Enhanced *SourceImage
}

// Analyzer is the boundary with the generative-AI service.
type Analyzer interface {
	// Analyze returns the raw JSON analysis for an image.
	Analyze(ctx context.Context, img SourceImage) ([]byte, error)

	// Enhance returns an AI-generated rendition of the analyzed scene.
	Enhance(ctx context.Context, analysis WeatherAnalysis) (SourceImage, error)
}

// Store persists the latest snapshot as two blobs under fixed keys.
type Store interface {
	Put(ctx context.Context, key string, blob []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Publisher announces completed analyses to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, analysis WeatherAnalysis) error
}

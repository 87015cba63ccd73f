package domain

import (
	"context"
	"errors"
)

// ErrNoCenter is returned when a static map is requested for an analysis
// without a geographic center.
var ErrNoCenter = errors.New("analysis has no map center")

// MapRequest describes one static map render.
type MapRequest struct {
	Style  string // "owner/style-id"
	Width  int
	Height int
	Hour   float64
}

// MapRenderer produces a static basemap image with the analysis geometry
// drawn on it.
type MapRenderer interface {
	StaticMap(ctx context.Context, a WeatherAnalysis, req MapRequest) ([]byte, error)
}

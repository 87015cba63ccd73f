package domain

import (
	"context"
	"time"
)

// LiveWeather is the current observed weather at the analysis center.
type LiveWeather struct {
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	WindGust      float64   `json:"windGust"`
	Precipitation float64   `json:"precipitation"`
	ObservedAt    time.Time `json:"observedAt"`
}

// ForecastDay is one day of the 5-day forecast.
type ForecastDay struct {
	Date                string  `json:"date"`
	TemperatureMax      float64 `json:"temperatureMax"`
	TemperatureMin      float64 `json:"temperatureMin"`
	PrecipitationChance float64 `json:"precipitationChance"`
	WindSpeedMax        float64 `json:"windSpeedMax"`
}

// Conditions holds the two independently fetched weather feeds for an
// analysis. Each feed keeps its own error; one failing never clears the other.
type Conditions struct {
	AnalysisID    string        `json:"analysisId"`
	Live          *LiveWeather  `json:"live,omitempty"`
	LiveError     string        `json:"liveError,omitempty"`
	Forecast      []ForecastDay `json:"forecast,omitempty"`
	ForecastError string        `json:"forecastError,omitempty"`
	FetchedAt     time.Time     `json:"fetchedAt"`
}

// ConditionsProvider fetches live weather and forecasts for a coordinate.
type ConditionsProvider interface {
	Live(ctx context.Context, lat, lon float64) (LiveWeather, error)
	Forecast(ctx context.Context, lat, lon float64, days int) ([]ForecastDay, error)
}

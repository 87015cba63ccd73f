// Package openmeteo implements domain.ConditionsProvider on the Open-Meteo
// forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
)

const (
	currentFields = "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,wind_direction_10m,wind_gusts_10m"
	dailyFields   = "temperature_2m_max,temperature_2m_min,precipitation_probability_max,wind_speed_10m_max"
	maxDays       = 16
)

// Client fetches live conditions and daily forecasts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client for the given forecast endpoint.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Live returns the current observed weather at lat/lon.
func (c *Client) Live(ctx context.Context, lat, lon float64) (domain.LiveWeather, error) {
	params := baseParams(lat, lon)
	params.Set("current", currentFields)

	var resp currentResponse
	if err := c.get(ctx, "live", params, &resp); err != nil {
		return domain.LiveWeather{}, err
	}

	observed, err := time.Parse("2006-01-02T15:04", resp.Current.Time)
	if err != nil {
		c.logger.Debug("unparseable observation time", "time", resp.Current.Time)
	}
	return domain.LiveWeather{
		Temperature:   resp.Current.Temperature,
		Humidity:      resp.Current.Humidity,
		WindSpeed:     resp.Current.WindSpeed,
		WindDirection: resp.Current.WindDirection,
		WindGust:      resp.Current.WindGust,
		Precipitation: resp.Current.Precipitation,
		ObservedAt:    observed,
	}, nil
}

// Forecast returns up to days daily forecasts starting today.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, days int) ([]domain.ForecastDay, error) {
	if days <= 0 || days > maxDays {
		return nil, fmt.Errorf("forecast: days must be 1-%d, got %d", maxDays, days)
	}
	params := baseParams(lat, lon)
	params.Set("daily", dailyFields)
	params.Set("forecast_days", strconv.Itoa(days))

	var resp dailyResponse
	if err := c.get(ctx, "forecast", params, &resp); err != nil {
		return nil, err
	}

	d := resp.Daily
	out := make([]domain.ForecastDay, len(d.Time))
	for i, date := range d.Time {
		out[i] = domain.ForecastDay{
			Date:                date,
			TemperatureMax:      at(d.TemperatureMax, i),
			TemperatureMin:      at(d.TemperatureMin, i),
			PrecipitationChance: at(d.PrecipitationProbabilityMax, i),
			WindSpeedMax:        at(d.WindSpeedMax, i),
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, kind string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
			return fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, apiErr.Reason)
		}
		return fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", kind, err)
	}
	return nil
}

func baseParams(lat, lon float64) url.Values {
	return url.Values{
		"latitude":        {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":       {strconv.FormatFloat(lon, 'f', 4, 64)},
		"wind_speed_unit": {"kmh"},
		"timezone":        {"UTC"},
	}
}

// at tolerates series shorter than the time axis; Open-Meteo returns null
// entries for days beyond a variable's horizon.
func at(series []*float64, i int) float64 {
	if i < len(series) && series[i] != nil {
		return *series[i]
	}
	return 0
}

// Open-Meteo API response types.

type currentResponse struct {
	Current struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		Precipitation float64 `json:"precipitation"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		WindDirection float64 `json:"wind_direction_10m"`
		WindGust      float64 `json:"wind_gusts_10m"`
	} `json:"current"`
}

type dailyResponse struct {
	Daily struct {
		Time                        []string   `json:"time"`
		TemperatureMax              []*float64 `json:"temperature_2m_max"`
		TemperatureMin              []*float64 `json:"temperature_2m_min"`
		PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
		WindSpeedMax                []*float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

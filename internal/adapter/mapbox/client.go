package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/observability"
)

const (
	defaultGeocodingURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	defaultStylesURL    = "https://api.mapbox.com/styles/v1"

	// Storms are named after regions and seas as often as towns.
	forwardTypes = "country,region,district,place,locality"
)

// Client talks to the Mapbox Geocoding and Static Images APIs. It implements
// domain.Geocoder and domain.MapRenderer.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	stylesURL  string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithGeocodingURL overrides the Geocoding API endpoint.
func WithGeocodingURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithStylesURL overrides the Static Images API endpoint.
func WithStylesURL(u string) Option {
	return func(c *Client) { c.stylesURL = u }
}

// NewClient creates a Mapbox client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultGeocodingURL,
		stylesURL:  defaultStylesURL,
		metrics:    metrics,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForwardGeocode resolves a place name to its best-matching coordinates.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	u := c.baseURL + "/" + url.PathEscape(query) + ".json?" + url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {forwardTypes},
	}.Encode()
	return c.geocode(ctx, "forward", u)
}

// ReverseGeocode resolves coordinates to the enclosing place.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%.6f,%.6f.json?", c.baseURL, lon, lat) + url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}.Encode()
	return c.geocode(ctx, "reverse", u)
}

func (c *Client) geocode(ctx context.Context, method, u string) (domain.GeocodingResult, error) {
	body, err := c.get(ctx, method, u)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("%s geocode: %w", method, err)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("%s geocode: decode response: %w", method, err)
	}
	if len(resp.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues(method, "empty").Inc()
		c.logger.Debug("geocode returned no features", "method", method)
		return domain.GeocodingResult{}, nil
	}
	c.metrics.GeocodeRequests.WithLabelValues(method, "success").Inc()
	return resp.Features[0].result(), nil
}

// get performs a GET and returns the body of a 200 response. Latency is
// recorded under op whatever the outcome.
func (c *Client) get(ctx context.Context, op, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", redactURL(err))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, redactURL(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// redactURL drops the query string, which carries the access token, from
// the URL that net/http embeds in transport errors.
func redactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u := ue.URL
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return &url.Error{Op: ue.Op, URL: u, Err: ue.Err}
}

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}

func (f feature) result() domain.GeocodingResult {
	r := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		r.Lon, r.Lat = f.Center[0], f.Center[1]
	}
	return r
}

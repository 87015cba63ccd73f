package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/observability"
)

const (
	testToken         = "test-token"
	headerContentType = "Content-Type"
)

func testClient(opts ...Option) *Client {
	return NewClient(testToken, 5*time.Second, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

// geocodeServer replies with the given features and hands each request to inspect.
func geocodeServer(t *testing.T, inspect func(r *http.Request), features ...feature) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set(headerContentType, "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: features}))
	}))
	t.Cleanup(srv.Close)
	return srv
}

var darwin = feature{
	Center:    []float64{130.8456, -12.4634},
	PlaceName: "Darwin, Northern Territory, Australia",
	Text:      "Darwin",
	Relevance: 0.97,
}

func TestClient_ForwardGeocode(t *testing.T) {
	srv := geocodeServer(t, func(r *http.Request) {
		assert.Equal(t, "/Darwin, Australia.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, testToken, q.Get("access_token"))
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, forwardTypes, q.Get("types"))
	}, darwin)

	c := testClient(WithGeocodingURL(srv.URL))
	got, err := c.ForwardGeocode(context.Background(), "Darwin, Australia")
	require.NoError(t, err)

	assert.Equal(t, domain.GeocodingResult{
		Lat:              -12.4634,
		Lon:              130.8456,
		FormattedAddress: "Darwin, Northern Territory, Australia",
		PlaceName:        "Darwin",
		Confidence:       0.97,
	}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("forward", "success")))
}

func TestClient_ReverseGeocode_LonLatOrder(t *testing.T) {
	srv := geocodeServer(t, func(r *http.Request) {
		assert.Equal(t, "/130.845600,-12.463400.json", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("types"))
	}, darwin)

	got, err := testClient(WithGeocodingURL(srv.URL)).ReverseGeocode(context.Background(), -12.4634, 130.8456)
	require.NoError(t, err)
	assert.Equal(t, "Darwin", got.PlaceName)
}

func TestClient_Geocode_NoFeatures(t *testing.T) {
	srv := geocodeServer(t, nil)
	c := testClient(WithGeocodingURL(srv.URL))

	got, err := c.ForwardGeocode(context.Background(), "Open ocean")
	require.NoError(t, err)
	assert.Equal(t, domain.GeocodingResult{}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("forward", "empty")))
}

func TestClient_Geocode_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		want    string
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
			},
			want: "status 401",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"features":`))
			},
			want: "decode response",
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
			timeout: 50 * time.Millisecond,
			want:    "reverse geocode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := testClient(WithGeocodingURL(srv.URL))
			if tt.timeout > 0 {
				c.httpClient.Timeout = tt.timeout
			}

			_, err := c.ReverseGeocode(context.Background(), 1, 2)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("reverse", "error")))
		})
	}
}

func TestClient_TransportErrorsOmitToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	const secret = "sk.SECRET-TOKEN"
	c := NewClient(secret, 50*time.Millisecond, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)), WithGeocodingURL(srv.URL), WithStylesURL(srv.URL))

	calls := map[string]func() error{
		"static map": func() error {
			_, err := c.StaticMap(context.Background(), mappedAnalysis(), domain.MapRequest{Style: "mapbox/dark-v11"})
			return err
		},
		"forward geocode": func() error {
			_, err := c.ForwardGeocode(context.Background(), "Darwin")
			return err
		},
		"reverse geocode": func() error {
			_, err := c.ReverseGeocode(context.Background(), -12.46, 130.84)
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.NotContains(t, err.Error(), secret)
			assert.NotContains(t, err.Error(), "access_token")
			assert.Contains(t, err.Error(), srv.URL, "host and path stay for debugging")

			var ue *url.Error
			require.ErrorAs(t, err, &ue)
			assert.True(t, ue.Timeout())
		})
	}
}

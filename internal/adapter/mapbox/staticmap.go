package mapbox

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/overlay"
)

// Static Images API limits.
const (
	maxStaticSize = 1280
	defaultZoom   = 6
	maxURLBytes   = 8192
)

// StaticMapURL builds the Static Images API URL for an analysis. The overlay
// is included only when the analysis has image bounds to georeference against,
// and is dropped if the escaped overlay would push the URL past the API limit.
func (c *Client) StaticMapURL(a domain.WeatherAnalysis, req domain.MapRequest) (string, error) {
	if a.Center == nil {
		return "", domain.ErrNoCenter
	}
	w, h := clampSize(req.Width), clampSize(req.Height)
	zoom := a.Zoom
	if zoom <= 0 {
		zoom = defaultZoom
	}

	prefix := fmt.Sprintf("%s/%s/static/", c.stylesURL, req.Style)
	suffix := fmt.Sprintf("%s,%s,%s/%dx%d?",
		formatCoord(a.Center.Lon), formatCoord(a.Center.Lat), strconv.FormatFloat(zoom, 'f', -1, 64),
		w, h) + url.Values{"access_token": {c.token}}.Encode()

	if a.ImageBounds != nil {
		fc := OverlayGeoJSON(a, *a.ImageBounds, req.Hour)
		if len(fc.Features) > 0 {
			raw, err := fc.MarshalJSON()
			if err != nil {
				return "", fmt.Errorf("marshal overlay: %w", err)
			}
			seg := "geojson(" + url.PathEscape(string(raw)) + ")/"
			if len(prefix)+len(seg)+len(suffix) <= maxURLBytes {
				return prefix + seg + suffix, nil
			}
			c.logger.Warn("static map overlay too large, omitting", "bytes", len(raw), "escaped_bytes", len(seg))
		}
	}
	return prefix + suffix, nil
}

// StaticMap fetches the rendered static map PNG.
func (c *Client) StaticMap(ctx context.Context, a domain.WeatherAnalysis, req domain.MapRequest) ([]byte, error) {
	u, err := c.StaticMapURL(a, req)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "static", u)
	if err != nil {
		return nil, fmt.Errorf("static map: %w", err)
	}
	return body, nil
}

// OverlayGeoJSON georeferences the analysis geometry inside bounds and returns
// it as a FeatureCollection styled with simplestyle properties.
func OverlayGeoJSON(a domain.WeatherAnalysis, b domain.Bounds, hour float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, z := range a.StormSurge {
		if f := polygonFeature(z.Points, b); f != nil {
			color := overlay.SurgeColor(z.Level)
			f.SetProperty("fill", color)
			f.SetProperty("fill-opacity", 0.35)
			f.SetProperty("stroke", color)
			f.SetProperty("stroke-width", 1)
			fc.AddFeature(f)
		}
	}

	for _, an := range a.Anomalies {
		if f := polygonFeature(an.Points, b); f != nil {
			f.SetProperty("fill", overlay.AnomalyColor)
			f.SetProperty("fill-opacity", 0.2)
			f.SetProperty("stroke", overlay.AnomalyColor)
			f.SetProperty("stroke-width", 2)
			fc.AddFeature(f)
		}
	}

	if len(a.StormTrack) > 1 {
		coords := make([][]float64, len(a.StormTrack))
		for i, p := range a.StormTrack {
			coords[i] = Georeference(p.Position(), b)
		}
		line := geojson.NewLineStringFeature(coords)
		line.SetProperty("stroke", "#ffffff")
		line.SetProperty("stroke-width", 2)
		fc.AddFeature(line)
	}
	if head, ok := overlay.InterpolateTrack(a.StormTrack, hour); ok {
		pt := geojson.NewPointFeature(Georeference(head.Position, b))
		pt.SetProperty("marker-color", overlay.TrackColor(head.Intensity))
		pt.SetProperty("marker-size", "small")
		fc.AddFeature(pt)
	}

	return fc
}

// Georeference maps a normalized point to [lon, lat] inside bounds:
// lon = W + x/100·(E−W), lat = N − y/100·(N−S).
func Georeference(p domain.Point, b domain.Bounds) []float64 {
	lon := b.West + p.X/100*(b.East-b.West)
	lat := b.North - p.Y/100*(b.North-b.South)
	return []float64{lon, lat}
}

// polygonFeature returns nil for an empty ring. The ring is closed as GeoJSON
// requires; the points are otherwise passed through untouched.
func polygonFeature(points []domain.Point, b domain.Bounds) *geojson.Feature {
	if len(points) == 0 {
		return nil
	}
	ring := make([][]float64, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, Georeference(p, b))
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] != last[0] || first[1] != last[1] {
		ring = append(ring, []float64{first[0], first[1]})
	}
	return geojson.NewPolygonFeature([][][]float64{ring})
}

func clampSize(v int) int {
	switch {
	case v <= 0:
		return 600
	case v > maxStaticSize:
		return maxStaticSize
	default:
		return v
	}
}

func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 5, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" {
		return "0"
	}
	return s
}

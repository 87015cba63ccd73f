package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/overlay"
)

func surgeLabel(z domain.SurgeZone) string {
	level := strings.ToUpper(strings.TrimSpace(z.Level))
	if level == "" {
		level = "SURGE"
	}
	return fmt.Sprintf("%s %s m", level, num(z.Height))
}

func anomalyLabel(a domain.Anomaly) string {
	switch {
	case a.Description != "" && a.Impact != "":
		return a.Description + ": " + a.Impact
	case a.Description != "":
		return a.Description
	default:
		return a.Impact
	}
}

func pressureLabel(hpa float64) string {
	return num(hpa) + " hPa"
}

// centroid is the vertex mean, good enough to place a label inside the
// convex-ish polygons the model returns.
func centroid(pts []overlay.Pixel) (overlay.Pixel, bool) {
	if len(pts) == 0 {
		return overlay.Pixel{}, false
	}
	var c overlay.Pixel
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return overlay.Pixel{X: c.X / n, Y: c.Y / n}, true
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0 // normalize -0
	}
	return r
}

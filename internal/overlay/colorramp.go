package overlay

import "strings"

// Wind speed bands in km/h. A speed belongs to the first band whose upper
// bound it is strictly below; anything >= 90 is the top band.
var windBands = []struct {
	below float64
	color string
}{
	{10, "#38bdf8"}, // calm
	{30, "#22c55e"}, // breeze
	{50, "#facc15"}, // strong
	{70, "#f97316"}, // gale
	{90, "#ef4444"}, // storm
}

const windTopBand = "#a855f7" // hurricane force

// WindBand returns the 1-based ramp band for a wind speed.
func WindBand(speed float64) int {
	for i, b := range windBands {
		if speed < b.below {
			return i + 1
		}
	}
	return len(windBands) + 1
}

// WindColor returns the hex color of the ramp band for a wind speed.
func WindColor(speed float64) string {
	band := WindBand(speed)
	if band > len(windBands) {
		return windTopBand
	}
	return windBands[band-1].color
}

// WindGradient returns the two gradient stops for a wind arrow: the speed's
// own color at the tail and the color for speed+20 at the tip.
func WindGradient(speed float64) (tail, tip string) {
	return WindColor(speed), WindColor(speed + 20)
}

// SurgeColor returns the fill color for a storm-surge severity level.
// Unknown levels fall back to the lowest severity.
func SurgeColor(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "moderate", "medium":
		return "#f59e0b"
	case "high":
		return "#ef4444"
	case "extreme", "severe":
		return "#7c3aed"
	default:
		return "#3b82f6"
	}
}

// AnomalyColor is the stroke and fill base of anomaly polygons.
const AnomalyColor = "#f43f5e"

// TrackColor returns the track stroke color for an intensity label.
// Labels are free text from the model, so matching is by keyword.
func TrackColor(intensity string) string {
	s := strings.ToLower(intensity)
	switch {
	case strings.Contains(s, "cat 5"), strings.Contains(s, "category 5"):
		return "#7c3aed"
	case strings.Contains(s, "cat 4"), strings.Contains(s, "category 4"):
		return "#dc2626"
	case strings.Contains(s, "cat 3"), strings.Contains(s, "category 3"):
		return "#ea580c"
	case strings.Contains(s, "cat"), strings.Contains(s, "hurricane"), strings.Contains(s, "typhoon"):
		return "#f59e0b"
	case strings.Contains(s, "storm"):
		return "#facc15"
	default:
		return "#e5e7eb"
	}
}

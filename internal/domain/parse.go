package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseAnalysis decodes the AI service's JSON contract into a WeatherAnalysis.
// Markdown code fences around the payload are stripped. Track hours must be
// strictly increasing; coordinates are not range-checked.
func ParseAnalysis(raw []byte) (WeatherAnalysis, error) {
	payload := stripCodeFence(string(raw))
	if payload == "" {
		return WeatherAnalysis{}, fmt.Errorf("parse analysis: empty response")
	}

	var a WeatherAnalysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return WeatherAnalysis{}, fmt.Errorf("parse analysis: %w", err)
	}
	if err := validateTrack(a.StormTrack); err != nil {
		return WeatherAnalysis{}, fmt.Errorf("parse analysis: %w", err)
	}

	a.Explanation = strings.TrimSpace(a.Explanation)
	a.LocationName = strings.TrimSpace(a.LocationName)
	return a, nil
}

// Stamp assigns the service-owned metadata to a freshly parsed analysis.
// The ID is a short content hash of the image plus the creation time so
// re-uploads of the same file at different times stay distinguishable.
func Stamp(a WeatherAnalysis, img SourceImage) WeatherAnalysis {
	a.CreatedAt = clock.Now().UTC()
	a.FileName = img.FileName
	a.ID = generateID(img.Data, a.CreatedAt.UnixNano())
	return a
}

func validateTrack(track []TrackPoint) error {
	for i := 1; i < len(track); i++ {
		if track[i].Hour <= track[i-1].Hour {
			return fmt.Errorf("%w: hour %g at index %d follows %g", ErrTrackOrder, track[i].Hour, i, track[i-1].Hour)
		}
	}
	return nil
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json") on the opening fence line.
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func generateID(data []byte, nanos int64) string {
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "|%d", nanos)
	return "wa-" + hex.EncodeToString(h.Sum(nil)[:8])
}

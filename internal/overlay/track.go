package overlay

import "github.com/couchcryptid/storm-vision-service/internal/domain"

// TrackHead is the storm position at a scrubber time.
type TrackHead struct {
	Position  domain.Point `json:"position"`
	Intensity string       `json:"intensity,omitempty"`
	// Segment is the index of the last recorded point at or before the
	// scrubber time (0 when pinned before the first point).
	Segment int `json:"segment"`
	// Progress is the clamped [0,1] fraction through the segment that starts
	// at Segment. It is 0 when the head sits exactly on a recorded point.
	Progress float64 `json:"progress"`
	// Interpolated is true when the head lies strictly between two points.
	Interpolated bool `json:"interpolated"`
}

// InterpolateTrack returns the storm head at the given hour. Track hours must
// be strictly increasing. Before the first point the head is pinned to it;
// at or after the last point the head is the last point (no extrapolation).
// ok is false for an empty track.
func InterpolateTrack(track []domain.TrackPoint, hour float64) (head TrackHead, ok bool) {
	if len(track) == 0 {
		return TrackHead{}, false
	}

	first := track[0]
	if hour <= first.Hour {
		return TrackHead{Position: first.Position(), Intensity: first.Intensity}, true
	}

	i := lastAtOrBefore(track, hour)
	cur := track[i]
	if i == len(track)-1 || hour == cur.Hour {
		return TrackHead{Position: cur.Position(), Intensity: cur.Intensity, Segment: i}, true
	}

	next := track[i+1]
	progress := clamp01((hour - cur.Hour) / (next.Hour - cur.Hour))
	return TrackHead{
		Position: domain.Point{
			X: lerp(cur.X, next.X, progress),
			Y: lerp(cur.Y, next.Y, progress),
		},
		Intensity:    cur.Intensity,
		Segment:      i,
		Progress:     progress,
		Interpolated: true,
	}, true
}

// TrackPath returns the polyline to draw at the given hour: every recorded
// point up to the current time plus one synthetic segment ending at the
// interpolated head. Points are still normalized.
func TrackPath(track []domain.TrackPoint, hour float64) []domain.Point {
	head, ok := InterpolateTrack(track, hour)
	if !ok {
		return nil
	}

	path := make([]domain.Point, 0, head.Segment+2)
	for _, p := range track[:head.Segment+1] {
		path = append(path, p.Position())
	}
	if head.Interpolated {
		path = append(path, head.Position)
	}
	return path
}

// TrackHours reports the scrubber range of a track.
func TrackHours(track []domain.TrackPoint) (first, last float64, ok bool) {
	if len(track) == 0 {
		return 0, 0, false
	}
	return track[0].Hour, track[len(track)-1].Hour, true
}

// lastAtOrBefore returns the index of the last point whose hour is <= hour.
// The caller guarantees hour > track[0].Hour.
func lastAtOrBefore(track []domain.TrackPoint, hour float64) int {
	lo, hi := 0, len(track)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if track[mid].Hour <= hour {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/overlay"
	"github.com/couchcryptid/storm-vision-service/internal/render"
)

// ErrNoTrack is returned when track state is requested for an analysis
// without a storm track.
var ErrNoTrack = errors.New("analysis has no storm track")

// TrackState is the storm head at a scrubber hour plus the scrubber range.
type TrackState struct {
	Hour      float64           `json:"hour"`
	FirstHour float64           `json:"firstHour"`
	LastHour  float64           `json:"lastHour"`
	Head      overlay.TrackHead `json:"head"`
}

// Track interpolates the current analysis' storm head at hour.
func (s *Service) Track(hour float64) (TrackState, error) {
	snap, err := s.Latest()
	if err != nil {
		return TrackState{}, err
	}
	track := snap.Analysis.StormTrack
	head, ok := overlay.InterpolateTrack(track, hour)
	if !ok {
		return TrackState{}, ErrNoTrack
	}
	first, last, _ := overlay.TrackHours(track)
	return TrackState{Hour: hour, FirstHour: first, LastHour: last, Head: head}, nil
}

// Fallback target size when neither the request nor the source image
// provides one.
const (
	defaultWidth  = 1024
	defaultHeight = 768
)

// RenderSVG writes the SVG overlay for the current analysis. A zero width
// and height select the source image's size.
func (s *Service) RenderSVG(w io.Writer, opts render.Options) error {
	return s.observe("svg", func(snap domain.Snapshot) error {
		opts.Width, opts.Height = targetSize(snap, opts.Width, opts.Height)
		return render.SVGOverlay(w, snap.Analysis, opts)
	})
}

// RenderOverlayPNG draws the overlay over the decoded source image, or over
// a transparent canvas of opts' size when base is false. With a base the
// canvas always takes the source image's size; source images larger than
// render.MaxDimension are rejected.
func (s *Service) RenderOverlayPNG(w io.Writer, opts render.Options, base bool) error {
	return s.observe("png", func(snap domain.Snapshot) error {
		var img image.Image
		if base {
			decoded, _, err := render.DecodeImage(snap.Image.Data)
			if err != nil {
				return err
			}
			img = decoded
		} else {
			opts.Width, opts.Height = targetSize(snap, opts.Width, opts.Height)
		}
		return s.canvas.OverlayPNG(w, snap.Analysis, img, opts)
	})
}

// RenderWindPNG draws only the wind field on a transparent canvas.
func (s *Service) RenderWindPNG(w io.Writer, width, height int) error {
	return s.observe("wind", func(snap domain.Snapshot) error {
		width, height := targetSize(snap, width, height)
		return s.canvas.WindPNG(w, snap.Analysis.WindField, width, height)
	})
}

// RenderCard composes the summary card. The enhanced image is preferred as
// the card photo when present; an undecodable photo is left out.
func (s *Service) RenderCard(w io.Writer) error {
	return s.observe("card", func(snap domain.Snapshot) error {
		data := snap.Image.Data
		if snap.Enhanced != nil {
			data = snap.Enhanced.Data
		}
		photo, _, err := render.DecodeImage(data)
		if err != nil {
			s.logger.Warn("card photo not decodable, rendering without it", "analysis_id", snap.Analysis.ID, "error", err)
			photo = nil
		}
		return render.Card(w, snap.Analysis, photo, s.cfg.Fonts, s.cfg.CardWidth)
	})
}

// RenderMap fetches the static map for the current analysis.
func (s *Service) RenderMap(ctx context.Context, req domain.MapRequest) ([]byte, error) {
	if s.cfg.Maps == nil {
		return nil, ErrDisabled
	}
	if req.Style == "" {
		req.Style = s.cfg.MapStyle
	}
	var out []byte
	err := s.observe("map", func(snap domain.Snapshot) error {
		png, err := s.cfg.Maps.StaticMap(ctx, snap.Analysis, req)
		if err != nil {
			if errors.Is(err, domain.ErrNoCenter) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		out = png
		return nil
	})
	return out, err
}

// ExportCSV writes the current analysis as a one-row CSV export.
func (s *Service) ExportCSV(w io.Writer) error {
	return s.observe("csv", func(snap domain.Snapshot) error {
		return domain.WriteCSV(w, snap.Analysis)
	})
}

// targetSize fills in an unset (0×0) size from the source image, scaled
// down to fit render.MaxDimension. Any other size is returned unchanged for
// the renderer to validate.
func targetSize(snap domain.Snapshot, width, height int) (int, int) {
	if width != 0 || height != 0 {
		return width, height
	}
	if w, h, err := render.ImageSize(snap.Image.Data); err == nil && w > 0 && h > 0 {
		return render.FitSize(w, h)
	}
	return defaultWidth, defaultHeight
}

// observe runs a render against a snapshot copy and records its outcome.
// No lock is held while rendering.
func (s *Service) observe(target string, fn func(domain.Snapshot) error) error {
	snap, err := s.Latest()
	if err != nil {
		return err
	}
	start := time.Now()
	err = fn(snap)
	s.metrics.RenderDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Renders.WithLabelValues(target, "error").Inc()
		return fmt.Errorf("render %s: %w", target, err)
	}
	s.metrics.Renders.WithLabelValues(target, "success").Inc()
	return nil
}

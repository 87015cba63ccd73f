package render

import (
	"fmt"
	"image"
	"io"

	"github.com/gogpu/gg"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/overlay"
)

// Canvas draws overlays with the gg software rasterizer.
type Canvas struct {
	fonts *Fonts
}

// NewCanvas creates a canvas renderer. fonts may be nil, in which case text
// labels are skipped.
func NewCanvas(fonts *Fonts) *Canvas {
	return &Canvas{fonts: fonts}
}

// OverlayPNG draws the selected layers over base and encodes the result as
// PNG. With a nil base, a transparent canvas of opts.Width × opts.Height is
// used; otherwise the canvas takes the base image's size.
func (c *Canvas) OverlayPNG(w io.Writer, a domain.WeatherAnalysis, base image.Image, opts Options) error {
	dc, err := newTarget(base, opts.Width, opts.Height)
	if err != nil {
		return err
	}
	defer dc.Close()

	if err := c.Draw(dc, a, opts); err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

// WindPNG renders only the wind field on a transparent canvas.
func (c *Canvas) WindPNG(w io.Writer, samples []domain.WindSample, width, height int) error {
	dc, err := newTarget(nil, width, height)
	if err != nil {
		return err
	}
	defer dc.Close()

	vp := overlay.Viewport{Width: float64(width), Height: float64(height)}
	drawWindField(dc, vp, samples)
	return dc.EncodePNG(w)
}

// Draw paints the selected layers onto dc, scaling normalized geometry to the
// context's own size.
func (c *Canvas) Draw(dc *gg.Context, a domain.WeatherAnalysis, opts Options) error {
	vp := overlay.Viewport{Width: float64(dc.Width()), Height: float64(dc.Height())}
	layers := opts.layers()

	if layers.Has(LayerSurge) {
		c.drawSurge(dc, vp, a.StormSurge)
	}
	if layers.Has(LayerAnomalies) {
		drawAnomalies(dc, vp, a.Anomalies)
	}
	if layers.Has(LayerIsobars) {
		if err := c.drawIsobars(dc, vp, a.Isobars); err != nil {
			return err
		}
	}
	if layers.Has(LayerWind) {
		drawWindField(dc, vp, a.WindField)
	}
	if layers.Has(LayerTrack) {
		c.drawTrack(dc, vp, a.StormTrack, opts.Hour)
	}
	return nil
}

func newTarget(base image.Image, width, height int) (*gg.Context, error) {
	if base != nil {
		b := base.Bounds()
		if err := checkSize(b.Dx(), b.Dy()); err != nil {
			return nil, fmt.Errorf("canvas: base image: %w", err)
		}
		return gg.NewContextForImage(base), nil
	}
	if err := checkSize(width, height); err != nil {
		return nil, fmt.Errorf("canvas: %w", err)
	}
	return gg.NewContext(width, height), nil
}

func (c *Canvas) drawSurge(dc *gg.Context, vp overlay.Viewport, zones []domain.SurgeZone) {
	for _, z := range zones {
		pts := vp.ScalePolygon(z.Points)
		if len(pts) == 0 {
			continue
		}
		color := gg.Hex(overlay.SurgeColor(z.Level))

		tracePolygon(dc, pts)
		dc.SetFillBrush(gg.Solid(withAlpha(color, 0.35)))
		_ = dc.FillPreserve()
		dc.SetStrokeBrush(gg.Solid(color))
		dc.SetLineWidth(1.5)
		_ = dc.Stroke()

		if ctr, ok := centroid(pts); ok {
			c.label(dc, surgeLabel(z), ctr.X, ctr.Y, 12)
		}
	}
}

func drawAnomalies(dc *gg.Context, vp overlay.Viewport, anomalies []domain.Anomaly) {
	color := gg.Hex(overlay.AnomalyColor)
	for _, an := range anomalies {
		pts := vp.ScalePolygon(an.Points)
		if len(pts) == 0 {
			continue
		}
		tracePolygon(dc, pts)
		dc.SetFillBrush(gg.Solid(withAlpha(color, 0.2)))
		_ = dc.FillPreserve()
		dc.SetStrokeBrush(gg.Solid(color))
		dc.SetLineWidth(2)
		dc.SetDash(6, 4)
		_ = dc.Stroke()
		dc.ClearDash()
	}
}

func (c *Canvas) drawIsobars(dc *gg.Context, vp overlay.Viewport, isobars []domain.Isobar) error {
	for i, iso := range isobars {
		cmds, err := overlay.ParsePath(iso.Path)
		if err != nil {
			return fmt.Errorf("isobar %d: %w", i, err)
		}
		tracePath(dc, vp.RescalePath(cmds))
		dc.SetStrokeBrush(gg.Solid(gg.RGBA{R: 1, G: 1, B: 1, A: 0.75}))
		dc.SetLineWidth(1.5)
		_ = dc.Stroke()

		c.label(dc, pressureLabel(iso.Pressure), vp.ScaleX(iso.LabelX), vp.ScaleY(iso.LabelY), 12)
	}
	return nil
}

// drawWindField draws one gradient-filled triangle per sample. The gradient
// runs from the speed's ramp color at the tail to the speed+20 color at the tip.
func drawWindField(dc *gg.Context, vp overlay.Viewport, samples []domain.WindSample) {
	for _, ws := range samples {
		arrow := overlay.WindArrow(vp.ToPixel(domain.Point{X: ws.X, Y: ws.Y}), ws.Speed, ws.Direction)
		tail, tip := overlay.WindGradient(ws.Speed)

		grad := gg.NewLinearGradientBrush(arrow.Tail.X, arrow.Tail.Y, arrow.Tip.X, arrow.Tip.Y).
			AddColorStop(0, gg.Hex(tail)).
			AddColorStop(1, gg.Hex(tip))

		tracePolygon(dc, arrow.Points())
		dc.SetFillBrush(grad)
		_ = dc.FillPreserve()
		dc.SetStrokeBrush(gg.Solid(gg.RGBA{A: 0.4}))
		dc.SetLineWidth(0.5)
		_ = dc.Stroke()
	}
}

func (c *Canvas) drawTrack(dc *gg.Context, vp overlay.Viewport, track []domain.TrackPoint, hour float64) {
	head, ok := overlay.InterpolateTrack(track, hour)
	if !ok {
		return
	}

	// Full forecast track, faint and dashed.
	all := make([]overlay.Pixel, len(track))
	for i, p := range track {
		all[i] = vp.ToPixel(p.Position())
	}
	if len(all) > 1 {
		tracePolyline(dc, all)
		dc.SetStrokeBrush(gg.Solid(gg.RGBA{R: 1, G: 1, B: 1, A: 0.35}))
		dc.SetLineWidth(2)
		dc.SetDash(4, 4)
		_ = dc.Stroke()
		dc.ClearDash()
	}

	// Elapsed track up to the scrubber, ending at the interpolated head.
	elapsed := vp.ScalePolygon(overlay.TrackPath(track, hour))
	if len(elapsed) > 1 {
		tracePolyline(dc, elapsed)
		dc.SetStrokeBrush(gg.SolidHex(overlay.TrackColor(head.Intensity)))
		dc.SetLineWidth(3)
		dc.SetLineJoin(gg.LineJoinRound)
		_ = dc.Stroke()
	}

	for i, p := range track {
		col := gg.Hex(overlay.TrackColor(p.Intensity))
		if i > head.Segment {
			col = withAlpha(col, 0.4)
		}
		dc.DrawCircle(all[i].X, all[i].Y, 4)
		dc.SetFillBrush(gg.Solid(col))
		_ = dc.Fill()
	}

	hp := vp.ToPixel(head.Position)
	dc.DrawCircle(hp.X, hp.Y, 8)
	dc.SetStrokeBrush(gg.SolidHex(overlay.TrackColor(head.Intensity)))
	dc.SetLineWidth(3)
	_ = dc.Stroke()
	if head.Intensity != "" {
		c.label(dc, head.Intensity, hp.X+12, hp.Y-12, 13)
	}
}

// label draws white text with a dark offset shadow for contrast on imagery.
func (c *Canvas) label(dc *gg.Context, s string, x, y, size float64) {
	if c.fonts == nil || s == "" {
		return
	}
	dc.SetFont(c.fonts.Bold(size))
	dc.SetRGBA(0, 0, 0, 0.7)
	dc.DrawStringAnchored(s, x+1, y+1, 0.5, 0.5)
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(s, x, y, 0.5, 0.5)
}

func tracePolyline(dc *gg.Context, pts []overlay.Pixel) {
	dc.ClearPath()
	for i, p := range pts {
		if i == 0 {
			dc.MoveTo(p.X, p.Y)
			continue
		}
		dc.LineTo(p.X, p.Y)
	}
}

// tracePolygon traces the points as given and closes the path. Fewer than
// three points still produce a (degenerate) path.
func tracePolygon(dc *gg.Context, pts []overlay.Pixel) {
	tracePolyline(dc, pts)
	dc.ClosePath()
}

func withAlpha(c gg.RGBA, a float64) gg.RGBA {
	c.A = a
	return c
}

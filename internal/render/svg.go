package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/overlay"
)

// SVGOverlay writes a standalone SVG document of the selected overlay layers
// sized to opts.Width × opts.Height.
func SVGOverlay(w io.Writer, a domain.WeatherAnalysis, opts Options) error {
	if err := checkSize(opts.Width, opts.Height); err != nil {
		return fmt.Errorf("svg overlay: %w", err)
	}
	vp := overlay.Viewport{Width: float64(opts.Width), Height: float64(opts.Height)}
	layers := opts.layers()

	s := &svgWriter{}
	s.printf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		opts.Width, opts.Height, opts.Width, opts.Height)

	if layers.Has(LayerWind) && len(a.WindField) > 0 {
		s.windDefs(vp, a.WindField)
	}
	if layers.Has(LayerSurge) {
		s.surge(vp, a.StormSurge)
	}
	if layers.Has(LayerAnomalies) {
		s.anomalies(vp, a.Anomalies)
	}
	if layers.Has(LayerIsobars) {
		if err := s.isobars(vp, a.Isobars); err != nil {
			return err
		}
	}
	if layers.Has(LayerWind) {
		s.wind(vp, a.WindField)
	}
	if layers.Has(LayerTrack) {
		s.track(vp, a.StormTrack, opts.Hour)
	}

	s.printf(`</svg>`)
	_, err := w.Write(s.buf.Bytes())
	return err
}

type svgWriter struct {
	buf bytes.Buffer
}

func (s *svgWriter) printf(format string, args ...any) {
	fmt.Fprintf(&s.buf, format, args...)
}

func (s *svgWriter) text(x, y float64, class, body string) {
	s.printf(`<text x="%s" y="%s" class="%s" fill="#ffffff" stroke="#000000" stroke-width="0.6" font-family="sans-serif" font-size="12">`,
		num(x), num(y), class)
	_ = xml.EscapeText(&s.buf, []byte(body))
	s.printf(`</text>`)
}

func (s *svgWriter) title(body string) {
	if body == "" {
		return
	}
	s.printf(`<title>`)
	_ = xml.EscapeText(&s.buf, []byte(body))
	s.printf(`</title>`)
}

func (s *svgWriter) surge(vp overlay.Viewport, zones []domain.SurgeZone) {
	if len(zones) == 0 {
		return
	}
	s.printf(`<g class="surge">`)
	for _, z := range zones {
		color := overlay.SurgeColor(z.Level)
		pts := vp.ScalePolygon(z.Points)
		s.printf(`<polygon points="%s" fill="%s" fill-opacity="0.35" stroke="%s" stroke-width="1.5">`, pointList(pts), color, color)
		s.title(surgeLabel(z))
		s.printf(`</polygon>`)
		if c, ok := centroid(pts); ok {
			s.text(c.X, c.Y, "surge-label", surgeLabel(z))
		}
	}
	s.printf(`</g>`)
}

func (s *svgWriter) anomalies(vp overlay.Viewport, anomalies []domain.Anomaly) {
	if len(anomalies) == 0 {
		return
	}
	s.printf(`<g class="anomalies">`)
	for _, an := range anomalies {
		s.printf(`<polygon points="%s" fill="%s" fill-opacity="0.2" stroke="%s" stroke-width="2" stroke-dasharray="6 4">`,
			pointList(vp.ScalePolygon(an.Points)), overlay.AnomalyColor, overlay.AnomalyColor)
		s.title(anomalyLabel(an))
		s.printf(`</polygon>`)
	}
	s.printf(`</g>`)
}

func (s *svgWriter) isobars(vp overlay.Viewport, isobars []domain.Isobar) error {
	if len(isobars) == 0 {
		return nil
	}
	s.printf(`<g class="isobars">`)
	for i, iso := range isobars {
		d, err := vp.RescalePathString(iso.Path)
		if err != nil {
			return fmt.Errorf("isobar %d: %w", i, err)
		}
		s.printf(`<path d="%s" fill="none" stroke="#ffffff" stroke-opacity="0.75" stroke-width="1.5"/>`, d)
		s.text(vp.ScaleX(iso.LabelX), vp.ScaleY(iso.LabelY), "isobar-label", pressureLabel(iso.Pressure))
	}
	s.printf(`</g>`)
	return nil
}

func (s *svgWriter) windDefs(vp overlay.Viewport, samples []domain.WindSample) {
	s.printf(`<defs>`)
	for i, ws := range samples {
		arrow := overlay.WindArrow(vp.ToPixel(domain.Point{X: ws.X, Y: ws.Y}), ws.Speed, ws.Direction)
		tail, tip := overlay.WindGradient(ws.Speed)
		s.printf(`<linearGradient id="wind-%d" gradientUnits="userSpaceOnUse" x1="%s" y1="%s" x2="%s" y2="%s">`+
			`<stop offset="0" stop-color="%s"/><stop offset="1" stop-color="%s"/></linearGradient>`,
			i, num(arrow.Tail.X), num(arrow.Tail.Y), num(arrow.Tip.X), num(arrow.Tip.Y), tail, tip)
	}
	s.printf(`</defs>`)
}

func (s *svgWriter) wind(vp overlay.Viewport, samples []domain.WindSample) {
	if len(samples) == 0 {
		return
	}
	s.printf(`<g class="wind">`)
	for i, ws := range samples {
		arrow := overlay.WindArrow(vp.ToPixel(domain.Point{X: ws.X, Y: ws.Y}), ws.Speed, ws.Direction)
		s.printf(`<polygon points="%s" fill="url(#wind-%d)" stroke="#000000" stroke-opacity="0.4" stroke-width="0.5">`,
			pointList(arrow.Points()), i)
		s.title(fmt.Sprintf("%s km/h @ %s°", num(ws.Speed), num(ws.Direction)))
		s.printf(`</polygon>`)
	}
	s.printf(`</g>`)
}

func (s *svgWriter) track(vp overlay.Viewport, track []domain.TrackPoint, hour float64) {
	head, ok := overlay.InterpolateTrack(track, hour)
	if !ok {
		return
	}
	s.printf(`<g class="track">`)

	all := make([]overlay.Pixel, len(track))
	for i, p := range track {
		all[i] = vp.ToPixel(p.Position())
	}
	if len(all) > 1 {
		s.printf(`<polyline points="%s" fill="none" stroke="#ffffff" stroke-opacity="0.35" stroke-width="2" stroke-dasharray="4 4"/>`,
			pointList(all))
	}

	elapsed := vp.ScalePolygon(overlay.TrackPath(track, hour))
	if len(elapsed) > 1 {
		s.printf(`<polyline points="%s" fill="none" stroke="%s" stroke-width="3" stroke-linejoin="round"/>`,
			pointList(elapsed), overlay.TrackColor(head.Intensity))
	}

	for i, p := range track {
		opacity := "0.4"
		if i <= head.Segment {
			opacity = "1"
		}
		s.printf(`<circle cx="%s" cy="%s" r="4" fill="%s" fill-opacity="%s">`,
			num(all[i].X), num(all[i].Y), overlay.TrackColor(p.Intensity), opacity)
		s.title(fmt.Sprintf("+%sh %s", num(p.Hour), p.Intensity))
		s.printf(`</circle>`)
	}

	hp := vp.ToPixel(head.Position)
	s.printf(`<circle class="track-head" cx="%s" cy="%s" r="8" fill="none" stroke="%s" stroke-width="3"/>`,
		num(hp.X), num(hp.Y), overlay.TrackColor(head.Intensity))
	if head.Intensity != "" {
		s.text(hp.X+12, hp.Y-12, "track-label", head.Intensity)
	}
	s.printf(`</g>`)
}

func pointList(pts []overlay.Pixel) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = num(p.X) + "," + num(p.Y)
	}
	return strings.Join(parts, " ")
}

// num formats a coordinate with at most two decimals and no trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(roundTo(v, 2), 'f', -1, 64)
}

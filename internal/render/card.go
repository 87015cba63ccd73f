package render

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/overlay"
)

const (
	cardPad        = 40.0
	cardTitleSize  = 36.0
	cardStampSize  = 20.0
	cardBodySize   = 22.0
	cardLineHeight = 32.0
	cardTileH      = 120.0
	cardTileGap    = 16.0
	cardColumns    = 3
	cardSection    = 28.0 // vertical space between blocks
)

var (
	cardBackground = gg.Hex("#0f172a")
	cardTile       = gg.Hex("#1e293b")
	cardMuted      = gg.Hex("#94a3b8")
)

// glyph selects the icon drawn on a metric tile.
type glyph int

const (
	glyphThermometer glyph = iota
	glyphWind
	glyphGust
	glyphCompass
	glyphDrop
	glyphHumidity
	glyphSun
)

// tile is one metric on the summary card.
type tile struct {
	Glyph glyph
	Value string
	Label string
}

// cardTiles lists the analysis metrics that are present, in card order.
func cardTiles(a domain.WeatherAnalysis) []tile {
	var tiles []tile
	add := func(g glyph, v *float64, unit, label string) {
		if v != nil {
			tiles = append(tiles, tile{Glyph: g, Value: num(*v) + unit, Label: label})
		}
	}
	add(glyphThermometer, a.Temperature, "°C", "Temperature")
	add(glyphWind, a.WindSpeed, " km/h", "Wind")
	add(glyphGust, a.WindGust, " km/h", "Gusts")
	if a.WindDirection != "" {
		tiles = append(tiles, tile{Glyph: glyphCompass, Value: a.WindDirection, Label: "Direction"})
	}
	add(glyphDrop, a.PrecipitationChance, "%", "Precipitation")
	add(glyphHumidity, a.Humidity, "%", "Humidity")
	add(glyphSun, a.UVIndex, "", "UV index")
	return tiles
}

// cardLayout is the measured geometry of a card, computed before drawing so
// the canvas can be allocated at its final height.
type cardLayout struct {
	width     float64
	height    float64
	photo     overlay.Rect
	titleY    float64
	stampY    float64
	tiles     []overlay.Rect
	bodyTop   float64
	bodyLines []string
}

func layoutCard(a domain.WeatherAnalysis, photo image.Image, width float64, fonts *Fonts) cardLayout {
	l := cardLayout{width: width}
	inner := width - 2*cardPad
	y := cardPad

	if photo != nil {
		b := photo.Bounds()
		w, h := overlay.FitWidth(float64(b.Dx()), float64(b.Dy()), inner)
		l.photo = overlay.Rect{X: cardPad, Y: y, W: w, H: h}
		y += h + cardSection
	}

	l.titleY = y + cardTitleSize
	l.stampY = l.titleY + cardStampSize + 12
	y = l.stampY + cardSection

	n := len(cardTiles(a))
	if n > 0 {
		cellW := (inner - float64(cardColumns-1)*cardTileGap) / cardColumns
		g := overlay.Grid{
			Columns: cardColumns,
			CellW:   cellW,
			CellH:   cardTileH,
			Gap:     cardTileGap,
			Left:    cardPad,
			Top:     y,
			Width:   inner,
		}
		l.tiles = g.Layout(n)
		y += g.Height(n) + cardSection
	}

	body := fonts.Regular(cardBodySize)
	l.bodyTop = y
	if a.Explanation != "" {
		l.bodyLines = WrapText(a.Explanation, inner, func(s string) float64 {
			w, _ := text.Measure(s, body)
			return w
		})
		y += float64(len(l.bodyLines)) * cardLineHeight
	}

	l.height = math.Ceil(y + cardPad)
	return l
}

// Card renders the shareable summary card as PNG: the photo scaled to the
// card width, a title with location and timestamp, the metric tiles and the
// wrapped explanation. photo may be nil.
func Card(w io.Writer, a domain.WeatherAnalysis, photo image.Image, fonts *Fonts, width int) error {
	if width <= int(2*cardPad) {
		return fmt.Errorf("card: width %d too small", width)
	}
	if fonts == nil {
		return fmt.Errorf("card: fonts not loaded")
	}

	l := layoutCard(a, photo, float64(width), fonts)
	dc := gg.NewContext(width, int(l.height))
	defer dc.Close()
	dc.ClearWithColor(cardBackground)

	if photo != nil {
		dc.DrawImageEx(gg.ImageBufFromImage(photo), gg.DrawImageOptions{
			X:         l.photo.X,
			Y:         l.photo.Y,
			DstWidth:  l.photo.W,
			DstHeight: l.photo.H,
		})
	}

	title := a.LocationName
	if title == "" {
		title = "Weather analysis"
	}
	dc.SetFont(fonts.Bold(cardTitleSize))
	dc.SetFillBrush(gg.Solid(gg.White))
	dc.DrawString(title, cardPad, l.titleY)

	if !a.CreatedAt.IsZero() {
		dc.SetFont(fonts.Regular(cardStampSize))
		dc.SetFillBrush(gg.Solid(cardMuted))
		dc.DrawString(a.CreatedAt.UTC().Format("2 Jan 2006 15:04 MST"), cardPad, l.stampY)
	}

	for i, t := range cardTiles(a) {
		drawTile(dc, fonts, l.tiles[i], t)
	}

	dc.SetFont(fonts.Regular(cardBodySize))
	dc.SetFillBrush(gg.Solid(gg.White))
	for i, line := range l.bodyLines {
		dc.DrawString(line, cardPad, l.bodyTop+float64(i+1)*cardLineHeight-8)
	}

	return dc.EncodePNG(w)
}

func drawTile(dc *gg.Context, fonts *Fonts, r overlay.Rect, t tile) {
	dc.DrawRoundedRectangle(r.X, r.Y, r.W, r.H, 12)
	dc.SetFillBrush(gg.Solid(cardTile))
	_ = dc.Fill()

	drawGlyph(dc, t.Glyph, r.X+32, r.Y+r.H/2, 14)

	dc.SetFont(fonts.Bold(26))
	dc.SetFillBrush(gg.Solid(gg.White))
	dc.DrawString(t.Value, r.X+60, r.Y+r.H/2)

	dc.SetFont(fonts.Regular(16))
	dc.SetFillBrush(gg.Solid(cardMuted))
	dc.DrawString(t.Label, r.X+60, r.Y+r.H/2+28)
}

// drawGlyph draws a small vector icon of radius s centered at (x, y).
func drawGlyph(dc *gg.Context, g glyph, x, y, s float64) {
	dc.ClearPath()
	switch g {
	case glyphThermometer:
		dc.DrawRoundedRectangle(x-s/4, y-s, s/2, s*1.4, s/4)
		dc.SetFillBrush(gg.SolidHex("#f87171"))
		_ = dc.Fill()
		dc.DrawCircle(x, y+s*0.6, s/2)
		_ = dc.Fill()
	case glyphWind, glyphGust:
		dc.SetStrokeBrush(gg.SolidHex(overlay.WindColor(30)))
		if g == glyphGust {
			dc.SetStrokeBrush(gg.SolidHex(overlay.WindColor(70)))
		}
		dc.SetLineWidth(3)
		dc.SetLineCap(gg.LineCapRound)
		for i, w := range []float64{1, 0.7, 1} {
			yy := y - s/2 + float64(i)*s/2
			dc.MoveTo(x-s, yy)
			dc.LineTo(x-s+2*s*w, yy)
		}
		_ = dc.Stroke()
	case glyphCompass:
		a := overlay.WindArrow(overlay.Pixel{X: x, Y: y}, 0, 0)
		tracePolygon(dc, a.Points())
		dc.SetFillBrush(gg.SolidHex("#e2e8f0"))
		_ = dc.Fill()
	case glyphDrop, glyphHumidity:
		col := "#38bdf8"
		if g == glyphHumidity {
			col = "#2dd4bf"
		}
		dc.MoveTo(x, y-s)
		dc.QuadraticTo(x+s, y+s*0.2, x, y+s)
		dc.QuadraticTo(x-s, y+s*0.2, x, y-s)
		dc.ClosePath()
		dc.SetFillBrush(gg.SolidHex(col))
		_ = dc.Fill()
	case glyphSun:
		dc.SetFillBrush(gg.SolidHex("#facc15"))
		dc.DrawCircle(x, y, s/2)
		_ = dc.Fill()
		dc.SetStrokeBrush(gg.SolidHex("#facc15"))
		dc.SetLineWidth(2)
		for i := 0; i < 8; i++ {
			ang := float64(i) * math.Pi / 4
			dc.MoveTo(x+math.Cos(ang)*s*0.7, y+math.Sin(ang)*s*0.7)
			dc.LineTo(x+math.Cos(ang)*s, y+math.Sin(ang)*s)
		}
		_ = dc.Stroke()
	}
}

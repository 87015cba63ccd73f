package overlay

import "github.com/couchcryptid/storm-vision-service/internal/domain"

// Pixel is a coordinate in a render target's pixel space.
type Pixel struct {
	X, Y float64
}

// Viewport is a render target's pixel box.
type Viewport struct {
	Width  float64
	Height float64
}

// ToPixel scales a normalized point (percent of the source box) into the viewport.
func (v Viewport) ToPixel(p domain.Point) Pixel {
	return Pixel{X: p.X / 100 * v.Width, Y: p.Y / 100 * v.Height}
}

// ToNormalized is the inverse of ToPixel. A zero-sized axis maps to 0.
func (v Viewport) ToNormalized(px Pixel) domain.Point {
	var p domain.Point
	if v.Width != 0 {
		p.X = px.X / v.Width * 100
	}
	if v.Height != 0 {
		p.Y = px.Y / v.Height * 100
	}
	return p
}

// ScaleX scales a single normalized x value.
func (v Viewport) ScaleX(x float64) float64 { return x / 100 * v.Width }

// ScaleY scales a single normalized y value.
func (v Viewport) ScaleY(y float64) float64 { return y / 100 * v.Height }

// ScalePolygon scales every point of a polygon into the viewport. Points are
// trusted as supplied: no simplification, closing or validity checks.
func (v Viewport) ScalePolygon(points []domain.Point) []Pixel {
	out := make([]Pixel, len(points))
	for i, p := range points {
		out[i] = v.ToPixel(p)
	}
	return out
}

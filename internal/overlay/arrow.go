package overlay

import "math"

// Wind arrow sizing in pixels.
const (
	arrowMinLength = 10.0
	arrowMaxLength = 28.0
	arrowWidthRate = 0.5
)

// Arrow is a filled triangle pointing along the wind direction. Tail is the
// midpoint of the base, used as the gradient start; Tip is the gradient end.
type Arrow struct {
	Tip   Pixel
	Left  Pixel
	Right Pixel
	Tail  Pixel
}

// Points returns the triangle vertices in drawing order.
func (a Arrow) Points() []Pixel {
	return []Pixel{a.Tip, a.Right, a.Left}
}

// ArrowLength grows with wind speed and is capped.
func ArrowLength(speed float64) float64 {
	l := arrowMinLength + math.Max(speed, 0)/6
	return math.Min(l, arrowMaxLength)
}

// WindArrow builds the arrow for a sample centered at c. The unrotated arrow
// points up (toward -y); it is rotated clockwise by direction degrees, which
// matches a y-down canvas rotate().
func WindArrow(c Pixel, speed, direction float64) Arrow {
	length := ArrowLength(speed)
	half := length / 2
	halfWidth := length * arrowWidthRate / 2

	theta := direction * math.Pi / 180
	sin, cos := math.Sincos(theta)
	rotate := func(x, y float64) Pixel {
		return Pixel{
			X: c.X + x*cos - y*sin,
			Y: c.Y + x*sin + y*cos,
		}
	}

	return Arrow{
		Tip:   rotate(0, -half),
		Left:  rotate(-halfWidth, half),
		Right: rotate(halfWidth, half),
		Tail:  rotate(0, half),
	}
}

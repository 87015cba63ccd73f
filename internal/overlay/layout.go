package overlay

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the rectangle's midpoint.
func (r Rect) Center() Pixel {
	return Pixel{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Grid describes a fixed tile grid laid out inside a horizontal band.
type Grid struct {
	Columns int
	CellW   float64
	CellH   float64
	Gap     float64
	Left    float64 // x of the band
	Top     float64 // y of the first row
	Width   float64 // band width the grid is centered in
}

// Rows returns the number of rows needed for n tiles.
func (g Grid) Rows(n int) int {
	if n <= 0 || g.Columns <= 0 {
		return 0
	}
	return (n + g.Columns - 1) / g.Columns
}

// Height returns the total height of n tiles including inner gaps.
func (g Grid) Height(n int) float64 {
	rows := g.Rows(n)
	if rows == 0 {
		return 0
	}
	return float64(rows)*g.CellH + float64(rows-1)*g.Gap
}

// Layout places n tiles row by row. Full rows are centered in the band; the
// last, partial row is centered on its own, so it sits in the middle rather
// than hugging the left edge.
func (g Grid) Layout(n int) []Rect {
	if n <= 0 || g.Columns <= 0 {
		return nil
	}

	rects := make([]Rect, 0, n)
	for row := 0; row < g.Rows(n); row++ {
		inRow := g.Columns
		if remaining := n - row*g.Columns; remaining < inRow {
			inRow = remaining
		}
		rowW := float64(inRow)*g.CellW + float64(inRow-1)*g.Gap
		x0 := g.Left + (g.Width-rowW)/2
		y := g.Top + float64(row)*(g.CellH+g.Gap)
		for col := 0; col < inRow; col++ {
			rects = append(rects, Rect{
				X: x0 + float64(col)*(g.CellW+g.Gap),
				Y: y,
				W: g.CellW,
				H: g.CellH,
			})
		}
	}
	return rects
}

// FitWidth scales a w×h box to the target width, keeping the aspect ratio.
func FitWidth(w, h, target float64) (float64, float64) {
	if w <= 0 {
		return target, 0
	}
	return target, h * target / w
}

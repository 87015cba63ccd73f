package render

import (
	"github.com/gogpu/gg"

	"github.com/couchcryptid/storm-vision-service/internal/overlay"
)

// tracePath replays already-scaled SVG path commands onto dc. Lowercase
// commands are relative to the current point. Arcs are approximated by a
// straight segment to their end point; smooth curves reflect the previous
// control point as SVG does.
func tracePath(dc *gg.Context, cmds []overlay.PathCommand) {
	dc.ClearPath()

	var (
		cx, cy     float64 // current point
		sx, sy     float64 // subpath start
		ctrlX      float64 // last control point, for S and T
		ctrlY      float64
		lastOp     byte
		hasCurrent bool
	)

	for _, c := range cmds {
		op := c.Op
		rel := op >= 'a' && op <= 'z'
		upper := op &^ 0x20
		args := c.Args

		offset := func(x, y float64) (float64, float64) {
			if rel {
				return cx + x, cy + y
			}
			return x, y
		}

		switch upper {
		case 'M':
			for i := 0; i+1 < len(args); i += 2 {
				x, y := offset(args[i], args[i+1])
				if i == 0 {
					dc.MoveTo(x, y)
					sx, sy = x, y
				} else {
					dc.LineTo(x, y)
				}
				cx, cy = x, y
				hasCurrent = true
			}
		case 'L':
			for i := 0; i+1 < len(args); i += 2 {
				x, y := offset(args[i], args[i+1])
				lineOrMove(dc, x, y, hasCurrent)
				cx, cy, hasCurrent = x, y, true
			}
		case 'H':
			for _, a := range args {
				x := a
				if rel {
					x += cx
				}
				lineOrMove(dc, x, cy, hasCurrent)
				cx, hasCurrent = x, true
			}
		case 'V':
			for _, a := range args {
				y := a
				if rel {
					y += cy
				}
				lineOrMove(dc, cx, y, hasCurrent)
				cy, hasCurrent = y, true
			}
		case 'C':
			for i := 0; i+5 < len(args); i += 6 {
				x1, y1 := offset(args[i], args[i+1])
				x2, y2 := offset(args[i+2], args[i+3])
				x, y := offset(args[i+4], args[i+5])
				dc.CubicTo(x1, y1, x2, y2, x, y)
				ctrlX, ctrlY = x2, y2
				cx, cy = x, y
			}
		case 'S':
			for i := 0; i+3 < len(args); i += 4 {
				x1, y1 := cx, cy
				if lastOp == 'C' || lastOp == 'S' {
					x1, y1 = 2*cx-ctrlX, 2*cy-ctrlY
				}
				x2, y2 := offset(args[i], args[i+1])
				x, y := offset(args[i+2], args[i+3])
				dc.CubicTo(x1, y1, x2, y2, x, y)
				ctrlX, ctrlY = x2, y2
				cx, cy = x, y
				lastOp = 'S'
			}
		case 'Q':
			for i := 0; i+3 < len(args); i += 4 {
				x1, y1 := offset(args[i], args[i+1])
				x, y := offset(args[i+2], args[i+3])
				dc.QuadraticTo(x1, y1, x, y)
				ctrlX, ctrlY = x1, y1
				cx, cy = x, y
			}
		case 'T':
			for i := 0; i+1 < len(args); i += 2 {
				x1, y1 := cx, cy
				if lastOp == 'Q' || lastOp == 'T' {
					x1, y1 = 2*cx-ctrlX, 2*cy-ctrlY
				}
				x, y := offset(args[i], args[i+1])
				dc.QuadraticTo(x1, y1, x, y)
				ctrlX, ctrlY = x1, y1
				cx, cy = x, y
				lastOp = 'T'
			}
		case 'A':
			for i := 0; i+6 < len(args); i += 7 {
				x, y := offset(args[i+5], args[i+6])
				lineOrMove(dc, x, y, hasCurrent)
				cx, cy, hasCurrent = x, y, true
			}
		case 'Z':
			dc.ClosePath()
			cx, cy = sx, sy
		}
		lastOp = upper
	}
}

func lineOrMove(dc *gg.Context, x, y float64, hasCurrent bool) {
	if hasCurrent {
		dc.LineTo(x, y)
		return
	}
	dc.MoveTo(x, y)
}

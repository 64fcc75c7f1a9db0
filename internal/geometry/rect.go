package geometry

import "math"

// RotatedRect is a minimum-area enclosing rectangle.
type RotatedRect struct {
	Corners Box
	Width   float64 // extent along the chosen edge direction
	Height  float64 // extent perpendicular to it
	Area    float64
	Angle   float64 // edge direction in degrees, (-180, 180]
}

// ShortSide returns the smaller of Width and Height.
func (r RotatedRect) ShortSide() float64 { return math.Min(r.Width, r.Height) }

// MinAreaRect finds the minimum-area rectangle enclosing pts by testing every
// convex hull edge direction. For each edge the hull is rotated into the
// edge's frame and its axis-aligned extent measured; the first candidate with
// strictly smaller area wins, so ties keep the earlier edge.
// Degenerate inputs (fewer than three hull points) yield a zero-area rectangle
// spanning the points.
func MinAreaRect(pts []Point) RotatedRect {
	if len(pts) == 0 {
		return RotatedRect{}
	}
	hull := ConvexHull(pts)
	if len(hull) < 3 {
		return degenerateRect(hull)
	}

	best := RotatedRect{Area: math.Inf(1)}
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		vx, vy := -uy, ux

		minS, maxS := math.Inf(1), math.Inf(-1)
		minT, maxT := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			s := p.X*ux + p.Y*uy
			t := p.X*vx + p.Y*vy
			minS = math.Min(minS, s)
			maxS = math.Max(maxS, s)
			minT = math.Min(minT, t)
			maxT = math.Max(maxT, t)
		}
		area := (maxS - minS) * (maxT - minT)
		if area < best.Area {
			corner := func(s, t float64) Point {
				return Point{X: ux*s + vx*t, Y: uy*s + vy*t}
			}
			best = RotatedRect{
				Corners: Box{corner(minS, minT), corner(maxS, minT), corner(maxS, maxT), corner(minS, maxT)},
				Width:   maxS - minS,
				Height:  maxT - minT,
				Area:    area,
				Angle:   math.Atan2(uy, ux) * 180 / math.Pi,
			}
		}
	}
	return best
}

func degenerateRect(pts []Point) RotatedRect {
	var b Box
	for i := range b {
		b[i] = pts[min(i, len(pts)-1)]
	}
	r := RotatedRect{Corners: b}
	if len(pts) == 2 {
		r.Width = pts[0].Dist(pts[1])
		r.Angle = math.Atan2(pts[1].Y-pts[0].Y, pts[1].X-pts[0].X) * 180 / math.Pi
		b = Box{pts[0], pts[1], pts[1], pts[0]}
		r.Corners = b
	}
	return r
}

package geometry

import "math"

// PolygonArea returns the signed shoelace area of a closed polygon.
func PolygonArea(pts []Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	var s float64
	for i := range n {
		j := (i + 1) % n
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return s / 2
}

// PolygonPerimeter returns the length of the closed polygon boundary.
func PolygonPerimeter(pts []Point) float64 {
	n := len(pts)
	if n < 2 {
		return 0
	}
	var l float64
	for i := range n {
		l += pts[i].Dist(pts[(i+1)%n])
	}
	return l
}

// maxMiter bounds how far a vertex may travel relative to the offset distance.
const maxMiter = 4.0

// Unclip offsets a closed polygon outward by distance d using mitred joins.
// Non-positive distances and polygons with fewer than three points are
// returned as copies.
func Unclip(pts []Point, d float64) []Point {
	n := len(pts)
	if n < 3 || d <= 0 {
		return append([]Point(nil), pts...)
	}
	orient := 1.0
	if PolygonArea(pts) < 0 {
		orient = -1.0
	}
	normal := func(a, b Point) Point {
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			return Point{}
		}
		return Point{X: orient * dy / l, Y: -orient * dx / l}
	}

	out := make([]Point, n)
	for i := range n {
		prev := pts[(i-1+n)%n]
		cur := pts[i]
		next := pts[(i+1)%n]
		n1 := normal(prev, cur)
		n2 := normal(cur, next)
		denom := 1 + n1.X*n2.X + n1.Y*n2.Y
		var off Point
		if denom < 1e-6 {
			off = Point{X: n1.X * d, Y: n1.Y * d}
		} else {
			off = Point{X: (n1.X + n2.X) * d / denom, Y: (n1.Y + n2.Y) * d / denom}
			if l := math.Hypot(off.X, off.Y); l > maxMiter*d {
				off.X *= maxMiter * d / l
				off.Y *= maxMiter * d / l
			}
		}
		out[i] = cur.Add(off)
	}
	return out
}

// PointInPolygon reports whether p lies inside the closed polygon (even-odd rule).
func PointInPolygon(p Point, poly []Point) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// SimplifyPolygon reduces the number of points in a contour using the
// Douglas-Peucker algorithm with tolerance epsilon.
func SimplifyPolygon(pts []Point, epsilon float64) []Point {
	if len(pts) <= 3 || epsilon <= 0 {
		return append([]Point(nil), pts...)
	}
	keep := make([]bool, len(pts))
	keep[0] = true
	keep[len(pts)-1] = true
	dpSimplify(pts, 0, len(pts)-1, epsilon, keep)
	out := make([]Point, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

func dpSimplify(pts []Point, start, end int, eps float64, keep []bool) {
	if end <= start+1 {
		return
	}
	maxDist, index := -1.0, -1
	for i := start + 1; i < end; i++ {
		if d := segmentDistance(pts[i], pts[start], pts[end]); d > maxDist {
			maxDist, index = d, i
		}
	}
	if maxDist > eps {
		keep[index] = true
		dpSimplify(pts, start, index, eps, keep)
		dpSimplify(pts, index, end, eps, keep)
	}
}

func segmentDistance(p, a, b Point) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	if vx == 0 && vy == 0 {
		return p.Dist(a)
	}
	return math.Abs((p.X-a.X)*vy-(p.Y-a.Y)*vx) / math.Hypot(vx, vy)
}

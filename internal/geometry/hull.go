package geometry

import (
	"math"
	"sort"
)

// ConvexHull computes the convex hull of pts with a Graham scan.
//
// The pivot is the lowest-then-leftmost point (smallest Y, then smallest X).
// Remaining points are sorted by increasing polar angle around the pivot,
// nearer points first on equal angles, and any point that does not make a
// strictly positive turn is popped, so collinear boundary points are dropped.
// Fewer than three input points are returned unchanged.
func ConvexHull(pts []Point) []Point {
	if len(pts) < 3 {
		return append([]Point(nil), pts...)
	}

	p := append([]Point(nil), pts...)
	pivot := 0
	for i := 1; i < len(p); i++ {
		if p[i].Y < p[pivot].Y || (p[i].Y == p[pivot].Y && p[i].X < p[pivot].X) {
			pivot = i
		}
	}
	p[0], p[pivot] = p[pivot], p[0]
	o := p[0]

	rest := p[1:]
	sort.SliceStable(rest, func(i, j int) bool {
		ai := math.Atan2(rest[i].Y-o.Y, rest[i].X-o.X)
		aj := math.Atan2(rest[j].Y-o.Y, rest[j].X-o.X)
		if ai != aj {
			return ai < aj
		}
		return o.Dist(rest[i]) < o.Dist(rest[j])
	})

	hull := make([]Point, 0, len(p))
	hull = append(hull, o)
	for _, pt := range rest {
		if pt == o {
			continue
		}
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	// Points on the closing edge back to the pivot.
	for len(hull) >= 3 && cross(hull[len(hull)-2], hull[len(hull)-1], o) <= 0 {
		hull = hull[:len(hull)-1]
	}
	return hull
}

// IsConvex reports whether the closed polygon turns consistently in one direction.
func IsConvex(poly []Point) bool {
	n := len(poly)
	if n < 3 {
		return true
	}
	sign := 0
	for i := range n {
		c := cross(poly[i], poly[(i+1)%n], poly[(i+2)%n])
		switch {
		case c > 1e-9:
			if sign < 0 {
				return false
			}
			sign = 1
		case c < -1e-9:
			if sign > 0 {
				return false
			}
			sign = -1
		}
	}
	return true
}

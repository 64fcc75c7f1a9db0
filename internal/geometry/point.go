// Package geometry holds the plane geometry used by the OCR pipeline: hulls,
// rotated rectangles, polygon offsetting, region cropping and reading order.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Point represents a 2D coordinate in image pixel space. It encodes to JSON
// as an [x, y] pair.
type Point struct {
	X float64
	Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var xy [2]float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Box is a (possibly rotated) quadrilateral. After OrderPoints the vertices run
// clockwise (in image coordinates, y down) starting at the top-left-most one.
type Box [4]Point

// InvalidBoxError reports a quadrilateral that cannot be used.
type InvalidBoxError struct {
	Points int
	Reason string
}

func (e *InvalidBoxError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid box (%d points): %s", e.Points, e.Reason)
	}
	return fmt.Sprintf("invalid box: expected 4 points, got %d", e.Points)
}

// BoxFromPoints converts a 4-point slice into a Box.
func BoxFromPoints(pts []Point) (Box, error) {
	if len(pts) != 4 {
		return Box{}, &InvalidBoxError{Points: len(pts)}
	}
	return Box{pts[0], pts[1], pts[2], pts[3]}, nil
}

// Points returns the vertices as a slice.
func (b Box) Points() []Point { return []Point{b[0], b[1], b[2], b[3]} }

// Area returns the absolute shoelace area.
func (b Box) Area() float64 { return math.Abs(PolygonArea(b.Points())) }

// Valid reports whether the box has a nonzero area.
func (b Box) Valid() bool { return b.Area() > 1e-9 }

// Center returns the mean of the four vertices.
func (b Box) Center() Point {
	var c Point
	for _, p := range b {
		c.X += p.X
		c.Y += p.Y
	}
	return Point{X: c.X / 4, Y: c.Y / 4}
}

// Width is the longer of the top and bottom edges.
func (b Box) Width() float64 { return math.Max(b[0].Dist(b[1]), b[3].Dist(b[2])) }

// Height is the longer of the left and right edges.
func (b Box) Height() float64 { return math.Max(b[0].Dist(b[3]), b[1].Dist(b[2])) }

// Bounds returns the axis-aligned bounding rectangle of the box.
func (b Box) Bounds() Rect { return BoundingRect(b.Points()) }

// Scale multiplies every coordinate by sx, sy.
func (b Box) Scale(sx, sy float64) Box {
	var out Box
	for i, p := range b {
		out[i] = Point{X: p.X * sx, Y: p.Y * sy}
	}
	return out
}

// Clip clamps every vertex into [0,w]x[0,h].
func (b Box) Clip(w, h float64) Box {
	var out Box
	for i, p := range b {
		out[i] = Point{X: clamp(p.X, 0, w), Y: clamp(p.Y, 0, h)}
	}
	return out
}

// OrderPoints arranges four vertices clockwise starting from the top-left-most.
// The two leftmost points (by x) form the left edge; of those, the upper one
// is the start. The remaining two are assigned by y as well.
func OrderPoints(pts [4]Point) Box {
	s := pts
	sort.SliceStable(s[:], func(i, j int) bool {
		if s[i].X == s[j].X {
			return s[i].Y < s[j].Y
		}
		return s[i].X < s[j].X
	})
	tl, bl := s[0], s[1]
	if bl.Y < tl.Y {
		tl, bl = bl, tl
	}
	tr, br := s[2], s[3]
	if br.Y < tr.Y {
		tr, br = br, tr
	}
	return Box{tl, tr, br, bl}
}

// Rect is an axis-aligned rectangle in float coordinates.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width returns the rectangle width.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the rectangle height.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Box returns the rectangle's corners clockwise from the top-left.
func (r Rect) Box() Box {
	return Box{{X: r.MinX, Y: r.MinY}, {X: r.MaxX, Y: r.MinY}, {X: r.MaxX, Y: r.MaxY}, {X: r.MinX, Y: r.MaxY}}
}

// BoundingRect returns the axis-aligned bounding rectangle for a set of points.
func BoundingRect(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	r := Rect{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

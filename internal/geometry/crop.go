package geometry

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// VerticalRatio is the height/width ratio above which a crop is treated as a
// vertical text line and turned on its side.
const VerticalRatio = 1.5

// PerspectiveCrop extracts the quadrilateral pts from src into an upright
// rectangle. The output width is the longer of the top and bottom edges and
// the height the longer of the left and right edges.
//
// The mapping is an affine approximation anchored at the top-left, top-right
// and bottom-left vertices, so heavily skewed quadrilaterals are only partly
// corrected. Crops taller than VerticalRatio times their width are rotated
// 90 degrees counter-clockwise.
func PerspectiveCrop(src image.Image, pts []Point) (*image.NRGBA, error) {
	box, err := BoxFromPoints(pts)
	if err != nil {
		return nil, err
	}
	return CropBox(src, box)
}

// CropBox is PerspectiveCrop for an already validated Box.
func CropBox(src image.Image, box Box) (*image.NRGBA, error) {
	if src == nil {
		return nil, &InvalidBoxError{Points: 4, Reason: "source image is nil"}
	}
	w := int(math.Round(box.Width()))
	h := int(math.Round(box.Height()))
	if w < 1 || h < 1 {
		return nil, &InvalidBoxError{Points: 4, Reason: "degenerate extent"}
	}

	p0, p1, p3 := box[0], box[1], box[3]
	// destination -> source
	a := (p1.X - p0.X) / float64(w)
	b := (p3.X - p0.X) / float64(h)
	c := p0.X
	d := (p1.Y - p0.Y) / float64(w)
	e := (p3.Y - p0.Y) / float64(h)
	f := p0.Y
	det := a*e - b*d
	if math.Abs(det) < 1e-12 {
		return nil, &InvalidBoxError{Points: 4, Reason: "collinear vertices"}
	}
	s2d := f64.Aff3{
		e / det, -b / det, (b*f - e*c) / det,
		-d / det, a / det, (d*c - a*f) / det,
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)

	if float64(h) > VerticalRatio*float64(w) {
		return imaging.Rotate90(dst), nil
	}
	return dst, nil
}

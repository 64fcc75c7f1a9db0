package pipeline

import (
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/scanline/internal/geometry"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

var (
	lowScoreColor  = colorful.Color{R: 0.86, G: 0.16, B: 0.16}
	highScoreColor = colorful.Color{R: 0.13, G: 0.70, B: 0.30}
)

// ScoreColor maps a confidence in [0,1] onto a red to green ramp blended in
// HCL space.
func ScoreColor(score float64) color.NRGBA {
	score = math.Max(0, math.Min(1, score))
	r, g, b := lowScoreColor.BlendHcl(highScoreColor, score).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// RenderOverlay returns a copy of img with every box of res outlined. Boxes
// with a recognition score are colored by ScoreColor; boxes without one
// use the neutral detection color.
func RenderOverlay(img image.Image, res *Result, thickness int) *image.NRGBA {
	if img == nil {
		return nil
	}
	dst := imaging.Clone(img)
	if res == nil {
		return dst
	}
	thickness = max(thickness, 1)
	neutral := color.NRGBA{R: 30, G: 110, B: 230, A: 255}
	off := img.Bounds().Min
	for i, b := range res.Boxes {
		c := neutral
		if i < len(res.Texts) {
			c = ScoreColor(res.Texts[i].Score)
		}
		for k := range 4 {
			p, q := b[k], b[(k+1)%4]
			drawLine(dst,
				geometry.Point{X: p.X - float64(off.X), Y: p.Y - float64(off.Y)},
				geometry.Point{X: q.X - float64(off.X), Y: q.Y - float64(off.Y)},
				c, thickness)
		}
	}
	return dst
}

// drawLine walks the segment in unit steps and stamps a square brush.
func drawLine(dst *image.NRGBA, a, b geometry.Point, c color.NRGBA, thickness int) {
	steps := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))))
	half := thickness / 2
	bounds := dst.Bounds()
	for s := 0; s <= steps; s++ {
		t := 0.0
		if steps > 0 {
			t = float64(s) / float64(steps)
		}
		x := int(math.Round(a.X + t*(b.X-a.X)))
		y := int(math.Round(a.Y + t*(b.Y-a.Y)))
		for dy := -half; dy < thickness-half; dy++ {
			for dx := -half; dx < thickness-half; dx++ {
				if pt := image.Pt(x+dx, y+dy); pt.In(bounds) {
					dst.SetNRGBA(pt.X, pt.Y, c)
				}
			}
		}
	}
}

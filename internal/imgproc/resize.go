package imgproc

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Multiple is the granularity detection inputs are rounded up to.
const Multiple = 32

// LimitType selects which image side ResizeForDetection compares against the
// target side length.
type LimitType int

const (
	// LimitMax shrinks the image when its longer side exceeds the target.
	LimitMax LimitType = iota
	// LimitMin enlarges the image when its shorter side falls below the target.
	LimitMin
)

func (l LimitType) String() string {
	switch l {
	case LimitMax:
		return "max"
	case LimitMin:
		return "min"
	default:
		return fmt.Sprintf("LimitType(%d)", int(l))
	}
}

// ParseLimitType maps "max" and "min" onto a LimitType.
func ParseLimitType(s string) (LimitType, error) {
	switch s {
	case "", "max":
		return LimitMax, nil
	case "min":
		return LimitMin, nil
	}
	return LimitMax, fmt.Errorf("unknown limit type %q", s)
}

// Ratio holds resized/original scale factors per axis. Dividing a coordinate
// in resized space by the ratio maps it back onto the original image.
type Ratio struct {
	H, W float64
}

// ResizeForDetection scales img so the limiting side matches side, then rounds
// both dimensions up to a multiple of 32. The returned ratio reflects the
// rounded size, not the nominal scale.
func ResizeForDetection(img image.Image, side int, limit LimitType) (*image.NRGBA, Ratio, error) {
	if img == nil {
		return nil, Ratio{}, checkImage("resize for detection", 0, 0, true)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if err := checkImage("resize for detection", w, h, false); err != nil {
		return nil, Ratio{}, err
	}
	if side <= 0 {
		return nil, Ratio{}, fmt.Errorf("resize for detection: invalid side length %d", side)
	}

	scale := 1.0
	switch limit {
	case LimitMin:
		if m := min(w, h); m < side {
			scale = float64(side) / float64(m)
		}
	default:
		if m := max(w, h); m > side {
			scale = float64(side) / float64(m)
		}
	}

	newW := roundUp(float64(w) * scale)
	newH := roundUp(float64(h) * scale)
	ratio := Ratio{H: float64(newH) / float64(h), W: float64(newW) / float64(w)}
	if newW == w && newH == h {
		return imaging.Clone(img), ratio, nil
	}
	return imaging.Resize(img, newW, newH, imaging.Linear), ratio, nil
}

func roundUp(v float64) int {
	n := int(math.Ceil(v/Multiple)) * Multiple
	if n < Multiple {
		n = Multiple
	}
	return n
}

// RecognitionWidth returns the width an image of size w x h takes once scaled
// to height, clamped to [1, maxWidth]. A non-positive maxWidth disables the
// clamp.
func RecognitionWidth(w, h, height, maxWidth int) int {
	if w <= 0 || h <= 0 {
		return 1
	}
	nw := int(math.Ceil(float64(height) * float64(w) / float64(h)))
	if nw < 1 {
		nw = 1
	}
	if maxWidth > 0 && nw > maxWidth {
		nw = maxWidth
	}
	return nw
}

// ResizeForRecognition scales img to a fixed height preserving aspect ratio,
// clamps the width to maxWidth and places the result on a batchWidth-wide
// canvas. Narrower content is right-padded with zero pixels; wider content is
// cropped. A non-positive batchWidth leaves the content width as is.
func ResizeForRecognition(img image.Image, height, maxWidth, batchWidth int) (*image.NRGBA, error) {
	if img == nil {
		return nil, checkImage("resize for recognition", 0, 0, true)
	}
	b := img.Bounds()
	if err := checkImage("resize for recognition", b.Dx(), b.Dy(), false); err != nil {
		return nil, err
	}
	if height <= 0 {
		return nil, fmt.Errorf("resize for recognition: invalid height %d", height)
	}

	nw := RecognitionWidth(b.Dx(), b.Dy(), height, maxWidth)
	resized := imaging.Resize(img, nw, height, imaging.Linear)
	if batchWidth <= 0 || batchWidth == nw {
		return resized, nil
	}
	if batchWidth < nw {
		return imaging.Crop(resized, image.Rect(0, 0, batchWidth, height)), nil
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, batchWidth, height))
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), nil
}

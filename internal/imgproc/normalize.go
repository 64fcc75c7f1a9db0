package imgproc

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Layout is the memory order of a normalized 3-channel tensor.
type Layout int

const (
	// LayoutPlanar stores channels as separate planes (CHW).
	LayoutPlanar Layout = iota
	// LayoutInterleaved stores channels per pixel (HWC).
	LayoutInterleaved
)

func (l Layout) String() string {
	if l == LayoutInterleaved {
		return "hwc"
	}
	return "chw"
}

// Stats are per-channel mean and standard deviation applied after scaling
// pixel values to [0, 1].
type Stats struct {
	Mean [3]float32
	Std  [3]float32
}

var (
	// ImageNetStats is used for detection inputs.
	ImageNetStats = Stats{Mean: [3]float32{0.485, 0.456, 0.406}, Std: [3]float32{0.229, 0.224, 0.225}}
	// SymmetricStats maps [0, 1] onto [-1, 1]; used for classification and recognition.
	SymmetricStats = Stats{Mean: [3]float32{0.5, 0.5, 0.5}, Std: [3]float32{0.5, 0.5, 0.5}}
)

// Normalize converts img to float32 values (p/255 - mean)/std in RGB order.
func Normalize(img image.Image, stats Stats, layout Layout) ([]float32, error) {
	if img == nil {
		return nil, checkImage("normalize", 0, 0, true)
	}
	b := img.Bounds()
	dst := make([]float32, 3*b.Dx()*b.Dy())
	if err := NormalizeInto(dst, img, stats, layout); err != nil {
		return nil, err
	}
	return dst, nil
}

// NormalizeInto is Normalize writing into a caller-owned buffer of at least
// 3*w*h elements.
func NormalizeInto(dst []float32, img image.Image, stats Stats, layout Layout) error {
	if img == nil {
		return checkImage("normalize", 0, 0, true)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if err := checkImage("normalize", w, h, false); err != nil {
		return err
	}
	if len(dst) < 3*w*h {
		return fmt.Errorf("normalize: buffer holds %d values, need %d", len(dst), 3*w*h)
	}
	for c := range 3 {
		if stats.Std[c] == 0 {
			return fmt.Errorf("normalize: zero std for channel %d", c)
		}
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = imaging.Clone(img)
	}
	var scale, shift [3]float32
	for c := range 3 {
		scale[c] = 1 / (255 * stats.Std[c])
		shift[c] = stats.Mean[c] / stats.Std[c]
	}

	plane := w * h
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range w {
			px := row[x*4 : x*4+3]
			for c := range 3 {
				v := float32(px[c])*scale[c] - shift[c]
				if layout == LayoutInterleaved {
					dst[(y*w+x)*3+c] = v
				} else {
					dst[c*plane+y*w+x] = v
				}
			}
		}
	}
	return nil
}

// ToPlanar reorders an interleaved HWC tensor into planar CHW order.
func ToPlanar(hwc []float32, c, h, w int) ([]float32, error) {
	if c <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("to planar: invalid dims c=%d h=%d w=%d", c, h, w)
	}
	if len(hwc) != c*h*w {
		return nil, fmt.Errorf("to planar: got %d values, want %d", len(hwc), c*h*w)
	}
	out := make([]float32, len(hwc))
	plane := h * w
	for i := range plane {
		for ch := range c {
			out[ch*plane+i] = hwc[i*c+ch]
		}
	}
	return out, nil
}

// PadPlanar copies a CHW tensor of width w into dst laid out with width dstW.
// Columns beyond w are zero; columns beyond dstW are dropped.
func PadPlanar(dst, src []float32, c, h, w, dstW int) error {
	if len(src) < c*h*w || len(dst) < c*h*dstW {
		return fmt.Errorf("pad planar: buffer sizes %d/%d too small for %dx%dx%d -> width %d",
			len(src), len(dst), c, h, w, dstW)
	}
	n := min(w, dstW)
	for ch := range c {
		for y := range h {
			d := dst[(ch*h+y)*dstW : (ch*h+y+1)*dstW]
			copy(d, src[(ch*h+y)*w:(ch*h+y)*w+n])
			clear(d[n:])
		}
	}
	return nil
}

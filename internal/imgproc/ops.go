package imgproc

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Kind tags a preprocessing operator.
type Kind int

const (
	KindDetResize Kind = iota + 1
	KindRecResize
	KindNormalize
	KindToPlanar
)

var kindNames = map[Kind]string{
	KindDetResize: "det_resize",
	KindRecResize: "rec_resize",
	KindNormalize: "normalize",
	KindToPlanar:  "to_planar",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps an operator name back onto its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown preprocessing operator %q", name)
}

// Op is one preprocessing step. Only the parameters matching Kind are read.
type Op struct {
	Kind Kind

	// KindDetResize
	Side  int
	Limit LimitType

	// KindRecResize
	Height     int
	MaxWidth   int
	BatchWidth int

	// KindNormalize
	Stats  Stats
	Layout Layout
}

// DetResize builds a KindDetResize operator.
func DetResize(side int, limit LimitType) Op {
	return Op{Kind: KindDetResize, Side: side, Limit: limit}
}

// RecResize builds a KindRecResize operator.
func RecResize(height, maxWidth, batchWidth int) Op {
	return Op{Kind: KindRecResize, Height: height, MaxWidth: maxWidth, BatchWidth: batchWidth}
}

// NormalizeOp builds a KindNormalize operator.
func NormalizeOp(stats Stats, layout Layout) Op {
	return Op{Kind: KindNormalize, Stats: stats, Layout: layout}
}

// ToPlanarOp builds a KindToPlanar operator.
func ToPlanarOp() Op { return Op{Kind: KindToPlanar} }

// Frame is the state threaded through a Chain. Image is set until a
// normalize step produces Data.
type Frame struct {
	Image  *image.NRGBA
	Data   []float32
	Layout Layout
	Width  int
	Height int
	// Ratio accumulates the scale applied by resize steps.
	Ratio Ratio
}

// Chain is an ordered list of operators.
type Chain []Op

var errNoImage = errors.New("operator needs an image but the frame holds a tensor")

// Run applies the chain to img.
func (c Chain) Run(img image.Image) (*Frame, error) {
	if img == nil {
		return nil, checkImage("preprocess", 0, 0, true)
	}
	b := img.Bounds()
	if err := checkImage("preprocess", b.Dx(), b.Dy(), false); err != nil {
		return nil, err
	}
	f := &Frame{Width: b.Dx(), Height: b.Dy(), Ratio: Ratio{H: 1, W: 1}}
	src := img
	for i, op := range c {
		if err := op.apply(f, &src); err != nil {
			return nil, fmt.Errorf("preprocess step %d (%s): %w", i, op.Kind, err)
		}
	}
	if f.Image == nil && f.Data == nil {
		f.Image = asNRGBA(src)
	}
	return f, nil
}

func (op Op) apply(f *Frame, src *image.Image) error {
	switch op.Kind {
	case KindDetResize:
		if f.Data != nil {
			return errNoImage
		}
		out, r, err := ResizeForDetection(*src, op.Side, op.Limit)
		if err != nil {
			return err
		}
		f.Ratio = Ratio{H: f.Ratio.H * r.H, W: f.Ratio.W * r.W}
		f.setImage(out, src)
	case KindRecResize:
		if f.Data != nil {
			return errNoImage
		}
		before := (*src).Bounds()
		out, err := ResizeForRecognition(*src, op.Height, op.MaxWidth, op.BatchWidth)
		if err != nil {
			return err
		}
		f.Ratio = Ratio{
			H: f.Ratio.H * float64(op.Height) / float64(before.Dy()),
			W: f.Ratio.W * float64(out.Bounds().Dx()) / float64(before.Dx()),
		}
		f.setImage(out, src)
	case KindNormalize:
		if f.Data != nil {
			return errNoImage
		}
		data, err := Normalize(*src, op.Stats, op.Layout)
		if err != nil {
			return err
		}
		f.Data, f.Layout, f.Image = data, op.Layout, nil
	case KindToPlanar:
		if f.Data == nil {
			return errors.New("to planar needs a normalized tensor")
		}
		if f.Layout == LayoutPlanar {
			return nil
		}
		data, err := ToPlanar(f.Data, 3, f.Height, f.Width)
		if err != nil {
			return err
		}
		f.Data, f.Layout = data, LayoutPlanar
	default:
		return fmt.Errorf("unsupported operator %s", op.Kind)
	}
	return nil
}

func (f *Frame) setImage(img *image.NRGBA, src *image.Image) {
	f.Image = img
	f.Width, f.Height = img.Bounds().Dx(), img.Bounds().Dy()
	*src = img
}

func asNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	return imaging.Clone(img)
}

// Package testutil builds synthetic pages and the scripted model engines
// that "see" them, so pipeline front ends can be tested without models.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sort"
	"sync"
	"testing"

	"github.com/MeKo-Tech/scanline/internal/onnx"
	"github.com/MeKo-Tech/scanline/internal/onnx/mock"
	"github.com/MeKo-Tech/scanline/internal/recognizer"
)

// Region is one line of text on a synthetic page.
type Region struct {
	Rect       image.Rectangle
	Text       string
	Score      float32 // recognition confidence, 0.9 when zero
	UpsideDown bool
}

// Page is a white canvas with dark blocks where the regions are.
type Page struct {
	Width, Height int
	Regions       []Region
}

// Image renders the page.
func (p Page) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 255, 255, 255
	}
	ink := color.NRGBA{R: 20, G: 20, B: 20, A: 255}
	for _, r := range p.Regions {
		rr := r.Rect.Intersect(img.Bounds())
		for y := rr.Min.Y; y < rr.Max.Y; y++ {
			for x := rr.Min.X; x < rr.Max.X; x++ {
				img.SetNRGBA(x, y, ink)
			}
		}
	}
	return img
}

// PNG encodes the page image.
func (p Page) PNG(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image()); err != nil {
		t.Fatalf("encode page: %v", err)
	}
	return buf.Bytes()
}

// ReadingOrder returns the regions sorted top to bottom, then left to right,
// treating tops within rowThreshold pixels as one row.
func (p Page) ReadingOrder(rowThreshold int) []Region {
	out := append([]Region(nil), p.Regions...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := center(out[i].Rect), center(out[j].Rect)
		if abs(ci.Y-cj.Y) <= rowThreshold {
			return ci.X < cj.X
		}
		return ci.Y < cj.Y
	})
	return out
}

// Engines are scripted models consistent with a Page.
type Engines struct {
	Detector   *mock.Engine
	Classifier *mock.Engine
	Recognizer *mock.Engine
}

// NewEngines scripts engines for page. The detector marks every region in
// model-input coordinates. The classifier and recognizer answer per crop in
// reading order, which is the order the pipeline crops in; the counters
// restart with every new detection call, so one set of engines can serve
// repeated runs over the same page.
func NewEngines(page Page, cs *recognizer.Charset) *Engines {
	ordered := page.ReadingOrder(10)
	var (
		mu       sync.Mutex
		clsIndex int
		recIndex int
	)
	e := &Engines{}
	e.Detector = mock.DetectionEngine("det.onnx", func(w, h int) onnx.Tensor {
		mu.Lock()
		clsIndex, recIndex = 0, 0
		mu.Unlock()
		sx := float64(w) / float64(page.Width)
		sy := float64(h) / float64(page.Height)
		rects := make([]image.Rectangle, len(page.Regions))
		for i, r := range page.Regions {
			rects[i] = image.Rect(
				int(float64(r.Rect.Min.X)*sx), int(float64(r.Rect.Min.Y)*sy),
				int(float64(r.Rect.Max.X)*sx), int(float64(r.Rect.Max.Y)*sy))
		}
		return mock.RectMap(w, h, rects, 0.95, 0.02)
	})
	e.Classifier = mock.ClassifierEngine("cls.onnx", func(int) (int, float32) {
		mu.Lock()
		defer mu.Unlock()
		r := regionAt(ordered, clsIndex)
		clsIndex++
		if r.UpsideDown {
			return 1, 0.97
		}
		return 0, 0.97
	})
	e.Recognizer = mock.ScoredRecognitionEngine("rec.onnx", cs.Classes(), func(int) ([]int, float32) {
		mu.Lock()
		defer mu.Unlock()
		r := regionAt(ordered, recIndex)
		recIndex++
		seq, err := cs.Encode(r.Text)
		if err != nil {
			seq = nil
		}
		score := r.Score
		if score == 0 {
			score = 0.9
		}
		return seq, score
	})
	return e
}

func regionAt(rs []Region, i int) Region {
	if i < len(rs) {
		return rs[i]
	}
	return Region{}
}

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

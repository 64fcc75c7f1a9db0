package detector

import (
	"cmp"
	"math"
	"slices"

	"github.com/MeKo-Tech/scanline/internal/geometry"
	"github.com/MeKo-Tech/scanline/internal/imgproc"
	"github.com/MeKo-Tech/scanline/internal/mempool"
)

// Candidate is a detected text quadrilateral in original image coordinates,
// ordered clockwise from the top-left corner.
type Candidate struct {
	Box   geometry.Box `json:"box"`
	Score float64      `json:"score"`
}

// Map is a single-channel probability map in model input space.
type Map struct {
	Data          []float32
	Width, Height int
}

// PostProcess turns a probability map into scored boxes. ratio is the
// resize applied before inference; boxes are mapped back through it and
// clipped to the origW x origH original image.
func PostProcess(m Map, ratio imgproc.Ratio, origW, origH int, cfg Config) []Candidate {
	arena := mempool.NewArena()
	defer arena.Release()
	return postProcess(m, ratio, origW, origH, cfg, arena)
}

func postProcess(m Map, ratio imgproc.Ratio, origW, origH int, cfg Config, arena *mempool.Arena) []Candidate {
	if m.Width <= 0 || m.Height <= 0 || len(m.Data) < m.Width*m.Height {
		return nil
	}
	mask := binarize(m.Data[:m.Width*m.Height], cfg.Thresh, arena)
	if cfg.Dilate {
		mask = dilate(mask, m.Width, m.Height, arena)
	}
	labels, comps := labelComponents(mask, m.Width, m.Height, cfg.Neighborhood)

	cands := make([]Candidate, 0, len(comps))
	for _, c := range comps {
		if c.width() < cfg.MinSize || c.height() < cfg.MinSize {
			continue
		}
		contour := traceBoundary(labels, m.Width, m.Height, c)
		if len(contour) < 3 {
			continue
		}
		eps := max(0.5, 0.01*float64(max(c.width(), c.height())))
		contour = geometry.SimplifyPolygon(contour, eps)
		rect := geometry.MinAreaRect(contour)
		// Pixel centres span one less than the pixel extent.
		if rect.ShortSide() < float64(cfg.MinSize-1) {
			continue
		}

		score := scoreBox(m, rect.Corners, cfg.ScoreMode)
		if score < cfg.BoxThresh {
			continue
		}

		dist := (cfg.UnclipRatio - 1) / 2 * math.Max(rect.Width, rect.Height)
		grown := geometry.MinAreaRect(geometry.Unclip(rect.Corners.Points(), dist))
		if grown.ShortSide() < float64(cfg.MinSize+2) {
			continue
		}

		box, ok := toOriginal(grown.Corners, ratio, origW, origH)
		if !ok {
			continue
		}
		cands = append(cands, Candidate{Box: box, Score: score})
	}

	slices.SortStableFunc(cands, func(a, b Candidate) int { return cmp.Compare(b.Score, a.Score) })
	if cfg.MaxCandidates > 0 && len(cands) > cfg.MaxCandidates {
		cands = cands[:cfg.MaxCandidates]
	}
	return cands
}

// scoreBox returns the mean probability covered by box.
func scoreBox(m Map, box geometry.Box, mode ScoreMode) float64 {
	r := box.Bounds()
	x0 := clampInt(int(math.Floor(r.MinX)), 0, m.Width-1)
	x1 := clampInt(int(math.Ceil(r.MaxX)), 0, m.Width-1)
	y0 := clampInt(int(math.Floor(r.MinY)), 0, m.Height-1)
	y1 := clampInt(int(math.Ceil(r.MaxY)), 0, m.Height-1)

	var poly []geometry.Point
	if mode == ScorePolygon {
		// Pixel centres lying on the rectangle edge count as inside.
		poly = geometry.Unclip(box.Points(), 0.5)
	}
	var sum float64
	var n int
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if poly != nil && !geometry.PointInPolygon(geometry.Point{X: float64(x), Y: float64(y)}, poly) {
				continue
			}
			sum += float64(m.Data[y*m.Width+x])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// toOriginal maps a box from model input space back onto the original image.
func toOriginal(b geometry.Box, ratio imgproc.Ratio, origW, origH int) (geometry.Box, bool) {
	if ratio.W <= 0 || ratio.H <= 0 {
		return geometry.Box{}, false
	}
	scaled := b.Scale(1/ratio.W, 1/ratio.H).Clip(float64(origW), float64(origH))
	out := geometry.OrderPoints(scaled)
	// A box that rounds to no whole pixel cannot be cropped.
	if !out.Valid() || math.Round(out.Width()) < 1 || math.Round(out.Height()) < 1 {
		return geometry.Box{}, false
	}
	return out, true
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

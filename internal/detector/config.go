package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/scanline/internal/imgproc"
)

// ScoreMode selects how a candidate's confidence is measured on the map.
type ScoreMode int

const (
	// ScoreFast averages the probability over the candidate's axis-aligned
	// bounding box.
	ScoreFast ScoreMode = iota
	// ScorePolygon averages only pixels whose centres fall inside the
	// candidate rectangle.
	ScorePolygon
)

func (m ScoreMode) String() string {
	if m == ScorePolygon {
		return "polygon"
	}
	return "fast"
}

// ParseScoreMode maps "fast" or "polygon" onto a ScoreMode.
func ParseScoreMode(s string) (ScoreMode, error) {
	switch s {
	case "", "fast":
		return ScoreFast, nil
	case "polygon", "slow":
		return ScorePolygon, nil
	}
	return ScoreFast, fmt.Errorf("unknown score mode %q", s)
}

// Neighborhood is the pixel connectivity used to grow components.
type Neighborhood int

const (
	Four  Neighborhood = 4
	Eight Neighborhood = 8
)

// Config holds detection pre- and post-processing parameters.
type Config struct {
	// LimitSideLen and LimitType drive the resize before inference.
	LimitSideLen int
	LimitType    imgproc.LimitType

	Thresh        float32 // binarization threshold on the probability map
	BoxThresh     float64 // minimum candidate score
	UnclipRatio   float64
	MaxCandidates int
	MinSize       int // minimum component extent in pixels, either axis
	ScoreMode     ScoreMode
	Neighborhood  Neighborhood
	// Dilate grows the binary mask with a 2x2 kernel before labelling,
	// joining characters separated by a one-pixel gap.
	Dilate bool
}

// DefaultConfig returns the standard DB post-processing settings.
func DefaultConfig() Config {
	return Config{
		LimitSideLen:  960,
		LimitType:     imgproc.LimitMax,
		Thresh:        0.3,
		BoxThresh:     0.6,
		UnclipRatio:   1.5,
		MaxCandidates: 1000,
		MinSize:       5,
		ScoreMode:     ScoreFast,
		Neighborhood:  Four,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.LimitSideLen <= 0:
		return fmt.Errorf("limit side length must be positive, got %d", c.LimitSideLen)
	case c.Thresh <= 0 || c.Thresh >= 1:
		return fmt.Errorf("threshold must be in (0,1), got %v", c.Thresh)
	case c.BoxThresh < 0 || c.BoxThresh > 1:
		return fmt.Errorf("box threshold must be in [0,1], got %v", c.BoxThresh)
	case c.UnclipRatio < 1:
		return fmt.Errorf("unclip ratio must be >= 1, got %v", c.UnclipRatio)
	case c.MaxCandidates <= 0:
		return errors.New("max candidates must be positive")
	case c.MinSize < 1:
		return fmt.Errorf("min size must be >= 1, got %d", c.MinSize)
	case c.Neighborhood != Four && c.Neighborhood != Eight:
		return fmt.Errorf("neighborhood must be 4 or 8, got %d", c.Neighborhood)
	}
	return nil
}

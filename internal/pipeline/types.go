package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/scanline/internal/geometry"
	"github.com/MeKo-Tech/scanline/internal/orientation"
)

// Options selects the stages of a run.
type Options struct {
	Detect    bool `json:"det"`
	Classify  bool `json:"cls"`
	Recognize bool `json:"rec"`
}

// DefaultOptions runs detection and recognition.
func DefaultOptions() Options { return Options{Detect: true, Recognize: true} }

// String renders the options as a stable tag, e.g. "det+rec".
func (o Options) String() string {
	var parts []string
	if o.Detect {
		parts = append(parts, "det")
	}
	if o.Classify {
		parts = append(parts, "cls")
	}
	if o.Recognize {
		parts = append(parts, "rec")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// TextScore is a recognized string with its confidence. It encodes to JSON
// as a [text, score] pair.
type TextScore struct {
	Text  string
	Score float64
}

func (t TextScore) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{t.Text, t.Score})
}

func (t *TextScore) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("text score: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &t.Text); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &t.Score)
}

// Result is the output of one run. Boxes, Texts and Angles are in lockstep
// and in reading order; Texts is empty for detection-only runs and Angles is
// empty unless classification ran.
type Result struct {
	Boxes  []geometry.Box      `json:"boxes"`
	Texts  []TextScore         `json:"texts"`
	Angles []orientation.Angle `json:"angles,omitempty"`
}

// Item is one region of a Result.
type Item struct {
	Box   geometry.Box       `json:"box"`
	Text  string             `json:"text"`
	Score float64            `json:"score"`
	Angle *orientation.Angle `json:"angle,omitempty"`
}

// Items flattens the result into one entry per region.
func (r *Result) Items() []Item {
	if r == nil {
		return nil
	}
	items := make([]Item, len(r.Boxes))
	for i, b := range r.Boxes {
		items[i].Box = b
		if i < len(r.Texts) {
			items[i].Text = r.Texts[i].Text
			items[i].Score = r.Texts[i].Score
		}
		if i < len(r.Angles) {
			a := r.Angles[i]
			items[i].Angle = &a
		}
	}
	return items
}

// Line is a run of items sharing a text row, left to right.
type Line struct {
	Items []Item `json:"items"`
	Text  string `json:"text"`
}

// Lines groups the items into text lines whose average vertical centers lie
// within threshold pixels of each other.
func (r *Result) Lines(threshold float64) []Line {
	items := r.Items()
	centers := make([]geometry.Point, len(items))
	for i, it := range items {
		centers[i] = it.Box.Center()
	}
	groups := geometry.GroupIntoLines(centers, threshold)
	lines := make([]Line, len(groups))
	for i, g := range groups {
		texts := make([]string, 0, len(g))
		for _, idx := range g {
			lines[i].Items = append(lines[i].Items, items[idx])
			if items[idx].Text != "" {
				texts = append(texts, items[idx].Text)
			}
		}
		lines[i].Text = strings.Join(texts, " ")
	}
	return lines
}

// Text joins the result's lines with newlines.
func (r *Result) Text(threshold float64) string {
	lines := r.Lines(threshold)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Text != "" {
			out = append(out, l.Text)
		}
	}
	return strings.Join(out, "\n")
}

// Stage names used in StageError.
const (
	StageDetect    = "detect"
	StageCrop      = "crop"
	StageClassify  = "classify"
	StageRecognize = "recognize"
)

// StageError attributes a failure to a pipeline stage and, where it applies,
// to a region index.
type StageError struct {
	Stage string
	Index int // region index, -1 when the stage failed as a whole
	Err   error
}

func (e *StageError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s stage, region %d: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

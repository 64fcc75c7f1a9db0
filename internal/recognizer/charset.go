package recognizer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Charset maps model classes onto glyphs. Class 0 is the CTC blank; glyph i
// of the dictionary is class i+1.
type Charset struct {
	glyphs []string
}

// NewCharset builds a charset from glyphs in dictionary order. With space
// set, a trailing " " glyph is appended.
func NewCharset(glyphs []string, space bool) *Charset {
	g := make([]string, 0, len(glyphs)+1)
	g = append(g, glyphs...)
	if space {
		g = append(g, " ")
	}
	return &Charset{glyphs: g}
}

// DefaultCharset holds printable ASCII followed by a space glyph.
func DefaultCharset() *Charset {
	glyphs := make([]string, 0, '~'-'!'+1)
	for r := '!'; r <= '~'; r++ {
		glyphs = append(glyphs, string(r))
	}
	return NewCharset(glyphs, true)
}

// Len returns the number of glyphs.
func (c *Charset) Len() int {
	if c == nil {
		return 0
	}
	return len(c.glyphs)
}

// Classes returns the number of model classes, blank included.
func (c *Charset) Classes() int { return c.Len() + 1 }

// Glyph returns the glyph for a model class. The blank and classes beyond the
// dictionary report false.
func (c *Charset) Glyph(class int) (string, bool) {
	if c == nil || class < 1 || class > len(c.glyphs) {
		return "", false
	}
	return c.glyphs[class-1], true
}

// Encode returns the class sequence a greedy CTC decode turns back into
// text, with a blank between repeated glyphs. Each rune is looked up as one
// glyph; unknown runes are reported.
func (c *Charset) Encode(text string) ([]int, error) {
	index := make(map[string]int, c.Len())
	for i, g := range c.glyphs {
		if _, ok := index[g]; !ok {
			index[g] = i + 1
		}
	}
	var out []int
	for _, r := range text {
		cls, ok := index[string(r)]
		if !ok {
			return nil, fmt.Errorf("glyph %q is not in the charset", r)
		}
		if len(out) > 0 && out[len(out)-1] == cls {
			out = append(out, 0)
		}
		out = append(out, cls)
	}
	return out, nil
}

// ParseCharset reads a newline-delimited dictionary, one glyph per line. A
// UTF-8 BOM and CR line endings are stripped; empty lines are skipped.
func ParseCharset(r io.Reader, space bool) (*Charset, error) {
	sc := bufio.NewScanner(r)
	var glyphs []string
	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		if line == "" {
			continue
		}
		glyphs = append(glyphs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if len(glyphs) == 0 {
		return nil, errors.New("dictionary is empty")
	}
	return NewCharset(glyphs, space), nil
}

var dictClient = &http.Client{Timeout: 30 * time.Second}

// ReadCharset loads a dictionary from a file path or an http(s) URL.
func ReadCharset(ctx context.Context, source string, space bool) (*Charset, error) {
	if source == "" {
		return nil, errors.New("dictionary source is empty")
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("build dictionary request: %w", err)
		}
		resp, err := dictClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch dictionary %s: %w", source, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch dictionary %s: status %s", source, resp.Status)
		}
		return ParseCharset(resp.Body, space)
	}

	f, err := os.Open(source) //nolint:gosec // dictionary path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseCharset(f, space)
}

// LoadCharset is ReadCharset that fails open: on any error it logs a warning
// and returns DefaultCharset.
func LoadCharset(ctx context.Context, source string, space bool) *Charset {
	cs, err := ReadCharset(ctx, source, space)
	if err != nil {
		slog.Warn("dictionary unavailable, falling back to ASCII charset", "source", source, "error", err)
		return DefaultCharset()
	}
	slog.Debug("dictionary loaded", "source", source, "glyphs", cs.Len())
	return cs
}

package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Output formats understood by Format.
const (
	FormatJSON  = "json"
	FormatItems = "items"
	FormatLines = "lines"
	FormatCSV   = "csv"
)

// Format renders res in one of the output formats. lineThreshold is used by
// the lines format.
func Format(res *Result, format string, lineThreshold float64) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.MarshalIndent(res, "", "  ")
	case FormatItems:
		return json.MarshalIndent(res.Items(), "", "  ")
	case FormatLines:
		return []byte(res.Text(lineThreshold) + "\n"), nil
	case FormatCSV:
		return toCSV(res)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

func toCSV(res *Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"index", "x1", "y1", "x2", "y2", "x3", "y3", "x4", "y4", "text", "score", "angle"})
	for i, it := range res.Items() {
		row := []string{strconv.Itoa(i)}
		for _, p := range it.Box {
			row = append(row, strconv.FormatFloat(p.X, 'f', 1, 64), strconv.FormatFloat(p.Y, 'f', 1, 64))
		}
		angle := ""
		if it.Angle != nil {
			angle = strconv.Itoa(it.Angle.Label)
		}
		row = append(row, it.Text, strconv.FormatFloat(it.Score, 'f', 4, 64), angle)
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

package geometry

import (
	"math"
	"sort"
)

// DefaultRowThreshold is the vertical distance in pixels within which two
// box centers count as the same row.
const DefaultRowThreshold = 10.0

// SortReadingOrder returns the indices of boxes in reading order: top to
// bottom, then left to right. Centers whose vertical distance to the first
// box of the current row is within rowThreshold share that row. The sort is
// stable, so equal positions keep their input order.
func SortReadingOrder(boxes []Box, rowThreshold float64) []int {
	if rowThreshold < 0 {
		rowThreshold = DefaultRowThreshold
	}
	centers := make([]Point, len(boxes))
	for i, b := range boxes {
		centers[i] = b.Center()
	}
	idx := make([]int, len(boxes))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return centers[idx[a]].Y < centers[idx[b]].Y })

	out := make([]int, 0, len(idx))
	for start := 0; start < len(idx); {
		rowY := centers[idx[start]].Y
		end := start + 1
		for end < len(idx) && centers[idx[end]].Y-rowY <= rowThreshold {
			end++
		}
		row := idx[start:end]
		sort.SliceStable(row, func(a, b int) bool { return centers[row[a]].X < centers[row[b]].X })
		out = append(out, row...)
		start = end
	}
	return out
}

// GroupIntoLines greedily assigns each center, in the given order, to the
// first open line whose running average vertical center is within
// lineThreshold, updating that average incrementally; otherwise a new line is
// opened. Each returned line lists input indices sorted left to right.
func GroupIntoLines(centers []Point, lineThreshold float64) [][]int {
	type line struct {
		members []int
		avgY    float64
	}
	var lines []*line
	for i, c := range centers {
		var target *line
		for _, l := range lines {
			if math.Abs(l.avgY-c.Y) <= lineThreshold {
				target = l
				break
			}
		}
		if target == nil {
			lines = append(lines, &line{members: []int{i}, avgY: c.Y})
			continue
		}
		target.members = append(target.members, i)
		target.avgY += (c.Y - target.avgY) / float64(len(target.members))
	}

	out := make([][]int, len(lines))
	for i, l := range lines {
		m := l.members
		sort.SliceStable(m, func(a, b int) bool { return centers[m[a]].X < centers[m[b]].X })
		out[i] = m
	}
	return out
}

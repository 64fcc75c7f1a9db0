package detector

import "github.com/MeKo-Tech/scanline/internal/mempool"

// component is a connected set of foreground pixels in the binary mask.
type component struct {
	label                  int32
	count                  int
	minX, minY, maxX, maxY int
}

func (c component) width() int  { return c.maxX - c.minX + 1 }
func (c component) height() int { return c.maxY - c.minY + 1 }

var (
	fourDirs  = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	eightDirs = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {-1, 1}, {1, -1}, {-1, -1}}
)

// binarize marks every pixel at or above t in a mask owned by arena.
func binarize(prob []float32, t float32, arena *mempool.Arena) []bool {
	mask := arena.Bool(len(prob))
	for i, p := range prob {
		mask[i] = p >= t
	}
	return mask
}

// dilate grows mask with a 2x2 kernel anchored at its bottom-right cell.
func dilate(mask []bool, w, h int, arena *mempool.Arena) []bool {
	out := arena.Bool(len(mask))
	for y := range h {
		for x := range w {
			out[y*w+x] = mask[y*w+x] ||
				(x > 0 && mask[y*w+x-1]) ||
				(y > 0 && mask[(y-1)*w+x]) ||
				(x > 0 && y > 0 && mask[(y-1)*w+x-1])
		}
	}
	return out
}

// labelComponents flood-fills the mask breadth first and returns the label
// image (0 = background) with per-component extents, in raster order of
// their first pixel.
func labelComponents(mask []bool, w, h int, nb Neighborhood) ([]int32, []component) {
	dirs := fourDirs
	if nb == Eight {
		dirs = eightDirs
	}
	labels := make([]int32, w*h)
	var comps []component
	var queue []int

	for start, on := range mask {
		if !on || labels[start] != 0 {
			continue
		}
		label := int32(len(comps) + 1)
		sx, sy := start%w, start/w
		c := component{label: label, minX: sx, minY: sy, maxX: sx, maxY: sy}
		labels[start] = label
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			x, y := i%w, i/w
			c.count++
			c.minX, c.maxX = min(c.minX, x), max(c.maxX, x)
			c.minY, c.maxY = min(c.minY, y), max(c.maxY, y)
			for _, d := range dirs {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if mask[ni] && labels[ni] == 0 {
					labels[ni] = label
					queue = append(queue, ni)
				}
			}
		}
		comps = append(comps, c)
	}
	return labels, comps
}

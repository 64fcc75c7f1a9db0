package detector

import "github.com/MeKo-Tech/scanline/internal/geometry"

// Moore neighbourhood, clockwise with y pointing down: E, SE, S, SW, W, NW, N, NE.
var (
	mooreDX = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	mooreDY = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

const west = 4

func mooreIndex(dx, dy int) int {
	for i := range 8 {
		if mooreDX[i] == dx && mooreDY[i] == dy {
			return i
		}
	}
	return west
}

// traceBoundary follows the outer boundary of component c with Moore
// neighbour tracing and returns pixel coordinates in clockwise order. Tracing
// stops when the first step out of the start pixel is about to repeat.
func traceBoundary(labels []int32, w, h int, c component) []geometry.Point {
	in := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && labels[y*w+x] == c.label
	}

	// The first pixel in raster order is on the boundary and its west
	// neighbour is background.
	sx, sy := -1, -1
	for y := c.minY; y <= c.maxY && sx < 0; y++ {
		for x := c.minX; x <= c.maxX; x++ {
			if in(x, y) {
				sx, sy = x, y
				break
			}
		}
	}
	if sx < 0 {
		return nil
	}

	pts := []geometry.Point{{X: float64(sx), Y: float64(sy)}}
	cx, cy, back := sx, sy, west
	firstX, firstY := -1, -1
	for steps := 0; steps < 4*c.count+16; steps++ {
		nx, ny, nback, ok := mooreStep(in, cx, cy, back)
		if !ok {
			break // isolated pixel
		}
		if steps == 0 {
			firstX, firstY = nx, ny
		} else if cx == sx && cy == sy && nx == firstX && ny == firstY {
			break
		}
		cx, cy, back = nx, ny, nback
		if cx != sx || cy != sy {
			pts = append(pts, geometry.Point{X: float64(cx), Y: float64(cy)})
		}
	}
	return pts
}

// mooreStep scans the neighbours of (cx, cy) clockwise starting after the
// backtrack direction and returns the first foreground pixel together with
// the direction from it to the last background pixel examined.
func mooreStep(in func(x, y int) bool, cx, cy, back int) (int, int, int, bool) {
	for k := 1; k <= 8; k++ {
		i := (back + k) % 8
		nx, ny := cx+mooreDX[i], cy+mooreDY[i]
		if !in(nx, ny) {
			continue
		}
		p := (back + k - 1) % 8
		bx, by := cx+mooreDX[p], cy+mooreDY[p]
		return nx, ny, mooreIndex(bx-nx, by-ny), true
	}
	return 0, 0, 0, false
}

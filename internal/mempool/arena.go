package mempool

import (
	"image"
	"sync"
)

// Arena scopes pooled buffers and derived images to a single unit of work,
// typically one pipeline run. Everything obtained through an Arena is
// released together by Release; callers defer it so the release happens on
// every exit path.
//
// An Arena is safe for concurrent use. Using a buffer after Release is a bug.
type Arena struct {
	mu       sync.Mutex
	floats   [][]float32
	bools    [][]bool
	images   []image.Image
	released bool
}

// NewArena returns an empty arena.
func NewArena() *Arena { return &Arena{} }

// Float32 returns a pooled buffer of length n owned by the arena.
func (a *Arena) Float32(n int) []float32 {
	buf := GetFloat32(n)
	a.mu.Lock()
	a.floats = append(a.floats, buf)
	a.mu.Unlock()
	return buf
}

// Bool returns a zeroed pooled buffer of length n owned by the arena.
func (a *Arena) Bool(n int) []bool {
	buf := GetBool(n)
	a.mu.Lock()
	a.bools = append(a.bools, buf)
	a.mu.Unlock()
	return buf
}

// Track records an image whose lifetime is bound to the arena and returns it.
func (a *Arena) Track(img image.Image) image.Image {
	if img == nil {
		return nil
	}
	a.mu.Lock()
	a.images = append(a.images, img)
	a.mu.Unlock()
	return img
}

// Live reports how many buffers and images the arena still holds.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.floats) + len(a.bools) + len(a.images)
}

// Release returns every buffer to its pool and drops tracked images. It is
// idempotent and safe to call on a nil Arena.
func (a *Arena) Release() {
	if a == nil {
		return
	}
	a.mu.Lock()
	floats, bools := a.floats, a.bools
	a.floats, a.bools, a.images = nil, nil, nil
	a.released = true
	a.mu.Unlock()

	for _, b := range floats {
		PutFloat32(b)
	}
	for _, b := range bools {
		PutBool(b)
	}
}

// Released reports whether Release has been called.
func (a *Arena) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

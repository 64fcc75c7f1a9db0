package mempool

import "sync"

// Size-classed pools for the float32 and bool buffers used on hot paths:
// tensors, probability maps and binary masks.

const step = 1024

var (
	float32Pools sync.Map // size class -> *sync.Pool
	boolPools    sync.Map
)

// sizeClass rounds n up to the next multiple of 1024, never below 1024.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor[T any](pools *sync.Map, cls int) *sync.Pool {
	p, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	return p.(*sync.Pool)
}

func get[T any](pools *sync.Map, n int) []T {
	cls := sizeClass(n)
	buf, ok := poolFor[T](pools, cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:max(n, 0)]
}

func put[T any](pools *sync.Map, buf []T) {
	if buf == nil {
		return
	}
	// Buffers not produced by get may have a capacity below their class.
	cls := sizeClass(cap(buf))
	if cap(buf) < cls {
		cls -= step
		if cls < step {
			return
		}
	}
	poolFor[T](pools, cls).Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed.
// Return it with PutFloat32.
func GetFloat32(n int) []float32 { return get[float32](&float32Pools, n) }

// PutFloat32 returns a buffer to the pool. Nil is ignored.
func PutFloat32(buf []float32) { put(&float32Pools, buf) }

// GetBool returns a zeroed buffer of length n. Return it with PutBool.
func GetBool(n int) []bool {
	buf := get[bool](&boolPools, n)
	clear(buf)
	return buf
}

// PutBool returns a buffer to the pool. Nil is ignored.
func PutBool(buf []bool) { put(&boolPools, buf) }

package mempool

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"small size gets minimum", 1, 1024},
		{"exactly 1024", 1024, 1024},
		{"just over 1024", 1025, 2048},
		{"odd number", 1500, 2048},
		{"large size", 10000, 10240},
		{"zero size", 0, 1024},
		{"negative size", -1, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetPutFloat32(t *testing.T) {
	buf := GetFloat32(3000)
	require.Len(t, buf, 3000)
	assert.GreaterOrEqual(t, cap(buf), 3072)
	PutFloat32(buf)
	PutFloat32(nil)

	assert.Empty(t, GetFloat32(0))
}

func TestGetBool_Zeroed(t *testing.T) {
	buf := GetBool(100)
	for i := range buf {
		buf[i] = true
	}
	PutBool(buf)
	for range 5 {
		again := GetBool(100)
		for _, v := range again {
			require.False(t, v)
		}
		PutBool(again)
	}
}

func TestPut_ForeignSmallBuffer(t *testing.T) {
	// Must not panic or poison the pool with an undersized slice.
	PutFloat32(make([]float32, 10))
	buf := GetFloat32(1000)
	assert.GreaterOrEqual(t, cap(buf), 1024)
}

func TestArena_Release(t *testing.T) {
	a := NewArena()
	a.Float32(10)
	a.Bool(10)
	img := a.Track(image.NewNRGBA(image.Rect(0, 0, 2, 2)))
	assert.NotNil(t, img)
	assert.Nil(t, a.Track(nil))
	assert.Equal(t, 3, a.Live())
	assert.False(t, a.Released())

	a.Release()
	assert.Zero(t, a.Live())
	assert.True(t, a.Released())
	a.Release()

	var nilArena *Arena
	nilArena.Release()
}

func TestArena_Concurrent(t *testing.T) {
	a := NewArena()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				a.Float32(2048)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, a.Live())
	a.Release()
	assert.Zero(t, a.Live())
}

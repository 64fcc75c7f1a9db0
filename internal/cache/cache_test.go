package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)} }

func openCache(t *testing.T, cfg Config) (*Cache, *MemoryStorage, *fakeClock) {
	t.Helper()
	st := NewMemoryStorage("test")
	clk := newClock()
	c, err := Open(context.Background(), st, cfg, WithClock(clk.Now))
	require.NoError(t, err)
	return c, st, clk
}

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c, _, _ := openCache(t, Config{MaxBytes: 100, TTL: time.Hour})

	require.NoError(t, c.Set(ctx, "a", []byte("hello")))
	got, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), got)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, Stats{Entries: 1, TotalSize: 5, MaxBytes: 100, Hits: 1, Misses: 1}, s)
}

func TestCache_GetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _, clk := openCache(t, Config{MaxBytes: 100})
	require.NoError(t, c.Set(ctx, "k", []byte("payload")))

	first, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	size := c.Stats().TotalSize
	clk.Advance(time.Minute)
	second, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, size, c.Stats().TotalSize)
}

func TestCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := context.Background()
	c, _, clk := openCache(t, Config{MaxBytes: 10})

	require.NoError(t, c.Set(ctx, "a", []byte("aaaa")))
	clk.Advance(time.Second)
	require.NoError(t, c.Set(ctx, "b", []byte("bbbb")))
	clk.Advance(time.Second)
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	clk.Advance(time.Second)

	require.NoError(t, c.Set(ctx, "c", []byte("cccc")))
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "b was accessed least recently")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)

	s := c.Stats()
	assert.Equal(t, int64(8), s.TotalSize)
	assert.Equal(t, int64(1), s.Evictions)
}

func TestCache_BudgetNeverExceeded(t *testing.T) {
	ctx := context.Background()
	c, _, clk := openCache(t, Config{MaxBytes: 64})
	for i := range 50 {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, c.Set(ctx, key, bytes.Repeat([]byte{'x'}, 5+i%20)))
		assert.LessOrEqual(t, c.Stats().TotalSize, int64(64))
		_, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "just inserted %s must survive", key)
		clk.Advance(time.Millisecond)
	}
}

func TestCache_EntryTooLarge(t *testing.T) {
	c, _, _ := openCache(t, Config{MaxBytes: 4})
	err := c.Set(context.Background(), "big", []byte("12345"))
	assert.ErrorIs(t, err, ErrEntryTooLarge)
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_ReplaceSubtractsOldSize(t *testing.T) {
	ctx := context.Background()
	c, _, _ := openCache(t, Config{MaxBytes: 10})
	require.NoError(t, c.Set(ctx, "a", []byte("12345678")))
	require.NoError(t, c.Set(ctx, "a", []byte("123456789")))
	s := c.Stats()
	assert.Equal(t, int64(9), s.TotalSize)
	assert.Equal(t, 1, s.Entries)
	assert.Zero(t, s.Evictions)
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, st, clk := openCache(t, Config{MaxBytes: 100, TTL: time.Minute})
	require.NoError(t, c.Set(ctx, "a", []byte("x")))

	clk.Advance(time.Minute)
	_, ok, _ := c.Get(ctx, "a")
	assert.True(t, ok, "age equal to the TTL is still fresh")

	clk.Advance(time.Second)
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Stats().TotalSize)
	_, err = st.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound, "stale entry removed from storage")
}

func TestCache_CorruptEntryIsPurged(t *testing.T) {
	ctx := context.Background()
	c, st, _ := openCache(t, Config{MaxBytes: 100})
	require.NoError(t, c.Set(ctx, "a", []byte("payload")))
	require.NoError(t, st.Set(ctx, "a", []byte("garbage")))

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Stats{MaxBytes: 100, Misses: 1}, c.Stats())
	keys, _ := st.Keys(ctx)
	assert.Empty(t, keys)
}

func TestCache_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	c, st, _ := openCache(t, Config{MaxBytes: 100})
	require.NoError(t, c.Set(ctx, "a", []byte("aa")))
	require.NoError(t, c.Set(ctx, "b", []byte("bbb")))

	require.NoError(t, c.Remove(ctx, "a"))
	require.NoError(t, c.Remove(ctx, "a"))
	assert.Equal(t, int64(3), c.Stats().TotalSize)

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Stats().TotalSize)
	assert.Zero(t, c.Stats().Entries)
	keys, _ := st.Keys(ctx)
	assert.Empty(t, keys)
}

func TestOpen_RebuildsIndex(t *testing.T) {
	ctx := context.Background()
	c, st, clk := openCache(t, Config{MaxBytes: 100})
	require.NoError(t, c.Set(ctx, "a", []byte("aaaa")))
	clk.Advance(time.Second)
	require.NoError(t, c.Set(ctx, "b", []byte("bbbbbb")))
	require.NoError(t, st.Set(ctx, "junk", []byte{1, 2, 3}))

	reopened, err := Open(ctx, st, Config{MaxBytes: 8}, WithClock(clk.Now))
	require.NoError(t, err)
	s := reopened.Stats()
	assert.Equal(t, 1, s.Entries, "corrupt record purged, oldest evicted to fit the smaller budget")
	assert.Equal(t, int64(6), s.TotalSize)
	got, ok, err := reopened.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("bbbbbb"), got)
}

type failingStorage struct {
	*MemoryStorage
	err error
}

func (f failingStorage) Set(context.Context, string, []byte) error { return f.err }

func TestCache_StorageFailureKeepsCounters(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	c, err := Open(ctx, failingStorage{NewMemoryStorage(""), boom}, Config{MaxBytes: 10})
	require.NoError(t, err)
	err = c.Set(ctx, "a", []byte("x"))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Stats().TotalSize)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{MaxBytes: 1, TTL: -time.Second}.Validate())
	_, err := Open(context.Background(), nil, DefaultConfig())
	assert.Error(t, err)
}

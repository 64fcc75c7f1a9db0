package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStorage runs the same cache scenario against any backend.
func exerciseStorage(t *testing.T, st Storage) {
	t.Helper()
	ctx := context.Background()
	c, err := Open(ctx, st, Config{MaxBytes: 10, TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Clear(ctx) })

	require.NoError(t, c.Set(ctx, "a", []byte("aaaaa")))
	require.NoError(t, c.Set(ctx, "b", []byte("bbbbbb")))
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	got, ok, err := c.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("bbbbbb"), got)

	keys, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}

func TestRedisStorage(t *testing.T) {
	url := os.Getenv("SCANLINE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SCANLINE_TEST_REDIS_URL not set")
	}
	st, err := NewRedisStorage(context.Background(), url, "scanline-test-"+uuid.NewString())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	exerciseStorage(t, st)
}

func TestSQLStorage(t *testing.T) {
	dsn := os.Getenv("SCANLINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SCANLINE_TEST_POSTGRES_DSN not set")
	}
	st, err := OpenPostgres(context.Background(), dsn, "scanline-test-"+uuid.NewString())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	exerciseStorage(t, st)
}

func TestMemoryStorage_Scenario(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage("mem"))
}

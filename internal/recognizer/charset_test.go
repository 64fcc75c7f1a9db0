package recognizer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCharset(t *testing.T) {
	cs, err := ParseCharset(strings.NewReader("\uFEFFa\r\nb\n\nc\n"), true)
	require.NoError(t, err)
	assert.Equal(t, 4, cs.Len())
	assert.Equal(t, 5, cs.Classes())

	g, ok := cs.Glyph(1)
	assert.True(t, ok)
	assert.Equal(t, "a", g)
	g, _ = cs.Glyph(4)
	assert.Equal(t, " ", g)
	_, ok = cs.Glyph(0)
	assert.False(t, ok, "blank has no glyph")
	_, ok = cs.Glyph(5)
	assert.False(t, ok)

	_, err = ParseCharset(strings.NewReader("\n\n"), false)
	assert.Error(t, err)
}

func TestDefaultCharset(t *testing.T) {
	cs := DefaultCharset()
	assert.Equal(t, 95, cs.Len())
	g, _ := cs.Glyph(1)
	assert.Equal(t, "!", g)
	g, _ = cs.Glyph(95)
	assert.Equal(t, " ", g)
}

func TestReadCharset_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	require.NoError(t, os.WriteFile(path, []byte("x\ny\n"), 0o600))
	cs, err := ReadCharset(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, 2, cs.Len())
}

func TestReadCharset_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dict.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "α\nβ\nγ\n")
	}))
	defer srv.Close()

	cs, err := ReadCharset(context.Background(), srv.URL+"/dict.txt", true)
	require.NoError(t, err)
	assert.Equal(t, 4, cs.Len())

	_, err = ReadCharset(context.Background(), srv.URL+"/missing.txt", true)
	assert.Error(t, err)
}

func TestLoadCharset_FailsOpen(t *testing.T) {
	cs := LoadCharset(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), true)
	assert.Equal(t, DefaultCharset().Len(), cs.Len())

	cs = LoadCharset(context.Background(), "", false)
	assert.Equal(t, 95, cs.Len())
}

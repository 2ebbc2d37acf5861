package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalProviderPut(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, err := NewLocalProvider(dir)
	require.NoError(t, err)

	uri, err := p.Put(context.Background(), "2026/08/car-front.jpg", "image/jpeg",
		strings.NewReader("jpeg bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "2026", "08", "car-front.jpg"))
	require.NoError(t, err)
	require.Equal(t, "jpeg bytes", string(data))
}

func TestLocalProviderCreatesBaseDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "archive")
	_, err := NewLocalProvider(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLocalProviderRejectsEscapingPath(t *testing.T) {
	t.Parallel()

	p, err := NewLocalProvider(t.TempDir())
	require.NoError(t, err)

	_, err = p.Put(context.Background(), "../outside.jpg", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestLocalProviderRejectsEmptyInputs(t *testing.T) {
	t.Parallel()

	_, err := NewLocalProvider("  ")
	require.Error(t, err)

	p, err := NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	_, err = p.Put(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNoOpProviderDrainsReader(t *testing.T) {
	t.Parallel()

	uri, err := NoOpProvider{}.Put(context.Background(), "a/b", "", strings.NewReader("x"))
	require.NoError(t, err)
	require.Empty(t, uri)
}

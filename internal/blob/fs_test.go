package blob

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutOpenRemove(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFS(t.TempDir(), 0)
	require.NoError(t, err)

	obj, err := fs.Put(ctx, "dataset", "weather.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "dataset-"))
	assert.True(t, strings.HasSuffix(obj.Key, ".csv"))
	assert.Equal(t, int64(8), obj.Size)

	ok, err := fs.Exists(ctx, obj.Key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := fs.Open(ctx, obj.Key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "a,b\n1,2\n", string(body))

	require.NoError(t, fs.Remove(ctx, obj.Key))
	require.NoError(t, fs.Remove(ctx, obj.Key))

	ok, err = fs.Exists(ctx, obj.Key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.Open(ctx, obj.Key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutEnforcesLimit(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFS(dir, 4)
	require.NoError(t, err)

	_, err = fs.Put(context.Background(), "dataset", "big.bin", strings.NewReader("12345"))
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "oversized upload must not leave a file")

	obj, err := fs.Put(context.Background(), "dataset", "ok.bin", strings.NewReader("1234"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), obj.Size)
}

func TestKeysCannotEscapeDir(t *testing.T) {
	fs, err := NewFS(t.TempDir(), 0)
	require.NoError(t, err)

	ok, err := fs.Exists(context.Background(), "../etc/passwd")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.Open(context.Background(), "../etc/passwd")
	require.ErrorIs(t, err, ErrNotFound)
}

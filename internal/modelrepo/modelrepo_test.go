package modelrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	objects map[string][]byte
	calls   int
}

func (f *fakeRemote) GetObject(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	data, ok := f.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func TestResolveReturnsLocalFileWithoutTouchingRemote(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "swapper.onnx"), []byte("weights"), 0o644))

	remote := &fakeRemote{}
	repo := New(dir, remote)

	path, err := repo.Resolve(context.Background(), "swapper.onnx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "swapper.onnx"), path)
	assert.Equal(t, 0, remote.calls)
}

func TestResolveFetchesFromRemoteOnCacheMiss(t *testing.T) {
	dir := t.TempDir()
	remote := &fakeRemote{objects: map[string][]byte{"enhancer.onnx": []byte("weights")}}
	repo := New(dir, remote)

	path, err := repo.Resolve(context.Background(), "enhancer.onnx")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
}

func TestResolveMissingWithoutRemoteFails(t *testing.T) {
	repo := New(t.TempDir(), nil)
	_, err := repo.Resolve(context.Background(), "missing.onnx")
	assert.Error(t, err)
}

func TestResolveEmptyNameFails(t *testing.T) {
	repo := New(t.TempDir(), nil)
	_, err := repo.Resolve(context.Background(), "")
	assert.Error(t, err)
}

func TestResolveAbsolutePathBypassesCache(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "custom.onnx")
	require.NoError(t, os.WriteFile(abs, []byte("x"), 0o644))

	repo := New(t.TempDir(), nil)
	path, err := repo.Resolve(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, abs, path)
}

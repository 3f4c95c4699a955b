// Package modelrepo resolves named model references from PipelineStep
// params into absolute ONNX file paths, fetching from remote object
// storage on a local cache miss. Grounded on internal/storage/minio.go's
// bucket Get/Put shape: a model name is just another object key.
package modelrepo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fusion-core/engine/internal/fusionerr"
)

// RemoteStore is the subset of MinIOStore a Repo needs to fetch a model
// that isn't present in the local cache directory.
type RemoteStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Repo resolves model names to local file paths under a models root,
// downloading from remote storage on first use when one is configured.
type Repo struct {
	root   string
	remote RemoteStore
}

// New returns a Repo rooted at modelsPath. remote may be nil, in which
// case Resolve only ever looks at the local filesystem.
func New(modelsPath string, remote RemoteStore) *Repo {
	return &Repo{root: modelsPath, remote: remote}
}

// Resolve returns the absolute path to name's ONNX file, fetching it into
// the local cache from remote storage if it is missing locally.
func (r *Repo) Resolve(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fusionerr.New(fusionerr.CodeFieldMissing, "model name is empty")
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fusionerr.Wrap(fusionerr.CodeModelNotFound, "model file not found", err).WithPath(name)
		}
		return name, nil
	}

	local := filepath.Join(r.root, name)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	if r.remote == nil {
		return "", fusionerr.New(fusionerr.CodeModelNotFound, "model not found locally and no remote store configured").WithPath(local)
	}

	data, err := r.remote.GetObject(ctx, name)
	if err != nil {
		return "", fusionerr.Wrap(fusionerr.CodeModelNotFound, "fetch model from remote store", err).WithPath(name)
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fusionerr.Wrap(fusionerr.CodeModelLoadFailed, "create model cache directory", err).WithPath(local)
	}

	tmp := local + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fusionerr.Wrap(fusionerr.CodeModelLoadFailed, "write model cache file", err).WithPath(local)
	}
	if err := os.Rename(tmp, local); err != nil {
		return "", fusionerr.Wrap(fusionerr.CodeModelLoadFailed, "finalize model cache file", err).WithPath(local)
	}

	return local, nil
}

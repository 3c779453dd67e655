package pictures

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ObjectRef identifies an uploaded object.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Uploader stores image bytes. The local implementation writes under the
// data directory; swapping in object storage only means swapping this.
type Uploader interface {
	Upload(ctx context.Context, bucket string, key string, data []byte) (ObjectRef, error)
}

type LocalUploader struct {
	root string
}

func NewLocalUploader(root string) *LocalUploader {
	return &LocalUploader{root: root}
}

func (u *LocalUploader) Upload(_ context.Context, bucket string, key string, data []byte) (ObjectRef, error) {
	path := filepath.Join(u.root, bucket, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ObjectRef{}, errors.WithStack(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return ObjectRef{}, errors.WithStack(err)
	}

	return ObjectRef{Bucket: bucket, Key: key}, nil
}

// Path maps an object back to its location on disk.
func (u *LocalUploader) Path(ref ObjectRef) string {
	return filepath.Join(u.root, ref.Bucket, filepath.FromSlash(ref.Key))
}

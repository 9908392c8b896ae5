package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quocanhngo/memento/pkg/storage"
)

// FileBackend stores the document on local disk
type FileBackend struct {
	path string
}

// NewFileBackend makes sure the parent directory of path exists
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileBackend{path: path}, nil
}

func (b *FileBackend) String() string { return b.path }

func (b *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Save writes to a temp file in the same directory and renames it over the
// target so readers never see a partial document.
func (b *FileBackend) Save(_ context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

// ObjectBackend stores the document as a single object in a bucket
type ObjectBackend struct {
	storage storage.Storage
	key     string
}

func NewObjectBackend(s storage.Storage, key string) *ObjectBackend {
	return &ObjectBackend{storage: s, key: key}
}

func (b *ObjectBackend) String() string { return "object " + b.key }

func (b *ObjectBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.storage.Get(ctx, b.key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil
	}
	return data, err
}

func (b *ObjectBackend) Save(ctx context.Context, data []byte) error {
	return b.storage.Put(ctx, b.key, data, "application/json")
}

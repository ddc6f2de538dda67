package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docshelf/backend/internal/metrics"
)

// BlobStore holds document content addressed by key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
	Type() string
}

// LocalBlobStore implements BlobStore using the local filesystem.
type LocalBlobStore struct {
	dir string
}

// NewLocalBlobStore creates a LocalBlobStore rooted at dir.
func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &LocalBlobStore{dir: dir}, nil
}

func (s *LocalBlobStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

// Put writes r under key, replacing any previous content.
func (s *LocalBlobStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	start := time.Now()
	path, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("creating blob directory: %w", err)
	}

	tmp := path + ".uploading"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		metrics.RecordBlobOperation(s.Type(), "put", time.Since(start), false)
		return 0, fmt.Errorf("writing file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		metrics.RecordBlobOperation(s.Type(), "put", time.Since(start), false)
		return 0, fmt.Errorf("finalizing file: %w", err)
	}

	metrics.RecordBlobOperation(s.Type(), "put", time.Since(start), true)
	return size, nil
}

// Get opens the content stored under key.
func (s *LocalBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("blob %s: %w", key, ErrNotFound)
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// Delete removes the content stored under key. Missing keys are ignored.
func (s *LocalBlobStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		metrics.RecordBlobOperation(s.Type(), "delete", time.Since(start), false)
		return fmt.Errorf("deleting file: %w", err)
	}
	metrics.RecordBlobOperation(s.Type(), "delete", time.Since(start), true)
	return nil
}

// Type returns "local".
func (s *LocalBlobStore) Type() string { return "local" }

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

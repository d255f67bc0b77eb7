package dump

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
)

// FileStore writes each block to "<dir>/<id>.dmp".
type FileStore struct {
	dir    string
	format Format
	closed atomic.Bool
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
// An empty dir means the working directory.
func NewFileStore(dir string, format Format) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, format: format}, nil
}

// Path returns the file a connection's block is written to.
func (s *FileStore) Path(connID uint64) string {
	return filepath.Join(s.dir, FileName(connID))
}

// Put deletes any existing file for b.ConnID and writes the encoded values.
func (s *FileStore) Put(ctx context.Context, b Block) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(b.ConnID)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &WriteError{ConnID: b.ConnID, Op: "delete", Err: err}
	}
	if err := os.WriteFile(path, Encode(b.Values, s.format), 0o644); err != nil {
		return &WriteError{ConnID: b.ConnID, Op: "write", Err: err}
	}
	return nil
}

// Close marks the store closed. Files are left in place.
func (s *FileStore) Close() error {
	s.closed.Store(true)
	return nil
}

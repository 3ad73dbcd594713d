// Package export stores the CSV export stream somewhere the user can reach:
// a local directory or an S3-compatible bucket.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink persists one export under name and returns where it ended up.
type Sink interface {
	Store(ctx context.Context, name string, r io.Reader) (string, error)
}

// FileSink writes exports into Dir.
type FileSink struct {
	Dir string
}

func (s FileSink) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("install export: %w", err)
	}
	return path, nil
}

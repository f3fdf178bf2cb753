package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FSDocumentStorage writes uploaded documents under a base directory, one
// subdirectory per run.
type FSDocumentStorage struct {
	base string
}

func NewFSDocumentStorage(base string) (*FSDocumentStorage, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create uploads directory")
	}
	return &FSDocumentStorage{base: base}, nil
}

func (s *FSDocumentStorage) Save(_ context.Context, runID uuid.UUID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.base, runID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create run directory")
	}
	path := filepath.Join(dir, sanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write document")
	}
	return path, nil
}

func (s *FSDocumentStorage) Read(_ context.Context, path string) ([]byte, error) {
	// Paths come from our own Save; still refuse anything outside base.
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve document path")
	}
	base, err := filepath.Abs(s.base)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve uploads directory")
	}
	if !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return nil, errors.Errorf("document path %q escapes uploads directory", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read document")
	}
	return data, nil
}

func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.ReplaceAll(name, "..", "")
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "document"
	}
	return name
}

// Package proofs stores receipt images uploaded with payments.
package proofs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("proof not found")

// Store saves a proof and returns a reference that Get accepts later.
type Store interface {
	Put(ctx context.Context, filename, contentType string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

var (
	_ Store = (*Local)(nil)
	_ Store = (*Blob)(nil)
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// objectName builds a collision free name under proofs/, keeping the upload
// extension when the content type does not imply one.
func objectName(filename, contentType string) string {
	ext, ok := extensions[contentType]
	if !ok {
		ext = strings.ToLower(path.Ext(filename))
	}
	return "proofs/" + uuid.NewString() + ext
}

// Local keeps proofs in a directory on disk.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(dir, "proofs"), 0o755); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Put(_ context.Context, filename, contentType string, data []byte) (string, error) {
	ref := objectName(filename, contentType)
	if err := os.WriteFile(l.path(ref), data, 0o644); err != nil {
		return "", fmt.Errorf("write proof: %w", err)
	}
	return ref, nil
}

func (l *Local) Get(_ context.Context, ref string) ([]byte, error) {
	clean := path.Clean("/" + ref)
	if !strings.HasPrefix(clean, "/proofs/") {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(l.path(clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read proof: %w", err)
	}
	return b, nil
}

func (l *Local) path(ref string) string {
	return filepath.Join(l.dir, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
}

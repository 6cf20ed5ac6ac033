package imagestore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"place-registry/internal/domain"
	errs "place-registry/pkg/errors"
)

// LocalStore keeps images on the local filesystem under Dir. References are
// slash-separated paths relative to the process working directory, e.g.
// "uploads/images/<uuid>.png", so they can be served statically.
type LocalStore struct {
	Dir string
	// MaxBytes caps a single upload; zero means unlimited.
	MaxBytes int64
}

var _ domain.ImageStore = (*LocalStore)(nil)

func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.NewDB("imagestore.NewLocalStore", "failed to create upload directory", err)
	}
	return &LocalStore{Dir: dir, MaxBytes: maxBytes}, nil
}

func (s *LocalStore) Store(ctx context.Context, r io.Reader, contentType string) (string, error) {
	const op = "imagestore.LocalStore.Store"
	name, err := objectName(op, contentType)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", errs.NewDB(op, "upload cancelled", err)
	}

	full := filepath.Join(s.Dir, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errs.NewDB(op, "failed to create image file", err)
	}
	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.MaxBytes > 0 && n > s.MaxBytes {
		_ = os.Remove(full)
		return "", errs.NewValidation(op, "image exceeds the upload size limit", nil)
	}
	if err != nil {
		_ = os.Remove(full)
		return "", errs.NewDB(op, "failed to write image file", err)
	}
	return path.Join(filepath.ToSlash(s.Dir), name), nil
}

// Delete removes the file behind ref. A missing file is not an error.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	const op = "imagestore.LocalStore.Delete"
	full, err := s.resolve(ref)
	if err != nil {
		return errs.NewValidation(op, err.Error(), nil)
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.NewDB(op, "failed to delete image file", err)
	}
	return nil
}

// resolve maps ref back to a path and refuses anything outside Dir.
func (s *LocalStore) resolve(ref string) (string, error) {
	name := path.Base(ref)
	if ref == "" || name == "." || name == "/" || strings.Contains(name, "..") {
		return "", errors.New("invalid image reference")
	}
	if path.Dir(ref) != path.Clean(filepath.ToSlash(s.Dir)) {
		return "", errors.New("image reference outside upload directory")
	}
	return filepath.Join(s.Dir, name), nil
}

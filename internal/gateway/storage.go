package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// ObjectStore keeps uploaded objects on an afero filesystem and hands out
// public URLs under a fixed base.
type ObjectStore struct {
	fs         afero.Fs
	publicBase string
}

func NewObjectStore(fs afero.Fs, publicBase string) *ObjectStore {
	return &ObjectStore{
		fs:         fs,
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

// FS exposes the backing filesystem so it can be served over HTTP.
func (s *ObjectStore) FS() afero.Fs {
	return s.fs
}

func cleanObjectPath(p string) (string, error) {
	if p == "" || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" || strings.Contains(p, "..") {
		return "", ErrInvalidPath
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// Upload writes r to p. Existing objects are never overwritten.
func (s *ObjectStore) Upload(ctx context.Context, p string, r io.Reader) error {
	name, err := cleanObjectPath(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if dir := path.Dir(name); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("gateway: create %s: %w", dir, err)
		}
	}

	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrObjectExists
		}
		return fmt.Errorf("gateway: open %s: %w", name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(name)
		return fmt.Errorf("gateway: write %s: %w", name, err)
	}
	return f.Close()
}

// PublicURL is where p is served from. It does not check existence.
func (s *ObjectStore) PublicURL(p string) string {
	name, err := cleanObjectPath(p)
	if err != nil {
		name = strings.TrimPrefix(p, "/")
	}
	return s.publicBase + "/" + name
}

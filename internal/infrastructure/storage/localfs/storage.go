package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

// Keys are flat file names: no separators, no leading dot.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*(\.[A-Za-z0-9]{1,8})?$`)

// ImageStore keeps uploaded images on the local filesystem.
type ImageStore struct {
	basePath string
}

func New(basePath string) (*ImageStore, error) {
	if basePath == "" {
		basePath = "./data/images"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{basePath: basePath}, nil
}

// ValidKey reports whether key can name a stored image.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

func (s *ImageStore) Save(_ context.Context, key string, data io.Reader) error {
	if !ValidKey(key) {
		return domain.WrapError(domain.ErrInvalidInput, "save image", fmt.Errorf("invalid key %q", key))
	}

	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.basePath, key)); err != nil {
		return fmt.Errorf("publish image: %w", err)
	}
	return nil
}

func (s *ImageStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if !ValidKey(key) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open image", fmt.Errorf("invalid key %q", key))
	}
	f, err := os.Open(filepath.Join(s.basePath, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open image", err)
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	return f, nil
}

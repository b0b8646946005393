package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Open for a missing key.
var ErrNotFound = errors.New("object not found")

// Dir serves a local directory tree as a bucket. Keys are slash-separated
// paths relative to Root. Useful for running the tap against a local export.
type Dir struct {
	Root     string
	PageSize int
}

// NewDir returns a Store rooted at root.
func NewDir(root string) *Dir { return &Dir{Root: root} }

func (d *Dir) Bucket() string { return "file://" + filepath.ToSlash(d.Root) }

func (d *Dir) List(ctx context.Context, prefix string, fn PageFunc) error {
	size := d.PageSize
	if size <= 0 {
		size = 1000
	}
	page := make([]Object, 0, size)

	err := filepath.WalkDir(d.Root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		page = append(page, Object{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		if len(page) == size {
			if err := fn(page); err != nil {
				return err
			}
			page = make([]Object, 0, size)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(page) > 0 {
		return fn(page)
	}
	return nil
}

func (d *Dir) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.Root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("objectstore: %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

var _ Store = (*Dir)(nil)

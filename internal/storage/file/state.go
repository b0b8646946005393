// Package file stores watermarks in a Singer-style JSON state file:
//
//	{"bookmarks": {"<stream>": {"_gn_last_modified": "<RFC 3339>"}}}
//
// The file is rewritten atomically (temp file + rename) on every advance.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"csvtap/internal/schema"
	"csvtap/internal/storage"
)

func init() {
	storage.Register("file", Open)
}

// Document is the on-disk shape.
type Document struct {
	Bookmarks map[string]map[string]string `json:"bookmarks"`
}

// Store is a JSON-file StateStore.
type Store struct {
	path string

	mu  sync.Mutex
	doc Document
}

// Open loads cfg.DSN, or starts empty when the file does not exist.
func Open(_ context.Context, cfg storage.Config) (storage.StateStore, error) {
	return Load(cfg.DSN)
}

// Load reads the state file at path.
func Load(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("file state: empty path")
	}
	s := &Store{path: path, doc: Document{Bookmarks: map[string]map[string]string{}}}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file state: %w", err)
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.doc); err != nil {
		return nil, fmt.Errorf("file state %s: %w", path, err)
	}
	if s.doc.Bookmarks == nil {
		s.doc.Bookmarks = map[string]map[string]string{}
	}
	return s, nil
}

func (s *Store) get(stream string) (time.Time, bool, error) {
	raw := s.doc.Bookmarks[stream][schema.ReplicationKey]
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("file state: bookmark for %q: %w", stream, err)
	}
	return t.UTC(), true, nil
}

func (s *Store) Get(_ context.Context, stream string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(stream)
}

func (s *Store) Advance(_ context.Context, stream string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok, err := s.get(stream)
	if err != nil {
		return err
	}
	if !storage.Later(cur, ok, t) {
		return nil
	}
	next := Document{Bookmarks: make(map[string]map[string]string, len(s.doc.Bookmarks)+1)}
	for k, v := range s.doc.Bookmarks {
		next.Bookmarks[k] = v
	}
	bm := make(map[string]string, len(s.doc.Bookmarks[stream])+1)
	for k, v := range s.doc.Bookmarks[stream] {
		bm[k] = v
	}
	bm[schema.ReplicationKey] = t.UTC().Format(time.RFC3339Nano)
	next.Bookmarks[stream] = bm
	if err := s.flush(next); err != nil {
		return err
	}
	// Memory only moves once the file on disk does.
	s.doc = next
	return nil
}

func (s *Store) flush(doc Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("file state: %w", err)
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file state: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

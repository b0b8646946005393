package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. Listing is in key order, split into pages of
// PageSize (default 1000) entries.
type Memory struct {
	Name     string
	PageSize int

	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data  []byte
	mod   time.Time
	class string
}

// NewMemory returns an empty in-memory store for bucket name.
func NewMemory(name string) *Memory {
	return &Memory{Name: name, objects: map[string]memObject{}}
}

// Put stores data under key with the given modification time.
func (m *Memory) Put(key string, data []byte, modified time.Time) {
	m.PutWithClass(key, data, modified, StorageClassStandard)
}

// PutWithClass stores an object with an explicit storage class.
func (m *Memory) PutWithClass(key string, data []byte, modified time.Time, class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string]memObject{}
	}
	m.objects[key] = memObject{data: append([]byte(nil), data...), mod: modified, class: class}
}

// Delete removes key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

func (m *Memory) Bucket() string { return m.Name }

func (m *Memory) List(ctx context.Context, prefix string, fn PageFunc) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	all := make([]Object, 0, len(keys))
	for _, k := range keys {
		o := m.objects[k]
		all = append(all, Object{Key: k, Size: int64(len(o.data)), LastModified: o.mod, StorageClass: o.class})
	}
	m.mu.RUnlock()

	size := m.PageSize
	if size <= 0 {
		size = 1000
	}
	for start := 0; start < len(all); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + size
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	o, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("objectstore: %s/%s: %w", m.Name, key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

var _ Store = (*Memory)(nil)

// Package storage persists per-stream watermarks between runs.
//
// Backends register a factory under a kind from their init function; the
// CLI blank-imports internal/storage/all and selects one through New.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config selects and configures a state backend.
type Config struct {
	// Kind is a registered backend: "file", "sqlite", "postgres" or "mssql".
	Kind string
	// DSN is backend specific: a path for file and sqlite, a connection
	// string for the database servers.
	DSN string
}

// StateStore holds one watermark per stream.
//
// Advance never moves a watermark backwards: advancing to an older or equal
// time is a no-op. Implementations are safe for concurrent use.
type StateStore interface {
	// Get returns the watermark of stream; ok is false when none is stored.
	Get(ctx context.Context, stream string) (t time.Time, ok bool, err error)
	Advance(ctx context.Context, stream string, t time.Time) error
	Close() error
}

// Factory opens a StateStore.
type Factory func(ctx context.Context, cfg Config) (StateStore, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics when kind is
// empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens the backend selected by cfg.Kind.
func New(ctx context.Context, cfg Config) (StateStore, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing state kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported state kind=%q (registered: %v)", cfg.Kind, Kinds())
	}
	st, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s state: %w", cfg.Kind, err)
	}
	return st, nil
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Later reports whether t should replace the stored watermark cur.
func Later(cur time.Time, ok bool, t time.Time) bool {
	return !ok || t.After(cur)
}

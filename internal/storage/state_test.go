package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type nopStore struct{}

func (nopStore) Get(context.Context, string) (time.Time, bool, error) { return time.Time{}, false, nil }
func (nopStore) Advance(context.Context, string, time.Time) error     { return nil }
func (nopStore) Close() error                                         { return nil }

func TestRegisterAndNew(t *testing.T) {
	Register("test-nop", func(ctx context.Context, cfg Config) (StateStore, error) {
		return nopStore{}, nil
	})
	Register("test-broken", func(ctx context.Context, cfg Config) (StateStore, error) {
		return nil, errors.New("unreachable")
	})

	if _, err := New(context.Background(), Config{Kind: "test-nop"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := New(context.Background(), Config{Kind: "test-broken"}); err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected factory error, got %v", err)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if _, err := New(context.Background(), Config{Kind: "nope"}); err == nil || !strings.Contains(err.Error(), "test-nop") {
		t.Fatalf("expected unsupported-kind error listing kinds, got %v", err)
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	Register("test-dup", func(ctx context.Context, cfg Config) (StateStore, error) { return nopStore{}, nil })
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register("test-dup", func(ctx context.Context, cfg Config) (StateStore, error) { return nopStore{}, nil })
}

func TestLater(t *testing.T) {
	t.Parallel()

	a := time.Unix(100, 0)
	b := time.Unix(200, 0)
	tests := []struct {
		name string
		cur  time.Time
		ok   bool
		t    time.Time
		want bool
	}{
		{"unset", time.Time{}, false, a, true},
		{"newer", a, true, b, true},
		{"equal", a, true, a, false},
		{"older", b, true, a, false},
	}
	for _, tt := range tests {
		if got := Later(tt.cur, tt.ok, tt.t); got != tt.want {
			t.Fatalf("%s: Later=%v want %v", tt.name, got, tt.want)
		}
	}
}

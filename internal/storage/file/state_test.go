package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_AdvanceIsMonotonicAndPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok, err := s.Get(ctx, "orders"); ok || err != nil {
		t.Fatalf("expected empty state, ok=%v err=%v", ok, err)
	}

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	for _, ts := range []time.Time{t1, t2, t1} {
		if err := s.Advance(ctx, "orders", ts); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok, err := reloaded.Get(ctx, "orders")
	if err != nil || !ok || !got.Equal(t2) {
		t.Fatalf("got=%v ok=%v err=%v", got, ok, err)
	}

	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), `"_gn_last_modified": "2024-01-01T01:00:00Z"`) {
		t.Fatalf("unexpected file contents:\n%s", raw)
	}
}

func TestLoad_SingerStateFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{"bookmarks":{"sales":{"_gn_last_modified":"2024-02-03T04:05:06+02:00"}},"currently_syncing":null}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok, err := s.Get(context.Background(), "sales")
	if err != nil || !ok || !got.Equal(time.Date(2024, 2, 3, 2, 5, 6, 0, time.UTC)) {
		t.Fatalf("got=%v ok=%v err=%v", got, ok, err)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestStore_FailedWriteDoesNotAdvance(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "missing")
	ctx := context.Background()
	s, err := Load(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Advance(ctx, "orders", t1.Add(time.Hour)); err == nil {
		t.Fatalf("expected write error for missing directory")
	}
	if got, ok, _ := s.Get(ctx, "orders"); ok {
		t.Fatalf("bookmark moved without a write: %v", got)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(ctx, "orders", t1); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got, ok, _ := s.Get(ctx, "orders"); !ok || !got.Equal(t1) {
		t.Fatalf("got=%v ok=%v, want %v", got, ok, t1)
	}
}

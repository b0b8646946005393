package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"csvtap/internal/storage"
)

func openTemp(t *testing.T) storage.StateStore {
	t.Helper()
	st, err := Open(context.Background(), storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "state.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStore_AdvanceIsMonotonic(t *testing.T) {
	t.Parallel()

	st := openTemp(t)
	ctx := context.Background()

	if _, ok, err := st.Get(ctx, "orders"); ok || err != nil {
		t.Fatalf("expected no watermark, ok=%v err=%v", ok, err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 8, 0, time.UTC)
	// base+500ms sorts after base only with fixed-width fractions.
	steps := []time.Time{base, base.Add(500 * time.Millisecond), base}
	for _, ts := range steps {
		if err := st.Advance(ctx, "orders", ts); err != nil {
			t.Fatalf("Advance(%v): %v", ts, err)
		}
	}
	got, ok, err := st.Get(ctx, "orders")
	if err != nil || !ok || !got.Equal(steps[1]) {
		t.Fatalf("got=%v ok=%v err=%v", got, ok, err)
	}

	if err := st.Advance(ctx, "customers", base); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got, _, _ := st.Get(ctx, "customers"); !got.Equal(base) {
		t.Fatalf("streams must be independent, got %v", got)
	}
}

func TestParseSQLiteTime_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "fixed_width", in: "2026-01-27T12:17:08.123456789Z", want: time.Date(2026, 1, 27, 12, 17, 8, 123456789, time.UTC)},
		{name: "rfc3339", in: "2026-01-27T12:17:08Z", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "sqlite_space_tz", in: "2026-01-27 12:17:08+00:00", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "sqlite_no_tz_assume_utc", in: "2026-01-27 12:17:08", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "invalid", in: "not-a-time", wantErr: true},
		{name: "empty", in: " ", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseSQLiteTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSQLiteTime(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Fatalf("got=%s want=%s", got, tt.want)
			}
		})
	}
}

func TestFormatSQLiteTime_FixedWidthRoundTrip(t *testing.T) {
	t.Parallel()

	in := time.Date(2026, 1, 27, 12, 17, 8, 123, time.FixedZone("X", 3600))
	s := formatSQLiteTime(in)
	if len(s) != len(timeLayout) {
		t.Fatalf("format %q is not fixed width", s)
	}
	got, err := parseSQLiteTime(s)
	if err != nil || !got.Equal(in) {
		t.Fatalf("round trip got=%v err=%v want=%v", got, err, in)
	}
}

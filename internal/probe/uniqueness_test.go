package probe

import (
	"reflect"
	"strings"
	"testing"

	"csvtap/internal/normalize"
	csvparser "csvtap/internal/parser/csv"
)

func TestUniqueness_CountsAndKeyCandidates(t *testing.T) {
	t.Parallel()

	headers := []string{"ID", "Color", "Note"}
	u := newUniquenessCounter()
	for _, vals := range [][]string{
		{"1", "red", ""},
		{"2", "red", "x"},
		{"3", "blue", " "},
	} {
		u.observe(csvparser.RawRow{Headers: headers, Values: vals})
	}
	stats := u.finish(normalize.NewMapping(headers))

	if want := []string{"id", "color", "note"}; !reflect.DeepEqual(stats.ColumnOrder, want) {
		t.Fatalf("order=%v", stats.ColumnOrder)
	}
	if stats.PerColumnDistinct["color"] != 2 || stats.PerColumnTotal["note"] != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if got := stats.KeyCandidates(); !reflect.DeepEqual(got, []string{"id"}) {
		t.Fatalf("key candidates=%v", got)
	}

	report := stats.Report()
	if !strings.HasPrefix(report, "uniqueness report:\tsampled_rows=3") {
		t.Fatalf("report=%q", report)
	}
	if strings.Index(report, "color") > strings.Index(report, "\nid ") {
		t.Fatalf("expected lower-ratio columns first:\n%s", report)
	}
}

func TestUniqueness_EmptyReport(t *testing.T) {
	t.Parallel()

	if got := (Uniqueness{}).Report(); got != "uniqueness: no rows sampled" {
		t.Fatalf("report=%q", got)
	}
}

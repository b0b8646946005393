package normalize

import (
	"reflect"
	"sync"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Name", "name"},
		{"First Name", "first_name"},
		{"  Amount ($) ", "amount"},
		{"a--b__c", "a_b_c"},
		{"Straße", "straße"},
		{"Order#ID", "order_id"},
		{"123", "123"},
		{"", Unnamed},
		{"!!!", Unnamed},
		{"_sdc_source_file", "_sdc_source_file"},
		{"_gn_row_number", "_gn_row_number"},
		{"_Private", "private"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q)=%q want %q", tt.in, got, tt.want)
		}
		if again := Normalize(tt.in); again != Normalize(tt.in) {
			t.Fatalf("Normalize(%q) not deterministic", tt.in)
		}
	}
}

func TestMapping_CollisionsAreSuffixed(t *testing.T) {
	t.Parallel()

	m := NewMapping([]string{"Amount", "amount", "AMOUNT!", "amount_2"})
	got := []string{m.Lookup("Amount"), m.Lookup("amount"), m.Lookup("AMOUNT!"), m.Lookup("amount_2")}
	want := []string{"amount", "amount_2", "amount_3", "amount_2_2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	seen := map[string]bool{}
	for _, id := range got {
		if seen[id] {
			t.Fatalf("duplicate identifier %q", id)
		}
		seen[id] = true
	}
}

func TestMapping_ReservedIdentifiersNotHandedOut(t *testing.T) {
	t.Parallel()

	m := NewMapping([]string{"gn file path"}, "gn_file_path")
	if got := m.Lookup("gn file path"); got != "gn_file_path_2" {
		t.Fatalf("got %q", got)
	}
}

func TestMapping_LookupUnseenIsStable(t *testing.T) {
	t.Parallel()

	m := NewMapping([]string{"a"})
	first := m.Lookup("New Column")
	if first != "new_column" {
		t.Fatalf("first=%q", first)
	}
	if again := m.Lookup("New Column"); again != first {
		t.Fatalf("Lookup not stable: %q vs %q", again, first)
	}
	if !reflect.DeepEqual(m.Headers(), []string{"a", "New Column"}) {
		t.Fatalf("headers=%v", m.Headers())
	}
}

func TestMapping_ConcurrentLookup(t *testing.T) {
	t.Parallel()

	m := NewMapping(nil)
	var wg sync.WaitGroup
	results := make([]string, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Lookup("Shared Header")
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		if r != "shared_header" {
			t.Fatalf("got %q", r)
		}
	}
	if m.Len() != 1 {
		t.Fatalf("Len=%d", m.Len())
	}
}

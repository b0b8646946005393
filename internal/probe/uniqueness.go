package probe

import (
	"fmt"
	"sort"
	"strings"

	"csvtap/internal/normalize"
	csvparser "csvtap/internal/parser/csv"
)

const distinctCapPerColumn = 10000

// Uniqueness is a bounded per-column summary of the sampled values, keyed
// by normalized column name. It feeds the discover report and helps pick
// key_properties for a new table.
//
// PerColumnTotal counts rows where the column had a non-blank value and is
// the denominator for ratios; TotalRows is informational only. Distinct
// counting stops at distinctCapPerColumn, after which PerColumnCapped is set
// and the backing set is released.
type Uniqueness struct {
	TotalRows         int
	PerColumnTotal    map[string]int
	PerColumnDistinct map[string]int
	PerColumnCapped   map[string]bool
	ColumnOrder       []string
}

// uniquenessCounter collects values keyed by raw header; names are resolved
// once sampling is done and the mapping is final.
type uniquenessCounter struct {
	rows   int
	order  []string
	total  map[string]int
	sets   map[string]map[string]struct{}
	capped map[string]bool
}

func newUniquenessCounter() *uniquenessCounter {
	return &uniquenessCounter{
		total:  make(map[string]int),
		sets:   make(map[string]map[string]struct{}),
		capped: make(map[string]bool),
	}
}

func (u *uniquenessCounter) observe(row csvparser.RawRow) {
	u.rows++
	row.Each(func(h, v string) {
		set, known := u.sets[h]
		if !known && !u.capped[h] {
			set = make(map[string]struct{})
			u.sets[h] = set
			u.order = append(u.order, h)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		u.total[h]++
		if u.capped[h] {
			return
		}
		set[v] = struct{}{}
		if len(set) >= distinctCapPerColumn {
			u.capped[h] = true
			u.sets[h] = nil
		}
	})
}

func (u *uniquenessCounter) finish(m *normalize.Mapping) Uniqueness {
	out := Uniqueness{
		TotalRows:         u.rows,
		PerColumnTotal:    make(map[string]int, len(u.order)),
		PerColumnDistinct: make(map[string]int, len(u.order)),
		PerColumnCapped:   make(map[string]bool, len(u.order)),
		ColumnOrder:       make([]string, 0, len(u.order)),
	}
	for _, h := range u.order {
		col := m.Lookup(h)
		out.ColumnOrder = append(out.ColumnOrder, col)
		out.PerColumnTotal[col] = u.total[h]
		if u.capped[h] {
			out.PerColumnCapped[col] = true
			out.PerColumnDistinct[col] = distinctCapPerColumn
			continue
		}
		out.PerColumnDistinct[col] = len(u.sets[h])
	}
	return out
}

// Report renders the statistics as a tab-separated table sorted by
// ascending uniqueness ratio. Columns without values are omitted.
func (u Uniqueness) Report() string {
	if u.TotalRows <= 0 {
		return "uniqueness: no rows sampled"
	}

	type row struct {
		Col    string
		Dist   int
		Den    int
		Ratio  float64
		Capped bool
	}
	rows := make([]row, 0, len(u.ColumnOrder))
	for _, col := range u.ColumnOrder {
		den := u.PerColumnTotal[col]
		if den <= 0 {
			continue
		}
		d := u.PerColumnDistinct[col]
		rows = append(rows, row{Col: col, Dist: d, Den: den, Ratio: float64(d) / float64(den), Capped: u.PerColumnCapped[col]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Ratio == rows[j].Ratio {
			return rows[i].Col < rows[j].Col
		}
		return rows[i].Ratio < rows[j].Ratio
	})

	var b strings.Builder
	fmt.Fprintf(&b, "uniqueness report:\tsampled_rows=%d\n", u.TotalRows)
	fmt.Fprintf(&b, "%-15s\t%-7s\t%-7s\tratio\tcapped\n", "col", "unique", "rows")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-15s\t%-7d\t%d\t%.1f%%\t%t\n", r.Col, r.Dist, r.Den, r.Ratio*100, r.Capped)
	}
	return strings.TrimRight(b.String(), "\n")
}

// KeyCandidates returns columns whose sampled values were all distinct and
// present in every sampled row, in column order.
func (u Uniqueness) KeyCandidates() []string {
	var out []string
	for _, col := range u.ColumnOrder {
		den := u.PerColumnTotal[col]
		if den == 0 || den != u.TotalRows {
			continue
		}
		if !u.PerColumnCapped[col] && u.PerColumnDistinct[col] == den {
			out = append(out, col)
		}
	}
	return out
}

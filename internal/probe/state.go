package probe

import (
	"slices"

	"csvtap/internal/config"
	"csvtap/internal/normalize"
	csvparser "csvtap/internal/parser/csv"
	"csvtap/internal/schema"
)

// sampleState accumulates what one Infer call has seen.
type sampleState struct {
	table   config.Table
	headers []string
	seen    map[string]struct{}
	rows    int
	files   int
	uniq    *uniquenessCounter
}

func newSampleState(tb config.Table) *sampleState {
	return &sampleState{
		table: tb,
		seen:  make(map[string]struct{}),
		uniq:  newUniquenessCounter(),
	}
}

func (s *sampleState) addHeaders(hs []string) {
	for _, h := range hs {
		if _, ok := s.seen[h]; ok {
			continue
		}
		s.seen[h] = struct{}{}
		s.headers = append(s.headers, h)
	}
}

func (s *sampleState) observe(row csvparser.RawRow) {
	s.rows++
	s.uniq.observe(row)
}

func (s *sampleState) result() Result {
	m := normalize.NewMapping(s.headers, schema.FixedNames()...)

	cols := make([]schema.Column, 0, len(s.headers))
	for _, h := range s.headers {
		name := m.Lookup(h)
		typ := schema.TypeString
		if isDateOverride(s.table.DateOverrides, h, name) {
			typ = schema.TypeTimestamp
		}
		cols = append(cols, schema.Column{Name: name, Type: typ})
	}

	return Result{
		Schema:       schema.New(cols),
		Mapping:      m,
		SampledRows:  s.rows,
		SampledFiles: s.files,
		Stats:        s.uniq.finish(m),
	}
}

// isDateOverride matches either the raw header or its normalized identifier.
func isDateOverride(overrides []string, header, name string) bool {
	return slices.Contains(overrides, header) || slices.Contains(overrides, name)
}

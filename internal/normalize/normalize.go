// Package normalize maps arbitrary source headers to stable lower-case,
// underscore-delimited column identifiers.
package normalize

import (
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Unnamed replaces headers that normalize to the empty string.
const Unnamed = "unnamed_column"

// ReservedPrefixes mark provenance columns; they pass through unchanged.
var ReservedPrefixes = []string{"_sdc_", "_gn_"}

// IsReserved reports whether h carries a reserved prefix.
func IsReserved(h string) bool {
	for _, p := range ReservedPrefixes {
		if strings.HasPrefix(h, p) {
			return true
		}
	}
	return false
}

// Normalize lower-cases h, turns every non-alphanumeric rune into '_',
// collapses runs of '_' and trims them from both ends. An empty result
// becomes Unnamed. Reserved headers are returned unchanged.
func Normalize(h string) string {
	if IsReserved(h) {
		return h
	}

	var b strings.Builder
	b.Grow(len(h))
	lastUnderscore := false
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return Unnamed
	}
	return out
}

// Mapping is the per-table header → identifier map. Distinct headers that
// normalize to the same identifier are disambiguated with a numeric suffix
// (amount, amount_2, amount_3, ...) in first-seen order, so no source column
// silently overwrites another. Safe for concurrent use.
type Mapping struct {
	mu     sync.RWMutex
	byHdr  map[string]string
	taken  map[string]string // identifier -> header that owns it
	order  []string
	frozen map[string]struct{}
}

// NewMapping builds a mapping for headers in the given order. reserved
// identifiers (provenance columns) are never handed out to data headers.
func NewMapping(headers []string, reserved ...string) *Mapping {
	m := &Mapping{
		byHdr:  make(map[string]string, len(headers)),
		taken:  make(map[string]string, len(headers)+len(reserved)),
		frozen: make(map[string]struct{}, len(reserved)),
	}
	for _, r := range reserved {
		m.frozen[r] = struct{}{}
	}
	for _, h := range headers {
		m.assign(h)
	}
	return m
}

// Lookup returns the identifier for h. Headers not seen when the mapping was
// built are normalized and recorded on first use with the same collision rule.
func (m *Mapping) Lookup(h string) string {
	m.mu.RLock()
	id, ok := m.byHdr[h]
	m.mu.RUnlock()
	if ok {
		return id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byHdr[h]; ok {
		return id
	}
	return m.assign(h)
}

// Headers returns the mapped headers in first-seen order.
func (m *Mapping) Headers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Len is the number of mapped headers.
func (m *Mapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// assign must be called with m.mu held for writing (or during construction).
func (m *Mapping) assign(h string) string {
	if id, ok := m.byHdr[h]; ok {
		return id
	}
	base := Normalize(h)
	id := base
	if IsReserved(h) {
		// Reserved headers keep their name; collisions with provenance
		// columns are resolved by the record builder.
		m.byHdr[h] = id
		m.order = append(m.order, h)
		return id
	}
	for n := 2; m.isTaken(id); n++ {
		id = base + "_" + strconv.Itoa(n)
	}
	m.byHdr[h] = id
	m.taken[id] = h
	m.order = append(m.order, h)
	return id
}

func (m *Mapping) isTaken(id string) bool {
	if _, ok := m.taken[id]; ok {
		return true
	}
	_, ok := m.frozen[id]
	return ok
}

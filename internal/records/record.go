// Package records builds output records from parsed rows.
//
// A Record is keyed by column name. Provenance columns are set last so a
// data column that normalizes to a provenance name can never replace them.
package records

import (
	"strings"
	"time"

	"csvtap/internal/normalize"
	csvparser "csvtap/internal/parser/csv"
	"csvtap/internal/schema"
)

// Record is one output row: column name → value. Data values are the raw
// strings of the source (or nil); column types describe them but never
// convert them. Provenance values are string, int or time.Time, and
// _sdc_extra is a []any.
type Record map[string]any

// Source identifies where a row came from.
type Source struct {
	Bucket string
	// Path is the object key, or key::entry for rows inside an archive.
	Path         string
	LastModified time.Time
}

// Builder turns RawRows of one table into Records. The mapping is shared by
// every row; a Builder is safe for concurrent use as long as the mapping is.
type Builder struct {
	mapping   *normalize.Mapping
	emptyNull bool
}

// NewBuilder returns a builder for one table. emptyNull turns empty and
// whitespace-only values into nil.
func NewBuilder(m *normalize.Mapping, emptyNull bool) *Builder {
	return &Builder{mapping: m, emptyNull: emptyNull}
}

// Build converts row number n (1-based within its file or entry) of src.
func (b *Builder) Build(src Source, n int, row csvparser.RawRow) Record {
	rec := make(Record, row.Len()+len(schema.FixedColumns()))

	row.Each(func(h, v string) {
		rec[b.mapping.Lookup(h)] = b.nullable(v)
	})

	if len(row.Extra) > 0 {
		extra := make([]any, len(row.Extra))
		for i, v := range row.Extra {
			extra[i] = b.nullable(v)
		}
		rec[schema.Extra] = extra
	} else {
		delete(rec, schema.Extra)
	}

	rec[schema.SourceBucket] = src.Bucket
	rec[schema.SourceFile] = src.Path
	rec[schema.SourceLineNo] = n
	rec[schema.LastModified] = src.LastModified.UTC()
	rec[schema.FilePath] = src.Path
	rec[schema.RowNumber] = n
	return rec
}

func (b *Builder) nullable(v string) any {
	if b.emptyNull && strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

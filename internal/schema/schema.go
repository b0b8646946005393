// Package schema holds the declared column model of a table: provenance and
// key columns that every table carries, plus the data columns discovered by
// sampling.
package schema

// Type is a declared column type. Types come from configuration, never from
// the values themselves.
type Type string

const (
	TypeString      Type = "string"
	TypeTimestamp   Type = "timestamp"
	TypeInteger     Type = "integer"
	TypeStringArray Type = "string_array"
)

// Provenance and key column names (wire-level, exact).
const (
	SourceBucket   = "_sdc_source_bucket"
	SourceFile     = "_sdc_source_file"
	SourceLineNo   = "_sdc_source_lineno"
	Extra          = "_sdc_extra"
	LastModified   = "_gn_last_modified"
	FilePath       = "_gn_file_path"
	RowNumber      = "_gn_row_number"
	ReplicationKey = LastModified
)

// PrimaryKeys are the fixed primary-key columns of every table.
var PrimaryKeys = []string{FilePath, RowNumber}

// Column is one declared column.
type Column struct {
	Name     string
	Type     Type
	Required bool
}

// Schema is an ordered set of columns: fixed columns first, then data
// columns in discovery order. It is immutable once built.
type Schema struct {
	columns []Column
	index   map[string]int
}

// FixedColumns returns the provenance and key columns present in every schema.
func FixedColumns() []Column {
	return []Column{
		{Name: SourceBucket, Type: TypeString, Required: true},
		{Name: SourceFile, Type: TypeString, Required: true},
		{Name: SourceLineNo, Type: TypeInteger, Required: true},
		{Name: Extra, Type: TypeStringArray},
		{Name: LastModified, Type: TypeTimestamp, Required: true},
		{Name: FilePath, Type: TypeString, Required: true},
		{Name: RowNumber, Type: TypeInteger, Required: true},
	}
}

// FixedNames returns the names of FixedColumns.
func FixedNames() []string {
	cols := FixedColumns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// New builds a schema from data columns. Fixed columns are always prepended;
// a data column that reuses a fixed name is dropped (provenance wins).
func New(data []Column) Schema {
	fixed := FixedColumns()
	s := Schema{
		columns: make([]Column, 0, len(fixed)+len(data)),
		index:   make(map[string]int, len(fixed)+len(data)),
	}
	for _, c := range fixed {
		s.add(c)
	}
	for _, c := range data {
		if _, dup := s.index[c.Name]; dup {
			continue
		}
		c.Required = false
		s.add(c)
	}
	return s
}

func (s *Schema) add(c Column) {
	s.index[c.Name] = len(s.columns)
	s.columns = append(s.columns, c)
}

// Columns returns a copy of all columns in order.
func (s Schema) Columns() []Column { return append([]Column(nil), s.columns...) }

// DataColumns returns the non-fixed columns in discovery order.
func (s Schema) DataColumns() []Column {
	n := len(FixedColumns())
	if len(s.columns) <= n {
		return nil
	}
	return append([]Column(nil), s.columns[n:]...)
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// TypeOf returns the declared type of name, defaulting to string.
func (s Schema) TypeOf(name string) Type {
	if c, ok := s.Column(name); ok {
		return c.Type
	}
	return TypeString
}

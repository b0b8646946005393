package csv

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"csvtap/internal/config"
)

// Dialect is the per-reader parser configuration. It is passed explicitly to
// every RowReader; nothing here is process-global.
type Dialect struct {
	Comma    rune
	Quote    rune
	Encoding string

	// FieldNames, when non-empty, are used as headers and no physical row is
	// consumed as a header.
	FieldNames []string

	// LazyQuotes tolerates bare quotes inside unquoted fields.
	LazyQuotes bool

	// FieldSizeLimit rejects rows with a field longer than this many bytes.
	// Zero means unlimited.
	FieldSizeLimit int
}

// DialectFor builds the dialect of a configured table.
func DialectFor(tb config.Table) Dialect {
	return Dialect{
		Comma:      tb.DelimiterRune(),
		Quote:      tb.QuoteRune(),
		Encoding:   tb.Encoding,
		FieldNames: tb.FieldNames,
		LazyQuotes: true,
	}
}

func (d Dialect) withDefaults() Dialect {
	if d.Comma == 0 {
		d.Comma = ','
	}
	if d.Quote == 0 {
		d.Quote = '"'
	}
	if d.Encoding == "" {
		d.Encoding = config.DefaultEncoding
	}
	return d
}

// lookupEncoding resolves an encoding label. isUTF8 reports whether the
// input should only be validated rather than transcoded.
func lookupEncoding(label string) (enc encoding.Encoding, isUTF8 bool, err error) {
	enc, err = htmlindex.Get(label)
	if err != nil {
		return nil, false, fmt.Errorf("csv: unknown encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return nil, false, fmt.Errorf("csv: unknown encoding %q: %w", label, err)
	}
	return enc, name == "utf-8", nil
}

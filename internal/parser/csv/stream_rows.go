// Package csv turns a delimited-text byte stream into a lazy sequence of
// RawRows. It wraps encoding/csv with per-table dialects (delimiter, quote
// character, encoding, explicit field names) and keeps rows that are wider
// than the header instead of rejecting them.
package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	xenc "golang.org/x/text/encoding"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// ExtraColumn is the reserved key under which overflow values travel.
const ExtraColumn = "_sdc_extra"

// DecodeError reports bytes that are not valid in the configured encoding.
// It is fatal for the file being read.
type DecodeError struct {
	Encoding string
	Line     int
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("csv: decode %s near line %d: %v", e.Encoding, e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RowError reports a row that could not be parsed (unterminated quote,
// oversized field). Like DecodeError it ends the file.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("csv: line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// RawRow is one data row. Headers is shared by every row of a file; Values
// holds at most len(Headers) entries, and Extra holds the trailing values of
// a row wider than the header.
type RawRow struct {
	Headers []string
	Values  []string
	Extra   []string
	// Line is the physical line on which the record starts.
	Line int
}

// Len is the number of mapped (header-aligned) fields present.
func (r RawRow) Len() int { return len(r.Values) }

// Get returns the value for header h. Missing trailing fields report false.
// With duplicate headers the last occurrence wins.
func (r RawRow) Get(h string) (string, bool) {
	for i := len(r.Values) - 1; i >= 0; i-- {
		if r.Headers[i] == h {
			return r.Values[i], true
		}
	}
	return "", false
}

// Each calls fn for every mapped field in header order.
func (r RawRow) Each(fn func(header, value string)) {
	for i, v := range r.Values {
		fn(r.Headers[i], v)
	}
}

// sourceReader remembers the last non-EOF error of the underlying stream so
// transport failures can be told apart from decode failures.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// RowReader is a single-pass cursor over the rows of one stream. It is not
// safe for concurrent use.
type RowReader struct {
	cr      *csv.Reader
	src     *sourceReader
	dialect Dialect
	headers []string
	unswap  func(string) string
	done    bool
	// lastLine is the line of the last record read successfully.
	lastLine int
	started  bool
}

// NewRowReader wraps r. Unless d.FieldNames is set, the first record is
// consumed as the header. An empty stream yields a reader with no headers
// whose Next returns io.EOF.
func NewRowReader(r io.Reader, d Dialect) (*RowReader, error) {
	d = d.withDefaults()

	enc, isUTF8, err := lookupEncoding(d.Encoding)
	if err != nil {
		return nil, err
	}

	src := &sourceReader{r: r}
	var text io.Reader = src
	if isUTF8 {
		text = transform.NewReader(text, xenc.UTF8Validator)
	} else {
		// Decoders substitute U+FFFD for malformed input instead of failing.
		text = transform.NewReader(text, transform.Chain(enc.NewDecoder(), replacementGuard{}))
	}

	rr := &RowReader{src: src, dialect: d}

	// encoding/csv only knows '"' as quote. Any other quote character is
	// swapped with '"' on the way in and swapped back in every value.
	if d.Quote != '"' {
		q := d.Quote
		swap := func(c rune) rune {
			switch c {
			case q:
				return '"'
			case '"':
				return q
			}
			return c
		}
		text = transform.NewReader(text, runes.Map(swap))
		rr.unswap = func(s string) string { return strings.Map(swap, s) }
	}

	cr := csv.NewReader(text)
	cr.Comma = d.Comma
	cr.LazyQuotes = d.LazyQuotes
	cr.FieldsPerRecord = -1
	rr.cr = cr

	if len(d.FieldNames) > 0 {
		rr.headers = append([]string(nil), d.FieldNames...)
		return rr, nil
	}

	hdr, err := rr.read()
	if err == io.EOF {
		rr.done = true
		return rr, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	rr.headers = hdr
	return rr, nil
}

// Headers returns the header labels (explicit field names or the header row).
func (rr *RowReader) Headers() []string { return rr.headers }

// Next returns the next data row, or io.EOF when the stream is exhausted.
// Any other error is terminal.
func (rr *RowReader) Next() (RawRow, error) {
	if rr.done {
		return RawRow{}, io.EOF
	}
	rec, err := rr.read()
	if err != nil {
		rr.done = true
		return RawRow{}, err
	}

	row := RawRow{Headers: rr.headers, Line: rr.lastLine}
	n := len(rec)
	if n > len(rr.headers) {
		row.Extra = rec[len(rr.headers):]
		n = len(rr.headers)
	}
	row.Values = rec[:n:n]
	return row, nil
}

func (rr *RowReader) read() ([]string, error) {
	rec, err := rr.cr.Read()
	if err != nil {
		return nil, rr.classify(err)
	}
	if lim := rr.dialect.FieldSizeLimit; lim > 0 {
		for i, v := range rec {
			if len(v) > lim {
				line, _ := rr.cr.FieldPos(i)
				return nil, &RowError{Line: line, Err: fmt.Errorf("field %d larger than field limit (%d)", i+1, lim)}
			}
		}
	}
	rr.lastLine, _ = rr.cr.FieldPos(0)
	if !rr.started {
		// A leading BOM belongs to the stream, whether the first record is a
		// header or data.
		rr.started = true
		if len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\uFEFF")
		}
	}
	if rr.unswap != nil {
		for i := range rec {
			rec[i] = rr.unswap(rec[i])
		}
	}
	return rec, nil
}

func (rr *RowReader) classify(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	if rr.src.err != nil && errors.Is(err, rr.src.err) {
		return err
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &RowError{Line: pe.StartLine, Err: pe.Err}
	}
	return &DecodeError{Encoding: rr.dialect.Encoding, Line: rr.lastLine + 1, Err: err}
}

var (
	replacementChar = []byte("\uFFFD")

	errMalformedInput = errors.New("malformed input")
)

// replacementGuard fails on the first U+FFFD in its input. Placed after a
// decoder, it turns silent substitution into an error.
type replacementGuard struct{ transform.NopResetter }

func (replacementGuard) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	n := len(src)
	if i := bytes.Index(src, replacementChar); i >= 0 {
		n, err = i, errMalformedInput
	} else if !atEOF {
		// Hold back a trailing prefix of U+FFFD until the rest arrives.
		for k := min(len(replacementChar)-1, len(src)); k > 0; k-- {
			if bytes.HasPrefix(replacementChar, src[len(src)-k:]) {
				n, err = len(src)-k, transform.ErrShortSrc
				break
			}
		}
	}
	c := copy(dst, src[:n])
	if c < n {
		return c, c, transform.ErrShortDst
	}
	return c, c, err
}

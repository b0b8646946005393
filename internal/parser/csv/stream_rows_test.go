package csv

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"

	"golang.org/x/text/transform"
)

func readAll(t *testing.T, rr *RowReader) []RawRow {
	t.Helper()
	var out []RawRow
	for {
		row, err := rr.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, row)
	}
}

func mustReader(t *testing.T, in string, d Dialect) *RowReader {
	t.Helper()
	rr, err := NewRowReader(strings.NewReader(in), d)
	if err != nil {
		t.Fatalf("NewRowReader: %v", err)
	}
	return rr
}

func TestRowReader_HeaderAndRowCount(t *testing.T) {
	t.Parallel()

	rr := mustReader(t, "Name,Amount\nAlice,10\nBob,\n", Dialect{})
	rows := readAll(t, rr)

	if !reflect.DeepEqual(rr.Headers(), []string{"Name", "Amount"}) {
		t.Fatalf("headers=%v", rr.Headers())
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d want 2", len(rows))
	}
	if v, ok := rows[1].Get("Amount"); !ok || v != "" {
		t.Fatalf("Bob.Amount=%q ok=%v", v, ok)
	}
	if rows[0].Line != 2 || rows[1].Line != 3 {
		t.Fatalf("lines=%d,%d", rows[0].Line, rows[1].Line)
	}
}

func TestRowReader_HeaderOnlyAndEmpty(t *testing.T) {
	t.Parallel()

	if rows := readAll(t, mustReader(t, "a,b\n", Dialect{})); len(rows) != 0 {
		t.Fatalf("header-only file yielded %d rows", len(rows))
	}

	rr := mustReader(t, "", Dialect{})
	if len(rr.Headers()) != 0 {
		t.Fatalf("headers=%v", rr.Headers())
	}
	if _, err := rr.Next(); err != io.EOF {
		t.Fatalf("err=%v want EOF", err)
	}
}

func TestRowReader_ShortAndLongRows(t *testing.T) {
	t.Parallel()

	rows := readAll(t, mustReader(t, "a,b,c\n1\n1,2,3,4,5\n", Dialect{}))
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}

	short := rows[0]
	if short.Len() != 1 || short.Extra != nil {
		t.Fatalf("short row: %+v", short)
	}
	if _, ok := short.Get("b"); ok {
		t.Fatalf("missing trailing field must be absent")
	}

	long := rows[1]
	if !reflect.DeepEqual(long.Values, []string{"1", "2", "3"}) {
		t.Fatalf("values=%v", long.Values)
	}
	if !reflect.DeepEqual(long.Extra, []string{"4", "5"}) {
		t.Fatalf("extra=%v", long.Extra)
	}
	if v, _ := long.Get("c"); v != "3" {
		t.Fatalf("c=%q, overflow must not overwrite mapped fields", v)
	}
}

func TestRowReader_FieldNamesSuppressHeader(t *testing.T) {
	t.Parallel()

	rr := mustReader(t, "x,y\n1,2\n", Dialect{FieldNames: []string{"first", "second"}})
	rows := readAll(t, rr)
	if len(rows) != 2 {
		t.Fatalf("rows=%d want 2", len(rows))
	}
	if v, _ := rows[0].Get("first"); v != "x" {
		t.Fatalf("first=%q", v)
	}
}

func TestRowReader_QuotedDelimiterAndNewline(t *testing.T) {
	t.Parallel()

	in := "id,note\n1,\"hello, world\"\n2,\"multi\nline\"\n"
	rows := readAll(t, mustReader(t, in, Dialect{}))
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	if v, _ := rows[0].Get("note"); v != "hello, world" {
		t.Fatalf("note=%q", v)
	}
	if v, _ := rows[1].Get("note"); v != "multi\nline" {
		t.Fatalf("note=%q", v)
	}
}

func TestRowReader_CustomQuoteAndDelimiter(t *testing.T) {
	t.Parallel()

	in := "id;text\n1;'a;b'\n2;'it''s \"fine\"'\n"
	rows := readAll(t, mustReader(t, in, Dialect{Comma: ';', Quote: '\''}))
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	if v, _ := rows[0].Get("text"); v != "a;b" {
		t.Fatalf("text=%q", v)
	}
	if v, _ := rows[1].Get("text"); v != `it's "fine"` {
		t.Fatalf("text=%q", v)
	}
}

func TestRowReader_Latin1(t *testing.T) {
	t.Parallel()

	in := "name\ncaf\xe9\n"
	rows := readAll(t, mustReader(t, in, Dialect{Encoding: "latin1"}))
	if v, _ := rows[0].Get("name"); v != "café" {
		t.Fatalf("name=%q", v)
	}
}

func TestRowReader_InvalidUTF8IsDecodeError(t *testing.T) {
	t.Parallel()

	rr := mustReader(t, "name\nok\nbad\xff\n", Dialect{})
	var err error
	for err == nil {
		_, err = rr.Next()
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestRowReader_BOMTrimmed(t *testing.T) {
	t.Parallel()

	rr := mustReader(t, "\uFEFFid,v\n1,2\n", Dialect{})
	if rr.Headers()[0] != "id" {
		t.Fatalf("header=%q", rr.Headers()[0])
	}
}

func TestRowReader_BOMTrimmedWithFieldNames(t *testing.T) {
	t.Parallel()

	rows := readAll(t, mustReader(t, "\uFEFF1,2\n", Dialect{FieldNames: []string{"id", "v"}}))
	if v, _ := rows[0].Get("id"); v != "1" {
		t.Fatalf("id=%q", v)
	}
}

func TestRowReader_ShiftJIS(t *testing.T) {
	t.Parallel()

	rows := readAll(t, mustReader(t, "name\n\x96\xbc\x91\x4f\n", Dialect{Encoding: "shift_jis"}))
	if v, _ := rows[0].Get("name"); v != "名前" {
		t.Fatalf("name=%q", v)
	}
}

func TestRowReader_InvalidShiftJISIsDecodeError(t *testing.T) {
	t.Parallel()

	rr := mustReader(t, "name\nok\n\x82\n", Dialect{Encoding: "shift_jis"})
	var rows []RawRow
	var err error
	for {
		var row RawRow
		row, err = rr.Next()
		if err != nil {
			break
		}
		rows = append(rows, row)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v (rows=%v)", err, rows)
	}
	for _, r := range rows {
		if v, _ := r.Get("name"); strings.ContainsRune(v, '\uFFFD') {
			t.Fatalf("replacement character leaked into %q", v)
		}
	}
}

func TestReplacementGuard_SplitAcrossChunks(t *testing.T) {
	t.Parallel()

	// U+FFFD arrives split over two reads.
	r := transform.NewReader(iotest.OneByteReader(strings.NewReader("ab\uFFFDcd")), replacementGuard{})
	got, err := io.ReadAll(r)
	if !errors.Is(err, errMalformedInput) || string(got) != "ab" {
		t.Fatalf("got=%q err=%v", got, err)
	}

	r = transform.NewReader(iotest.OneByteReader(strings.NewReader("caf\u00e9 \uFFFE")), replacementGuard{})
	got, err = io.ReadAll(r)
	if err != nil || string(got) != "caf\u00e9 \uFFFE" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

func TestRowReader_FieldSizeLimit(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("x", 1<<20)
	in := "a\n" + big + "\n"

	rows := readAll(t, mustReader(t, in, Dialect{}))
	if v, _ := rows[0].Get("a"); len(v) != 1<<20 {
		t.Fatalf("unlimited reader truncated field to %d bytes", len(v))
	}

	rr := mustReader(t, in, Dialect{FieldSizeLimit: 1024})
	_, err := rr.Next()
	var re *RowError
	if !errors.As(err, &re) {
		t.Fatalf("expected RowError, got %v", err)
	}
}

func TestRowReader_StrictQuotesParseError(t *testing.T) {
	t.Parallel()

	rr := mustReader(t, "a,b\nx\"y,1\n", Dialect{LazyQuotes: false})
	_, err := rr.Next()
	var re *RowError
	if !errors.As(err, &re) {
		t.Fatalf("expected RowError, got %v", err)
	}
}

func TestRowReader_UnknownEncoding(t *testing.T) {
	t.Parallel()

	if _, err := NewRowReader(strings.NewReader("a\n"), Dialect{Encoding: "nope"}); err == nil {
		t.Fatalf("expected error for unknown encoding")
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestRowReader_SourceErrorsPassThrough(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	_, err := NewRowReader(failingReader{err: boom}, Dialect{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
	var de *DecodeError
	if errors.As(err, &de) {
		t.Fatalf("source error misreported as DecodeError")
	}
}

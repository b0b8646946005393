package tap

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"csvtap/internal/archive"
	"csvtap/internal/locator"
	"csvtap/internal/metrics"
	csvparser "csvtap/internal/parser/csv"
	"csvtap/internal/records"
)

// Sync emits every row of every file modified after since to sink and
// returns the final watermark. A nil since falls back to start_date; a zero
// start_date means no lower bound. The returned watermark never goes below
// the bound the run started from.
func (s *Stream) Sync(ctx context.Context, since *time.Time, sink Sink) (time.Time, error) {
	bound := since
	if bound == nil && !s.start.IsZero() {
		st := s.start
		bound = &st
	}
	var wm time.Time
	if bound != nil {
		wm = *bound
	}

	b, err := s.recordBuilder(ctx)
	if err != nil {
		return wm, err
	}

	started := time.Now()
	cands, err := s.locator.Discover(ctx, s.table, bound)
	metrics.RecordStep("discover", err, time.Since(started))
	if err != nil {
		return wm, err
	}
	s.logf("stage=sync table=%s files=%d", s.name, len(cands))

	started = time.Now()
	total := 0
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			metrics.RecordStep("sync", err, time.Since(started))
			return wm, err
		}

		s.logf("stage=sync table=%s file=%q", s.name, c.Key)
		n, err := s.syncFile(ctx, b, c, sink)
		total += n
		metrics.RecordRecords(s.name, n)
		metrics.RecordFile(s.name, err)
		if err != nil {
			metrics.RecordStep("sync", err, time.Since(started))
			return wm, err
		}

		if c.LastModified.After(wm) {
			wm = c.LastModified
		}
		if err := sink.Checkpoint(ctx, s.name, wm); err != nil {
			metrics.RecordStep("sync", err, time.Since(started))
			return wm, err
		}
	}
	metrics.RecordStep("sync", nil, time.Since(started))
	s.logf("stage=sync table=%s records=%d watermark=%s", s.name, total, formatWatermark(wm))
	return wm, nil
}

// syncFile emits the rows of one object, entry by entry when it is an
// archive. Row numbers restart at 1 for every entry.
func (s *Stream) syncFile(ctx context.Context, b *records.Builder, c locator.Candidate, sink Sink) (int, error) {
	bucket := s.deps.Store.Bucket()
	fail := func(err error) error {
		var fe *FileError
		if errors.As(err, &fe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &FileError{Bucket: bucket, Key: c.Key, Err: err}
	}

	rc, err := s.deps.Store.Open(ctx, c.Key)
	if err != nil {
		return 0, fail(err)
	}
	defer rc.Close()

	dialect := csvparser.DialectFor(s.table)
	emitted := 0
	err = archive.Unwrap(c.Key, rc, s.suffix, func(path string, body io.Reader) error {
		rr, err := csvparser.NewRowReader(body, dialect)
		if err != nil {
			return err
		}
		src := records.Source{Bucket: bucket, Path: path, LastModified: c.LastModified}
		for n := 1; ; n++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := rr.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := sink.WriteRecord(ctx, s.name, b.Build(src, n, row)); err != nil {
				return &sinkError{err}
			}
			emitted++
		}
	})
	if err != nil {
		var se *sinkError
		if errors.As(err, &se) {
			return emitted, se.err
		}
		return emitted, fail(err)
	}
	return emitted, nil
}

// sinkError marks errors returned by the sink so they are not reported as
// file failures.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return e.err.Error() }

func (e *sinkError) Unwrap() error { return e.err }

func formatWatermark(t time.Time) string {
	if t.IsZero() {
		return "unset"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var errStopIteration = errors.New("tap: iteration stopped")

// Records is the pull form of Sync: it yields records in emission order and
// ends with a single (nil, err) pair when the run fails. Checkpoints are
// not observable through the iterator.
func (s *Stream) Records(ctx context.Context, since *time.Time) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		_, err := s.Sync(ctx, since, yieldSink(yield))
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(nil, err)
		}
	}
}

type yieldSink func(records.Record, error) bool

func (y yieldSink) WriteRecord(_ context.Context, _ string, rec records.Record) error {
	if !y(rec, nil) {
		return errStopIteration
	}
	return nil
}

func (y yieldSink) Checkpoint(context.Context, string, time.Time) error { return nil }

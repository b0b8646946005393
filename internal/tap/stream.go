// Package tap drives incremental extraction of one table.
//
// A run reads the table's watermark, discovers the files modified after it,
// and emits their rows in (LastModified, Key) order. The watermark is
// proposed to the sink once per fully drained file, so a failure inside a
// file never moves it past that file.
package tap

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"csvtap/internal/config"
	"csvtap/internal/locator"
	"csvtap/internal/metrics"
	"csvtap/internal/objectstore"
	"csvtap/internal/probe"
	"csvtap/internal/records"
	"csvtap/internal/schema"
)

// Logger is the minimal logging interface used by streams.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

var _ Logger = (*log.Logger)(nil)

// Sink consumes a stream's output. WriteRecord is called in emission order;
// Checkpoint is called after every fully drained file with the new
// watermark.
type Sink interface {
	WriteRecord(ctx context.Context, stream string, rec records.Record) error
	Checkpoint(ctx context.Context, stream string, watermark time.Time) error
}

// Deps are the collaborators shared by the streams of one tap.
type Deps struct {
	Store  objectstore.Store
	Tap    config.Tap
	Logger Logger
}

// FileError is a failure while reading one file. Rows emitted before the
// failure are not rolled back and the watermark does not cover the file.
type FileError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Stream is one table instance. Its schema is inferred lazily and kept for
// the stream's lifetime.
type Stream struct {
	table   config.Table
	name    string
	start   time.Time
	suffix  string
	deps    Deps
	locator *locator.Locator
	sampler *probe.Sampler

	mu      sync.Mutex
	sampled *probe.Result
	builder *records.Builder
}

// NewStream validates tb and returns its stream.
func NewStream(tb config.Table, deps Deps) (*Stream, error) {
	if _, err := locator.Compile(tb); err != nil {
		return nil, err
	}
	start, err := deps.Tap.StartTime()
	if err != nil {
		return nil, &config.ConfigurationError{Path: "start_date", Message: "invalid start_date", Err: err}
	}
	if tb.SetEmptyValuesNull == nil {
		v := deps.Tap.SetEmptyValuesNull
		tb.SetEmptyValuesNull = &v
	}
	suffix := deps.Tap.ArchiveSuffix
	if suffix == "" {
		suffix = config.DefaultArchiveSuffix
	}

	loc := &locator.Locator{Store: deps.Store, WarnIfNoFiles: deps.Tap.WarnIfNoFiles, Logger: deps.Logger}
	return &Stream{
		table:   tb,
		name:    deps.Tap.StreamName(tb),
		start:   start,
		suffix:  suffix,
		deps:    deps,
		locator: loc,
		sampler: probe.New(loc, probe.OptionsFrom(deps.Tap), deps.Logger),
	}, nil
}

func (s *Stream) logf(format string, v ...any) {
	if s.deps.Logger == nil {
		return
	}
	s.deps.Logger.Printf(format, v...)
}

// Name is the stream name: table_name plus the tap's table_suffix.
func (s *Stream) Name() string { return s.name }

// Table returns the table configuration.
func (s *Stream) Table() config.Table { return s.table }

// KeyProperties are the fixed primary keys followed by any configured
// key_properties.
func (s *Stream) KeyProperties() []string {
	out := slices.Clone(schema.PrimaryKeys)
	for _, k := range s.table.KeyProperties {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// ReplicationKey names the watermark column.
func (s *Stream) ReplicationKey() string { return schema.ReplicationKey }

// Schema returns the memoized schema, sampling on first use. A failed
// sampling attempt is not cached.
func (s *Stream) Schema(ctx context.Context) (schema.Schema, error) {
	res, err := s.Sample(ctx)
	if err != nil {
		return schema.Schema{}, err
	}
	return res.Schema, nil
}

// Sample returns the memoized sampling result.
func (s *Stream) Sample(ctx context.Context) (probe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampled != nil {
		return *s.sampled, nil
	}

	start := time.Now()
	res, err := s.sampler.Infer(ctx, s.table)
	metrics.RecordStep("sample", err, time.Since(start))
	if err != nil {
		return probe.Result{}, err
	}
	s.sampled = &res
	s.builder = records.NewBuilder(res.Mapping, s.table.EmptyValuesNull())
	return res, nil
}

func (s *Stream) recordBuilder(ctx context.Context) (*records.Builder, error) {
	if _, err := s.Sample(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder, nil
}

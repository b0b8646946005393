// Package probe infers the schema of a table by sampling its newest files.
//
// Sampling is bounded: at most MaxFiles files are read, and from each file
// (or archive entry) every SampleRate-th row is taken until
// MaxRecordsPerFile rows were collected. Types are declarative: a column is
// a timestamp when it is listed in date_overrides and a string otherwise.
// Values are never sniffed.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"csvtap/internal/archive"
	"csvtap/internal/config"
	"csvtap/internal/locator"
	"csvtap/internal/normalize"
	"csvtap/internal/objectstore"
	csvparser "csvtap/internal/parser/csv"
	"csvtap/internal/schema"
)

// Logger is the minimal logging interface used by the sampler.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

var _ Logger = (*log.Logger)(nil)

// Options bound a sampling run. Zero values fall back to the config defaults.
type Options struct {
	SampleRate        int
	MaxRecordsPerFile int
	MaxFiles          int

	// ArchiveSuffix selects the ZIP entries that are sampled.
	ArchiveSuffix string
}

// OptionsFrom converts the tap's sampling config.
func OptionsFrom(t config.Tap) Options {
	return Options{
		SampleRate:        t.Sampling.SampleRate,
		MaxRecordsPerFile: t.Sampling.MaxSampledRecords,
		MaxFiles:          t.Sampling.MaxSampledFiles,
		ArchiveSuffix:     t.ArchiveSuffix,
	}
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = config.DefaultSampleRate
	}
	if o.MaxRecordsPerFile <= 0 {
		o.MaxRecordsPerFile = config.DefaultMaxSampledRecords
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = config.DefaultMaxSampledFiles
	}
	if o.ArchiveSuffix == "" {
		o.ArchiveSuffix = config.DefaultArchiveSuffix
	}
	return o
}

// Result is the outcome of one sampling run.
type Result struct {
	Schema schema.Schema

	// Mapping is seeded with the sampled headers in first-seen order and
	// keeps resolving headers that appear only later, during extraction.
	Mapping *normalize.Mapping

	SampledRows  int
	SampledFiles int

	// Stats summarizes per-column uniqueness of the sampled values.
	Stats Uniqueness
}

// Sampler infers table schemas from a store.
type Sampler struct {
	Locator *locator.Locator
	Options Options
	Logger  Logger
}

// New returns a sampler that lists through loc.
func New(loc *locator.Locator, opt Options, logger Logger) *Sampler {
	return &Sampler{Locator: loc, Options: opt.withDefaults(), Logger: logger}
}

func (s *Sampler) logf(format string, v ...any) {
	if s.Logger == nil {
		return
	}
	s.Logger.Printf(format, v...)
}

// Infer samples tb and builds its schema.
//
// The modification-time watermark is ignored: the newest MaxFiles candidates
// by (LastModified, Key) are read from oldest to newest, so headers are
// discovered in a stable order. A table without files or without sampled
// rows yields the fixed columns only. NoMatchingFilesError follows the
// locator's policy. Malformed files are sampled up to the first bad row;
// store errors abort.
func (s *Sampler) Infer(ctx context.Context, tb config.Table) (Result, error) {
	opt := s.Options.withDefaults()

	cands, err := s.Locator.Discover(ctx, tb, nil)
	if err != nil {
		return Result{}, err
	}
	cands = locator.Newest(cands, opt.MaxFiles)

	st := newSampleState(tb)
	dialect := csvparser.DialectFor(tb)
	store := s.Locator.Store

	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := s.sampleObject(ctx, store, c.Key, dialect, opt, st); err != nil {
			return Result{}, fmt.Errorf("sample %s/%s: %w", store.Bucket(), c.Key, err)
		}
		st.files++
	}

	res := st.result()
	s.logf("stage=sample table=%s files=%d rows=%d columns=%d",
		tb.TableName, res.SampledFiles, res.SampledRows, len(res.Schema.DataColumns()))
	return res, nil
}

func (s *Sampler) sampleObject(ctx context.Context, store objectstore.Store, key string, d csvparser.Dialect, opt Options, st *sampleState) error {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	return archive.Unwrap(key, rc, opt.ArchiveSuffix, func(path string, body io.Reader) error {
		err := sampleRows(path, body, d, opt, st)
		if isDataError(err) {
			// Sampling is best-effort: keep what was read and move on. The
			// extraction run reports the same file as failed.
			s.logf("stage=sample file=%q warning=%q", path, err.Error())
			return nil
		}
		return err
	})
}

// isDataError reports malformed content, as opposed to store failures.
func isDataError(err error) bool {
	var de *csvparser.DecodeError
	var re *csvparser.RowError
	return errors.As(err, &de) || errors.As(err, &re)
}

// sampleRows reads one data stream and records every SampleRate-th row.
func sampleRows(path string, body io.Reader, d csvparser.Dialect, opt Options, st *sampleState) error {
	rr, err := csvparser.NewRowReader(body, d)
	if err != nil {
		return err
	}

	taken := 0
	for i := 0; taken < opt.MaxRecordsPerFile; i++ {
		row, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if i%opt.SampleRate != 0 {
			continue
		}
		if taken == 0 {
			st.addHeaders(rr.Headers())
		}
		st.observe(row)
		taken++
	}
	return nil
}

// Package multitable runs every configured table of a tap: it opens the
// object store and the state store once, builds one stream per table, and
// syncs the streams concurrently into a shared output writer.
package multitable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"csvtap/internal/config"
	"csvtap/internal/metrics"
	"csvtap/internal/objectstore"
	"csvtap/internal/output"
	"csvtap/internal/probe"
	"csvtap/internal/records"
	"csvtap/internal/storage"
	"csvtap/internal/tap"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

var _ Logger = (*log.Logger)(nil)

// Runner wires configuration to stores and streams. The function fields are
// seams; NewDefaultRunner fills them with the production implementations.
type Runner struct {
	NewStore func(ctx context.Context, cfg config.Tap) (objectstore.Store, error)
	NewState func(ctx context.Context, cfg storage.Config) (storage.StateStore, error)
	NewRunID func() string
	Logger   Logger
}

// NewDefaultRunner returns a Runner backed by S3 (or a local directory for
// file:// buckets) and the registered state backends.
func NewDefaultRunner(logger Logger) *Runner {
	return &Runner{
		NewStore: OpenStore,
		NewState: storage.New,
		NewRunID: uuid.NewString,
		Logger:   logger,
	}
}

// TableResult is the outcome of one table.
type TableResult struct {
	Stream    string
	Records   int
	Watermark time.Time
	Err       error
}

// Summary is the outcome of a run.
type Summary struct {
	RunID  string
	Tables []TableResult
}

// Failed counts the tables that ended with an error.
func (s Summary) Failed() int {
	n := 0
	for _, t := range s.Tables {
		if t.Err != nil {
			n++
		}
	}
	return n
}

func (r *Runner) logf(format string, v ...any) {
	if r.Logger == nil {
		return
	}
	r.Logger.Printf(format, v...)
}

// Run syncs every table and writes SCHEMA, RECORD and STATE messages to out.
//
// Tables run independently: a failing table does not cancel the others, its
// watermark simply stays at the last fully drained file. The returned error
// joins the per-table errors.
func (r *Runner) Run(ctx context.Context, cfg config.Tap, out io.Writer) (Summary, error) {
	if err := config.Err(config.Validate(cfg)); err != nil {
		return Summary{}, err
	}

	store, err := r.NewStore(ctx, cfg)
	if err != nil {
		return Summary{}, fmt.Errorf("object store: %w", err)
	}
	state, err := r.NewState(ctx, storage.Config{Kind: cfg.State.Kind, DSN: os.ExpandEnv(cfg.State.DSN)})
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		if err := state.Close(); err != nil {
			r.logf("stage=run state_close_error=%v", err)
		}
	}()

	streams, err := r.streams(cfg, store)
	if err != nil {
		return Summary{}, err
	}

	runID := r.NewRunID()
	w := output.NewWriter(out, state, runID)
	since := make([]*time.Time, len(streams))
	for i, s := range streams {
		wm, ok, err := state.Get(ctx, s.Name())
		if err != nil {
			return Summary{}, fmt.Errorf("load state %s: %w", s.Name(), err)
		}
		if ok {
			since[i] = &wm
			w.Seed(s.Name(), wm)
		}
	}

	r.logf("stage=run run_id=%s tables=%d workers=%d", runID, len(streams), cfg.Runtime.TableWorkers)
	started := time.Now()

	sum := Summary{RunID: runID, Tables: make([]TableResult, len(streams))}
	var g errgroup.Group
	g.SetLimit(max(cfg.Runtime.TableWorkers, 1))
	for i, s := range streams {
		g.Go(func() error {
			sum.Tables[i] = r.syncOne(ctx, s, since[i], w)
			return nil
		})
	}
	_ = g.Wait()

	if err := w.WriteState(); err != nil {
		return sum, err
	}

	var errs []error
	for _, t := range sum.Tables {
		if t.Err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", t.Stream, t.Err))
		}
	}
	err = errors.Join(errs...)
	metrics.RecordStep("run", err, time.Since(started))
	r.logf("stage=run run_id=%s tables=%d failed=%d duration=%s",
		runID, len(streams), sum.Failed(), time.Since(started).Truncate(time.Millisecond))
	return sum, err
}

func (r *Runner) syncOne(ctx context.Context, s *tap.Stream, since *time.Time, w *output.Writer) TableResult {
	res := TableResult{Stream: s.Name()}
	sc, err := s.Schema(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	if err := w.WriteSchema(s.Name(), sc, s.KeyProperties()); err != nil {
		res.Err = err
		return res
	}

	cs := &countingSink{Sink: w}
	res.Watermark, res.Err = s.Sync(ctx, since, cs)
	res.Records = cs.n
	if res.Err != nil {
		r.logf("stage=sync table=%s error=%q", s.Name(), res.Err)
	}
	return res
}

// Discovered pairs a stream with its sampling result.
type Discovered struct {
	Stream *tap.Stream
	Sample probe.Result
}

// Discover samples every table concurrently. Any failure aborts discovery.
func (r *Runner) Discover(ctx context.Context, cfg config.Tap) ([]Discovered, error) {
	if err := config.Err(config.Validate(cfg)); err != nil {
		return nil, err
	}
	store, err := r.NewStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	streams, err := r.streams(cfg, store)
	if err != nil {
		return nil, err
	}

	out := make([]Discovered, len(streams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Runtime.TableWorkers, 1))
	for i, s := range streams {
		g.Go(func() error {
			res, err := s.Sample(gctx)
			if err != nil {
				return fmt.Errorf("table %s: %w", s.Name(), err)
			}
			out[i] = Discovered{Stream: s, Sample: res}
			r.logf("stage=discover table=%s columns=%d files=%d rows=%d",
				s.Name(), len(res.Schema.Columns()), res.SampledFiles, res.SampledRows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Catalog renders discovered streams as a catalog.
func Catalog(ds []Discovered) output.Catalog {
	c := output.Catalog{Streams: make([]output.CatalogEntry, 0, len(ds))}
	for _, d := range ds {
		c.Streams = append(c.Streams, output.NewCatalogEntry(d.Stream.Name(), d.Sample.Schema, d.Stream.KeyProperties()))
	}
	return c
}

func (r *Runner) streams(cfg config.Tap, store objectstore.Store) ([]*tap.Stream, error) {
	deps := tap.Deps{Store: store, Tap: cfg, Logger: r.Logger}
	out := make([]*tap.Stream, 0, len(cfg.Tables))
	for _, tb := range cfg.Tables {
		s, err := tap.NewStream(tb, deps)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", tb.TableName, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// countingSink counts the records that pass through to the wrapped sink.
// Each stream gets its own, so the counter needs no locking.
type countingSink struct {
	tap.Sink
	n int
}

func (c *countingSink) WriteRecord(ctx context.Context, stream string, rec records.Record) error {
	if err := c.Sink.WriteRecord(ctx, stream, rec); err != nil {
		return err
	}
	c.n++
	return nil
}

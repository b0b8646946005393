// Command tap extracts new rows of delimited files from an object store and
// writes them as Singer messages on stdout. Logs go to stderr.
//
//	tap -config tap.json                   sync every table once
//	tap -config tap.json -discover         print the catalog
//	tap -config tap.json -report           print sampling statistics
//	tap -config tap.json -validate         check the config and exit
//	tap -config tap.json -schedule "@every 15m"
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"csvtap/internal/config"
	"csvtap/internal/metrics"
	"csvtap/internal/metrics/datadog"
	"csvtap/internal/multitable"
	"csvtap/internal/output"

	_ "csvtap/internal/storage/all"
)

const usage = "usage: tap -config path/to/tap.json [-discover | -report | -validate] [-schedule spec] [-env-file .env] [-metrics-backend none|datadog] [-v]"

// runner is the slice of *multitable.Runner the CLI drives.
type runner interface {
	Run(ctx context.Context, cfg config.Tap, out io.Writer) (multitable.Summary, error)
	Discover(ctx context.Context, cfg config.Tap) ([]multitable.Discovered, error)
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	loadEnv     func(files ...string) error
	loadConfig  func(path string) (config.Tap, error)
	newRunner   func(logger *log.Logger) runner
	initMetrics func(ctx context.Context, jobName, backendName string) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadEnv:    godotenv.Load,
		loadConfig: config.Load,
		newRunner: func(logger *log.Logger) runner {
			return multitable.NewDefaultRunner(logger)
		},
		initMetrics: initMetrics,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain returns the process exit code: 0 on success, 1 on runtime
// failure, 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("tap", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath  = fs.String("config", "", "tap config JSON path")
		discover = fs.Bool("discover", false, "print the catalog and exit")
		report   = fs.Bool("report", false, "print per-table sampling statistics and exit")
		validate = fs.Bool("validate", false, "validate the configuration and exit")
		schedule = fs.String("schedule", "", "cron spec; run repeatedly until interrupted")
		envFile  = fs.String("env-file", "", "load environment variables from this file first")
		backend  = fs.String("metrics-backend", "", "metrics backend: none or datadog (default $METRICS_BACKEND)")
		jobName  = fs.String("job", "csvtap", "job name attached to metrics")
		verbose  = fs.Bool("v", false, "enable verbose logs")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*cfgPath) == "" {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if *schedule != "" {
		if _, err := cron.ParseStandard(*schedule); err != nil {
			fmt.Fprintf(stderr, "invalid -schedule %q: %v\n", *schedule, err)
			return 2
		}
	}

	if *envFile != "" {
		if err := deps.loadEnv(*envFile); err != nil {
			fmt.Fprintf(stderr, "load env: %v\n", err)
			return 1
		}
	}

	cfg, err := deps.loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	hasError := false
	for _, iss := range config.Validate(cfg) {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fmt.Fprintf(stderr, "configuration is invalid: %s\n", *cfgPath)
		return 1
	}
	if *validate {
		fmt.Fprintln(stdout, "ok")
		return 0
	}

	flags := log.LstdFlags
	if *verbose {
		flags |= log.Lmicroseconds
	}
	logger := log.New(stderr, "", flags)
	r := deps.newRunner(logger)

	if *discover || *report {
		ds, err := r.Discover(ctx, cfg)
		if err != nil {
			fmt.Fprintf(stderr, "discover: %v\n", err)
			return 1
		}
		if *report {
			writeReport(stdout, ds)
			return 0
		}
		if err := output.WriteCatalog(stdout, multitable.Catalog(ds)); err != nil {
			fmt.Fprintf(stderr, "write catalog: %v\n", err)
			return 1
		}
		return 0
	}

	cleanup, err := deps.initMetrics(ctx, *jobName, *backend)
	if err != nil {
		cleanup()
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	runOnce := func(ctx context.Context) error {
		start := time.Now()
		sum, err := r.Run(ctx, cfg, stdout)
		if *verbose {
			logger.Printf("stage=done run_id=%s failed=%d duration=%s",
				sum.RunID, sum.Failed(), time.Since(start).Truncate(time.Millisecond))
		}
		return err
	}

	if *schedule != "" {
		runScheduled(ctx, *schedule, logger, runOnce)
		return 0
	}
	if err := runOnce(ctx); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	return 0
}

// runScheduled runs job on every tick of spec until ctx is done. A tick that
// arrives while the previous run is still going is skipped.
func runScheduled(ctx context.Context, spec string, logger *log.Logger, job func(context.Context) error) {
	cl := cron.PrintfLogger(logger)
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() {
		if err := job(ctx); err != nil {
			logger.Printf("stage=schedule error=%q", err)
		}
	}); err != nil {
		logger.Printf("stage=schedule error=%q", err)
		return
	}
	logger.Printf("stage=schedule spec=%q", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

func writeReport(w io.Writer, ds []multitable.Discovered) {
	for _, d := range ds {
		fmt.Fprintf(w, "table %s: files=%d rows=%d columns=%d\n",
			d.Stream.Name(), d.Sample.SampledFiles, d.Sample.SampledRows, len(d.Sample.Schema.DataColumns()))
		fmt.Fprintln(w, d.Sample.Stats.Report())
		if keys := d.Sample.Stats.KeyCandidates(); len(keys) > 0 {
			fmt.Fprintf(w, "key candidates: %s\n", strings.Join(keys, ", "))
		}
		fmt.Fprintln(w)
	}
}

// metricsBackend is a metrics backend that owns background work.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = metrics.SetBackend
	logPrintf         = log.Printf
)

// initMetrics installs the selected backend. The returned cleanup is never
// nil and flushes the backend.
func initMetrics(ctx context.Context, jobName, backendName string) (func(), error) {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch strings.ToLower(backendName) {
	case "", "none", "noop":
		return func() {}, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return func() {}, datadog.WrapInitErr(err)
		}
		setMetricsBackend(b)
		return func() {
			setMetricsBackend(nil)
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return func() {}, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backendName)
	}
}

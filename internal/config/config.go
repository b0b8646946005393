// Package config defines the tap configuration: bucket and credentials,
// the per-table specs, sampling bounds, state backend and runtime knobs.
//
// The JSON shape follows the Singer S3 CSV tap config so existing config
// files load unchanged. Only structural validation happens here; a table
// config is otherwise consumed verbatim by the locator, parser and sampler.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultDelimiter     = ","
	DefaultQuoteChar     = `"`
	DefaultEncoding      = "utf-8"
	DefaultArchiveSuffix = ".csv"

	DefaultSampleRate        = 5
	DefaultMaxSampledRecords = 1000
	DefaultMaxSampledFiles   = 5

	DefaultStateKind = "file"
	DefaultStateDSN  = "state.json"
)

// Tap is the full process configuration.
type Tap struct {
	Bucket    string  `json:"bucket"`
	StartDate string  `json:"start_date,omitempty"`
	Tables    []Table `json:"tables"`

	// TableSuffix is appended to every table_name to form the stream name.
	TableSuffix string `json:"table_suffix,omitempty"`

	// WarnIfNoFiles downgrades "no matching files" from a fatal error to a warning.
	WarnIfNoFiles bool `json:"warning_if_no_files,omitempty"`

	// SetEmptyValuesNull is the default for tables that do not set it themselves.
	SetEmptyValuesNull bool `json:"set_empty_values_null,omitempty"`

	AWSAccessKeyID     string `json:"aws_access_key_id,omitempty"`
	AWSSecretAccessKey string `json:"aws_secret_access_key,omitempty"`
	AWSSessionToken    string `json:"aws_session_token,omitempty"`
	AWSProfile         string `json:"aws_profile,omitempty"`
	AWSRegion          string `json:"aws_region,omitempty"`
	AWSEndpointURL     string `json:"aws_endpoint_url,omitempty"`

	// ArchiveSuffix selects which ZIP entries are treated as data files.
	ArchiveSuffix string `json:"archive_suffix,omitempty"`

	Sampling Sampling      `json:"sampling"`
	State    State         `json:"state"`
	Runtime  RuntimeConfig `json:"runtime"`
}

// Table is the configuration for one logical table.
type Table struct {
	TableName     string   `json:"table_name"`
	SearchPattern string   `json:"search_pattern"`
	SearchPrefix  string   `json:"search_prefix,omitempty"`
	KeyProperties []string `json:"key_properties,omitempty"`
	DateOverrides []string `json:"date_overrides,omitempty"`
	Delimiter     string   `json:"delimiter,omitempty"`
	QuoteChar     string   `json:"quotechar,omitempty"`
	Encoding      string   `json:"encoding,omitempty"`
	FieldNames    []string `json:"field_names,omitempty"`

	// SetEmptyValuesNull is a pointer so an explicit false can override the
	// tap-level default.
	SetEmptyValuesNull *bool `json:"set_empty_values_null,omitempty"`
}

// Sampling bounds schema inference.
type Sampling struct {
	SampleRate        int `json:"sample_rate"`
	MaxSampledRecords int `json:"max_sampled_records"`
	MaxSampledFiles   int `json:"max_sampled_files"`
}

// State selects where watermarks are persisted between runs.
type State struct {
	// Kind: "file" | "sqlite" | "postgres" | "mssql"
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// RuntimeConfig controls execution behavior.
type RuntimeConfig struct {
	// TableWorkers bounds how many tables sync in parallel.
	TableWorkers int `json:"table_workers"`
}

// Load reads, decodes and defaults a tap config file.
func Load(path string) (Tap, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tap{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var t Tap
	if err := json.NewDecoder(f).Decode(&t); err != nil {
		return Tap{}, fmt.Errorf("decode config: %w", err)
	}
	t.ApplyDefaults()
	return t, nil
}

// ApplyDefaults fills every optional field that is unset.
func (t *Tap) ApplyDefaults() {
	if t.ArchiveSuffix == "" {
		t.ArchiveSuffix = DefaultArchiveSuffix
	}
	if t.Sampling.SampleRate <= 0 {
		t.Sampling.SampleRate = DefaultSampleRate
	}
	if t.Sampling.MaxSampledRecords <= 0 {
		t.Sampling.MaxSampledRecords = DefaultMaxSampledRecords
	}
	if t.Sampling.MaxSampledFiles <= 0 {
		t.Sampling.MaxSampledFiles = DefaultMaxSampledFiles
	}
	if t.State.Kind == "" {
		t.State.Kind = DefaultStateKind
	}
	if t.State.Kind == DefaultStateKind && t.State.DSN == "" {
		t.State.DSN = DefaultStateDSN
	}
	if t.Runtime.TableWorkers <= 0 {
		t.Runtime.TableWorkers = 1
	}
	for i := range t.Tables {
		tb := &t.Tables[i]
		if tb.Delimiter == "" {
			tb.Delimiter = DefaultDelimiter
		}
		if tb.QuoteChar == "" {
			tb.QuoteChar = DefaultQuoteChar
		}
		if tb.Encoding == "" {
			tb.Encoding = DefaultEncoding
		}
		if tb.SetEmptyValuesNull == nil {
			v := t.SetEmptyValuesNull
			tb.SetEmptyValuesNull = &v
		}
	}
}

// StreamName is the table name plus the tap-level suffix.
func (t Tap) StreamName(tb Table) string {
	return tb.TableName + t.TableSuffix
}

// StartTime parses start_date. An empty start_date yields the zero time.
func (t Tap) StartTime() (time.Time, error) {
	return ParseTime(t.StartDate)
}

// ParseTime accepts RFC3339 (with or without fractional seconds) or a bare
// YYYY-MM-DD date, which is interpreted as midnight UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// DelimiterRune returns the configured delimiter as a rune.
func (tb Table) DelimiterRune() rune { return firstRune(tb.Delimiter, ',') }

// QuoteRune returns the configured quote character as a rune.
func (tb Table) QuoteRune() rune { return firstRune(tb.QuoteChar, '"') }

// EmptyValuesNull reports whether empty/whitespace values become null.
func (tb Table) EmptyValuesNull() bool {
	return tb.SetEmptyValuesNull != nil && *tb.SetEmptyValuesNull
}

func firstRune(s string, def rune) rune {
	if s == "" {
		return def
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

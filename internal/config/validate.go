package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one structural problem found in a config.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// ConfigurationError reports an invalid or incomplete config. It is fatal at
// startup: no table is processed when one is returned.
type ConfigurationError struct {
	Path    string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

var knownStateKinds = map[string]bool{
	"file":     true,
	"sqlite":   true,
	"postgres": true,
	"mssql":    true,
}

// Validate checks the config structurally. It does not touch the network.
// Defaults are expected to have been applied.
func Validate(t Tap) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(t.Bucket) == "" {
		add(SeverityError, "bucket", "is required")
	}
	if _, err := t.StartTime(); err != nil {
		add(SeverityError, "start_date", "%v", err)
	}
	if len(t.Tables) == 0 {
		add(SeverityError, "tables", "must not be empty")
	}
	if !knownStateKinds[t.State.Kind] {
		add(SeverityError, "state.kind", "unsupported kind %q (want file, sqlite, postgres or mssql)", t.State.Kind)
	}
	if t.State.DSN == "" {
		add(SeverityError, "state.dsn", "is required for kind %q", t.State.Kind)
	}
	if t.AWSAccessKeyID != "" && t.AWSSecretAccessKey == "" {
		add(SeverityError, "aws_secret_access_key", "is required when aws_access_key_id is set")
	}
	if t.Sampling.SampleRate < 0 || t.Sampling.MaxSampledFiles < 0 || t.Sampling.MaxSampledRecords < 0 {
		add(SeverityError, "sampling", "values must not be negative")
	}

	seen := make(map[string]int, len(t.Tables))
	for i, tb := range t.Tables {
		p := fmt.Sprintf("tables[%d]", i)
		if strings.TrimSpace(tb.TableName) == "" {
			add(SeverityError, p+".table_name", "is required")
		} else {
			name := t.StreamName(tb)
			if j, dup := seen[name]; dup {
				add(SeverityError, p+".table_name", "duplicates stream %q from tables[%d]", name, j)
			}
			seen[name] = i
		}

		if tb.SearchPattern == "" {
			add(SeverityError, p+".search_pattern", "is required")
		} else if _, err := regexp.Compile(tb.SearchPattern); err != nil {
			add(SeverityError, p+".search_pattern", "is not a valid regular expression: %v", err)
		}

		if utf8.RuneCountInString(tb.Delimiter) != 1 {
			add(SeverityError, p+".delimiter", "must be a single character, got %q", tb.Delimiter)
		}
		if utf8.RuneCountInString(tb.QuoteChar) != 1 {
			add(SeverityError, p+".quotechar", "must be a single character, got %q", tb.QuoteChar)
		}
		if tb.Delimiter == tb.QuoteChar {
			add(SeverityError, p+".quotechar", "must differ from delimiter")
		}
		if _, err := htmlindex.Get(tb.Encoding); err != nil {
			add(SeverityError, p+".encoding", "unknown encoding %q", tb.Encoding)
		}
		if tb.SearchPrefix == "" {
			add(SeverityWarning, p+".search_prefix", "not set; the whole bucket will be listed")
		}
		for j, fn := range tb.FieldNames {
			if strings.TrimSpace(fn) == "" {
				add(SeverityError, fmt.Sprintf("%s.field_names[%d]", p, j), "must not be empty")
			}
		}
	}
	return out
}

// Err folds the error-severity issues into a single error, or nil.
func Err(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity != SeverityError {
			continue
		}
		errs = append(errs, &ConfigurationError{Path: iss.Path, Message: iss.Message})
	}
	return errors.Join(errs...)
}

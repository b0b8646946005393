// Package locator discovers candidate files for a table: it lists the store
// under the table's prefix and keeps the non-empty, readable objects whose
// key matches the search pattern and that were modified after a bound.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"time"

	"csvtap/internal/config"
	"csvtap/internal/objectstore"
)

// logEvery is how many listed keys pass between progress log lines.
const logEvery = 30000

// Logger is the minimal logging interface used by the locator.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Candidate is a store object that passed the prefix, pattern, size and
// modification-time filters.
type Candidate struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// Less orders candidates by modification time, then key.
func (c Candidate) Less(o Candidate) bool {
	if !c.LastModified.Equal(o.LastModified) {
		return c.LastModified.Before(o.LastModified)
	}
	return c.Key < o.Key
}

// NoMatchingFilesError is returned when no key under the prefix matches the
// pattern and the locator is not permissive.
type NoMatchingFilesError struct {
	Bucket  string
	Prefix  string
	Pattern string
}

func (e *NoMatchingFilesError) Error() string {
	if e.Prefix != "" {
		return fmt.Sprintf("no files found in bucket %q that match prefix %q and pattern %q", e.Bucket, e.Prefix, e.Pattern)
	}
	return fmt.Sprintf("no files found in bucket %q that match pattern %q", e.Bucket, e.Pattern)
}

// Locator lists candidate files for tables stored in one bucket.
type Locator struct {
	Store objectstore.Store

	// WarnIfNoFiles turns NoMatchingFilesError into a logged warning.
	WarnIfNoFiles bool

	Logger Logger
}

func (l *Locator) logf(format string, v ...any) {
	if l.Logger == nil {
		return
	}
	l.Logger.Printf(format, v...)
}

// Compile compiles the table's search pattern.
func Compile(tb config.Table) (*regexp.Regexp, error) {
	re, err := regexp.Compile(tb.SearchPattern)
	if err != nil {
		return nil, &config.ConfigurationError{
			Path:    "search_pattern",
			Message: fmt.Sprintf("search_pattern for table %q is not a valid regular expression", tb.TableName),
			Err:     err,
		}
	}
	return re, nil
}

// Walk streams candidates to fn in listing order, one store page at a time.
// since, when non-nil, is an exclusive lower bound on LastModified.
//
// The no-match policy is evaluated after the listing completes: matches are
// counted before the since filter, so a table whose files are all older than
// the bound is not treated as "no matching files".
func (l *Locator) Walk(ctx context.Context, tb config.Table, since *time.Time, fn func(Candidate) error) error {
	re, err := Compile(tb)
	if err != nil {
		return err
	}
	bucket := l.Store.Bucket()

	l.logf("stage=discover table=%s bucket=%q prefix=%q pattern=%q", tb.TableName, bucket, tb.SearchPrefix, tb.SearchPattern)
	if since != nil {
		l.logf("stage=discover table=%s skipping files modified at or before %s", tb.TableName, since.UTC().Format(time.RFC3339Nano))
	}

	var matched, unmatched, listed int
	err = l.Store.List(ctx, tb.SearchPrefix, func(page []objectstore.Object) error {
		for _, o := range page {
			listed++
			if listed%logEvery == 0 {
				l.logProgress(tb, matched, unmatched)
			}

			if o.Size == 0 {
				l.logf("stage=discover skip=empty key=%q", o.Key)
				unmatched++
				continue
			}
			if o.StorageClass != "" && o.StorageClass != objectstore.StorageClassStandard {
				unmatched++
				continue
			}
			if !re.MatchString(o.Key) {
				unmatched++
				continue
			}
			matched++

			if since != nil && !o.LastModified.After(*since) {
				continue
			}
			if err := fn(Candidate{Key: o.Key, LastModified: o.LastModified, Size: o.Size}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if matched == 0 {
		nm := &NoMatchingFilesError{Bucket: bucket, Prefix: tb.SearchPrefix, Pattern: tb.SearchPattern}
		if l.WarnIfNoFiles {
			l.logf("stage=discover table=%s warning=%q", tb.TableName, nm.Error())
			return nil
		}
		return nm
	}
	l.logf("stage=discover table=%s matched=%d unmatched=%d", tb.TableName, matched, unmatched)
	return nil
}

func (l *Locator) logProgress(tb config.Table, matched, unmatched int) {
	total := matched + unmatched
	if total > 0 && float64(unmatched)/float64(total) > 0.5 {
		l.logf("stage=discover table=%s warning=\"found %d matching files and %d non-matching files; consider a search_prefix\"",
			tb.TableName, matched, unmatched)
		return
	}
	l.logf("stage=discover table=%s matched=%d unmatched=%d", tb.TableName, matched, unmatched)
}

// Discover collects every candidate and returns them sorted ascending by
// (LastModified, Key).
func (l *Locator) Discover(ctx context.Context, tb config.Table, since *time.Time) ([]Candidate, error) {
	var out []Candidate
	if err := l.Walk(ctx, tb, since, func(c Candidate) error {
		out = append(out, c)
		return nil
	}); err != nil {
		return nil, err
	}
	Sort(out)
	return out, nil
}

// Sort orders candidates by (LastModified, Key).
func Sort(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}

// Newest returns the n most recent candidates of an already sorted slice,
// preserving ascending order.
func Newest(cs []Candidate, n int) []Candidate {
	if n <= 0 || len(cs) <= n {
		return cs
	}
	return cs[len(cs)-n:]
}

// IsNoMatch reports whether err is (or wraps) a NoMatchingFilesError.
func IsNoMatch(err error) bool {
	var nm *NoMatchingFilesError
	return errors.As(err, &nm)
}

var _ Logger = (*log.Logger)(nil)

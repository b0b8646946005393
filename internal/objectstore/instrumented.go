package objectstore

import (
	"context"
	"io"
	"time"

	"csvtap/internal/metrics"
)

// Instrumented wraps a Store and reports every List and Open call to the
// metrics facade. Time spent inside the page callback is not counted as
// store time.
type Instrumented struct {
	Store
}

// Instrument wraps s.
func Instrument(s Store) *Instrumented { return &Instrumented{Store: s} }

func (i *Instrumented) List(ctx context.Context, prefix string, fn PageFunc) error {
	start := time.Now()
	var inCallback time.Duration
	var cbErr error
	err := i.Store.List(ctx, prefix, func(page []Object) error {
		t := time.Now()
		cbErr = fn(page)
		inCallback += time.Since(t)
		return cbErr
	})
	storeErr := err
	if cbErr != nil && err == cbErr {
		storeErr = nil
	}
	metrics.RecordStoreRequest("list", storeErr, time.Since(start)-inCallback)
	return err
}

func (i *Instrumented) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.Store.Open(ctx, key)
	metrics.RecordStoreRequest("get", err, time.Since(start))
	return rc, err
}

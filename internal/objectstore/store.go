// Package objectstore defines the read-only object-store contract the tap
// depends on, plus the S3, local-directory and in-memory implementations.
//
// The contract is deliberately narrow: paginated listing under a prefix and
// byte-stream retrieval of one object. Authentication, retries and
// pagination transport belong to the implementation.
package objectstore

import (
	"context"
	"io"
	"time"
)

// StorageClassStandard is the only storage class whose objects can be read
// without a restore.
const StorageClassStandard = "STANDARD"

// Object describes one listed entry.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	// StorageClass is empty when the store has no such notion.
	StorageClass string
}

// PageFunc receives one listing page. The slice is only valid for the
// duration of the call. Returning an error stops the listing and the error is
// returned from List unchanged.
type PageFunc func(page []Object) error

// Store is the object-store boundary.
type Store interface {
	// Bucket names the container being read (used for provenance).
	Bucket() string

	// List calls fn once per page of objects whose key starts with prefix.
	// Implementations must not buffer more than one page.
	List(ctx context.Context, prefix string, fn PageFunc) error

	// Open returns the object's body. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

package store

import (
	"context"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
)

const (
	// DefaultName is the default store name (database or directory name).
	DefaultName = "dictload"

	// Collection is the name of the single record collection.
	Collection = "dictionary"

	// SchemaVersion is the store layout version written by this package.
	SchemaVersion = 1
)

// CodeStoreUnavailable marks a fault in the persistent store.
// These errors are absorbed by Handle, Reader and Writer; callers never see them.
const CodeStoreUnavailable platformerrors.ErrorCode = "STORE_UNAVAILABLE"

// Record is one cached payload.
type Record struct {
	// Key is the resource identifier. It is the record's primary key.
	Key string
	// Payload holds the raw, decompressed bytes.
	Payload []byte
	// StoredAt is when the record was created or last replaced. Informational only.
	StoredAt time.Time
}

// Backend is an opened record collection.
// Implementations must be safe for concurrent use by multiple goroutines.
type Backend interface {
	// Get returns the record for key. A missing key is (Record{}, false, nil).
	Get(ctx context.Context, key string) (Record, bool, error)

	// Put upserts rec, replacing any existing record with the same key.
	Put(ctx context.Context, rec Record) error

	// SchemaVersion reports the layout version of the opened store.
	SchemaVersion() int

	// Close releases the backend. Further calls may fail.
	Close() error
}

// Maintainer is implemented by backends that support inspection and clearing.
// The loader never calls it; it exists for operator tooling.
type Maintainer interface {
	// Keys lists every stored key in ascending order.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every record.
	Clear(ctx context.Context) error
}

// Opener opens (creating if needed) a Backend.
type Opener func(ctx context.Context) (Backend, error)

// Unavailable wraps err as a store fault. It returns nil if err is nil.
func Unavailable(err error, message string) error {
	if err == nil {
		return nil
	}
	return platformerrors.Wrap(err, CodeStoreUnavailable, message)
}

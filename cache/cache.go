// Package cache persists serialized index artifacts keyed by a dataset
// fingerprint, so the same dataset loaded in a later session skips the
// index build.
//
// Stores hold only opaque bytes, never live indexes. At most one entry
// exists per fingerprint; Save overwrites.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no entry exists for a fingerprint.
var ErrNotFound = errors.New("cache: entry not found")

// Entry is one cached artifact.
type Entry struct {
	Fingerprint uint64
	Bytes       []byte
	CreatedAt   time.Time
}

// Store is a fingerprint-keyed byte store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the cached entry, or ErrNotFound.
	Load(ctx context.Context, fingerprint uint64) (Entry, error)

	// Save writes an entry, overwriting any previous one for the same
	// fingerprint.
	Save(ctx context.Context, fingerprint uint64, data []byte) error

	// Clear removes the entry for a fingerprint. Clearing a missing entry
	// is not an error.
	Clear(ctx context.Context, fingerprint uint64) error

	// Close releases store resources.
	Close() error
}

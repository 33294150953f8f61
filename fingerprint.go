package vecglobe

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/vecglobe/vecglobe/record"
)

// fingerprintDataset derives the cache key for a sanitized dataset.
// It hashes the source identifier with the store's count, dimension and
// first id. Count and dimension catch re-sanitized variants of the same
// source; the first id catches source collisions between distinct datasets.
func fingerprintDataset(source string, store *record.Store) uint64 {
	h := xxhash.New()

	_, _ = h.WriteString(source)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(store.Len()))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(store.Dimension()))
	_, _ = h.Write(buf[:])

	if store.Len() > 0 {
		_, _ = h.WriteString(store.At(0).ID)
	}

	return h.Sum64()
}

// newSourceID generates a source identifier for datasets loaded without one.
// Anonymous datasets never collide with each other in the cache.
func newSourceID() string {
	return uuid.NewString()
}

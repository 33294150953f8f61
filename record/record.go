// Package record defines the typed vector record store and the sanitization
// boundary that turns arbitrary upstream rows into uniform-dimension records.
package record

import "errors"

// ErrEmptyDataset is returned when sanitization finds no usable vectors.
var ErrEmptyDataset = errors.New("record: no usable vectors in dataset")

// Record is a single (id, vector) pair.
// Within one Store every vector has exactly the store's dimension and every
// id is unique and stable for the dataset's lifetime.
type Record struct {
	ID     string
	Vector []float32
}

// Store holds the sanitized dataset: a dense vector slice plus an id→index map.
// Indexes are dense and assigned in input order, which lets the graph index,
// the cluster labels and the projections all share the same addressing.
type Store struct {
	dimension int
	records   []Record
	byID      map[string]uint32
}

// NewStore creates an empty store with the given dimension.
func NewStore(dimension int) *Store {
	return &Store{
		dimension: dimension,
		byID:      make(map[string]uint32),
	}
}

// Dimension returns the uniform vector dimension of the store.
func (s *Store) Dimension() int { return s.dimension }

// Len returns the number of records in the store.
func (s *Store) Len() int { return len(s.records) }

// Add appends a record and returns its dense index.
// The caller (the sanitizer) guarantees dimension and id uniqueness.
func (s *Store) Add(r Record) uint32 {
	idx := uint32(len(s.records))
	s.records = append(s.records, r)
	s.byID[r.ID] = idx
	return idx
}

// At returns the record at the given dense index.
func (s *Store) At(idx uint32) Record { return s.records[idx] }

// Lookup returns the dense index for an id.
func (s *Store) Lookup(id string) (uint32, bool) {
	idx, ok := s.byID[id]
	return idx, ok
}

// Vector returns the stored vector for an id.
func (s *Store) Vector(id string) ([]float32, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return s.records[idx].Vector, true
}

// IDs returns all ids in dense-index order.
func (s *Store) IDs() []string {
	ids := make([]string, len(s.records))
	for i, r := range s.records {
		ids[i] = r.ID
	}
	return ids
}

// Flatten returns all vectors as one contiguous row-major buffer.
// This is the shape handed to the background executor.
func (s *Store) Flatten() []float32 {
	buf := make([]float32, 0, len(s.records)*s.dimension)
	for _, r := range s.records {
		buf = append(buf, r.Vector...)
	}
	return buf
}

package hnsw

import (
	"bytes"
	"encoding/gob"
	"math/rand"
)

// Compile time checks to ensure HNSW satisfies the gob interfaces.
var (
	_ gob.GobEncoder = (*HNSW)(nil)
	_ gob.GobDecoder = (*HNSW)(nil)
)

// gobOptions mirrors Options for serialization. Kept separate so the
// on-wire shape stays stable if Options grows non-serializable fields.
type gobOptions struct {
	M              int
	EFConstruction int
	EFSearch       int
	Heuristic      bool
}

// GobEncode serializes the full graph.
func (h *HNSW) GobEncode() ([]byte, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)

	for _, v := range []any{
		h.dimension,
		h.ml,
		h.ep,
		h.maxLevel,
		h.nodes,
		gobOptions{
			M:              h.opts.M,
			EFConstruction: h.opts.EFConstruction,
			EFSearch:       h.opts.EFSearch,
			Heuristic:      h.opts.Heuristic,
		},
	} {
		if err := encoder.Encode(v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// GobDecode restores a graph serialized by GobEncode.
func (h *HNSW) GobDecode(data []byte) error {
	decoder := gob.NewDecoder(bytes.NewBuffer(data))

	var opts gobOptions
	for _, v := range []any{
		&h.dimension,
		&h.ml,
		&h.ep,
		&h.maxLevel,
		&h.nodes,
		&opts,
	} {
		if err := decoder.Decode(v); err != nil {
			return err
		}
	}

	h.opts = Options{
		M:              opts.M,
		EFConstruction: opts.EFConstruction,
		EFSearch:       opts.EFSearch,
		Heuristic:      opts.Heuristic,
	}
	h.mmax = h.opts.M
	h.mmax0 = 2 * h.opts.M
	h.rng = rand.New(rand.NewSource(int64(h.dimension) + 4711))

	return nil
}

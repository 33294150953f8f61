// Package hnsw implements the Hierarchical Navigable Small World graph used
// for approximate nearest-neighbor search over L2-normalized vectors.
//
// The graph operates on cosine distance (1 - dot product on normalized
// vectors). Node 0 is a fixed zero-vector entry point and never appears in
// search results.
package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/vecglobe/vecglobe/metric"
	"github.com/vecglobe/vecglobe/queue"
)

// ErrDimensionMismatch is returned when an inserted or queried vector does
// not match the graph dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Node is a single element of the graph.
type Node struct {
	Connections [][]uint32 // Per-layer links to other nodes
	Vector      []float32  // L2-normalized vector
	Layer       int        // Topmost layer the node exists in
	ID          uint32     // Dense identifier, 0 is the entry sentinel
}

// Options configures graph construction and search quality.
type Options struct {
	// M is the number of established connections per new element during
	// construction. Higher M suits high intrinsic dimensionality and high
	// recall; 12-48 is fine for most embedding workloads.
	M int

	// EFConstruction is the size of the dynamic candidate list while
	// building. Larger values build a better graph, slower.
	EFConstruction int

	// EFSearch is the default dynamic candidate list size for queries.
	// Larger values improve recall at the cost of latency.
	EFSearch int

	// Heuristic selects heuristic neighbor pruning over naive k-NN pruning.
	Heuristic bool
}

// DefaultOptions are the options used by New when none are given.
var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	EFSearch:       64,
	Heuristic:      true,
}

// HNSW is the graph. All exported methods are safe for concurrent use.
type HNSW struct {
	dimension int
	mmax      int     // Max connections per element per layer
	mmax0     int     // Max connections on layer 0
	ml        float64 // Normalization factor for level generation
	ep        uint32  // Current entry point
	maxLevel  int     // Current max level in use

	nodes []*Node
	rng   *rand.Rand

	opts Options

	mutex sync.Mutex
}

// New creates an empty graph for vectors of the given dimension.
func New(dimension int, optFns ...func(o *Options)) *HNSW {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < 2 {
		// M == 1 would make the level normalization 1/log(M) divide by zero.
		opts.M = 2
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}

	return &HNSW{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		nodes: []*Node{{
			ID:          0,
			Layer:       0,
			Vector:      make([]float32, dimension),
			Connections: make([][]uint32, 2*opts.M+1),
		}},
		rng:  rand.New(rand.NewSource(int64(dimension) + 4711)),
		opts: opts,
	}
}

// Dimension returns the vector dimension of the graph.
func (h *HNSW) Dimension() int { return h.dimension }

// Len returns the number of inserted vectors, excluding the entry sentinel.
func (h *HNSW) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.nodes) - 1
}

// EFConstruction returns the construction-time candidate list size the
// graph was built with.
func (h *HNSW) EFConstruction() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.opts.EFConstruction
}

// EFSearch returns the current default search candidate list size.
func (h *HNSW) EFSearch() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.opts.EFSearch
}

// SetEFSearch adjusts the default search candidate list size on the live
// graph. Values below 1 are ignored.
func (h *HNSW) SetEFSearch(ef int) {
	if ef < 1 {
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.opts.EFSearch = ef
}

// Insert adds a normalized vector to the graph and returns its id.
// IDs are dense and start at 1; the caller keeps the id→record mapping.
func (h *HNSW) Insert(v []float32) (uint32, error) {
	if len(v) != h.dimension {
		return 0, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
	}

	vec := make([]float32, len(v))
	copy(vec, v)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	id := uint32(len(h.nodes))
	node := &Node{
		ID:          id,
		Vector:      vec,
		Layer:       int(math.Floor(-math.Log(h.rng.Float64()) * h.ml)),
		Connections: make([][]uint32, h.mmax+1),
	}

	// Walk down from the entry point to the node's top layer.
	currObj, currDist, err := h.descend(node)
	if err != nil {
		return 0, err
	}

	topCandidates := &queue.PriorityQueue{}

	// For the node's layers, collect closest candidates and link.
	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		if err := h.searchLayer(vec, &queue.Item{Distance: currDist, ID: currObj.ID}, topCandidates, h.opts.EFConstruction, level); err != nil {
			return 0, err
		}

		if h.opts.Heuristic {
			h.selectNeighboursHeuristic(topCandidates, h.opts.M, false)
		} else {
			h.selectNeighboursSimple(topCandidates, h.opts.M)
		}

		node.Connections[level] = make([]uint32, topCandidates.Len())
		for i := topCandidates.Len() - 1; i >= 0; i-- {
			candidate, _ := heap.Pop(topCandidates).(*queue.Item)
			node.Connections[level][i] = candidate.ID
		}
	}

	h.nodes = append(h.nodes, node)

	// Backlink the neighbours, making the node visible.
	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		for _, neighbour := range node.Connections[level] {
			if err := h.link(neighbour, node.ID, level); err != nil {
				return 0, err
			}
		}
	}

	if node.Layer > h.maxLevel {
		h.ep = node.ID
		h.maxLevel = node.Layer
	}

	return id, nil
}

// SearchResult is a single query match.
type SearchResult struct {
	ID       uint32
	Distance float32
}

// KNNSearch returns up to k nodes closest to q by cosine distance, nearest
// first. efSearch <= 0 uses the graph default. filter, when non-nil, keeps
// only ids it returns true for.
func (h *HNSW) KNNSearch(q []float32, k int, efSearch int, filter func(id uint32) bool) ([]SearchResult, error) {
	if len(q) != h.dimension {
		return nil, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(q)}
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if efSearch <= 0 {
		efSearch = h.opts.EFSearch
	}
	if efSearch < k {
		efSearch = k
	}

	currObj := h.nodes[h.ep]
	match, currDist, err := h.greedyDescend(q, currObj)
	if err != nil {
		return nil, err
	}

	entry := currObj.ID
	if match != nil {
		entry = match.ID
	}

	topCandidates := &queue.PriorityQueue{Descending: true}
	heap.Init(topCandidates)

	if err := h.searchLayer(q, &queue.Item{Distance: currDist, ID: entry}, topCandidates, efSearch, 0); err != nil {
		return nil, err
	}

	return collect(topCandidates, k, filter), nil
}

// collect drains a max-heap of candidates into up to k results, nearest
// first, dropping the entry sentinel and filtered ids.
func collect(topCandidates *queue.PriorityQueue, k int, filter func(id uint32) bool) []SearchResult {
	kept := make([]SearchResult, 0, topCandidates.Len())
	for topCandidates.Len() > 0 {
		item, _ := heap.Pop(topCandidates).(*queue.Item)
		if item.ID == 0 {
			continue
		}
		if filter != nil && !filter(item.ID) {
			continue
		}
		kept = append(kept, SearchResult{ID: item.ID, Distance: item.Distance})
	}

	// Max-heap pops farthest first; reverse into nearest-first order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	if len(kept) > k {
		kept = kept[:k]
	}
	return kept
}

// descend walks the layers above the new node's top layer, greedily moving
// to the closest neighbour on each.
func (h *HNSW) descend(node *Node) (*Node, float32, error) {
	currObj := h.nodes[h.ep]

	currDist, err := metric.NormalizedCosineDistance(currObj.Vector, node.Vector)
	if err != nil {
		return nil, 0, err
	}

	for level := currObj.Layer; level > node.Layer; level-- {
		changed := true
		for changed {
			changed = false
			for _, id := range currObj.Connections[level] {
				next := h.nodes[id]
				nextDist, err := metric.NormalizedCosineDistance(next.Vector, node.Vector)
				if err != nil {
					return nil, 0, err
				}
				if nextDist < currDist {
					currObj = next
					currDist = nextDist
					changed = true
				}
			}
		}
	}

	return currObj, currDist, nil
}

// greedyDescend finds the best entry point for a query on layer 0.
func (h *HNSW) greedyDescend(q []float32, currObj *Node) (*Node, float32, error) {
	currDist, err := metric.NormalizedCosineDistance(q, currObj.Vector)
	if err != nil {
		return nil, 0, err
	}

	var match *Node
	for level := h.maxLevel; level > 0; level-- {
		scan := true
		for scan {
			scan = false
			for _, id := range currObj.Connections[level] {
				nodeDist, err := metric.NormalizedCosineDistance(h.nodes[id].Vector, q)
				if err != nil {
					return nil, 0, err
				}
				if nodeDist < currDist {
					match = h.nodes[id]
					currDist = nodeDist
					scan = true
				}
			}
		}
		if match != nil {
			currObj = match
		}
	}

	return match, currDist, nil
}

// link connects first→second on the given layer, pruning to the layer's
// connection budget when exceeded.
func (h *HNSW) link(first, second uint32, level int) error {
	maxConnections := h.mmax
	if level == 0 {
		// The bottom layer allows double the connections.
		maxConnections = h.mmax0
	}

	node := h.nodes[first]
	node.Connections[level] = append(node.Connections[level], second)

	if len(node.Connections[level]) <= maxConnections {
		return nil
	}

	topCandidates := &queue.PriorityQueue{}
	heap.Init(topCandidates)

	for _, id := range node.Connections[level] {
		distance, err := metric.NormalizedCosineDistance(node.Vector, h.nodes[id].Vector)
		if err != nil {
			return err
		}
		heap.Push(topCandidates, &queue.Item{ID: id, Distance: distance})
	}

	if h.opts.Heuristic {
		h.selectNeighboursHeuristic(topCandidates, maxConnections, true)
	} else {
		h.selectNeighboursSimple(topCandidates, maxConnections)
	}

	node.Connections[level] = make([]uint32, maxConnections)
	for i := maxConnections - 1; i >= 0; i-- {
		item, _ := heap.Pop(topCandidates).(*queue.Item)
		node.Connections[level][i] = item.ID
	}

	return nil
}

// searchLayer expands candidates on one layer until the dynamic list of size
// ef stops improving.
func (h *HNSW) searchLayer(q []float32, ep *queue.Item, topCandidates *queue.PriorityQueue, ef int, level int) error {
	var visited bitset.BitSet
	visited.Set(uint(ep.ID))

	candidates := &queue.PriorityQueue{}
	heap.Init(candidates)
	heap.Push(candidates, ep)

	topCandidates.Descending = true
	topCandidates.Items = topCandidates.Items[:0]
	heap.Init(topCandidates)
	heap.Push(topCandidates, &queue.Item{ID: ep.ID, Distance: ep.Distance})

	for candidates.Len() > 0 {
		lowerBound := topCandidates.Top().Distance

		candidate, _ := heap.Pop(candidates).(*queue.Item)
		if candidate.Distance > lowerBound {
			break
		}

		node := h.nodes[candidate.ID]
		if len(node.Connections) <= level {
			continue
		}

		for _, n := range node.Connections[level] {
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))

			distance, err := metric.NormalizedCosineDistance(q, h.nodes[n].Vector)
			if err != nil {
				return err
			}

			item := &queue.Item{ID: n, Distance: distance}
			if topCandidates.Len() < ef {
				heap.Push(topCandidates, item)
				heap.Push(candidates, &queue.Item{ID: n, Distance: distance})
			} else if topCandidates.Top().Distance > distance {
				heap.Pop(topCandidates)
				heap.Push(topCandidates, item)
				heap.Push(candidates, &queue.Item{ID: n, Distance: distance})
			}
		}
	}

	return nil
}

// selectNeighboursSimple keeps the M closest candidates.
func (h *HNSW) selectNeighboursSimple(topCandidates *queue.PriorityQueue, m int) {
	for topCandidates.Len() > m {
		_ = heap.Pop(topCandidates)
	}
}

// selectNeighboursHeuristic prefers candidates that are closer to the new
// node than to any already-selected neighbour, which keeps links spread
// across directions instead of clumping.
func (h *HNSW) selectNeighboursHeuristic(topCandidates *queue.PriorityQueue, m int, descending bool) {
	if topCandidates.Len() < m {
		return
	}

	working := topCandidates
	if !descending {
		working = &queue.PriorityQueue{Descending: false}
		heap.Init(working)
		for topCandidates.Len() > 0 {
			item, _ := heap.Pop(topCandidates).(*queue.Item)
			heap.Push(working, item)
		}
	}

	overflow := &queue.PriorityQueue{Descending: descending}
	heap.Init(overflow)

	selected := make([]*queue.Item, 0, m)
	for working.Len() > 0 && len(selected) < m {
		item, _ := heap.Pop(working).(*queue.Item)

		keep := true
		for _, other := range selected {
			distance, err := metric.NormalizedCosineDistance(h.nodes[other.ID].Vector, h.nodes[item.ID].Vector)
			if err != nil {
				continue
			}
			if distance < item.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, item)
		} else {
			heap.Push(overflow, item)
		}
	}

	for len(selected) < m && overflow.Len() > 0 {
		item, _ := heap.Pop(overflow).(*queue.Item)
		selected = append(selected, item)
	}

	for _, item := range selected {
		heap.Push(topCandidates, item)
	}
}

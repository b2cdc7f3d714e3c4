package matcher

import (
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// HNSW parameters
const (
	// HNSWMaxNeighbors is the M parameter (max connections per node)
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the number of neighbors explored per search
	HNSWEfSearch = 100

	// HNSWCandidates is how many nearest nodes a search returns
	HNSWCandidates = 32

	// HNSWMinRecords is the snapshot size below which a flat scan is used
	HNSWMinRecords = 1000
)

// Index wraps an HNSW graph built for one snapshot version.
// Node keys are snapshot positions.
type Index struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[int]
	version    uint64
	built      bool
	k          int
	minRecords int
}

// NewIndex creates an empty index. It is built lazily for each new snapshot.
func NewIndex() *Index {
	return &Index{k: HNSWCandidates, minRecords: HNSWMinRecords}
}

// Candidates returns snapshot positions of the nearest nodes to query, at
// least k of them when the snapshot is that large.
func (h *Index) Candidates(snap *database.Snapshot, query []float32, k int) []int {
	g := h.graphFor(snap)
	if g == nil {
		return nil
	}

	h.mu.RLock()
	neighbors := g.Search(query, max(k, h.k))
	h.mu.RUnlock()

	positions := make([]int, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Key >= 0 && n.Key < snap.Len() {
			positions = append(positions, n.Key)
		}
	}
	return positions
}

// Version returns the snapshot version the graph was last built for.
func (h *Index) Version() (uint64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version, h.built
}

func (h *Index) graphFor(snap *database.Snapshot) *hnsw.Graph[int] {
	h.mu.RLock()
	if h.built && h.version == snap.Version {
		g := h.graph
		h.mu.RUnlock()
		return g
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.built && h.version == snap.Version {
		return h.graph
	}
	h.graph = buildGraph(snap)
	h.version = snap.Version
	h.built = true
	return h.graph
}

func buildGraph(snap *database.Snapshot) *hnsw.Graph[int] {
	if snap.Len() == 0 {
		return nil
	}

	// Create new graph with cosine distance.
	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance

	for i, vec := range snap.Vectors {
		g.Add(hnsw.MakeNode(i, vec))
	}
	return g
}

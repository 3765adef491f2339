package store

import (
	"sync"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter of the graph.
const hnswMaxNeighbors = 16

// Neighbor is one nearest stored sample across all identities.
type Neighbor struct {
	Name       string  `json:"name"`
	Quality    float64 `json:"quality_score"`
	DetScore   float64 `json:"det_score"`
	Similarity float64 `json:"similarity"`
}

// NeighborIndex is an HNSW graph over every stored sample, used for the
// approximate nearest-sample lookup. The exact recognition path never
// uses it; recognition always scans identities brute force.
//
// The graph cannot truly delete nodes, so removal only drops the sample
// from the id map and lookups filter on it, the same trick the graph's
// other users rely on.
type NeighborIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[int64]
	idToName map[int64]string
	idToRec  map[int64]EmbeddingRecord
	added    int // nodes ever inserted into the graph
}

func newNeighborIndex() *NeighborIndex {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return &NeighborIndex{
		graph:    g,
		idToName: make(map[int64]string),
		idToRec:  make(map[int64]EmbeddingRecord),
	}
}

func (n *NeighborIndex) add(id int64, name string, rec EmbeddingRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.graph.Add(hnsw.MakeNode(id, toFloat32(rec.Vector)))
	n.idToName[id] = name
	n.idToRec[id] = rec
	n.added++
}

func (n *NeighborIndex) remove(id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.idToName, id)
	delete(n.idToRec, id)
}

func (n *NeighborIndex) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()

	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	n.graph = g
	n.idToName = make(map[int64]string)
	n.idToRec = make(map[int64]EmbeddingRecord)
	n.added = 0
}

func (n *NeighborIndex) count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.idToName)
}

// search returns up to k nearest live samples. Overfetching compensates
// for nodes that were logically removed but still sit in the graph.
func (n *NeighborIndex) search(query []float64, k int) []Neighbor {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.added == 0 {
		return nil
	}

	// Overfetch by the number of logically deleted nodes still in the graph.
	fetch := k + (n.added - len(n.idToRec))
	nodes := n.graph.Search(toFloat32(query), fetch)

	neighbors := make([]Neighbor, 0, k)
	for _, node := range nodes {
		name, ok := n.idToName[node.Key]
		if !ok {
			continue // logically deleted
		}
		rec := n.idToRec[node.Key]
		neighbors = append(neighbors, Neighbor{
			Name:       name,
			Quality:    rec.Quality,
			DetScore:   rec.DetScore,
			Similarity: dotFloat(query, rec.Vector),
		})
		if len(neighbors) == k {
			break
		}
	}
	return neighbors
}

// EnableIndex builds the neighbor index from the current store contents.
// Further enrollments and deletions keep it in sync.
func (s *Store) EnableIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := newNeighborIndex()
	for name, list := range s.identities {
		for _, rec := range list {
			idx.add(rec.id, name, rec)
		}
	}
	s.index = idx
}

// IndexCount returns the number of live samples in the neighbor index,
// or zero when the index is disabled.
func (s *Store) IndexCount() int {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	if idx == nil {
		return 0
	}
	return idx.count()
}

// Neighbors returns the k stored samples nearest to the query across all
// identities. Returns nil when the index is disabled.
func (s *Store) Neighbors(query []float64, k int) []Neighbor {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	if idx == nil || k <= 0 {
		return nil
	}
	return idx.search(query, k)
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func dotFloat(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

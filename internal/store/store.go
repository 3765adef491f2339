package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	embeddingsFile = "face_embeddings.json"
	metadataFile   = "user_metadata.json"
)

// Store is the single owner of the embedding database and the identity
// metadata. Both maps are guarded by one mutex: enrollment rewrites a
// ranked list in place and must never interleave with a matching scan.
type Store struct {
	mu         sync.RWMutex
	identities map[string][]EmbeddingRecord
	metadata   map[string]Metadata

	embeddingsPath string
	metadataPath   string

	index  *NeighborIndex
	nextID int64
}

// New creates a store persisting under dataDir and loads any existing
// snapshots. A corrupt snapshot is logged and skipped; the store starts
// empty rather than crashing or merging partial data.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	s := &Store{
		identities:     make(map[string][]EmbeddingRecord),
		metadata:       make(map[string]Metadata),
		embeddingsPath: filepath.Join(dataDir, embeddingsFile),
		metadataPath:   filepath.Join(dataDir, metadataFile),
	}

	s.loadEmbeddings()
	s.loadMetadata()
	return s, nil
}

// Enroll appends a sample to the identity's list, re-ranks it by
// quality x detection confidence, and evicts beyond the capacity bound.
// The store performs no quality filtering: callers must gate on
// MinEmbeddingQuality before enrolling.
func (s *Store) Enroll(name string, vector []float64, quality, detScore float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec := EmbeddingRecord{
		Vector:   vector,
		Quality:  quality,
		DetScore: detScore,
		id:       s.nextID,
	}

	list := append(s.identities[name], rec)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Rank() > list[j].Rank()
	})

	if len(list) > MaxEmbeddingsPerIdentity {
		for _, evicted := range list[MaxEmbeddingsPerIdentity:] {
			if s.index != nil {
				s.index.remove(evicted.id)
			}
		}
		list = list[:MaxEmbeddingsPerIdentity]
	}
	s.identities[name] = list

	if s.index != nil {
		// The new record survives eviction unless it was the one cut.
		for i := range list {
			if list[i].id == rec.id {
				s.index.add(rec.id, name, rec)
				break
			}
		}
	}
}

// Delete removes an identity and its metadata. Reports whether anything
// was removed.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, hadEmbeddings := s.identities[name]
	_, hadMetadata := s.metadata[name]
	if !hadEmbeddings && !hadMetadata {
		return false
	}

	if s.index != nil {
		for _, rec := range s.identities[name] {
			s.index.remove(rec.id)
		}
	}
	delete(s.identities, name)
	delete(s.metadata, name)
	return true
}

// Clear removes all identities and metadata.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identities = make(map[string][]EmbeddingRecord)
	s.metadata = make(map[string]Metadata)
	if s.index != nil {
		s.index.clear()
	}
}

// CountEmbeddings returns the total number of stored samples.
func (s *Store) CountEmbeddings() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, list := range s.identities {
		total += len(list)
	}
	return total
}

// Names returns the enrolled identity names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedNamesLocked()
}

func (s *Store) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.identities))
	for name := range s.identities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Embeddings returns a copy of an identity's ranked sample list.
func (s *Store) Embeddings(name string) []EmbeddingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.identities[name]
	out := make([]EmbeddingRecord, len(list))
	copy(out, list)
	return out
}

// SetMetadata stores the grouping metadata for an identity.
func (s *Store) SetMetadata(name string, md Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[name] = md
}

// Metadata returns an identity's metadata; the zero value when unset.
func (s *Store) Metadata(name string) Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata[name]
}

// UsersWithMetadata lists all enrolled identities with their metadata,
// sorted by name. This is the roster the absentee report works from.
func (s *Store) UsersWithMetadata() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]User, 0, len(s.identities))
	for _, name := range s.sortedNamesLocked() {
		users = append(users, User{
			Name:           name,
			EmbeddingCount: len(s.identities[name]),
			Metadata:       s.metadata[name],
		})
	}
	return users
}

// PersonStats summarizes one identity's samples. The second return value
// is false for unknown identities.
func (s *Store) PersonStats(name string) (PersonStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.identities[name]
	if !ok || len(list) == 0 {
		return PersonStats{}, false
	}

	qualities := make([]float64, len(list))
	detScores := make([]float64, len(list))
	for i, rec := range list {
		qualities[i] = rec.Quality
		detScores[i] = rec.DetScore
	}

	return PersonStats{
		EmbeddingCount: len(list),
		AvgQuality:     stat.Mean(qualities, nil),
		MaxQuality:     floats.Max(qualities),
		AvgDetScore:    stat.Mean(detScores, nil),
	}, true
}

// AvailableFilters returns the distinct metadata values across all
// identities, each list sorted.
func (s *Store) AvailableFilters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()

	classes := make(map[string]struct{})
	sections := make(map[string]struct{})
	houses := make(map[string]struct{})
	for _, md := range s.metadata {
		if md.StudentClass != "" {
			classes[md.StudentClass] = struct{}{}
		}
		if md.Section != "" {
			sections[md.Section] = struct{}{}
		}
		if md.House != "" {
			houses[md.House] = struct{}{}
		}
	}

	return Filters{
		Classes:  sortedKeys(classes),
		Sections: sortedKeys(sections),
		Houses:   sortedKeys(houses),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package store

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// topK is how many of an identity's best weighted similarities are
// averaged. Identities with fewer samples average what they have; padding
// with zeros would bias sparse identities downward.
const topK = 3

// MatchResult is the outcome of a recognition query.
type MatchResult struct {
	// Name of the best matching identity; empty when no identity was
	// accepted at the threshold.
	Name string `json:"name,omitempty"`

	// Matched reports whether the best score cleared the quality-adjusted
	// threshold.
	Matched bool `json:"matched"`

	// Similarity is the best identity's averaged weighted similarity,
	// reported even when the match was rejected.
	Similarity float64 `json:"similarity"`

	// Scores holds every identity's averaged weighted similarity.
	Scores map[string]float64 `json:"scores,omitempty"`
}

// Match finds the identity whose stored samples best match the query
// embedding.
//
// For each identity every stored sample contributes its dot product with
// the query (both are unit vectors, so that is the cosine similarity),
// weighted by 0.7 + 0.3*storedQuality so that trusted samples count more.
// The identity's score is the mean of its top three weighted similarities.
// The match is accepted only when the best score reaches
// threshold * (0.8 + 0.2*queryQuality): a sharp frontal query is held to
// the full threshold, while a poor query, whose similarities come out
// depressed across the board, gets a slightly relaxed bar.
//
// Identities are scanned in lexicographic name order, so on an exact tie
// the lexicographically first identity wins, independent of map iteration
// order.
func (s *Store) Match(query []float64, queryQuality, threshold float64) MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := MatchResult{Scores: make(map[string]float64, len(s.identities))}

	for _, name := range s.sortedNamesLocked() {
		list := s.identities[name]
		if len(list) == 0 {
			continue
		}

		weighted := make([]float64, 0, len(list))
		for i := range list {
			if len(list[i].Vector) != len(query) {
				continue
			}
			similarity := floats.Dot(query, list[i].Vector)
			weighted = append(weighted, similarity*(0.7+0.3*list[i].Quality))
		}
		if len(weighted) == 0 {
			continue
		}

		sort.Sort(sort.Reverse(sort.Float64Slice(weighted)))
		k := min(topK, len(weighted))
		score := stat.Mean(weighted[:k], nil)

		result.Scores[name] = score
		if score > result.Similarity {
			result.Similarity = score
			result.Name = name
		}
	}

	adjusted := threshold * (0.8 + 0.2*queryQuality)
	result.Matched = result.Name != "" && result.Similarity >= adjusted
	if !result.Matched {
		result.Name = ""
	}
	return result
}

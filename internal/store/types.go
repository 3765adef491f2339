// Package store owns the enrolled identities: per-identity bounded,
// quality-ranked embedding lists, identity metadata, matching, and the
// JSON snapshot persistence. All mutable state lives behind one mutex.
package store

// Matching and enrollment constants.
const (
	// MinEmbeddingQuality is the floor below which a sample must not be
	// enrolled. The store itself does not filter; callers gate on this
	// before calling Enroll.
	MinEmbeddingQuality = 0.15

	// MaxEmbeddingsPerIdentity bounds each identity's ranked list.
	MaxEmbeddingsPerIdentity = 10

	// DefaultThreshold is the base similarity threshold for recognition.
	DefaultThreshold = 0.4
)

// EmbeddingRecord is one stored face sample: an L2-normalized embedding
// with the quality and detection confidence it was captured with.
// Records are immutable once created.
type EmbeddingRecord struct {
	Vector   []float64 `json:"embedding"`
	Quality  float64   `json:"quality_score"`
	DetScore float64   `json:"det_score"`

	// id is the neighbor-index key; assigned at enroll/load, never persisted.
	id int64
}

// Rank is the eviction ranking key: better quality captured with higher
// detector confidence wins.
func (r *EmbeddingRecord) Rank() float64 {
	return r.Quality * r.DetScore
}

// Metadata holds the optional grouping fields of an identity.
// Empty strings mean unset.
type Metadata struct {
	StudentClass string `json:"student_class"`
	Section      string `json:"section"`
	House        string `json:"house"`
}

// IsZero reports whether no metadata field is set.
func (m Metadata) IsZero() bool {
	return m.StudentClass == "" && m.Section == "" && m.House == ""
}

// User is an enrolled identity with its metadata, as exposed by listings
// and the absentee report roster.
type User struct {
	Name           string `json:"name"`
	EmbeddingCount int    `json:"embedding_count"`
	Metadata
}

// PersonStats summarizes one identity's stored samples.
type PersonStats struct {
	EmbeddingCount int     `json:"embedding_count"`
	AvgQuality     float64 `json:"avg_quality"`
	MaxQuality     float64 `json:"max_quality"`
	AvgDetScore    float64 `json:"avg_det_score"`
}

// Filters lists the distinct metadata values across enrolled identities.
type Filters struct {
	Classes  []string `json:"classes"`
	Sections []string `json:"sections"`
	Houses   []string `json:"houses"`
}

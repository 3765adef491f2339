package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// wireRecord is the snapshot shape of one sample. Quality and detection
// confidence are pointers so that records written before those fields
// existed fall back to 0.5 instead of 0.
type wireRecord struct {
	Embedding []float64 `json:"embedding"`
	Quality   *float64  `json:"quality_score"`
	DetScore  *float64  `json:"det_score"`
}

const legacyDefaultScore = 0.5

// Save writes both snapshots as whole files. There is no partial
// persistence: the embedding map and the metadata map are each rewritten
// completely on every save.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.saveEmbeddingsLocked(); err != nil {
		return err
	}
	return s.saveMetadataLocked()
}

func (s *Store) saveEmbeddingsLocked() error {
	out := make(map[string][]wireRecord, len(s.identities))
	for name, list := range s.identities {
		records := make([]wireRecord, len(list))
		for i, rec := range list {
			q, d := rec.Quality, rec.DetScore
			records[i] = wireRecord{Embedding: rec.Vector, Quality: &q, DetScore: &d}
		}
		out[name] = records
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshaling embeddings snapshot: %w", err)
	}
	if err := os.WriteFile(s.embeddingsPath, data, 0600); err != nil {
		return fmt.Errorf("writing embeddings snapshot: %w", err)
	}
	return nil
}

func (s *Store) saveMetadataLocked() error {
	data, err := json.Marshal(s.metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata snapshot: %w", err)
	}
	if err := os.WriteFile(s.metadataPath, data, 0600); err != nil {
		return fmt.Errorf("writing metadata snapshot: %w", err)
	}
	return nil
}

// loadEmbeddings reads the embeddings snapshot. Each list element may be a
// structured record or, in the legacy format, a bare embedding array; bare
// arrays get quality and detection confidence 0.5. A malformed file is
// logged and ignored entirely - never partially merged.
func (s *Store) loadEmbeddings() {
	data, err := os.ReadFile(s.embeddingsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Error reading embeddings snapshot: %v", err)
		}
		return
	}

	var raw map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("Error loading embeddings snapshot, starting empty: %v", err)
		return
	}

	loaded := make(map[string][]EmbeddingRecord, len(raw))
	for name, elements := range raw {
		records := make([]EmbeddingRecord, 0, len(elements))
		for _, element := range elements {
			rec, err := decodeRecord(element)
			if err != nil {
				log.Printf("Error loading embeddings snapshot, starting empty: %v", err)
				return
			}
			s.nextID++
			rec.id = s.nextID
			records = append(records, rec)
		}
		loaded[name] = records
	}

	s.identities = loaded
}

// decodeRecord normalizes a snapshot element to the internal record shape.
func decodeRecord(element json.RawMessage) (EmbeddingRecord, error) {
	trimmed := bytes.TrimSpace(element)
	if len(trimmed) == 0 {
		return EmbeddingRecord{}, fmt.Errorf("empty snapshot element")
	}

	if trimmed[0] == '[' {
		// Legacy format: bare embedding array.
		var vector []float64
		if err := json.Unmarshal(trimmed, &vector); err != nil {
			return EmbeddingRecord{}, fmt.Errorf("decoding legacy embedding: %w", err)
		}
		return EmbeddingRecord{
			Vector:   vector,
			Quality:  legacyDefaultScore,
			DetScore: legacyDefaultScore,
		}, nil
	}

	var wire wireRecord
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return EmbeddingRecord{}, fmt.Errorf("decoding embedding record: %w", err)
	}

	rec := EmbeddingRecord{
		Vector:   wire.Embedding,
		Quality:  legacyDefaultScore,
		DetScore: legacyDefaultScore,
	}
	if wire.Quality != nil {
		rec.Quality = *wire.Quality
	}
	if wire.DetScore != nil {
		rec.DetScore = *wire.DetScore
	}
	return rec, nil
}

func (s *Store) loadMetadata() {
	data, err := os.ReadFile(s.metadataPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Error reading metadata snapshot: %v", err)
		}
		return
	}

	var loaded map[string]Metadata
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Printf("Error loading metadata snapshot, starting empty: %v", err)
		return
	}
	s.metadata = loaded
}

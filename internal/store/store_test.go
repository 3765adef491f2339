package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// unit returns a 512-dim unit vector with a 1 at the given position.
func unit(pos int) []float64 {
	v := make([]float64, 512)
	v[pos] = 1.0
	return v
}

// unitMix returns a normalized blend of two basis directions.
func unitMix(a, b int, wa, wb float64) []float64 {
	v := make([]float64, 512)
	norm := math.Sqrt(wa*wa + wb*wb)
	v[a] = wa / norm
	v[b] = wb / norm
	return v
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return s
}

func TestEnroll_RankingScenario(t *testing.T) {
	s := newTestStore(t)

	s.Enroll("Alice", unit(0), 0.6, 0.9)
	if got := s.CountEmbeddings(); got != 1 {
		t.Fatalf("expected 1 embedding, got %d", got)
	}

	s.Enroll("Alice", unit(1), 0.2, 0.5)
	list := s.Embeddings("Alice")
	if len(list) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(list))
	}

	if math.Abs(list[0].Rank()-0.54) > 1e-9 {
		t.Errorf("expected first rank 0.54, got %f", list[0].Rank())
	}
	if math.Abs(list[1].Rank()-0.10) > 1e-9 {
		t.Errorf("expected second rank 0.10, got %f", list[1].Rank())
	}
}

func TestEnroll_CapacityBound(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 25; i++ {
		quality := 0.2 + float64(i)*0.03
		s.Enroll("Bob", unit(i%512), quality, 0.9)
	}

	list := s.Embeddings("Bob")
	if len(list) != MaxEmbeddingsPerIdentity {
		t.Fatalf("expected %d embeddings after eviction, got %d", MaxEmbeddingsPerIdentity, len(list))
	}

	for i := 1; i < len(list); i++ {
		if list[i-1].Rank() < list[i].Rank() {
			t.Errorf("list not sorted descending at %d: %f < %f", i, list[i-1].Rank(), list[i].Rank())
		}
	}

	// The weakest samples were evicted: the survivor floor is the 10th
	// highest quality of the 25 enrolled.
	if list[len(list)-1].Quality < 0.2+14*0.03-1e-9 {
		t.Errorf("expected low-quality samples evicted, floor quality %f", list[len(list)-1].Quality)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	s.Enroll("Carol", unit(3), 0.7, 0.8)
	s.SetMetadata("Carol", Metadata{StudentClass: "10", Section: "A"})

	if !s.Delete("Carol") {
		t.Error("expected Delete to report removal")
	}
	if s.Delete("Carol") {
		t.Error("expected second Delete to report nothing removed")
	}
	if got := s.CountEmbeddings(); got != 0 {
		t.Errorf("expected empty store, got %d embeddings", got)
	}
	if md := s.Metadata("Carol"); !md.IsZero() {
		t.Errorf("expected metadata removed, got %+v", md)
	}
}

func TestDelete_MetadataOnly(t *testing.T) {
	s := newTestStore(t)
	s.SetMetadata("Ghost", Metadata{House: "Red"})

	if !s.Delete("Ghost") {
		t.Error("expected Delete to remove metadata-only identity")
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	s.Enroll("A", unit(0), 0.5, 0.5)
	s.Enroll("B", unit(1), 0.5, 0.5)
	s.SetMetadata("A", Metadata{House: "Blue"})

	s.Clear()

	if got := s.CountEmbeddings(); got != 0 {
		t.Errorf("expected 0 embeddings after clear, got %d", got)
	}
	if names := s.Names(); len(names) != 0 {
		t.Errorf("expected no names after clear, got %v", names)
	}
}

func TestNames_Sorted(t *testing.T) {
	s := newTestStore(t)
	s.Enroll("zoe", unit(0), 0.5, 0.5)
	s.Enroll("adam", unit(1), 0.5, 0.5)
	s.Enroll("mia", unit(2), 0.5, 0.5)

	names := s.Names()
	if len(names) != 3 || names[0] != "adam" || names[1] != "mia" || names[2] != "zoe" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestPersonStats(t *testing.T) {
	s := newTestStore(t)
	s.Enroll("Dan", unit(0), 0.4, 0.8)
	s.Enroll("Dan", unit(1), 0.6, 0.6)

	stats, ok := s.PersonStats("Dan")
	if !ok {
		t.Fatal("expected stats for enrolled identity")
	}

	if stats.EmbeddingCount != 2 {
		t.Errorf("expected 2 embeddings, got %d", stats.EmbeddingCount)
	}
	if math.Abs(stats.AvgQuality-0.5) > 1e-9 {
		t.Errorf("expected avg quality 0.5, got %f", stats.AvgQuality)
	}
	if math.Abs(stats.MaxQuality-0.6) > 1e-9 {
		t.Errorf("expected max quality 0.6, got %f", stats.MaxQuality)
	}
	if math.Abs(stats.AvgDetScore-0.7) > 1e-9 {
		t.Errorf("expected avg det score 0.7, got %f", stats.AvgDetScore)
	}

	if _, ok := s.PersonStats("nobody"); ok {
		t.Error("expected no stats for unknown identity")
	}
}

func TestAvailableFilters(t *testing.T) {
	s := newTestStore(t)
	s.SetMetadata("A", Metadata{StudentClass: "10", Section: "B", House: "Red"})
	s.SetMetadata("B", Metadata{StudentClass: "12", Section: "A"})
	s.SetMetadata("C", Metadata{StudentClass: "10"})

	f := s.AvailableFilters()

	if len(f.Classes) != 2 || f.Classes[0] != "10" || f.Classes[1] != "12" {
		t.Errorf("unexpected classes: %v", f.Classes)
	}
	if len(f.Sections) != 2 || f.Sections[0] != "A" || f.Sections[1] != "B" {
		t.Errorf("unexpected sections: %v", f.Sections)
	}
	if len(f.Houses) != 1 || f.Houses[0] != "Red" {
		t.Errorf("unexpected houses: %v", f.Houses)
	}
}

func TestUsersWithMetadata(t *testing.T) {
	s := newTestStore(t)
	s.Enroll("Bea", unit(0), 0.5, 0.5)
	s.Enroll("Bea", unit(1), 0.5, 0.5)
	s.Enroll("Al", unit(2), 0.5, 0.5)
	s.SetMetadata("Bea", Metadata{StudentClass: "10"})

	users := s.UsersWithMetadata()
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].Name != "Al" || users[1].Name != "Bea" {
		t.Errorf("expected sorted roster, got %v", users)
	}
	if users[1].EmbeddingCount != 2 {
		t.Errorf("expected 2 embeddings for Bea, got %d", users[1].EmbeddingCount)
	}
	if users[1].StudentClass != "10" {
		t.Errorf("expected class metadata on roster, got '%s'", users[1].StudentClass)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	s.Enroll("Alice", unitMix(0, 1, 3, 4), 0.82, 0.91)
	s.Enroll("Alice", unit(2), 0.5, 0.6)
	s.Enroll("Bob", unit(3), 0.7, 0.7)
	s.SetMetadata("Alice", Metadata{StudentClass: "10", Section: "A", House: "Red"})

	if err := s.Save(); err != nil {
		t.Fatalf("saving: %v", err)
	}

	reloaded, err := New(dir)
	if err != nil {
		t.Fatalf("reloading store: %v", err)
	}

	if got := reloaded.CountEmbeddings(); got != 3 {
		t.Fatalf("expected 3 embeddings after reload, got %d", got)
	}

	orig := s.Embeddings("Alice")
	back := reloaded.Embeddings("Alice")
	if len(back) != len(orig) {
		t.Fatalf("expected %d embeddings for Alice, got %d", len(orig), len(back))
	}
	for i := range orig {
		if math.Abs(orig[i].Quality-back[i].Quality) > 1e-12 {
			t.Errorf("embedding %d: quality %f != %f", i, orig[i].Quality, back[i].Quality)
		}
		if math.Abs(orig[i].DetScore-back[i].DetScore) > 1e-12 {
			t.Errorf("embedding %d: det score %f != %f", i, orig[i].DetScore, back[i].DetScore)
		}
		for j := range orig[i].Vector {
			if math.Abs(orig[i].Vector[j]-back[i].Vector[j]) > 1e-12 {
				t.Fatalf("embedding %d: vector differs at %d", i, j)
			}
		}
	}

	md := reloaded.Metadata("Alice")
	if md.StudentClass != "10" || md.Section != "A" || md.House != "Red" {
		t.Errorf("unexpected metadata after reload: %+v", md)
	}
}

func TestLoad_LegacyBareVectors(t *testing.T) {
	dir := t.TempDir()

	legacy := `{"Old Timer": [` + legacyVectorJSON() + `,` + legacyVectorJSON() + `]}`
	if err := os.WriteFile(filepath.Join(dir, "face_embeddings.json"), []byte(legacy), 0600); err != nil {
		t.Fatalf("writing legacy snapshot: %v", err)
	}

	s, err := New(dir)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	list := s.Embeddings("Old Timer")
	if len(list) != 2 {
		t.Fatalf("expected 2 legacy embeddings, got %d", len(list))
	}
	for i, rec := range list {
		if rec.Quality != 0.5 || rec.DetScore != 0.5 {
			t.Errorf("embedding %d: expected 0.5/0.5 defaults, got %f/%f", i, rec.Quality, rec.DetScore)
		}
		if len(rec.Vector) != 512 {
			t.Errorf("embedding %d: expected 512-dim vector, got %d", i, len(rec.Vector))
		}
	}
}

func TestLoad_MixedFormats(t *testing.T) {
	dir := t.TempDir()

	mixed := `{"Eve": [` + legacyVectorJSON() +
		`,{"embedding":` + legacyVectorJSON() + `,"quality_score":0.8,"det_score":0.9}]}`
	if err := os.WriteFile(filepath.Join(dir, "face_embeddings.json"), []byte(mixed), 0600); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}

	s, err := New(dir)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	list := s.Embeddings("Eve")
	if len(list) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(list))
	}
	if list[0].Quality != 0.5 || list[1].Quality != 0.8 {
		t.Errorf("unexpected qualities: %f, %f", list[0].Quality, list[1].Quality)
	}
}

func TestLoad_RecordMissingScores(t *testing.T) {
	dir := t.TempDir()

	partial := `{"Fay": [{"embedding":` + legacyVectorJSON() + `}]}`
	if err := os.WriteFile(filepath.Join(dir, "face_embeddings.json"), []byte(partial), 0600); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}

	s, err := New(dir)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	list := s.Embeddings("Fay")
	if len(list) != 1 || list[0].Quality != 0.5 || list[0].DetScore != 0.5 {
		t.Errorf("expected 0.5 defaults for missing score fields, got %+v", list)
	}
}

func TestLoad_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "face_embeddings.json"), []byte("{not json"), 0600); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}

	s, err := New(dir)
	if err != nil {
		t.Fatalf("expected corrupt snapshot to be tolerated, got error: %v", err)
	}

	if got := s.CountEmbeddings(); got != 0 {
		t.Errorf("expected empty store for corrupt snapshot, got %d embeddings", got)
	}
}

// legacyVectorJSON renders a 512-element JSON array.
func legacyVectorJSON() string {
	out := "[1"
	for i := 1; i < 512; i++ {
		out += ",0"
	}
	return out + "]"
}

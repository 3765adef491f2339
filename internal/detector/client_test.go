package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fakeDetector(t *testing.T, faces []wireFace) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(faceResponse{
			FacesCount: len(faces),
			Faces:      faces,
			Model:      "test-arcface",
		})
	}))
}

func unitVector(dim int) []float64 {
	v := make([]float64, dim)
	v[0] = 1.0
	return v
}

func TestDetect_SingleFace(t *testing.T) {
	srv := fakeDetector(t, []wireFace{
		{
			FaceIndex: 0,
			Embedding: unitVector(512),
			BBox:      []float64{10, 20, 110, 140},
			DetScore:  0.93,
			Landmarks: [][2]float64{{30, 50}, {80, 51}, {55, 75}, {40, 100}, {72, 100}},
			Pose:      []float64{2, -1, 0.5},
		},
	})
	defer srv.Close()

	client := New(srv.URL, 512)
	dets, err := client.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}

	d := dets[0]
	if d.BBox != [4]float64{10, 20, 110, 140} {
		t.Errorf("unexpected bbox: %v", d.BBox)
	}
	if d.DetScore != 0.93 {
		t.Errorf("expected det score 0.93, got %f", d.DetScore)
	}
	if len(d.Embedding) != 512 {
		t.Errorf("expected 512-dim embedding, got %d", len(d.Embedding))
	}
	if len(d.Landmarks) != 5 {
		t.Errorf("expected 5 landmarks, got %d", len(d.Landmarks))
	}
	if d.Pose == nil || d.Pose[0] != 2 {
		t.Errorf("expected pose angles, got %v", d.Pose)
	}
}

func TestDetect_NoFaces(t *testing.T) {
	srv := fakeDetector(t, nil)
	defer srv.Close()

	client := New(srv.URL, 512)
	dets, err := client.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dets) != 0 {
		t.Errorf("expected no detections, got %d", len(dets))
	}
}

func TestDetect_DimensionMismatch(t *testing.T) {
	srv := fakeDetector(t, []wireFace{
		{Embedding: unitVector(128), BBox: []float64{0, 0, 10, 10}, DetScore: 0.8},
	})
	defer srv.Close()

	client := New(srv.URL, 512)
	_, err := client.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0, 0, 0, 0, 0})
	if err == nil {
		t.Fatal("expected error for wrong embedding dimension")
	}
}

func TestDetect_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, 512)
	_, err := client.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0, 0, 0, 0, 0})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestDetectMIMEType(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"bmp", []byte{0x42, 0x4D, 0, 0, 0, 0, 0, 0}, "image/bmp"},
		{"short", []byte{0x01}, "application/octet-stream"},
	}
	for _, c := range cases {
		if got := detectMIMEType(c.data); got != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

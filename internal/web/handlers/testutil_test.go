package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/facegate/rollcall/internal/attendance"
	"github.com/facegate/rollcall/internal/augment"
	"github.com/facegate/rollcall/internal/config"
	"github.com/facegate/rollcall/internal/detector"
	"github.com/facegate/rollcall/internal/store"
)

// fakeFace is the canned detector response shape used in tests.
type fakeFace struct {
	FaceIndex int       `json:"face_index"`
	Embedding []float64 `json:"embedding"`
	BBox      []float64 `json:"bbox"`
	DetScore  float64   `json:"det_score"`
	Pose      []float64 `json:"pose,omitempty"`
}

// testEnv wires every handler behind a router against a fake detector.
// Tests mutate faces to control what the detector "sees".
type testEnv struct {
	config *config.Config
	store  *store.Store
	ledger *attendance.Ledger
	router *chi.Mux
	faces  []fakeFace
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	env := &testEnv{
		faces: []fakeFace{defaultFace()},
	}

	detSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"faces_count": len(env.faces),
			"faces":       env.faces,
			"model":       "test-model",
		})
	}))
	t.Cleanup(detSrv.Close)

	env.config = &config.Config{
		Detector:    config.DetectorConfig{URL: detSrv.URL, Dim: 512},
		Storage:     config.StorageConfig{DataDir: dir},
		Recognition: config.RecognitionConfig{Threshold: 0.4},
		Augment:     config.AugmentConfig{Enabled: false, Preset: "minimal"},
	}

	st, err := store.New(dir)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	st.EnableIndex()
	env.store = st

	ledger, err := attendance.NewLedger(filepath.Join(dir, "attendance_log.csv"))
	if err != nil {
		t.Fatalf("creating ledger: %v", err)
	}
	env.ledger = ledger

	det := detector.New(detSrv.URL, 512)
	engine := &augment.Engine{}
	jobs := NewJobManager()

	enrollHandler := NewEnrollHandler(env.config, st, det, engine, jobs)
	recognizeHandler := NewRecognizeHandler(env.config, st, det, ledger)
	usersHandler := NewUsersHandler(st)
	attendanceHandler := NewAttendanceHandler(st, ledger)
	similarHandler := NewSimilarHandler(env.config, st, det)

	r := chi.NewRouter()
	r.Get("/api/v1/health", HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/enroll", enrollHandler.Enroll)
		r.Post("/enroll/batch", enrollHandler.EnrollBatch)
		r.Get("/jobs/{id}", enrollHandler.JobStatus)
		r.Post("/recognize", recognizeHandler.Recognize)
		r.Post("/faces/similar", similarHandler.Similar)
		r.Get("/users", usersHandler.List)
		r.Get("/users/{name}/stats", usersHandler.Stats)
		r.Put("/users/{name}/metadata", usersHandler.UpdateMetadata)
		r.Delete("/users/{name}", usersHandler.Delete)
		r.Delete("/users", usersHandler.Clear)
		r.Get("/filters", usersHandler.Filters)
		r.Get("/attendance", attendanceHandler.Summary)
		r.Get("/attendance/today", attendanceHandler.Today)
		r.Get("/attendance/records", attendanceHandler.Records)
		r.Get("/attendance/absentees", attendanceHandler.Absentees)
	})
	env.router = r

	return env
}

// do runs a request through the router and returns the recorder.
func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

// decodeBody unmarshals a JSON response body into out.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
	}
}

func defaultFace() fakeFace {
	return fakeFace{
		Embedding: unit512(0),
		BBox:      []float64{10, 10, 90, 90},
		DetScore:  0.95,
		Pose:      []float64{0, 0, 0},
	}
}

func unit512(pos int) []float64 {
	v := make([]float64, 512)
	v[pos] = 1.0
	return v
}

// testJPEG renders a 100x100 checkerboard; sharp enough that quality
// clears the enrollment floor by a wide margin.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			c := color.RGBA{A: 255}
			if (x+y)%2 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a multipart form with string fields and one or
// more image files under the given field name.
func multipartBody(t *testing.T, fields map[string]string, fileField string, files ...[]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("writing form field: %v", err)
		}
	}
	for i, data := range files {
		part, err := w.CreateFormFile(fileField, "test.jpg")
		if err != nil {
			t.Fatalf("creating form file %d: %v", i, err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("writing form file %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

package handlers

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/facegate/rollcall/internal/augment"
	"github.com/facegate/rollcall/internal/config"
	"github.com/facegate/rollcall/internal/detector"
	"github.com/facegate/rollcall/internal/recognition"
	"github.com/facegate/rollcall/internal/store"
)

// EnrollHandler handles enrollment endpoints.
type EnrollHandler struct {
	config   *config.Config
	store    *store.Store
	detector *detector.Client
	engine   *augment.Engine
	jobs     *JobManager
}

// NewEnrollHandler creates a new enrollment handler.
func NewEnrollHandler(cfg *config.Config, st *store.Store, det *detector.Client, engine *augment.Engine, jobs *JobManager) *EnrollHandler {
	return &EnrollHandler{
		config:   cfg,
		store:    st,
		detector: det,
		engine:   engine,
		jobs:     jobs,
	}
}

// EnrollResult aggregates the outcome over every image of a request.
// Individual image failures are reported here, never escalated: one bad
// photo must not void the good ones.
type EnrollResult struct {
	Name              string   `json:"name"`
	ImagesReceived    int      `json:"images_received"`
	ImagesProcessed   int      `json:"images_processed"`
	EmbeddingsAdded   int      `json:"embeddings_added"`
	VariantsGenerated int      `json:"variants_generated"`
	TotalEmbeddings   int      `json:"total_embeddings"`
	Errors            []string `json:"errors,omitempty"`
}

type enrollRequest struct {
	name     string
	files    []*multipart.FileHeader
	augment  bool
	preset   string
	metadata store.Metadata
}

// parseEnrollForm extracts the enrollment fields from a multipart request.
func (h *EnrollHandler) parseEnrollForm(r *http.Request) (*enrollRequest, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form")
	}

	name := r.FormValue("name")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one image file is required")
	}

	req := &enrollRequest{
		name:    name,
		files:   files,
		augment: h.config.Augment.Enabled,
		preset:  h.config.Augment.Preset,
		metadata: store.Metadata{
			StudentClass: r.FormValue("student_class"),
			Section:      r.FormValue("section"),
			House:        r.FormValue("house"),
		},
	}
	if v := r.FormValue("use_augmentation"); v != "" {
		req.augment = v == "true" || v == "1"
	}
	if v := r.FormValue("augmentation_preset"); v != "" {
		req.preset = v
	}
	return req, nil
}

// Enroll handles POST /enroll: synchronous enrollment of one or more
// images for a single identity.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseEnrollForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.augment {
		if _, err := augment.Preset(req.preset); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result := h.runEnrollment(r.Context(), req, nil)
	respondJSON(w, http.StatusOK, result)
}

// EnrollBatch handles POST /enroll/batch: the same pipeline running in
// the background, with progress polled via GET /jobs/{id}.
func (h *EnrollHandler) EnrollBatch(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseEnrollForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.augment {
		if _, err := augment.Preset(req.preset); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	// Read every upload up front: the multipart form dies with the request.
	images := make([][]byte, 0, len(req.files))
	for _, fh := range req.files {
		data, err := readUpload(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("reading %s: %v", fh.Filename, err))
			return
		}
		images = append(images, data)
	}

	job := h.jobs.CreateJob(len(images))
	go func() {
		job.setRunning()
		result := h.enrollImages(context.Background(), req, images, job)
		if err := h.store.Save(); err != nil {
			job.fail(fmt.Errorf("persisting embeddings: %w", err))
			return
		}
		job.complete(result)
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// JobStatus handles GET /jobs/{id}.
func (h *EnrollHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job := h.jobs.GetJob(id)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// runEnrollment executes the synchronous path: read uploads, enroll,
// persist once at the end.
func (h *EnrollHandler) runEnrollment(ctx context.Context, req *enrollRequest, job *EnrollJob) *EnrollResult {
	images := make([][]byte, 0, len(req.files))
	result := &EnrollResult{Name: req.name, ImagesReceived: len(req.files)}
	for _, fh := range req.files {
		data, err := readUpload(fh)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", fh.Filename, err))
			continue
		}
		images = append(images, data)
	}

	enrolled := h.enrollImages(ctx, req, images, job)
	enrolled.ImagesReceived = result.ImagesReceived
	enrolled.Errors = append(result.Errors, enrolled.Errors...)

	if err := h.store.Save(); err != nil {
		log.Printf("Error persisting embeddings for %s: %v", sanitizeForLog(req.name), err)
		enrolled.Errors = append(enrolled.Errors, fmt.Sprintf("persisting embeddings: %v", err))
	}
	return enrolled
}

// enrollImages runs the enrollment pipeline over raw image bytes.
func (h *EnrollHandler) enrollImages(ctx context.Context, req *enrollRequest, images [][]byte, job *EnrollJob) *EnrollResult {
	result := &EnrollResult{Name: req.name, ImagesReceived: len(images)}

	for i, data := range images {
		added, variants, err := h.enrollOne(ctx, req, data)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("image %d: %v", i+1, err))
		} else {
			result.ImagesProcessed++
		}
		result.EmbeddingsAdded += added
		result.VariantsGenerated += variants
		if job != nil {
			job.advance()
		}
	}

	if !req.metadata.IsZero() {
		h.store.SetMetadata(req.name, req.metadata)
	}
	result.TotalEmbeddings = len(h.store.Embeddings(req.name))
	return result
}

// enrollOne enrolls a single source image, optionally with augmented
// variants. Variant failures are logged but do not fail the image.
func (h *EnrollHandler) enrollOne(ctx context.Context, req *enrollRequest, data []byte) (added, variants int, err error) {
	img, err := decodeImage(data)
	if err != nil {
		return 0, 0, fmt.Errorf("decoding image: %w", err)
	}

	face, quality, err := h.detectBest(ctx, data, img)
	if err != nil {
		return 0, 0, err
	}
	if quality < store.MinEmbeddingQuality {
		return 0, 0, fmt.Errorf("face quality %.2f below minimum %.2f", quality, store.MinEmbeddingQuality)
	}

	h.store.Enroll(req.name, face.Embedding, quality, face.DetScore)
	added++

	if !req.augment {
		return added, 0, nil
	}

	frames, err := h.engine.AugmentWithPreset(img, req.preset)
	if err != nil {
		return added, 0, err
	}
	if err := h.engine.Save(frames, req.name); err != nil {
		log.Printf("Error saving augmented frames for %s: %v", sanitizeForLog(req.name), err)
	}

	// frames[0] is the original, already enrolled.
	for _, frame := range frames[1:] {
		variants++
		frameData, err := encodeJPEG(frame)
		if err != nil {
			continue
		}
		face, quality, err := h.detectBest(ctx, frameData, frame)
		if err != nil || quality < store.MinEmbeddingQuality {
			continue
		}
		h.store.Enroll(req.name, face.Embedding, quality, face.DetScore)
		added++
	}
	return added, variants, nil
}

// detectBest runs detection and scores the dominant face.
func (h *EnrollHandler) detectBest(ctx context.Context, data []byte, img image.Image) (*recognition.Detection, float64, error) {
	detections, err := h.detector.Detect(ctx, data)
	if err != nil {
		return nil, 0, fmt.Errorf("detection failed: %w", err)
	}
	face := largestFace(detections)
	if face == nil {
		return nil, 0, recognition.ErrNoFaceDetected
	}
	return face, recognition.Quality(face, img), nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/facegate/rollcall/internal/config"
	"github.com/facegate/rollcall/internal/detector"
	"github.com/facegate/rollcall/internal/recognition"
	"github.com/facegate/rollcall/internal/store"
)

const defaultSimilarK = 5

// SimilarHandler handles the nearest-sample lookup endpoint.
type SimilarHandler struct {
	config   *config.Config
	store    *store.Store
	detector *detector.Client
}

// NewSimilarHandler creates a new similarity handler.
func NewSimilarHandler(cfg *config.Config, st *store.Store, det *detector.Client) *SimilarHandler {
	return &SimilarHandler{config: cfg, store: st, detector: det}
}

type similarRequest struct {
	Embedding []float64 `json:"embedding"`
	K         int       `json:"k"`
}

// Similar handles POST /faces/similar. The query face comes either from
// an uploaded image (multipart "file") or a raw embedding in a JSON
// body. Results come from the neighbor index across every stored sample.
func (h *SimilarHandler) Similar(w http.ResponseWriter, r *http.Request) {
	var query []float64
	k := defaultSimilarK

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		embedding, kOverride, err := h.queryFromUpload(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		query = embedding
		if kOverride > 0 {
			k = kOverride
		}
	case strings.HasPrefix(contentType, "application/json"):
		var req similarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Embedding) != h.config.Detector.Dim {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("embedding must have %d dimensions", h.config.Detector.Dim))
			return
		}
		query = req.Embedding
		if req.K > 0 {
			k = req.K
		}
	default:
		respondError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
		return
	}

	neighbors := h.store.Neighbors(query, k)
	if neighbors == nil {
		neighbors = []store.Neighbor{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"neighbors": neighbors,
		"count":     len(neighbors),
	})
}

// queryFromUpload extracts the dominant face embedding from an uploaded
// image.
func (h *SimilarHandler) queryFromUpload(r *http.Request) ([]float64, int, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, 0, fmt.Errorf("failed to parse multipart form")
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, 0, fmt.Errorf("image file is required")
	}
	data, err := readUpload(files[0])
	if err != nil {
		return nil, 0, fmt.Errorf("reading upload: %w", err)
	}

	detections, err := h.detector.Detect(r.Context(), data)
	if err != nil {
		return nil, 0, fmt.Errorf("detection failed: %w", err)
	}
	face := largestFace(detections)
	if face == nil {
		return nil, 0, recognition.ErrNoFaceDetected
	}

	k := 0
	if v := r.FormValue("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			k = n
		}
	}
	return face.Embedding, k, nil
}

package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facegate/rollcall/internal/attendance"
	"github.com/facegate/rollcall/internal/config"
	"github.com/facegate/rollcall/internal/detector"
	"github.com/facegate/rollcall/internal/recognition"
	"github.com/facegate/rollcall/internal/store"
)

// RecognizeHandler handles the recognition endpoint.
type RecognizeHandler struct {
	config   *config.Config
	store    *store.Store
	detector *detector.Client
	ledger   *attendance.Ledger
}

// NewRecognizeHandler creates a new recognition handler.
func NewRecognizeHandler(cfg *config.Config, st *store.Store, det *detector.Client, ledger *attendance.Ledger) *RecognizeHandler {
	return &RecognizeHandler{
		config:   cfg,
		store:    st,
		detector: det,
		ledger:   ledger,
	}
}

// FaceResult is the recognition outcome for one detected face.
type FaceResult struct {
	FaceIndex          int        `json:"face_index"`
	BBox               [4]float64 `json:"bbox"`
	Quality            float64    `json:"quality"`
	Matched            bool       `json:"matched"`
	Name               string     `json:"name,omitempty"`
	Similarity         float64    `json:"similarity"`
	AttendanceRecorded bool       `json:"attendance_recorded"`
}

// Recognize handles POST /recognize: match every detected face in the
// uploaded image against the enrolled identities, optionally recording
// attendance for the matches.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	data, err := readUpload(files[0])
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("reading upload: %v", err))
		return
	}

	img, err := decodeImage(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to decode image")
		return
	}

	threshold := h.config.Recognition.Threshold
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			respondError(w, http.StatusBadRequest, "threshold must be in (0, 1]")
			return
		}
		threshold = f
	}
	recordAttendance := r.FormValue("record_attendance") == "true" || r.FormValue("record_attendance") == "1"

	detections, err := h.detector.Detect(r.Context(), data)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("detection failed: %v", err))
		return
	}
	if len(detections) == 0 {
		respondError(w, http.StatusUnprocessableEntity, recognition.ErrNoFaceDetected.Error())
		return
	}

	results := make([]FaceResult, 0, len(detections))
	for i := range detections {
		det := &detections[i]
		quality := recognition.Quality(det, img)
		match := h.store.Match(det.Embedding, quality, threshold)

		fr := FaceResult{
			FaceIndex:  i,
			BBox:       det.BBox,
			Quality:    quality,
			Matched:    match.Matched,
			Name:       match.Name,
			Similarity: match.Similarity,
		}
		if match.Matched && recordAttendance {
			recorded, err := h.ledger.RecordIfAbsent(match.Name, match.Similarity, time.Now())
			if err != nil {
				log.Printf("Error recording attendance for %s: %v", sanitizeForLog(match.Name), err)
			}
			fr.AttendanceRecorded = recorded
		}
		results = append(results, fr)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"faces_count": len(results),
		"threshold":   threshold,
		"results":     results,
	})
}

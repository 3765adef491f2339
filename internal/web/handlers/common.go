package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"strings"

	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/facegate/rollcall/internal/recognition"
)

// maxUploadSize bounds multipart request bodies (64 MB).
const maxUploadSize = 64 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeImage decodes an uploaded image. JPEG, PNG, BMP and WebP are
// registered.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// encodeJPEG renders an image back to bytes for the detector round trip.
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// largestFace picks the detection with the biggest bounding box. Group
// shots enroll the dominant face only.
func largestFace(detections []recognition.Detection) *recognition.Detection {
	if len(detections) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(detections); i++ {
		if detections[i].Area() > detections[best].Area() {
			best = i
		}
	}
	return &detections[best]
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

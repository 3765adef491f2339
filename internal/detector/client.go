// Package detector talks to the external face detection service. The
// service decodes the image, runs detection and embedding extraction, and
// returns opaque per-face results; nothing in this repository runs a model.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/facegate/rollcall/internal/recognition"
)

const defaultDetectorURL = "http://localhost:8000"

// Client calls the face detection service.
type Client struct {
	baseURL string
	dim     int
	client  *http.Client
}

// New creates a detector client. dim is the expected embedding dimension;
// faces with a different dimension are rejected.
func New(baseURL string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{},
	}
}

// faceResponse is the wire format of the detection endpoint.
type faceResponse struct {
	FacesCount int        `json:"faces_count"`
	Faces      []wireFace `json:"faces"`
	Model      string     `json:"model"`
}

type wireFace struct {
	FaceIndex int          `json:"face_index"`
	Embedding []float64    `json:"embedding"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64      `json:"det_score"`
	Landmarks [][2]float64 `json:"landmarks,omitempty"`
	Pose      []float64    `json:"pose,omitempty"` // [yaw, pitch, roll]
}

// Detect posts an encoded image and returns all detected faces.
// An empty result is not an error; callers decide how to report it.
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]recognition.Detection, error) {
	body, err := c.postMultipartImage(ctx, "/detect", imageData)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse detector response: %w", err)
	}

	detections := make([]recognition.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		if c.dim > 0 && len(f.Embedding) != c.dim {
			return nil, fmt.Errorf("detector returned %d-dim embedding, expected %d", len(f.Embedding), c.dim)
		}

		det := recognition.Detection{
			BBox:      [4]float64{f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]},
			DetScore:  f.DetScore,
			Embedding: f.Embedding,
		}
		for _, lm := range f.Landmarks {
			det.Landmarks = append(det.Landmarks, recognition.Point{X: lm[0], Y: lm[1]})
		}
		if len(f.Pose) == 3 {
			det.Pose = &[3]float64{f.Pose[0], f.Pose[1], f.Pose[2]}
		}
		detections = append(detections, det)
	}

	return detections, nil
}

// postMultipartImage posts the image as a multipart form to the given
// endpoint, with an explicit part Content-Type from magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detector response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the image MIME type from magic bytes.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

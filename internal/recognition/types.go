// Package recognition holds the detector output types and the face quality
// scorer. Detection and embedding extraction happen in an external service;
// this package only consumes its output.
package recognition

import "errors"

// ErrNoFaceDetected is returned when the detector finds no usable face.
var ErrNoFaceDetected = errors.New("no face detected")

// Point is a 2-D landmark coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is one detected face as reported by the external detector:
// a pixel bounding box, a detection confidence, the L2-normalized
// embedding, and optionally five landmarks (left eye, right eye, nose,
// mouth corners) or explicit pose angles in degrees.
type Detection struct {
	BBox      [4]float64  `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore  float64     `json:"det_score"`
	Embedding []float64   `json:"embedding"`
	Landmarks []Point     `json:"landmarks,omitempty"`
	Pose      *[3]float64 `json:"pose,omitempty"` // [yaw, pitch, roll]
}

// Width returns the bounding box width in pixels.
func (d *Detection) Width() float64 { return d.BBox[2] - d.BBox[0] }

// Height returns the bounding box height in pixels.
func (d *Detection) Height() float64 { return d.BBox[3] - d.BBox[1] }

// Area returns the bounding box area in square pixels.
func (d *Detection) Area() float64 { return d.Width() * d.Height() }

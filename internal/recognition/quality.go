package recognition

import (
	"image"
	"image/color"
	"math"
)

// Quality score weights. Size and detection confidence dominate; pose and
// sharpness refine.
const (
	sizeWeight      = 0.3
	detWeight       = 0.3
	poseWeight      = 0.2
	sharpnessWeight = 0.2

	// Laplacian variance above this counts as fully sharp.
	sharpnessNorm = 500.0
)

// Quality computes a composite quality score in [0, 1] for a detected face.
// It is a pure function of the detection and the source image: the same
// inputs always produce the same score.
func Quality(det *Detection, img image.Image) float64 {
	b := img.Bounds()
	imageArea := float64(b.Dx() * b.Dy())

	sizeScore := 0.0
	if imageArea > 0 {
		sizeScore = math.Min(det.Area()/imageArea*20, 1.0)
	}

	score := sizeWeight*sizeScore +
		detWeight*det.DetScore +
		poseWeight*poseScore(det) +
		sharpnessWeight*sharpnessScore(det, img)

	return clampUnit(score)
}

// poseScore estimates how frontal the face is. Explicit pose angles win;
// otherwise eye-line symmetry from the landmarks approximates it; with
// neither, a neutral default applies.
func poseScore(det *Detection) float64 {
	if det.Pose != nil {
		p := det.Pose
		return 1.0 - (math.Abs(p[0])+math.Abs(p[1])+math.Abs(p[2]))/180.0
	}

	if len(det.Landmarks) >= 5 {
		leftEye := det.Landmarks[0]
		rightEye := det.Landmarks[1]

		eyeDiff := math.Abs(leftEye.Y - rightEye.Y)
		eyeDistance := math.Abs(leftEye.X - rightEye.X)

		if eyeDistance > 0 {
			symmetry := 1.0 - math.Min(eyeDiff/eyeDistance, 1.0)
			return symmetry * 0.9
		}
		return 0.7
	}

	return 0.7
}

// sharpnessScore crops the face region, converts it to grayscale intensity
// and measures the variance of its Laplacian response. Blurry crops have a
// flat response and score near zero. An empty crop scores zero.
func sharpnessScore(det *Detection, img image.Image) float64 {
	gray := grayCrop(img, det.BBox)
	if gray == nil {
		return 0.0
	}
	return math.Min(laplacianVariance(gray)/sharpnessNorm, 1.0)
}

// grayCrop extracts the bbox region as an intensity image.
// Returns nil when the clipped region is empty.
func grayCrop(img image.Image, bbox [4]float64) *image.Gray {
	b := img.Bounds()
	x1 := clampInt(int(bbox[0]), b.Min.X, b.Max.X)
	y1 := clampInt(int(bbox[1]), b.Min.Y, b.Max.Y)
	x2 := clampInt(int(bbox[2]), b.Min.X, b.Max.X)
	y2 := clampInt(int(bbox[3]), b.Min.Y, b.Max.Y)

	if x2 <= x1 || y2 <= y1 {
		return nil
	}

	gray := image.NewGray(image.Rect(0, 0, x2-x1, y2-y1))
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			// Standard luma weights on 16-bit channel values.
			v := (299*uint32(r) + 587*uint32(g) + 114*uint32(bl)) / 1000
			gray.SetGray(x-x1, y-y1, color.Gray{Y: uint8(v >> 8)})
		}
	}
	return gray
}

// laplacianVariance applies the 4-neighbor Laplacian kernel and returns the
// variance of the response, a standard blur estimator.
func laplacianVariance(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0.0
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			lap := float64(gray.GrayAt(x-1, y).Y) +
				float64(gray.GrayAt(x+1, y).Y) +
				float64(gray.GrayAt(x, y-1).Y) +
				float64(gray.GrayAt(x, y+1).Y) -
				4*center
			sum += lap
			sumSq += lap * lap
			n++
		}
	}

	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

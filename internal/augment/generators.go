package augment

import (
	"image"
	"math"
	"math/rand"
)

// Fixed parameter tables. Each generator produces its candidates in order
// and truncates to the requested count, so a small count drops the tail.
var (
	brightnessFactors = []float64{0.6, 0.8, 1.3, 1.5}
	cropFactors       = []float64{0.85, 0.90, 0.95, 1.10, 1.15}
	rotationAngles    = []float64{-15, -8, -3, 3, 8, 15}
	blurKernelSizes   = []int{3, 5}
	noiseSigmas       = []float64{10, 20}
)

// lightingVariations simulates dim light, bright light and contrast shifts.
// Brightness-scaled frames are interleaved with contrast-adjusted ones
// (high contrast for the first half of the requested count, low for the
// second half).
func lightingVariations(src *image.RGBA, count int) []image.Image {
	if count <= 0 {
		return nil
	}

	var out []image.Image
	n := min(count, len(brightnessFactors))
	for i := 0; i < n; i++ {
		out = append(out, scaleBrightness(src, brightnessFactors[i]))
		if i < count/2 {
			out = append(out, adjustContrast(src, 1.3))
		} else {
			out = append(out, adjustContrast(src, 0.7))
		}
	}

	return truncate(out, count)
}

// cropVariations simulates faces at different distances and partially in
// frame. Factors below one zoom in (center crop, resized back); factors
// above one zoom out (downscale, centered on a black canvas). For more
// than two requested an off-center crop joins the candidate list.
func cropVariations(src *image.RGBA, count int) []image.Image {
	if count <= 0 {
		return nil
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var out []image.Image
	n := min(count, len(cropFactors))
	for _, factor := range cropFactors[:n] {
		if factor < 1.0 {
			nw, nh := int(float64(w)*factor), int(float64(h)*factor)
			cropped := centerCrop(src, nw, nh)
			out = append(out, resizeTo(cropped, w, h))
		} else {
			nw, nh := int(float64(w)/factor), int(float64(h)/factor)
			out = append(out, padToCanvas(resizeTo(src, nw, nh), w, h))
		}
	}

	if count > 2 {
		offX, offY := w/20, h/20
		size := int(float64(min(w, h)) * 0.9)
		if crop := cropAt(src, offX, offY, size, size); crop != nil {
			out = append(out, resizeTo(crop, w, h))
		}
	}

	return truncate(out, count)
}

// rotationVariations simulates small head tilts. For more than two
// requested a horizontal mirror joins the candidate list.
func rotationVariations(src *image.RGBA, count int) []image.Image {
	if count <= 0 {
		return nil
	}

	var out []image.Image
	n := min(count, len(rotationAngles))
	for _, angle := range rotationAngles[:n] {
		out = append(out, rotate(src, angle))
	}

	if count > 2 {
		out = append(out, flipHorizontal(src))
	}

	return truncate(out, count)
}

// blurVariations simulates lower-quality capture: Gaussian blur at two
// kernel sizes and, when more than one is requested, a horizontal motion
// blur candidate.
func blurVariations(src *image.RGBA, count int) []image.Image {
	if count <= 0 {
		return nil
	}

	var out []image.Image
	n := min(count, len(blurKernelSizes))
	for _, k := range blurKernelSizes[:n] {
		out = append(out, gaussianBlur(src, k))
	}

	if count > 1 {
		out = append(out, motionBlur(src, 5))
	}

	return truncate(out, count)
}

// noiseVariations simulates sensor noise in low light. This is the one
// non-deterministic generator: the additive noise comes from math/rand and
// the output is not bit-reproducible between runs. Augmented frames are
// training inputs, not protocol data, so that is acceptable.
func noiseVariations(src *image.RGBA, count int) []image.Image {
	if count <= 0 {
		return nil
	}

	var out []image.Image
	n := min(count, len(noiseSigmas))
	for _, sigma := range noiseSigmas[:n] {
		out = append(out, addGaussianNoise(src, sigma))
	}

	return truncate(out, count)
}

func truncate(imgs []image.Image, count int) []image.Image {
	if len(imgs) > count {
		return imgs[:count]
	}
	return imgs
}

// scaleBrightness multiplies every channel by factor, clamped to [0, 255].
func scaleBrightness(src *image.RGBA, factor float64) *image.RGBA {
	dst := cloneRGBA(src)
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i+0] = clampByte(float64(src.Pix[i+0]) * factor)
		dst.Pix[i+1] = clampByte(float64(src.Pix[i+1]) * factor)
		dst.Pix[i+2] = clampByte(float64(src.Pix[i+2]) * factor)
	}
	return dst
}

// adjustContrast moves every channel away from (factor > 1) or towards
// (factor < 1) its per-channel image mean.
func adjustContrast(src *image.RGBA, factor float64) *image.RGBA {
	var sumR, sumG, sumB float64
	n := len(src.Pix) / 4
	for i := 0; i < len(src.Pix); i += 4 {
		sumR += float64(src.Pix[i+0])
		sumG += float64(src.Pix[i+1])
		sumB += float64(src.Pix[i+2])
	}
	if n == 0 {
		return cloneRGBA(src)
	}
	meanR, meanG, meanB := sumR/float64(n), sumG/float64(n), sumB/float64(n)

	dst := cloneRGBA(src)
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i+0] = clampByte(meanR + factor*(float64(src.Pix[i+0])-meanR))
		dst.Pix[i+1] = clampByte(meanG + factor*(float64(src.Pix[i+1])-meanG))
		dst.Pix[i+2] = clampByte(meanB + factor*(float64(src.Pix[i+2])-meanB))
	}
	return dst
}

// centerCrop returns the centered w x h region of src.
func centerCrop(src *image.RGBA, w, h int) *image.RGBA {
	b := src.Bounds()
	x0 := (b.Dx() - w) / 2
	y0 := (b.Dy() - h) / 2
	return cropAt(src, x0, y0, w, h)
}

// cropAt copies the w x h region at (x0, y0) into a fresh image.
// Returns nil if the region is empty or out of bounds.
func cropAt(src *image.RGBA, x0, y0, w, h int) *image.RGBA {
	b := src.Bounds()
	if w <= 0 || h <= 0 || x0 < 0 || y0 < 0 || x0+w > b.Dx() || y0+h > b.Dy() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := src.PixOffset(x0, y0+y)
		di := dst.PixOffset(0, y)
		copy(dst.Pix[di:di+w*4], src.Pix[si:si+w*4])
	}
	return dst
}

// padToCanvas centers src on a black w x h canvas.
func padToCanvas(src *image.RGBA, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// Opaque black background.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 255
	}

	sb := src.Bounds()
	x0 := (w - sb.Dx()) / 2
	y0 := (h - sb.Dy()) / 2
	for y := 0; y < sb.Dy(); y++ {
		si := src.PixOffset(0, y)
		di := dst.PixOffset(x0, y0+y)
		copy(dst.Pix[di:di+sb.Dx()*4], src.Pix[si:si+sb.Dx()*4])
	}
	return dst
}

// rotate turns src by angle degrees about its center, sampling bilinearly
// with a reflected border so no black corners appear.
func rotate(src *image.RGBA, angleDeg float64) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	cx, cy := float64(w)/2, float64(h)/2

	rad := angleDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse mapping: destination pixel -> source coordinate.
			dx := float64(x) - cx
			dy := float64(y) - cy
			sx := cos*dx + sin*dy + cx
			sy := -sin*dx + cos*dy + cy

			r, g, bch := sampleBilinear(src, sx, sy)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = r
			dst.Pix[i+1] = g
			dst.Pix[i+2] = bch
			dst.Pix[i+3] = 255
		}
	}
	return dst
}

// sampleBilinear reads src at a fractional coordinate with reflect borders.
func sampleBilinear(src *image.RGBA, x, y float64) (uint8, uint8, uint8) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	var acc [3]float64
	for _, c := range [4]struct {
		ox, oy int
		weight float64
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	} {
		px := reflect(x0+c.ox, w)
		py := reflect(y0+c.oy, h)
		i := src.PixOffset(px, py)
		acc[0] += c.weight * float64(src.Pix[i+0])
		acc[1] += c.weight * float64(src.Pix[i+1])
		acc[2] += c.weight * float64(src.Pix[i+2])
	}
	return clampByte(acc[0]), clampByte(acc[1]), clampByte(acc[2])
}

func flipHorizontal(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := src.PixOffset(x, y)
			di := dst.PixOffset(w-1-x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// gaussianBlur applies a separable Gaussian kernel of the given odd size.
func gaussianBlur(src *image.RGBA, ksize int) *image.RGBA {
	kernel := gaussianKernel(ksize)
	tmp := convolve1D(src, kernel, true)
	return convolve1D(tmp, kernel, false)
}

// gaussianKernel builds a normalized 1-D kernel; sigma follows the common
// rule sigma = 0.3*((ksize-1)*0.5 - 1) + 0.8 for an unspecified sigma.
func gaussianKernel(ksize int) []float64 {
	sigma := 0.3*(float64(ksize-1)*0.5-1) + 0.8
	half := ksize / 2
	kernel := make([]float64, ksize)
	var sum float64
	for i := range kernel {
		d := float64(i - half)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// motionBlur averages width pixels along the horizontal axis.
func motionBlur(src *image.RGBA, width int) *image.RGBA {
	kernel := make([]float64, width)
	for i := range kernel {
		kernel[i] = 1 / float64(width)
	}
	return convolve1D(src, kernel, true)
}

// convolve1D convolves one axis with a 1-D kernel using reflect borders.
func convolve1D(src *image.RGBA, kernel []float64, horizontal bool) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	half := len(kernel) / 2

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [3]float64
			for k, kv := range kernel {
				var px, py int
				if horizontal {
					px, py = reflect(x+k-half, w), y
				} else {
					px, py = x, reflect(y+k-half, h)
				}
				i := src.PixOffset(px, py)
				acc[0] += kv * float64(src.Pix[i+0])
				acc[1] += kv * float64(src.Pix[i+1])
				acc[2] += kv * float64(src.Pix[i+2])
			}
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = clampByte(acc[0])
			dst.Pix[i+1] = clampByte(acc[1])
			dst.Pix[i+2] = clampByte(acc[2])
			dst.Pix[i+3] = 255
		}
	}
	return dst
}

// addGaussianNoise adds zero-mean Gaussian noise with the given sigma.
func addGaussianNoise(src *image.RGBA, sigma float64) *image.RGBA {
	dst := cloneRGBA(src)
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i+0] = clampByte(float64(src.Pix[i+0]) + rand.NormFloat64()*sigma)
		dst.Pix[i+1] = clampByte(float64(src.Pix[i+1]) + rand.NormFloat64()*sigma)
		dst.Pix[i+2] = clampByte(float64(src.Pix[i+2]) + rand.NormFloat64()*sigma)
	}
	return dst
}

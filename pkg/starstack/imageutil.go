package starstack

import (
	"image"
	"math"
)

// MatFromGray converts an 8-bit frame to a float32 Mat holding the same
// sample values (0..255).
func MatFromGray(img *image.Gray) Mat {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	m := NewMatWithSize(height, width)
	dest := m.DataFloat32()
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width]
		for x, v := range row {
			dest[y*width+x] = float32(v)
		}
	}
	return m
}

// GrayFromMat narrows a float Mat back to 8-bit samples, rounding half
// away from zero and clipping to [0, 255].
func GrayFromMat(m Mat) *image.Gray {
	width, height := m.Cols(), m.Rows()
	img := image.NewGray(image.Rect(0, 0, width, height))
	src := m.DataFloat32()
	for i, v := range src {
		img.Pix[i] = clampUint8(float64(v))
	}
	return img
}

// MatFromFloat64 builds a Mat from row-major samples.
func MatFromFloat64(values []float64, width, height int) Mat {
	m := NewMatWithSize(height, width)
	dest := m.DataFloat32()
	for i, v := range values {
		dest[i] = float32(v)
	}
	return m
}

func clampUint8(v float64) uint8 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
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

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// regionMean returns the mean sample value of m inside r, clipped to the
// Mat bounds.
func regionMean(m Mat, r image.Rectangle) float64 {
	r = r.Intersect(image.Rect(0, 0, m.Cols(), m.Rows()))
	if r.Empty() {
		return 0
	}
	data := m.DataFloat32()
	width := m.Cols()
	var sum float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += float64(data[y*width+x])
		}
	}
	return sum / float64(r.Dx()*r.Dy())
}

// meanAbsGradient averages 0.5*|dI/dx| + 0.5*|dI/dy| over the whole Mat
// using 3x3 Sobel operators.
func meanAbsGradient(m Mat) float64 {
	if m.Empty() {
		return 0
	}
	gx := NewMat()
	defer gx.Close()
	gy := NewMat()
	defer gy.Close()
	sobel(m, &gx, 1, 0)
	sobel(m, &gy, 0, 1)

	dx := gx.DataFloat32()
	dy := gy.DataFloat32()
	var sum float64
	for i := range dx {
		sum += 0.5*math.Abs(float64(dx[i])) + 0.5*math.Abs(float64(dy[i]))
	}
	return sum / float64(len(dx))
}

package starstack

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

const fieldBackground = 10

type testStar struct {
	X, Y      int
	Intensity uint8
}

// testField holds ten well separated 5x5 stars on a 100x100 frame. The
// intensities avoid the band where the blurred block corners straddle the
// default threshold, so every star yields the same symmetric region shape.
var testField = []testStar{
	{12, 15, 190}, {37, 22, 250}, {61, 11, 205}, {84, 30, 222}, {20, 47, 234},
	{52, 41, 200}, {78, 58, 240}, {15, 80, 216}, {44, 71, 228}, {70, 86, 195},
}

// renderField draws stars as 5x5 blocks centered on integer positions,
// shifted by (dx, dy).
func renderField(width, height int, stars []testStar, dx, dy int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = fieldBackground
	}
	for _, s := range stars {
		for y := s.Y + dy - 2; y <= s.Y+dy+2; y++ {
			for x := s.X + dx - 2; x <= s.X+dx+2; x++ {
				if x >= 0 && y >= 0 && x < width && y < height {
					img.SetGray(x, y, color.Gray{Y: s.Intensity})
				}
			}
		}
	}
	return img
}

// blockBrightness is the mean over the 7x7 bounding box of a blurred and
// thresholded 5x5 block: 25 star pixels and 24 background pixels.
func blockBrightness(intensity uint8) float64 {
	return (25*float64(intensity) + 24*fieldBackground) / 49
}

func uniformFrame(width, height int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// exactMatchParams keeps only triangles that are congruent up to rounding.
// The test field's most similar pair of distinct triangles scores 0.99957,
// so at the default threshold it produces false matches.
func exactMatchParams() *Params {
	p := DefaultParams()
	p.TriangleSimilarity = 0.99999
	return p
}

func detect(t *testing.T, img *image.Gray, frame int, p *Params) *DetectionResult {
	t.Helper()
	m := MatFromGray(img)
	defer m.Close()
	det, err := DetectStars(context.Background(), m, frame, p)
	require.NoError(t, err)
	return det
}

// catalogAt builds a catalog with stars at the given positions, ids in order.
func catalogAt(frame int, points []Point2d) *Catalog {
	c := &Catalog{Frame: frame}
	for i, p := range points {
		c.Stars = append(c.Stars, Star{ID: i, Position: p, Brightness: 100})
	}
	return c
}

func fieldPoints(stars []testStar) []Point2d {
	pts := make([]Point2d, len(stars))
	for i, s := range stars {
		pts[i] = Point2d{X: float64(s.X), Y: float64(s.Y)}
	}
	return pts
}

func mapPoints(t Transform, pts []Point2d) []Point2d {
	out := make([]Point2d, len(pts))
	for i, p := range pts {
		out[i] = t.Apply(p)
	}
	return out
}

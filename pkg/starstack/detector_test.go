package starstack

import (
	"context"
	"image"
	"image/color"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectStarsSyntheticField(t *testing.T) {
	img := renderField(100, 100, testField, 0, 0)
	det := detect(t, img, 4, DefaultParams())

	c := det.Catalog
	require.Equal(t, len(testField), c.Len())
	assert.Equal(t, 4, c.Frame)
	assert.Equal(t, len(testField), det.Regions)
	assert.Zero(t, det.HotpixelCount)

	byIntensity := append([]testStar(nil), testField...)
	sort.Slice(byIntensity, func(i, j int) bool { return byIntensity[i].Intensity > byIntensity[j].Intensity })

	for i, s := range c.Stars {
		want := byIntensity[i]
		assert.Equal(t, i, s.ID)
		assert.InDelta(t, float64(want.X), s.Position.X, 1e-6, "star %d x", i)
		assert.InDelta(t, float64(want.Y), s.Position.Y, 1e-6, "star %d y", i)
		assert.InDelta(t, blockBrightness(want.Intensity), s.Brightness, 1e-3, "star %d brightness", i)
		assert.Equal(t, image.Rect(want.X-3, want.Y-3, want.X+4, want.Y+4), s.BoundingBox)
		assert.GreaterOrEqual(t, s.Area, DefaultParams().MinStarArea)
		assert.LessOrEqual(t, s.Area, DefaultParams().MaxStarArea)
	}
}

func TestDetectStarsBlankFrame(t *testing.T) {
	det := detect(t, uniformFrame(64, 48, 20), 0, DefaultParams())
	assert.Equal(t, 0, det.Catalog.Len())
	assert.Equal(t, 0, det.Regions)
}

func TestDetectStarsAreaFilter(t *testing.T) {
	img := uniformFrame(100, 100, fieldBackground)
	// a lone hot pixel survives the blur as a one-pixel region
	img.SetGray(10, 10, color.Gray{Y: 255})
	// a 20x20 patch is far too large for a star
	for y := 50; y < 70; y++ {
		for x := 50; x < 70; x++ {
			img.SetGray(x, y, color.Gray{Y: 200})
		}
	}
	// a genuine star
	img = overlayStar(img, testStar{X: 30, Y: 80, Intensity: 230})

	det := detect(t, img, 0, DefaultParams())
	assert.Equal(t, 3, det.Regions)
	require.Equal(t, 1, det.Catalog.Len())
	assert.InDelta(t, 30, det.Catalog.Stars[0].Position.X, 1e-6)
	assert.InDelta(t, 80, det.Catalog.Stars[0].Position.Y, 1e-6)
}

func overlayStar(img *image.Gray, s testStar) *image.Gray {
	for y := s.Y - 2; y <= s.Y+2; y++ {
		for x := s.X - 2; x <= s.X+2; x++ {
			img.SetGray(x, y, color.Gray{Y: s.Intensity})
		}
	}
	return img
}

func TestDetectStarsMaxStars(t *testing.T) {
	p := DefaultParams()
	p.MaxStars = 3
	det := detect(t, renderField(100, 100, testField, 0, 0), 0, p)

	require.Equal(t, 3, det.Catalog.Len())
	assert.Equal(t, len(testField), det.Regions)
	assert.InDelta(t, blockBrightness(250), det.Catalog.Stars[0].Brightness, 1e-3)
	assert.InDelta(t, blockBrightness(240), det.Catalog.Stars[1].Brightness, 1e-3)
	assert.InDelta(t, blockBrightness(234), det.Catalog.Stars[2].Brightness, 1e-3)
}

func TestDetectStarsThreshold(t *testing.T) {
	p := DefaultParams()
	p.StarThreshold = 254
	det := detect(t, renderField(100, 100, testField, 0, 0), 0, p)
	assert.Equal(t, 0, det.Catalog.Len())
}

func TestDetectStarsHotpixelFilter(t *testing.T) {
	img := renderField(100, 100, testField, 0, 0)
	img.SetGray(5, 95, color.Gray{Y: 255})

	p := DefaultParams()
	p.HotpixelFilter = true
	m := MatFromGray(img)
	defer m.Close()
	before := append([]float32(nil), m.DataFloat32()...)

	det, err := DetectStars(context.Background(), m, 0, p)
	require.NoError(t, err)
	assert.Positive(t, det.HotpixelCount)
	assert.Equal(t, len(testField), det.Catalog.Len())
	assert.Equal(t, before, m.DataFloat32(), "source frame must not be modified")
}

func TestHotpixelFilterReplacesOutlier(t *testing.T) {
	img := uniformFrame(9, 9, 40)
	img.SetGray(4, 4, color.Gray{Y: 250})
	m := MatFromGray(img)
	defer m.Close()

	n := hotpixelFilterWithThresholding(&m, 30)
	assert.Equal(t, 1, n)
	for _, v := range m.DataFloat32() {
		assert.Equal(t, float32(40), v)
	}
}

func TestDetectStarsCanceled(t *testing.T) {
	m := MatFromGray(renderField(100, 100, testField, 0, 0))
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DetectStars(ctx, m, 0, DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectStarsEmptyMat(t *testing.T) {
	m := NewMat()
	defer m.Close()
	_, err := DetectStars(context.Background(), m, 0, DefaultParams())
	assert.Error(t, err)
}

func TestFindExternalContours(t *testing.T) {
	img := uniformFrame(20, 20, 0)
	for y := 2; y <= 6; y++ {
		for x := 2; x <= 6; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for y := 10; y <= 13; y++ {
		for x := 10; x <= 12; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	m := MatFromGray(img)
	defer m.Close()

	contours := findExternalContours(m)
	require.Len(t, contours, 2)
	sort.Slice(contours, func(i, j int) bool {
		return contourBounds(contours[i]).Min.X < contourBounds(contours[j]).Min.X
	})

	assert.Equal(t, image.Rect(2, 2, 7, 7), contourBounds(contours[0]))
	assert.InDelta(t, 16, contourArea(contours[0]), 1e-9)
	center, ok := contours[0].centroid()
	require.True(t, ok)
	assertPointNear(t, Point2d{X: 4, Y: 4}, center, 1e-9)

	assert.Equal(t, image.Rect(10, 10, 13, 14), contourBounds(contours[1]))
	assert.InDelta(t, 6, contourArea(contours[1]), 1e-9)
	center, ok = contours[1].centroid()
	require.True(t, ok)
	assertPointNear(t, Point2d{X: 11, Y: 11.5}, center, 1e-9)
}

func TestContourDegenerate(t *testing.T) {
	line := Contour{{0, 0}, {5, 0}}
	assert.Zero(t, line.signedArea())
	_, ok := line.centroid()
	assert.False(t, ok)

	flat := Contour{{0, 0}, {5, 0}, {9, 0}}
	_, ok = flat.centroid()
	assert.False(t, ok)
}

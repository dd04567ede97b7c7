package starstack

import (
	"context"
	"fmt"
	"sort"
)

// DetectionResult is the outcome of running the star detector on one frame.
type DetectionResult struct {
	Catalog       *Catalog
	HotpixelCount int
	// Regions counts every bright region found before the area filter.
	Regions int
}

// DetectStars extracts point sources from one frame. The frame is smoothed,
// binarized at StarThreshold, and every external region whose contour area
// lies in [MinStarArea, MaxStarArea] becomes a star positioned at the
// centroid of its outline. Brightness is the mean sample value inside the
// region's bounding box. The catalog is sorted brightest first, capped at
// MaxStars, and ids are reassigned 0..N-1 in that order.
//
// An empty catalog is a valid result. src is not modified.
func DetectStars(ctx context.Context, src Mat, frame int, p *Params) (*DetectionResult, error) {
	if src.Empty() {
		return nil, fmt.Errorf("detect stars in frame %d: empty image", frame)
	}

	img := src.Clone()
	defer img.Close()

	result := &DetectionResult{Catalog: &Catalog{Frame: frame}}
	if p.HotpixelFilter {
		result.HotpixelCount = hotpixelFilterWithThresholding(&img, p.HotpixelThreshold)
	}

	blurred := NewMat()
	defer blurred.Close()
	gaussianBlur(img, &blurred, p.BlurKernelSize, p.BlurSigma)

	binary := NewMat()
	defer binary.Close()
	thresholdBinary(blurred, &binary, float32(p.StarThreshold), 255)

	contours := findExternalContours(binary)
	result.Regions = len(contours)

	stars := make([]Star, 0, len(contours))
	for i, c := range contours {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		area := contourArea(c)
		if area < p.MinStarArea || area > p.MaxStarArea {
			continue
		}
		center, ok := c.centroid()
		if !ok {
			continue
		}
		bounds := contourBounds(c)
		stars = append(stars, Star{
			Position:    center,
			Brightness:  regionMean(img, bounds),
			BoundingBox: bounds,
			Area:        area,
		})
	}

	sort.SliceStable(stars, func(i, j int) bool {
		return stars[i].Brightness > stars[j].Brightness
	})
	if len(stars) > p.MaxStars {
		stars = stars[:p.MaxStars]
	}
	for i := range stars {
		stars[i].ID = i
	}
	result.Catalog.Stars = stars
	return result, nil
}

// hotpixelFilterWithThresholding replaces every pixel that differs from its
// 3x3 median by more than threshold with that median and returns how many
// pixels were replaced.
func hotpixelFilterWithThresholding(m *Mat, threshold float64) int {
	blurred := NewMat()
	defer blurred.Close()
	diff := NewMat()
	defer diff.Close()
	mask := NewMat()
	defer mask.Close()

	medianBlur(*m, &blurred, 3)
	absDiff(*m, blurred, &diff)
	thresholdBinary(diff, &mask, float32(threshold), 1.0)
	numHotpixels := countNonZero(mask)
	matCopyToWithMask(blurred, m, mask)
	return numHotpixels
}

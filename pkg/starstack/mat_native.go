//go:build !purego && !js

package starstack

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Mat wraps gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat                      { return Mat{m: gocv.NewMat()} }
func NewMatWithSize(rows, cols int) Mat { return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)} }
func (mat Mat) Rows() int             { return mat.m.Rows() }
func (mat Mat) Cols() int             { return mat.m.Cols() }
func (mat Mat) Empty() bool           { return mat.m.Empty() }
func (mat Mat) Clone() Mat            { return Mat{m: mat.m.Clone()} }
func (mat *Mat) Close()               { mat.m.Close() }

func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

// --- CV operations ---

func gaussianBlur(src Mat, dst *Mat, ksize int, sigma float64) {
	gocv.GaussianBlur(src.m, &dst.m, image.Pt(ksize, ksize), sigma, sigma, gocv.BorderReflect101)
}

func thresholdBinary(src Mat, dst *Mat, thresh, maxval float32) {
	gocv.Threshold(src.m, &dst.m, thresh, maxval, gocv.ThresholdBinary)
}

func findExternalContours(binary Mat) []Contour {
	mask := gocv.NewMat()
	defer mask.Close()
	// FindContours only accepts 8-bit single channel input
	binary.m.ConvertTo(&mask, gocv.MatTypeCV8U)

	pvs := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer pvs.Close()

	points := pvs.ToPoints()
	contours := make([]Contour, len(points))
	for i, pts := range points {
		contours[i] = Contour(pts)
	}
	return contours
}

func contourArea(c Contour) float64 {
	pv := gocv.NewPointVectorFromPoints(c)
	defer pv.Close()
	return gocv.ContourArea(pv)
}

func contourBounds(c Contour) image.Rectangle {
	pv := gocv.NewPointVectorFromPoints(c)
	defer pv.Close()
	return gocv.BoundingRect(pv)
}

func sobel(src Mat, dst *Mat, dx, dy int) {
	gocv.Sobel(src.m, &dst.m, gocv.MatTypeCV32F, dx, dy, 3, 1, 0, gocv.BorderReflect101)
}

func warpPerspectiveLinear(src Mat, dst *Mat, t Transform) error {
	// OpenCV inverts the matrix itself; the check keeps both backends
	// failing on the same inputs.
	if _, err := t.Invert(); err != nil {
		return err
	}
	hm := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer hm.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			hm.SetDoubleAt(r, c, t.M[r][c])
		}
	}
	gocv.WarpPerspectiveWithParams(src.m, &dst.m, hm, image.Pt(src.Cols(), src.Rows()),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return nil
}

func medianBlur(src Mat, dst *Mat, ksize int) {
	gocv.MedianBlur(src.m, &dst.m, ksize)
}

func absDiff(a, b Mat, dst *Mat) {
	gocv.AbsDiff(a.m, b.m, &dst.m)
}

func countNonZero(src Mat) int {
	return gocv.CountNonZero(src.m)
}

func matCopyToWithMask(src Mat, dst *Mat, mask Mat) {
	mask8 := gocv.NewMat()
	defer mask8.Close()
	mask.m.ConvertTo(&mask8, gocv.MatTypeCV8U)
	src.m.CopyToWithMask(&dst.m, mask8)
}

//go:build purego || js

package starstack

import (
	"image"
	"math"
	"sort"
)

// Mat is a pure Go 2D float32 matrix.
type Mat struct {
	data []float32
	rows int
	cols int
}

func NewMat() Mat { return Mat{} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{data: make([]float32, rows*cols), rows: rows, cols: cols}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

func (m Mat) Clone() Mat {
	out := NewMatWithSize(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

func (m *Mat) Close() {
	m.data = nil
	m.rows = 0
	m.cols = 0
}

// DataFloat32 returns the row-major backing slice.
func (m Mat) DataFloat32() []float32 { return m.data }

func ensureSize(dst *Mat, rows, cols int) {
	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = NewMatWithSize(rows, cols)
	}
}

// --- Pure Go CV operations ---

// reflectIndex mirrors out-of-range indices without repeating the edge
// sample (OpenCV BORDER_REFLECT_101).
func reflectIndex(idx, size int) int {
	if size == 1 {
		return 0
	}
	for idx < 0 || idx >= size {
		if idx < 0 {
			idx = -idx
		}
		if idx >= size {
			idx = 2*size - 2 - idx
		}
	}
	return idx
}

// sepFilter2DReflect correlates src with kx along rows and ky along columns.
func sepFilter2DReflect(src Mat, dst *Mat, kx, ky []float32) {
	rows, cols := src.rows, src.cols
	kxHalf := len(kx) / 2
	kyHalf := len(ky) / 2
	temp := make([]float32, rows*cols)

	for r := 0; r < rows; r++ {
		rowOff := r * cols
		for c := 0; c < cols; c++ {
			var sum float32
			for k, w := range kx {
				cc := c + k - kxHalf
				if cc < 0 || cc >= cols {
					cc = reflectIndex(cc, cols)
				}
				sum += src.data[rowOff+cc] * w
			}
			temp[rowOff+c] = sum
		}
	}

	out := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var sum float32
			for k, w := range ky {
				rr := r + k - kyHalf
				if rr < 0 || rr >= rows {
					rr = reflectIndex(rr, rows)
				}
				sum += temp[rr*cols+c] * w
			}
			out[r*cols+c] = sum
		}
	}

	ensureSize(dst, rows, cols)
	copy(dst.data, out)
}

func gaussianKernel1D(size int, sigma float64) []float32 {
	kernel := make([]float32, size)
	half := size / 2
	sum := 0.0
	values := make([]float64, size)
	for i := range values {
		x := float64(i - half)
		values[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += values[i]
	}
	for i, v := range values {
		kernel[i] = float32(v / sum)
	}
	return kernel
}

func gaussianBlur(src Mat, dst *Mat, ksize int, sigma float64) {
	k := gaussianKernel1D(ksize, sigma)
	sepFilter2DReflect(src, dst, k, k)
}

func thresholdBinary(src Mat, dst *Mat, thresh, maxval float32) {
	out := make([]float32, len(src.data))
	for i, v := range src.data {
		if v > thresh {
			out[i] = maxval
		}
	}
	ensureSize(dst, src.rows, src.cols)
	copy(dst.data, out)
}

var (
	sobelDerivative = []float32{-1, 0, 1}
	sobelSmoothing  = []float32{1, 2, 1}
)

func sobel(src Mat, dst *Mat, dx, dy int) {
	kx, ky := sobelSmoothing, sobelSmoothing
	if dx == 1 {
		kx = sobelDerivative
	}
	if dy == 1 {
		ky = sobelDerivative
	}
	sepFilter2DReflect(src, dst, kx, ky)
}

// Clockwise neighbourhood, y pointing down: E, SE, S, SW, W, NW, N, NE.
var mooreOffsets = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// findExternalContours labels 8-connected foreground components and traces
// the outer boundary of each one with Moore-neighbour tracing. Components
// sitting inside another component's hole are reported as well.
func findExternalContours(binary Mat) []Contour {
	rows, cols := binary.rows, binary.cols
	data := binary.data
	inside := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < cols && y < rows && data[y*cols+x] != 0
	}

	labeled := make([]bool, rows*cols)
	var contours []Contour
	var stack []image.Point

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if data[y*cols+x] == 0 || labeled[y*cols+x] {
				continue
			}

			// Flood fill so later scan positions skip this component
			stack = append(stack[:0], image.Pt(x, y))
			labeled[y*cols+x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, o := range mooreOffsets {
					q := p.Add(o)
					if inside(q.X, q.Y) && !labeled[q.Y*cols+q.X] {
						labeled[q.Y*cols+q.X] = true
						stack = append(stack, q)
					}
				}
			}

			contours = append(contours, traceBoundary(inside, image.Pt(x, y)))
		}
	}
	return contours
}

// traceBoundary walks the outer boundary clockwise from start, which must be
// the first foreground pixel of its component in raster order. Tracing stops
// on Jacob's criterion: back at start and about to repeat the first move.
func traceBoundary(inside func(x, y int) bool, start image.Point) Contour {
	contour := Contour{start}
	p := start
	backtrack := 4 // west of the first raster pixel is background
	firstDir := -1

	for {
		next := -1
		for i := 1; i <= 8; i++ {
			d := (backtrack + i) % 8
			q := p.Add(mooreOffsets[d])
			if inside(q.X, q.Y) {
				next = d
				break
			}
		}
		if next < 0 {
			return contour
		}
		if firstDir < 0 {
			firstDir = next
		} else if p == start && next == firstDir {
			break
		}

		p = p.Add(mooreOffsets[next])
		contour = append(contour, p)
		if next%2 == 0 {
			backtrack = (next + 6) % 8
		} else {
			backtrack = (next + 5) % 8
		}
	}

	if len(contour) > 1 && contour[len(contour)-1] == start {
		contour = contour[:len(contour)-1]
	}
	return contour
}

func contourArea(c Contour) float64 {
	return math.Abs(c.signedArea())
}

func contourBounds(c Contour) image.Rectangle {
	if len(c) == 0 {
		return image.Rectangle{}
	}
	r := image.Rect(c[0].X, c[0].Y, c[0].X+1, c[0].Y+1)
	for _, p := range c[1:] {
		r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
	}
	return r
}

func warpPerspectiveLinear(src Mat, dst *Mat, t Transform) error {
	inv, err := t.Invert()
	if err != nil {
		return err
	}
	rows, cols := src.rows, src.cols
	out := make([]float32, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			p, ok := inv.apply(Point2d{X: float64(x), Y: float64(y)})
			if !ok {
				continue
			}
			out[y*cols+x] = float32(bilinearSampleZero(src, p.X, p.Y))
		}
	}
	ensureSize(dst, rows, cols)
	copy(dst.data, out)
	return nil
}

// bilinearSampleZero interpolates src at (x, y) treating every sample
// outside the grid as zero.
func bilinearSampleZero(src Mat, x, y float64) float64 {
	if x <= -1 || y <= -1 || x >= float64(src.cols) || y >= float64(src.rows) {
		return 0
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	at := func(xx, yy int) float64 {
		if xx < 0 || yy < 0 || xx >= src.cols || yy >= src.rows {
			return 0
		}
		return float64(src.data[yy*src.cols+xx])
	}
	top := at(x0, y0)*(1-fx) + at(x0+1, y0)*fx
	bottom := at(x0, y0+1)*(1-fx) + at(x0+1, y0+1)*fx
	return top*(1-fy) + bottom*fy
}

func medianBlur(src Mat, dst *Mat, ksize int) {
	rows, cols := src.rows, src.cols
	half := ksize / 2
	out := make([]float32, rows*cols)
	neighbors := make([]float32, ksize*ksize)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			idx := 0
			for dr := -half; dr <= half; dr++ {
				rr := clampInt(r+dr, 0, rows-1)
				for dc := -half; dc <= half; dc++ {
					cc := clampInt(c+dc, 0, cols-1)
					neighbors[idx] = src.data[rr*cols+cc]
					idx++
				}
			}
			sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
			out[r*cols+c] = neighbors[len(neighbors)/2]
		}
	}

	ensureSize(dst, rows, cols)
	copy(dst.data, out)
}

func absDiff(a, b Mat, dst *Mat) {
	out := make([]float32, len(a.data))
	for i := range a.data {
		d := a.data[i] - b.data[i]
		if d < 0 {
			d = -d
		}
		out[i] = d
	}
	ensureSize(dst, a.rows, a.cols)
	copy(dst.data, out)
}

func countNonZero(src Mat) int {
	count := 0
	for _, v := range src.data {
		if v != 0 {
			count++
		}
	}
	return count
}

func matCopyToWithMask(src Mat, dst *Mat, mask Mat) {
	for i, m := range mask.data {
		if m != 0 {
			dst.data[i] = src.data[i]
		}
	}
}

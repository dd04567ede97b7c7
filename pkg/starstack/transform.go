package starstack

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Transform is a 2-D mapping in homogeneous form. Points are column
// vectors: p' = M * [x y 1]^T followed by the perspective divide.
type Transform struct {
	M [3][3]float64
}

// Identity returns the transform that maps every point onto itself.
func Identity() Transform {
	return Transform{M: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// NewAffine builds the transform x' = a*x + b*y + tx, y' = c*x + d*y + ty.
func NewAffine(a, b, c, d, tx, ty float64) Transform {
	return Transform{M: [3][3]float64{{a, b, tx}, {c, d, ty}, {0, 0, 1}}}
}

// NewSimilarity builds a uniform scale followed by a counter-clockwise
// rotation (in image coordinates, y down) and a translation.
func NewSimilarity(scale, angle, tx, ty float64) Transform {
	cos := scale * math.Cos(angle)
	sin := scale * math.Sin(angle)
	return NewAffine(cos, -sin, sin, cos, tx, ty)
}

// Apply maps p through the transform. Points sent to infinity come back
// with infinite coordinates.
func (t Transform) Apply(p Point2d) Point2d {
	q, ok := t.apply(p)
	if !ok {
		return Point2d{X: math.Inf(1), Y: math.Inf(1)}
	}
	return q
}

func (t Transform) apply(p Point2d) (Point2d, bool) {
	x := t.M[0][0]*p.X + t.M[0][1]*p.Y + t.M[0][2]
	y := t.M[1][0]*p.X + t.M[1][1]*p.Y + t.M[1][2]
	w := t.M[2][0]*p.X + t.M[2][1]*p.Y + t.M[2][2]
	if w == 0 {
		return Point2d{}, false
	}
	return Point2d{X: x / w, Y: y / w}, true
}

// Compose returns the transform that applies u first and then t.
func (t Transform) Compose(u Transform) Transform {
	var out Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += t.M[r][k] * u.M[k][c]
			}
			out.M[r][c] = sum
		}
	}
	return out
}

// Invert returns the inverse mapping.
func (t Transform) Invert() (Transform, error) {
	m := t.dense()
	if det := mat.Det(m); det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Transform{}, fmt.Errorf("invert transform: %w", ErrDegenerateConfiguration)
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Transform{}, fmt.Errorf("invert transform: %w: %v", ErrDegenerateConfiguration, err)
	}
	var out Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.M[r][c] = inv.At(r, c)
		}
	}
	return out, nil
}

// Components extracts translation, rotation (radians) and scale. For an
// affine transform the scale is the square root of the area ratio.
func (t Transform) Components() (translation Point2d, rotation, scale float64) {
	translation = Point2d{X: t.M[0][2], Y: t.M[1][2]}
	rotation = math.Atan2(t.M[1][0], t.M[0][0])
	scale = math.Sqrt(math.Abs(t.M[0][0]*t.M[1][1] - t.M[0][1]*t.M[1][0]))
	return translation, rotation, scale
}

func (t Transform) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t.M[0][0], t.M[0][1], t.M[0][2],
		t.M[1][0], t.M[1][1], t.M[1][2],
		t.M[2][0], t.M[2][1], t.M[2][2],
	})
}

// SolveAffine fits the affine transform mapping src onto dst in the least
// squares sense. The system [x y 1]·X = [x' y'] is solved through a thin
// SVD; singular values below rcond times the largest one are discarded, so
// near-degenerate configurations yield the minimum-norm solution.
func SolveAffine(src, dst []Point2d, rcond float64) (Transform, error) {
	if len(src) != len(dst) {
		return Transform{}, fmt.Errorf("solve affine: %d source points, %d destination points", len(src), len(dst))
	}
	if len(src) < 3 {
		return Transform{}, fmt.Errorf("solve affine: %w: %d points", ErrInsufficientCorrespondences, len(src))
	}

	n := len(src)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewDense(n, 2, nil)
	for i := range src {
		a.Set(i, 0, src[i].X)
		a.Set(i, 1, src[i].Y)
		a.Set(i, 2, 1)
		b.Set(i, 0, dst[i].X)
		b.Set(i, 1, dst[i].Y)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return Transform{}, fmt.Errorf("solve affine: %w: SVD did not converge", ErrDegenerateConfiguration)
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return Transform{}, fmt.Errorf("solve affine: %w: rank 0", ErrDegenerateConfiguration)
	}

	var x mat.Dense
	svd.SolveTo(&x, b, rank)
	t := NewAffine(
		x.At(0, 0), x.At(1, 0),
		x.At(0, 1), x.At(1, 1),
		x.At(2, 0), x.At(2, 1),
	)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			if v := t.M[r][c]; math.IsNaN(v) || math.IsInf(v, 0) {
				return Transform{}, fmt.Errorf("solve affine: %w: non-finite solution", ErrDegenerateConfiguration)
			}
		}
	}
	return t, nil
}

// SolveSimilarity fits a uniform scale, rotation and translation mapping
// src onto dst with the closed-form centroid method. Scale is the ratio of
// summed distances to the centroids.
func SolveSimilarity(src, dst []Point2d) (Transform, error) {
	if len(src) != len(dst) {
		return Transform{}, fmt.Errorf("solve similarity: %d source points, %d destination points", len(src), len(dst))
	}
	if len(src) < 2 {
		return Transform{}, fmt.Errorf("solve similarity: %w: %d points", ErrInsufficientCorrespondences, len(src))
	}

	cs := centroidOf(src)
	cd := centroidOf(dst)

	var srcSpread, dstSpread, num, den float64
	for i := range src {
		s := src[i].Sub(cs)
		d := dst[i].Sub(cd)
		srcSpread += s.Norm()
		dstSpread += d.Norm()
		num += s.X*d.Y - s.Y*d.X
		den += s.X*d.X + s.Y*d.Y
	}
	if srcSpread == 0 {
		return Transform{}, fmt.Errorf("solve similarity: %w: source points coincide", ErrDegenerateConfiguration)
	}

	scale := dstSpread / srcSpread
	angle := math.Atan2(num, den)
	rs := NewSimilarity(scale, angle, 0, 0).Apply(cs)
	return NewSimilarity(scale, angle, cd.X-rs.X, cd.Y-rs.Y), nil
}

func centroidOf(points []Point2d) Point2d {
	var c Point2d
	for _, p := range points {
		c = c.Add(p)
	}
	n := float64(len(points))
	return Point2d{X: c.X / n, Y: c.Y / n}
}

package starstack

import (
	"context"
	"math"
	"sort"
)

// NewTriangle builds the descriptor of the stars with local ids a, b, c of
// one catalog.
func NewTriangle(catalog *Catalog, a, b, c int) Triangle {
	pa := catalog.Stars[a].Position
	pb := catalog.Stars[b].Position
	pc := catalog.Stars[c].Position

	t := Triangle{
		A: a, B: b, C: c,
		Side1: pa.Dist(pb),
		Side2: pb.Dist(pc),
		Side3: pc.Dist(pa),
	}
	t.Angle1 = lawOfCosines(t.Side1, t.Side3, t.Side2)
	t.Angle2 = lawOfCosines(t.Side1, t.Side2, t.Side3)
	t.Angle3 = math.Pi - t.Angle1 - t.Angle2
	return t
}

// lawOfCosines returns the angle between sides x and y, opposite side z.
func lawOfCosines(x, y, z float64) float64 {
	den := 2 * x * y
	if den == 0 {
		return 0
	}
	return math.Acos(clampFloat64((x*x+y*y-z*z)/den, -1, 1))
}

func (t Triangle) minMaxSide() (float64, float64) {
	return math.Min(t.Side1, math.Min(t.Side2, t.Side3)),
		math.Max(t.Side1, math.Max(t.Side2, t.Side3))
}

// sortedRatios returns the sides divided by the longest one, ascending.
func (t Triangle) sortedRatios() ([3]float64, bool) {
	_, longest := t.minMaxSide()
	if longest == 0 {
		return [3]float64{}, false
	}
	r := [3]float64{t.Side1 / longest, t.Side2 / longest, t.Side3 / longest}
	if r[0] > r[1] {
		r[0], r[1] = r[1], r[0]
	}
	if r[1] > r[2] {
		r[1], r[2] = r[2], r[1]
	}
	if r[0] > r[1] {
		r[0], r[1] = r[1], r[0]
	}
	return r, true
}

// BuildTriangles enumerates every triple i<j<k among the TriangleStars
// brightest stars in lexicographic order and keeps the triangles whose
// shortest side exceeds MinTriangleSide and whose longest/shortest ratio is
// below MaxTriangleRatio.
func BuildTriangles(catalog *Catalog, p *Params) *TriangleSet {
	set := &TriangleSet{Catalog: catalog}
	n := min(catalog.Len(), p.TriangleStars)
	for i := 0; i < n-2; i++ {
		for j := i + 1; j < n-1; j++ {
			for k := j + 1; k < n; k++ {
				t := NewTriangle(catalog, i, j, k)
				shortest, longest := t.minMaxSide()
				if shortest > p.MinTriangleSide && longest/shortest < p.MaxTriangleRatio {
					set.Triangles = append(set.Triangles, t)
				}
			}
		}
	}
	return set
}

// TriangleSimilarity compares the shapes of two triangles. Each triangle's
// sides are normalized by its longest side and sorted; the result is the
// mean of 1-|difference| over the three slots. The measure ignores vertex
// labelling and cannot tell a triangle from its mirror image.
func TriangleSimilarity(t1, t2 Triangle) float64 {
	r1, ok1 := t1.sortedRatios()
	r2, ok2 := t2.sortedRatios()
	if !ok1 || !ok2 {
		return 0
	}
	var sum float64
	for i := range r1 {
		sum += 1 - math.Abs(r1[i]-r2[i])
	}
	return sum / 3
}

// MatchTriangles returns every (reference, target) pair whose similarity
// exceeds TriangleSimilarity, highest similarity first. Equal similarities
// keep reference index order, then target index order.
func MatchTriangles(ctx context.Context, ref, target *TriangleSet, p *Params) ([]TriangleMatch, error) {
	var (
		matches []TriangleMatch
		err     error
	)
	if p.IndexedMatching {
		matches, err = matchIndexed(ctx, ref, target, p.TriangleSimilarity)
	} else {
		matches, err = matchBruteForce(ctx, ref, target, p.TriangleSimilarity)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

func matchBruteForce(ctx context.Context, ref, target *TriangleSet, threshold float64) ([]TriangleMatch, error) {
	var matches []TriangleMatch
	for i, rt := range ref.Triangles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j, tt := range target.Triangles {
			if s := TriangleSimilarity(rt, tt); s > threshold {
				matches = append(matches, TriangleMatch{RefTriangle: i, TargetTriangle: j, Similarity: s})
			}
		}
	}
	return matches, nil
}

type ratioCell [2]int

// matchIndexed buckets target triangles on their two free ratios. The
// largest ratio is always 1, so a pair above the threshold differs by less
// than 3(1-threshold) in each free ratio and lives in a neighbouring cell.
// The result equals matchBruteForce's.
func matchIndexed(ctx context.Context, ref, target *TriangleSet, threshold float64) ([]TriangleMatch, error) {
	cell := 3 * (1 - threshold)
	if cell <= 0 {
		return nil, nil
	}
	cellOf := func(r [3]float64) ratioCell {
		return ratioCell{int(math.Floor(r[0] / cell)), int(math.Floor(r[1] / cell))}
	}

	index := make(map[ratioCell][]int)
	for j, tt := range target.Triangles {
		r, ok := tt.sortedRatios()
		if !ok {
			continue
		}
		c := cellOf(r)
		index[c] = append(index[c], j)
	}

	var matches []TriangleMatch
	var candidates []int
	for i, rt := range ref.Triangles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, ok := rt.sortedRatios()
		if !ok {
			continue
		}
		c := cellOf(r)
		candidates = candidates[:0]
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				candidates = append(candidates, index[ratioCell{c[0] + dx, c[1] + dy}]...)
			}
		}
		sort.Ints(candidates)
		for _, j := range candidates {
			if s := TriangleSimilarity(rt, target.Triangles[j]); s > threshold {
				matches = append(matches, TriangleMatch{RefTriangle: i, TargetTriangle: j, Similarity: s})
			}
		}
	}
	return matches, nil
}

package starstack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCorrespondences(t *testing.T) {
	refCat := catalogAt(0, []Point2d{{0, 0}, {40, 0}, {0, 40}, {40, 40}})
	targetCat := catalogAt(3, []Point2d{{1, 1}, {41, 1}, {1, 41}, {41, 41}})
	ref := &TriangleSet{Catalog: refCat, Triangles: []Triangle{
		NewTriangle(refCat, 0, 1, 2),
		NewTriangle(refCat, 1, 2, 3),
	}}
	target := &TriangleSet{Catalog: targetCat, Triangles: []Triangle{
		NewTriangle(targetCat, 0, 1, 2),
		NewTriangle(targetCat, 1, 2, 3),
	}}

	corrs := ExtractCorrespondences(ref, target, []TriangleMatch{
		{RefTriangle: 1, TargetTriangle: 1, Similarity: 1},
		{RefTriangle: 0, TargetTriangle: 0, Similarity: 1},
	})
	require.Len(t, corrs, 4)

	var gotIDs []int
	for _, c := range corrs {
		assert.Equal(t, 0, c.Ref.Frame)
		assert.Equal(t, 3, c.Target.Frame)
		assert.Equal(t, c.Ref.ID, c.Target.ID)
		assert.Equal(t, refCat.Stars[c.Ref.ID].Position, c.RefPos)
		assert.Equal(t, targetCat.Stars[c.Target.ID].Position, c.TargetPos)
		gotIDs = append(gotIDs, c.Ref.ID)
	}
	// first occurrence fixes the order
	assert.Equal(t, []int{1, 2, 3, 0}, gotIDs)
}

func TestExtractCorrespondencesKeepsConflictingPairs(t *testing.T) {
	refCat := catalogAt(0, []Point2d{{0, 0}, {40, 0}, {0, 40}})
	targetCat := catalogAt(1, []Point2d{{0, 0}, {40, 0}, {0, 40}})
	ref := &TriangleSet{Catalog: refCat, Triangles: []Triangle{NewTriangle(refCat, 0, 1, 2)}}
	target := &TriangleSet{Catalog: targetCat, Triangles: []Triangle{
		NewTriangle(targetCat, 0, 1, 2),
		NewTriangle(targetCat, 1, 0, 2),
	}}

	corrs := ExtractCorrespondences(ref, target, []TriangleMatch{
		{RefTriangle: 0, TargetTriangle: 0},
		{RefTriangle: 0, TargetTriangle: 1},
	})
	// (0,0) (1,1) (2,2) then (0,1) (1,0); (2,2) repeats
	assert.Len(t, corrs, 5)
}

func TestEstimateTransformInsufficientMatches(t *testing.T) {
	p := DefaultParams()
	set := BuildTriangles(catalogAt(0, fieldPoints(testField)), p)
	matches := []TriangleMatch{{0, 0, 1}, {1, 1, 1}, {2, 2, 1}, {3, 3, 1}}

	params, err := EstimateTransform(set, set, matches, p)
	assert.ErrorIs(t, err, ErrInsufficientMatches)
	assert.False(t, params.IsValid)
}

func TestEstimateTransformSimilarityField(t *testing.T) {
	p := exactMatchParams()

	refPts := fieldPoints(testField)
	motion := NewSimilarity(1.05, 0.1, 7, -4)
	ref := BuildTriangles(catalogAt(0, refPts), p)
	target := BuildTriangles(catalogAt(1, mapPoints(motion, refPts)), p)

	matches, err := MatchTriangles(context.Background(), ref, target, p)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(matches), p.MinTrianglesToAlign)

	params, err := EstimateTransform(ref, target, matches, p)
	require.NoError(t, err)
	assert.True(t, params.IsValid)
	assert.Equal(t, ModelAffine, params.Model)
	assert.Equal(t, len(refPts), params.Correspondences)
	assert.InDelta(t, 1, params.Quality, 1e-6)
	assert.InDelta(t, 1/1.05, params.Scale, 1e-9)
	assert.InDelta(t, -0.1, params.Rotation, 1e-9)

	for _, rp := range refPts {
		assertPointNear(t, rp, params.Matrix.Apply(motion.Apply(rp)), 1e-6)
	}
}

func TestSolveCorrespondences(t *testing.T) {
	p := DefaultParams()
	shift := NewAffine(1, 0, 0, 1, -5, -3)
	corrsFor := func(n int) []Correspondence {
		pts := fieldPoints(testField)[:n]
		corrs := make([]Correspondence, n)
		for i, tp := range pts {
			corrs[i] = Correspondence{
				Ref:       StarKey{Frame: 0, ID: i},
				Target:    StarKey{Frame: 1, ID: i},
				RefPos:    shift.Apply(tp),
				TargetPos: tp,
			}
		}
		return corrs
	}

	t.Run("too few", func(t *testing.T) {
		params, err := SolveCorrespondences(corrsFor(2), p)
		assert.ErrorIs(t, err, ErrInsufficientCorrespondences)
		assert.False(t, params.IsValid)
		assert.Equal(t, 2, params.Correspondences)
	})

	for _, tc := range []struct {
		n     int
		model TransformModel
	}{
		{3, ModelSimilarity},
		{5, ModelSimilarity},
		{6, ModelAffine},
		{10, ModelAffine},
	} {
		params, err := SolveCorrespondences(corrsFor(tc.n), p)
		require.NoError(t, err, "n=%d", tc.n)
		assert.Equal(t, tc.model, params.Model, "n=%d", tc.n)
		assert.True(t, params.IsValid)
		assert.Equal(t, tc.n, params.Correspondences)
		assertPointNear(t, Point2d{X: -5, Y: -3}, params.Translation, 1e-9)
		assert.InDelta(t, 0, params.Rotation, 1e-9)
		assert.InDelta(t, 1, params.Scale, 1e-9)
		assert.InDelta(t, 1, params.Quality, 1e-9)
	}

	t.Run("coincident points", func(t *testing.T) {
		corrs := corrsFor(3)
		for i := range corrs {
			corrs[i].TargetPos = Point2d{X: 9, Y: 9}
		}
		params, err := SolveCorrespondences(corrs, p)
		assert.ErrorIs(t, err, ErrDegenerateConfiguration)
		assert.False(t, params.IsValid)
	})
}

func TestAlignmentQuality(t *testing.T) {
	ref := []Point2d{{0, 0}, {10, 0}, {0, 10}, {10, 10}}
	id := Identity()

	assert.Equal(t, 1.0, AlignmentQuality(ref, ref, id, 2))

	far := mapPoints(NewAffine(1, 0, 0, 1, 50, 50), ref)
	assert.Equal(t, 0.0, AlignmentQuality(ref, far, id, 2))

	// errors 1 and 3: only the first is an inlier
	mixed := []Point2d{{1, 0}, {13, 0}}
	assert.InDelta(t, 0.5, AlignmentQuality(ref[:2], mixed, id, 2), 1e-12)

	// an error equal to the limit is not an inlier
	edge := []Point2d{{2, 0}}
	assert.Equal(t, 0.0, AlignmentQuality(ref[:1], edge, id, 2))
}

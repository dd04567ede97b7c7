package starstack

import (
	"fmt"
	"math"
)

// affineMinPoints is the correspondence count from which the full affine
// model is solved instead of the similarity model.
const affineMinPoints = 6

// Correspondence pairs a reference star with a target star believed to be
// the same source.
type Correspondence struct {
	Ref       StarKey
	Target    StarKey
	RefPos    Point2d
	TargetPos Point2d
}

type correspondenceKey struct {
	ref, target StarKey
}

// ExtractCorrespondences turns triangle matches into point correspondences.
// Vertices a, b, c of the reference triangle pair with vertices a, b, c of
// the target triangle; repeated pairs are dropped and the first occurrence
// fixes the order.
func ExtractCorrespondences(ref, target *TriangleSet, matches []TriangleMatch) []Correspondence {
	seen := make(map[correspondenceKey]struct{}, 3*len(matches))
	var out []Correspondence
	for _, m := range matches {
		rt := ref.Triangles[m.RefTriangle]
		tt := target.Triangles[m.TargetTriangle]
		pairs := [3][2]int{{rt.A, tt.A}, {rt.B, tt.B}, {rt.C, tt.C}}
		for _, pr := range pairs {
			key := correspondenceKey{ref: ref.Catalog.Key(pr[0]), target: target.Catalog.Key(pr[1])}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Correspondence{
				Ref:       key.ref,
				Target:    key.target,
				RefPos:    ref.Catalog.Stars[pr[0]].Position,
				TargetPos: target.Catalog.Stars[pr[1]].Position,
			})
		}
	}
	return out
}

// EstimateTransform solves the mapping from target coordinates to reference
// coordinates from a list of triangle matches. On failure the returned
// params have IsValid=false and the error tells why.
func EstimateTransform(ref, target *TriangleSet, matches []TriangleMatch, p *Params) (TransformationParams, error) {
	if len(matches) < p.MinTrianglesToAlign {
		return TransformationParams{}, fmt.Errorf("%w: %d matches, need %d",
			ErrInsufficientMatches, len(matches), p.MinTrianglesToAlign)
	}
	return SolveCorrespondences(ExtractCorrespondences(ref, target, matches), p)
}

// SolveCorrespondences fits an affine model to six or more correspondences
// and a similarity model to three to five, then scores the fit.
func SolveCorrespondences(corrs []Correspondence, p *Params) (TransformationParams, error) {
	if len(corrs) < 3 {
		return TransformationParams{Correspondences: len(corrs)}, fmt.Errorf("%w: %d distinct points, need 3",
			ErrInsufficientCorrespondences, len(corrs))
	}

	refPts := make([]Point2d, len(corrs))
	targetPts := make([]Point2d, len(corrs))
	for i, c := range corrs {
		refPts[i] = c.RefPos
		targetPts[i] = c.TargetPos
	}

	var (
		t     Transform
		model TransformModel
		err   error
	)
	if len(corrs) >= affineMinPoints {
		model = ModelAffine
		t, err = SolveAffine(targetPts, refPts, p.AlignmentRcond)
	} else {
		model = ModelSimilarity
		t, err = SolveSimilarity(targetPts, refPts)
	}
	if err != nil {
		return TransformationParams{Model: model, Correspondences: len(corrs)}, err
	}

	translation, rotation, scale := t.Components()
	return TransformationParams{
		Translation:     translation,
		Rotation:        rotation,
		Scale:           scale,
		Matrix:          t,
		Model:           model,
		Correspondences: len(corrs),
		IsValid:         true,
		Quality:         AlignmentQuality(refPts, targetPts, t, p.MaxAlignmentError),
	}, nil
}

// AlignmentQuality maps every target point through t and measures the
// distance to its reference point. Points closer than maxError are inliers;
// the score is (maxError - mean inlier error) / maxError, or 0 when no
// point is an inlier.
func AlignmentQuality(refPts, targetPts []Point2d, t Transform, maxError float64) float64 {
	var total float64
	inliers := 0
	for i := range targetPts {
		q, ok := t.apply(targetPts[i])
		if !ok {
			continue
		}
		e := q.Dist(refPts[i])
		if e < maxError && !math.IsNaN(e) {
			total += e
			inliers++
		}
	}
	if inliers == 0 {
		return 0
	}
	return (maxError - total/float64(inliers)) / maxError
}

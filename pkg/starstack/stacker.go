package starstack

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
)

// StackerState is the lifecycle stage of a Stacker.
type StackerState int

const (
	StateEmpty StackerState = iota
	StateLoaded
	StateAnalyzed
	StateReferenceSelected
	StateComposited
)

func (s StackerState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateAnalyzed:
		return "analyzed"
	case StateReferenceSelected:
		return "reference-selected"
	case StateComposited:
		return "composited"
	default:
		return "empty"
	}
}

type frameAnalysis struct {
	catalog   *Catalog
	quality   float64
	hotpixels int
	coverage  *FieldCoverage
}

// Stacker registers a set of frames onto the best one and combines them
// into a quality-weighted composite. The stages must run in order:
// Load, Analyze, SelectReference, Composite.
type Stacker struct {
	params *Params
	logger *slog.Logger

	state    StackerState
	width    int
	height   int
	frames   []Mat
	analyses []frameAnalysis

	reference    int
	refTriangles *TriangleSet
	reports      []FrameReport
}

// NewStacker returns a stacker using p. A nil logger discards output.
func NewStacker(p *Params, logger *slog.Logger) (*Stacker, error) {
	if p == nil {
		p = DefaultParams()
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stacker{params: p, logger: logger, reference: -1}, nil
}

// State returns the current lifecycle stage.
func (s *Stacker) State() StackerState { return s.state }

// Reference returns the index of the reference frame, or -1 before
// SelectReference.
func (s *Stacker) Reference() int { return s.reference }

// Catalog returns the star catalog of frame i once the frames are analyzed.
func (s *Stacker) Catalog(i int) *Catalog {
	if s.state < StateAnalyzed || i < 0 || i >= len(s.analyses) {
		return nil
	}
	return s.analyses[i].catalog
}

// Load takes ownership of copies of the given frames. All frames must share
// the same dimensions.
func (s *Stacker) Load(frames []*image.Gray) error {
	if s.state != StateEmpty {
		return fmt.Errorf("load: %w (state %s)", errWrongState, s.state)
	}
	if len(frames) == 0 {
		return ErrNoFrames
	}

	b := frames[0].Bounds()
	for i, f := range frames {
		fb := f.Bounds()
		if fb.Dx() != b.Dx() || fb.Dy() != b.Dy() {
			return fmt.Errorf("%w: frame %d is %dx%d, frame 0 is %dx%d",
				ErrDimensionMismatch, i, fb.Dx(), fb.Dy(), b.Dx(), b.Dy())
		}
		if fb.Empty() {
			return fmt.Errorf("frame %d: empty image", i)
		}
	}

	s.width, s.height = b.Dx(), b.Dy()
	s.frames = make([]Mat, len(frames))
	for i, f := range frames {
		s.frames[i] = MatFromGray(f)
	}
	s.reports = make([]FrameReport, len(frames))
	for i := range s.reports {
		s.reports[i] = FrameReport{Index: i, Status: FramePending}
	}
	s.state = StateLoaded
	s.logger.Info("frames loaded", "frames", len(frames), "width", s.width, "height", s.height)
	return nil
}

// Analyze detects stars and scores every frame. Frames are processed
// concurrently, bounded by the Workers setting.
func (s *Stacker) Analyze(ctx context.Context) error {
	if s.state != StateLoaded {
		return fmt.Errorf("analyze: %w (state %s)", errWrongState, s.state)
	}

	s.analyses = make([]frameAnalysis, len(s.frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.EffectiveWorkers())
	for i := range s.frames {
		g.Go(func() error {
			det, err := DetectStars(gctx, s.frames[i], i, s.params)
			if err != nil {
				return fmt.Errorf("analyze frame %d: %w", i, err)
			}
			s.analyses[i] = frameAnalysis{
				catalog:   det.Catalog,
				quality:   QualityScore(s.frames[i], det.Catalog),
				hotpixels: det.HotpixelCount,
				coverage:  AnalyzeCoverage(det.Catalog, s.width, s.height),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, a := range s.analyses {
		r := &s.reports[i]
		r.Stars = a.catalog.Len()
		r.Quality = a.quality
		r.Hotpixels = a.hotpixels
		r.Coverage = a.coverage
		s.logger.Debug("frame analyzed",
			"frame", i, "stars", r.Stars, "quality", r.Quality,
			"hotpixels", r.Hotpixels, "zones", a.coverage.OccupiedZones)
	}
	s.state = StateAnalyzed
	return nil
}

// SelectReference picks the frame with the highest quality score, the first
// one on ties, and builds its triangle catalog.
func (s *Stacker) SelectReference() (int, error) {
	if s.state != StateAnalyzed {
		return -1, fmt.Errorf("select reference: %w (state %s)", errWrongState, s.state)
	}

	best := 0
	for i, a := range s.analyses {
		if a.quality > s.analyses[best].quality {
			best = i
		}
	}
	s.reference = best
	s.refTriangles = BuildTriangles(s.analyses[best].catalog, s.params)

	r := &s.reports[best]
	r.Status = FrameReference
	r.Triangles = s.refTriangles.Len()
	r.Transform = TransformationParams{
		Scale:   1,
		Matrix:  Identity(),
		IsValid: true,
		Quality: 1,
	}

	s.state = StateReferenceSelected
	s.logger.Info("reference selected",
		"frame", best, "stars", r.Stars, "quality", r.Quality, "triangles", r.Triangles)
	return best, nil
}

type accumulator struct {
	mu        sync.Mutex
	sum       []float64
	weightSum float64
}

func (a *accumulator) add(frame Mat, weight float64) {
	data := frame.DataFloat32()
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, v := range data {
		a.sum[i] += float64(v) * weight
	}
	a.weightSum += weight
}

// Composite aligns every non-reference frame onto the reference and
// returns the weighted average of all frames that aligned. Frames that fail
// alignment are dropped and reported. When the total weight is not positive
// the composite is undefined and no image is returned.
func (s *Stacker) Composite(ctx context.Context) (*Result, error) {
	if s.state != StateReferenceSelected {
		return nil, fmt.Errorf("composite: %w (state %s)", errWrongState, s.state)
	}

	acc := &accumulator{sum: make([]float64, s.width*s.height)}
	acc.add(s.frames[s.reference], s.analyses[s.reference].quality)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.EffectiveWorkers())
	for i := range s.frames {
		if i == s.reference {
			continue
		}
		g.Go(func() error {
			aligned, err := s.alignFrame(gctx, i)
			if err != nil {
				var ae *AlignmentError
				if !errors.As(err, &ae) {
					return err
				}
				s.reports[i].Status = FrameRejected
				s.reports[i].Err = err
				s.logger.Warn("frame rejected",
					"frame", i, "matches", s.reports[i].Matches,
					"correspondences", s.reports[i].Correspondences, "reason", ae.Reason)
				return nil
			}
			defer aligned.Close()

			acc.add(aligned, s.analyses[i].quality)
			s.reports[i].Status = FrameAligned
			t := s.reports[i].Transform
			s.logger.Debug("frame aligned",
				"frame", i, "matches", s.reports[i].Matches,
				"correspondences", t.Correspondences, "model", t.Model.String(),
				"alignment_quality", t.Quality)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Reference:        s.reference,
		ReferenceCatalog: s.analyses[s.reference].catalog,
		Frames:           s.reports,
		WeightSum:        acc.weightSum,
	}
	for _, r := range s.reports {
		switch r.Status {
		case FrameAligned:
			result.Aligned++
		case FrameRejected:
			result.Rejected++
		}
	}

	w := acc.weightSum
	if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		s.logger.Error("composite undefined", "weight_sum", w, "aligned", result.Aligned, "rejected", result.Rejected)
		return nil, fmt.Errorf("%w: weight sum %g", ErrCompositeUndefined, w)
	}
	if len(s.frames) > 1 && result.Aligned == 0 {
		s.logger.Warn("no frame aligned, composite is the reference frame", "frame", s.reference)
	}

	img := image.NewGray(image.Rect(0, 0, s.width, s.height))
	for i, v := range acc.sum {
		img.Pix[i] = clampUint8(v / w)
	}
	result.Composite = img

	s.state = StateComposited
	s.logger.Info("composite complete",
		"reference", s.reference, "aligned", result.Aligned, "rejected", result.Rejected, "weight_sum", w)
	return result, nil
}

// alignFrame registers frame i onto the reference and returns the warped
// frame. Registration failures come back as *AlignmentError; anything else
// aborts the run.
func (s *Stacker) alignFrame(ctx context.Context, i int) (Mat, error) {
	r := &s.reports[i]
	triangles := BuildTriangles(s.analyses[i].catalog, s.params)
	r.Triangles = triangles.Len()

	matches, err := MatchTriangles(ctx, s.refTriangles, triangles, s.params)
	if err != nil {
		return Mat{}, err
	}
	r.Matches = len(matches)

	params, err := EstimateTransform(s.refTriangles, triangles, matches, s.params)
	r.Transform = params
	r.Correspondences = params.Correspondences
	if err != nil {
		return Mat{}, &AlignmentError{Frame: i, Reason: err}
	}

	warped := NewMat()
	if err := warpPerspectiveLinear(s.frames[i], &warped, params.Matrix); err != nil {
		warped.Close()
		r.Transform.IsValid = false
		return Mat{}, &AlignmentError{Frame: i, Reason: err}
	}
	return warped, nil
}

// Close releases the frame buffers.
func (s *Stacker) Close() {
	for i := range s.frames {
		s.frames[i].Close()
	}
	s.frames = nil
}

// Stack runs the whole pipeline on frames: analysis, reference selection
// and compositing.
func Stack(ctx context.Context, frames []*image.Gray, p *Params, logger *slog.Logger) (*Result, error) {
	s, err := NewStacker(p, logger)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Load(frames); err != nil {
		return nil, err
	}
	if err := s.Analyze(ctx); err != nil {
		return nil, err
	}
	if _, err := s.SelectReference(); err != nil {
		return nil, err
	}
	return s.Composite(ctx)
}

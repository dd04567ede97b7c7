package starstack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Params carries every tunable of the registration pipeline. Each
// component receives it explicitly and never mutates it.
type Params struct {
	// Star detection
	StarThreshold     float64 `json:"star_threshold"`
	MinStarArea       float64 `json:"min_star_area"`
	MaxStarArea       float64 `json:"max_star_area"`
	MaxStars          int     `json:"max_stars"`
	BlurKernelSize    int     `json:"blur_kernel_size"`
	BlurSigma         float64 `json:"blur_sigma"`
	HotpixelFilter    bool    `json:"hotpixel_filter"`
	HotpixelThreshold float64 `json:"hotpixel_threshold"`

	// Triangle catalog
	TriangleStars       int     `json:"triangle_stars"`
	MinTriangleSide     float64 `json:"min_triangle_side"`
	MaxTriangleRatio    float64 `json:"max_triangle_ratio"`
	TriangleSimilarity  float64 `json:"triangle_similarity_threshold"`
	IndexedMatching     bool    `json:"indexed_matching"`
	MinTrianglesToAlign int     `json:"min_triangles_for_alignment"`

	// Transform estimation
	MaxAlignmentError float64 `json:"max_alignment_error"`
	AlignmentRcond    float64 `json:"alignment_rcond"`

	// Stacking
	Workers int `json:"workers"`
}

// DefaultParams returns the reference tunables.
func DefaultParams() *Params {
	return &Params{
		StarThreshold:       50.0,
		MinStarArea:         3,
		MaxStarArea:         100,
		MaxStars:            100,
		BlurKernelSize:      3,
		BlurSigma:           1.0,
		HotpixelFilter:      false,
		HotpixelThreshold:   30,
		TriangleStars:       50,
		MinTriangleSide:     10.0,
		MaxTriangleRatio:    10.0,
		TriangleSimilarity:  0.95,
		IndexedMatching:     false,
		MinTrianglesToAlign: 5,
		MaxAlignmentError:   2.0,
		AlignmentRcond:      1e-12,
		Workers:             0,
	}
}

// Validate reports the first out-of-range tunable.
func (p *Params) Validate() error {
	switch {
	case p.StarThreshold < 0 || p.StarThreshold > 255:
		return fmt.Errorf("star_threshold must be in [0, 255], got %f", p.StarThreshold)
	case p.MinStarArea < 0:
		return fmt.Errorf("min_star_area must not be negative, got %f", p.MinStarArea)
	case p.MaxStarArea < p.MinStarArea:
		return fmt.Errorf("max_star_area (%f) must not be below min_star_area (%f)", p.MaxStarArea, p.MinStarArea)
	case p.MaxStars <= 0:
		return fmt.Errorf("max_stars must be positive, got %d", p.MaxStars)
	case p.BlurKernelSize < 3 || p.BlurKernelSize%2 == 0:
		return fmt.Errorf("blur_kernel_size must be an odd number >= 3, got %d", p.BlurKernelSize)
	case p.BlurSigma <= 0:
		return fmt.Errorf("blur_sigma must be positive, got %f", p.BlurSigma)
	case p.HotpixelThreshold < 0:
		return fmt.Errorf("hotpixel_threshold must not be negative, got %f", p.HotpixelThreshold)
	case p.TriangleStars < 3:
		return fmt.Errorf("triangle_stars must be at least 3, got %d", p.TriangleStars)
	case p.MinTriangleSide < 0:
		return fmt.Errorf("min_triangle_side must not be negative, got %f", p.MinTriangleSide)
	case p.MaxTriangleRatio <= 1:
		return fmt.Errorf("max_triangle_ratio must exceed 1, got %f", p.MaxTriangleRatio)
	case p.TriangleSimilarity < 0 || p.TriangleSimilarity > 1:
		return fmt.Errorf("triangle_similarity_threshold must be in [0, 1], got %f", p.TriangleSimilarity)
	case p.MinTrianglesToAlign < 1:
		return fmt.Errorf("min_triangles_for_alignment must be positive, got %d", p.MinTrianglesToAlign)
	case p.MaxAlignmentError <= 0:
		return fmt.Errorf("max_alignment_error must be positive, got %f", p.MaxAlignmentError)
	case p.AlignmentRcond < 0 || p.AlignmentRcond >= 1:
		return fmt.Errorf("alignment_rcond must be in [0, 1), got %g", p.AlignmentRcond)
	case p.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", p.Workers)
	}
	return nil
}

// EffectiveWorkers resolves Workers=0 to the number of usable CPUs.
func (p *Params) EffectiveWorkers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

const maxParamsFileSize = 1 << 20

// LoadParams reads a JSON tuning file and overlays it onto DefaultParams.
// Fields missing from the file keep their default values.
func LoadParams(path string) (*Params, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat tuning file: %w", err)
	}
	if info.Size() > maxParamsFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxParamsFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	p := DefaultParams()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("parse tuning file %s: %w", cleanPath, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning file %s: %w", cleanPath, err)
	}
	return p, nil
}

package starstack

import (
	"fmt"
	"image"
	"math"
)

// Point2d represents a 2D point with float64 coordinates.
type Point2d struct {
	X, Y float64
}

func (p Point2d) Sub(q Point2d) Point2d { return Point2d{X: p.X - q.X, Y: p.Y - q.Y} }
func (p Point2d) Add(q Point2d) Point2d { return Point2d{X: p.X + q.X, Y: p.Y + q.Y} }
func (p Point2d) Norm() float64         { return math.Hypot(p.X, p.Y) }

// Dist returns the Euclidean distance between p and q.
func (p Point2d) Dist(q Point2d) float64 { return p.Sub(q).Norm() }

// Star represents a detected point source. ID is the index of the star
// within its frame's catalog and is meaningless outside that catalog.
type Star struct {
	ID          int
	Position    Point2d
	Brightness  float64
	BoundingBox image.Rectangle
	Area        float64
}

func (s Star) String() string {
	return fmt.Sprintf("{ID=%d, Position=(%f,%f), Brightness=%f, Area=%f}",
		s.ID, s.Position.X, s.Position.Y, s.Brightness, s.Area)
}

// StarKey identifies a star together with the frame that produced it.
type StarKey struct {
	Frame int
	ID    int
}

// Catalog is the ordered star list of one frame, brightest first.
type Catalog struct {
	Frame int
	Stars []Star
}

// Key returns the frame-scoped key of the star with the given local id.
func (c *Catalog) Key(id int) StarKey { return StarKey{Frame: c.Frame, ID: id} }

// Len returns the number of stars in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Stars)
}

// Triangle is a shape descriptor built from three stars of one catalog.
// Side1 spans (A,B), Side2 spans (B,C), Side3 spans (C,A).
type Triangle struct {
	A, B, C             int
	Side1, Side2, Side3 float64
	Angle1, Angle2      float64
	Angle3              float64
}

// TriangleSet holds the triangles derived from one catalog.
type TriangleSet struct {
	Catalog   *Catalog
	Triangles []Triangle
}

// Len returns the number of triangles in the set.
func (ts *TriangleSet) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.Triangles)
}

// TriangleMatch is a candidate correspondence between a reference
// triangle and a target triangle.
type TriangleMatch struct {
	RefTriangle    int
	TargetTriangle int
	Similarity     float64
}

// TransformModel names the solver that produced a transform.
type TransformModel int

const (
	ModelNone TransformModel = iota
	ModelSimilarity
	ModelAffine
)

func (m TransformModel) String() string {
	switch m {
	case ModelSimilarity:
		return "similarity"
	case ModelAffine:
		return "affine"
	default:
		return "none"
	}
}

// TransformationParams is the outcome of solving a target->reference mapping.
// Matrix is the single source of truth; Translation, Rotation and Scale are
// informational components derived from it.
type TransformationParams struct {
	Translation     Point2d
	Rotation        float64
	Scale           float64
	Matrix          Transform
	Model           TransformModel
	Correspondences int
	IsValid         bool
	Quality         float64
}

func (t TransformationParams) String() string {
	if !t.IsValid {
		return "{invalid}"
	}
	return fmt.Sprintf("{Model=%s, Translation=(%.3f,%.3f), Rotation=%.5f, Scale=%.5f, Quality=%.4f, Points=%d}",
		t.Model, t.Translation.X, t.Translation.Y, t.Rotation, t.Scale, t.Quality, t.Correspondences)
}

// FrameStatus tells how a frame took part in the composite.
type FrameStatus int

const (
	FramePending FrameStatus = iota
	FrameReference
	FrameAligned
	FrameRejected
)

func (s FrameStatus) String() string {
	switch s {
	case FrameReference:
		return "reference"
	case FrameAligned:
		return "aligned"
	case FrameRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// FrameReport collects everything the stacker learned about one frame.
type FrameReport struct {
	Index           int
	Stars           int
	Hotpixels       int
	Quality         float64
	Triangles       int
	Matches         int
	Correspondences int
	Transform       TransformationParams
	Coverage        *FieldCoverage
	Status          FrameStatus
	Err             error
}

// Result is the output of a completed stacking run.
type Result struct {
	Composite        *image.Gray
	Reference        int
	// ReferenceCatalog holds the stars of the reference frame.
	ReferenceCatalog *Catalog
	Frames           []FrameReport
	Aligned          int
	Rejected         int
	WeightSum        float64
}

// ZonePosition identifies a zone in the 3x3 field grid.
type ZonePosition int

const (
	ZoneTopLeft ZonePosition = iota
	ZoneTop
	ZoneTopRight
	ZoneLeft
	ZoneCenter
	ZoneRight
	ZoneBottomLeft
	ZoneBottom
	ZoneBottomRight
)

// ZoneData holds per-zone star statistics.
type ZoneData struct {
	Label          string
	StarCount      int
	MeanBrightness float64
}

// FieldCoverage describes how a frame's stars spread across the field.
type FieldCoverage struct {
	Zones         map[ZonePosition]ZoneData
	OccupiedZones int
	Balanced      bool
}

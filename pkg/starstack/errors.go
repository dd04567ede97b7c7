package starstack

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFrames is returned when a run is started without any frame.
	ErrNoFrames = errors.New("no frames loaded")
	// ErrDimensionMismatch is returned when frames differ in size.
	ErrDimensionMismatch = errors.New("frame dimensions differ")

	ErrInsufficientMatches         = errors.New("insufficient triangle matches")
	ErrInsufficientCorrespondences = errors.New("insufficient point correspondences")
	ErrDegenerateConfiguration     = errors.New("degenerate point configuration")

	// ErrCompositeUndefined is returned when the accumulated weight leaves
	// output pixels without a defined value.
	ErrCompositeUndefined = errors.New("composite undefined: zero accumulated weight")

	errWrongState = errors.New("stacker is not in the required state")
)

// AlignmentError reports why one frame could not be registered onto the
// reference. It is recovered locally by dropping the frame.
type AlignmentError struct {
	Frame  int
	Reason error
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("frame %d: alignment failed: %v", e.Frame, e.Reason)
}

func (e *AlignmentError) Unwrap() error { return e.Reason }

package gridlock

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Construction errors. Contention at runtime is never an error; these are
// the only failure modes New reports.
var (
	// ErrDegenerateBounds means the bounding volume has zero or negative
	// extent on at least one axis, which would make the per-axis
	// resolution undefined.
	ErrDegenerateBounds = errors.New("gridlock: degenerate bounding volume")

	// ErrBadResolution means cellsPerAxis was not a positive number.
	ErrBadResolution = errors.New("gridlock: cells per axis must be positive")
)

// Bounds is the axis-aligned bounding volume the grid partitions.
// It is fixed at construction and never changes for the life of a Grid.
type Bounds struct {
	Min r3.Vec
	Max r3.Vec
}

// NewBounds builds a Bounds from two opposite corners, normalising so that
// Min holds the componentwise minimum.
func NewBounds(a, b r3.Vec) Bounds {
	return Bounds{
		Min: r3.Vec{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)},
		Max: r3.Vec{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)},
	}
}

// Size returns the per-axis extents of the volume.
func (b Bounds) Size() r3.Vec {
	return r3.Sub(b.Max, b.Min)
}

// validate reports whether the volume has positive extent on every axis.
func (b Bounds) validate() error {
	s := b.Size()
	if s.X <= 0 || s.Y <= 0 || s.Z <= 0 {
		return fmt.Errorf("%w: extents (%g, %g, %g)", ErrDegenerateBounds, s.X, s.Y, s.Z)
	}
	return nil
}

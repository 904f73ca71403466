package gridlock

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// indexer owns the point-to-cell mapping. All three lock strategies share
// it; the mapping is deterministic for the life of the Grid.
//
// A point maps to integer grid coordinates by linear scaling against the
// precomputed per-axis resolution (n / extent), then each coordinate is
// clamped into [0, n-1]. Points outside the bounding volume therefore snap
// to the nearest boundary cell rather than being rejected; snaps are
// counted so callers can spot points that were never meant to be in range.
type indexer struct {
	n   int // cells per axis
	min r3.Vec
	res r3.Vec // cells per metre on each axis
}

func newIndexer(b Bounds, cellsPerAxis int) indexer {
	s := b.Size()
	n := float64(cellsPerAxis)
	return indexer{
		n:   cellsPerAxis,
		min: b.Min,
		res: r3.Vec{X: n / s.X, Y: n / s.Y, Z: n / s.Z},
	}
}

// coords maps a point to grid coordinates, clamping each axis into
// [0, n-1]. clamped reports whether any axis was out of range.
func (ix indexer) coords(p r3.Vec) (cx, cy, cz int, clamped bool) {
	cx, c1 := ix.clampAxis((p.X - ix.min.X) * ix.res.X)
	cy, c2 := ix.clampAxis((p.Y - ix.min.Y) * ix.res.Y)
	cz, c3 := ix.clampAxis((p.Z - ix.min.Z) * ix.res.Z)
	return cx, cy, cz, c1 || c2 || c3
}

func (ix indexer) clampAxis(v float64) (int, bool) {
	c := int(v)
	if c < 0 {
		return 0, true
	}
	if c >= ix.n {
		return ix.n - 1, true
	}
	return c, false
}

// index flattens grid coordinates row-major: idx = cz*n*n + cy*n + cx.
func (ix indexer) index(cx, cy, cz int) int {
	return cz*ix.n*ix.n + cy*ix.n + cx
}

// numCells returns the total cell count n³.
func (ix indexer) numCells() int {
	return ix.n * ix.n * ix.n
}

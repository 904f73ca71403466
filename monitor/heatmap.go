// Package monitor aggregates lock-traffic statistics for a gridlock.Grid
// and renders them for inspection. It stays out of the lock hot path:
// workers tally into their own Counts and the results are merged after a
// run.
package monitor

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Counts holds per-cell acquisition tallies for one worker (or the merge
// of several). Indexing matches gridlock's row-major cell indices. Not
// safe for concurrent use; give each worker its own Counts and Merge at
// the end of the run.
type Counts struct {
	n     int
	cells []uint64
}

// NewCounts allocates tallies for a grid with cellsPerAxis cells per axis.
func NewCounts(cellsPerAxis int) *Counts {
	return &Counts{
		n:     cellsPerAxis,
		cells: make([]uint64, cellsPerAxis*cellsPerAxis*cellsPerAxis),
	}
}

// CellsPerAxis returns the grid resolution the tallies cover.
func (c *Counts) CellsPerAxis() int { return c.n }

// Add records one acquisition of the given cell.
func (c *Counts) Add(idx int) { c.cells[idx]++ }

// At returns the tally for one cell.
func (c *Counts) At(idx int) uint64 { return c.cells[idx] }

// Total returns the sum over all cells.
func (c *Counts) Total() uint64 {
	var t uint64
	for _, v := range c.cells {
		t += v
	}
	return t
}

// Merge folds another worker's tallies into c. The grids must match.
func (c *Counts) Merge(o *Counts) error {
	if o.n != c.n {
		return fmt.Errorf("monitor: cannot merge counts for %d cells/axis into %d", o.n, c.n)
	}
	for i, v := range o.cells {
		c.cells[i] += v
	}
	return nil
}

// slice adapts one z-plane of a Counts to plotter.GridXYZ.
type slice struct {
	c *Counts
	z int
}

func (s slice) Dims() (cols, rows int) { return s.c.n, s.c.n }
func (s slice) X(col int) float64      { return float64(col) }
func (s slice) Y(row int) float64      { return float64(row) }

func (s slice) Z(col, row int) float64 {
	n := s.c.n
	return float64(s.c.cells[s.z*n*n+row*n+col])
}

// HeatmapPNG renders the acquisition tallies of one z-plane as a heatmap
// and writes it to path. Hot boundary rows or columns on a clean workload
// usually mean out-of-range points are being clamped onto boundary cells.
func HeatmapPNG(c *Counts, z int, path string) error {
	if z < 0 || z >= c.n {
		return fmt.Errorf("monitor: z plane %d out of range [0,%d)", z, c.n)
	}

	hm := plotter.NewHeatMap(slice{c: c, z: z}, palette.Heat(16, 1))
	// Keep the palette stable even when the plane is all zeros.
	if hm.Max <= hm.Min {
		hm.Min, hm.Max = 0, 1
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("lock acquisitions, z=%d", z)
	p.X.Label.Text = "cell x"
	p.Y.Label.Text = "cell y"
	p.Add(hm)

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save heatmap: %w", err)
	}
	return nil
}

package gridlock

import (
	"fmt"
	"log"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
)

// Grid is a spatial lock manager over a fixed bounding volume divided into
// cellsPerAxis³ uniform cells. The cell table is the only cross-worker
// shared mutable state; it is sized once at construction and never
// reallocated. Bounds and resolution are immutable for the Grid's life.
//
// Workers interact through per-goroutine Handles (see Handle). Destroying
// a Grid (letting it be collected) while cells are held is a caller bug;
// drain with Handle.ReleaseAll first.
type Grid struct {
	idx      indexer
	table    cellTable
	strategy Strategy
	logger   *log.Logger

	nextOwner atomic.Uint32 // last owner id handed out; ids start at 1, never reused
	clamps    atomic.Uint64 // points snapped into range by the indexer
}

// Option configures a Grid at construction.
type Option func(*Grid)

// WithStrategy selects the per-cell locking primitive. The default is
// StrategyBinary.
func WithStrategy(s Strategy) Option {
	return func(g *Grid) { g.strategy = s }
}

// WithLogger routes misuse warnings to l instead of the process default
// logger.
func WithLogger(l *log.Logger) Option {
	return func(g *Grid) { g.logger = l }
}

// New builds a Grid over bounds with cellsPerAxis cells on each axis.
// It fails if cellsPerAxis is not positive or bounds has no extent on some
// axis; those are the only error paths in the package.
func New(bounds Bounds, cellsPerAxis int, opts ...Option) (*Grid, error) {
	if cellsPerAxis <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadResolution, cellsPerAxis)
	}
	if err := bounds.validate(); err != nil {
		return nil, err
	}

	g := &Grid{
		idx:      newIndexer(bounds, cellsPerAxis),
		strategy: StrategyBinary,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.table = newCellTable(g.strategy, g.idx.numCells())
	return g, nil
}

// CellsPerAxis returns the grid resolution N.
func (g *Grid) CellsPerAxis() int { return g.idx.n }

// NumCells returns the total cell count N³.
func (g *Grid) NumCells() int { return g.idx.numCells() }

// Strategy returns the locking strategy chosen at construction.
func (g *Grid) Strategy() Strategy { return g.strategy }

// CellAt maps a point to its cell index. The mapping is deterministic for
// the life of the Grid; out-of-bounds points snap to the nearest boundary
// cell (and bump ClampCount) rather than erroring.
func (g *Grid) CellAt(p r3.Vec) int {
	cx, cy, cz, clamped := g.idx.coords(p)
	if clamped {
		g.clamps.Add(1)
	}
	return g.idx.index(cx, cy, cz)
}

// ClampCount returns how many point lookups were snapped into range so
// far. A steadily climbing count usually means callers are feeding points
// far outside the intended volume, which collapses them onto boundary
// cells and shows up as false contention there.
func (g *Grid) ClampCount() uint64 { return g.clamps.Load() }

// Handle mints a worker handle. Each worker goroutine should call this
// once and keep the handle for its lifetime; the handle carries the
// worker's owner id and its ownership ledger and must not be shared
// across goroutines.
func (g *Grid) Handle() *Handle {
	return &Handle{
		g:   g,
		id:  g.nextOwner.Add(1),
		led: newLedger(g.idx.numCells()),
	}
}

// Handle is one worker's view of a Grid: its unique owner id plus the
// ledger of cells it currently holds. All locking and unlocking goes
// through a Handle. Not safe for concurrent use; mint one per goroutine.
type Handle struct {
	g   *Grid
	id  uint32
	led *ledger
}

// OwnerID returns the handle's unique owner id (>0). Under
// StrategyOwnerOrdered, lower ids win contended cells.
func (h *Handle) OwnerID() uint32 { return h.id }

// TryLockCell attempts to acquire one cell by index. It returns true if
// the cell was free or already held by this handle, false if another
// worker holds it. Contention never blocks beyond the owner-ordered
// strategy's bounded spin.
func (h *Handle) TryLockCell(idx int) bool {
	ok, _ := h.tryLockCell(idx)
	return ok
}

// tryLockCell additionally reports whether the acquisition was new, so
// region rollback can skip cells the handle already held before the call.
func (h *Handle) tryLockCell(idx int) (ok, newly bool) {
	if h.led.holds(idx) {
		return true, false
	}
	if !h.g.table.tryLock(idx, h.id) {
		return false, false
	}
	h.led.mark(idx)
	return true, true
}

// TryLockPoint acquires the single cell containing p. It is
// TryLockRegion(p, 0) without the radius plumbing.
func (h *Handle) TryLockPoint(p r3.Vec) (bool, int) {
	idx := h.g.CellAt(p)
	return h.TryLockCell(idx), idx
}

// TryLockRegion attempts to acquire every cell in the axis-aligned cube of
// the given radius around p's cell, intersected with the grid. The cell
// index of p itself is returned whether or not the acquisition succeeds,
// for caller bookkeeping.
//
// Acquisition is all-or-nothing: on the first contended cell, every cell
// newly locked by this call is released again and the call reports
// failure. Cells the handle already held before the call are untouched by
// the rollback. Cells are visited in a fixed x-outer, y-middle, z-inner
// order.
func (h *Handle) TryLockRegion(p r3.Vec, radius int) (bool, int) {
	cx, cy, cz, clamped := h.g.idx.coords(p)
	if clamped {
		h.g.clamps.Add(1)
	}
	center := h.g.idx.index(cx, cy, cz)

	if radius <= 0 {
		return h.TryLockCell(center), center
	}

	n := h.g.idx.n
	acquired := make([]int, 0, (2*radius+1)*(2*radius+1)*(2*radius+1))
	for x := max(0, cx-radius); x <= min(n-1, cx+radius); x++ {
		for y := max(0, cy-radius); y <= min(n-1, cy+radius); y++ {
			for z := max(0, cz-radius); z <= min(n-1, cz+radius); z++ {
				idx := h.g.idx.index(x, y, z)
				ok, newly := h.tryLockCell(idx)
				if !ok {
					for _, a := range acquired {
						h.g.table.unlock(a)
						h.led.clear(a)
					}
					return false, center
				}
				if newly {
					acquired = append(acquired, idx)
				}
			}
		}
	}
	return true, center
}

// Unlock releases one cell by index. Unlocking a cell this handle does
// not hold is a caller logic error: it is reported through the Grid's
// logger and shared state is left untouched, so a foreign holder is never
// corrupted.
func (h *Handle) Unlock(idx int) {
	if !h.led.holds(idx) {
		h.g.logger.Printf("[gridlock] owner %d unlocked cell %d it does not hold", h.id, idx)
		return
	}
	h.g.table.unlock(idx)
	h.led.clear(idx)
}

// UnlockPoint releases the cell containing p, using the same clamped
// mapping as the lock side.
func (h *Handle) UnlockPoint(p r3.Vec) {
	h.Unlock(h.g.CellAt(p))
}

// ReleaseAll releases every cell the handle still holds and resets its
// ledger. Call it at the end of each unit of work so no lock outlives its
// task, and before discarding the Grid.
func (h *Handle) ReleaseAll() {
	h.led.releaseAll(h.g.table)
}

// HeldCount returns how many cells the handle currently holds.
func (h *Handle) HeldCount() int { return h.led.heldCount() }

// AllReleased reports whether the handle holds no cells. Diagnostic and
// test use only; production flow should rely on ReleaseAll.
func (h *Handle) AllReleased() bool { return h.led.allReleased() }

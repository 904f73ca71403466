package gridlock

import "fmt"

// Strategy selects the per-cell locking primitive. All strategies share the
// same grid indexing, ownership tracking, and region semantics; they differ
// only in how a single contended cell behaves.
type Strategy int

const (
	// StrategyBinary stores an atomic flag per cell; acquisition is one
	// compare-and-swap and contention fails immediately. The default.
	StrategyBinary Strategy = iota

	// StrategyOwnerOrdered stores an atomic owner id per cell. A loser
	// with a lower id than the holder spins until the cell frees; a loser
	// with a higher id fails immediately. Waiting only ever flows towards
	// lower ids, so no cycle of mutual waiting can form.
	StrategyOwnerOrdered

	// StrategyMutex keeps a mutex per cell and try-acquires it.
	StrategyMutex
)

// String implements fmt.Stringer for logs and bench output.
func (s Strategy) String() string {
	switch s {
	case StrategyBinary:
		return "binary"
	case StrategyOwnerOrdered:
		return "owner-ordered"
	case StrategyMutex:
		return "mutex"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps the names produced by String back to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "binary":
		return StrategyBinary, nil
	case "owner-ordered":
		return StrategyOwnerOrdered, nil
	case "mutex":
		return StrategyMutex, nil
	}
	return 0, fmt.Errorf("gridlock: unknown strategy %q", name)
}

// cellTable is the shared cell-slot contract behind the three strategies.
// tryLock never blocks indefinitely: it either acquires the slot for owner,
// or fails after at most a bounded wait (owner-ordered strategy only).
// unlock must only be reached for slots the caller holds; the Handle's
// ledger guards that before shared state is touched.
type cellTable interface {
	tryLock(idx int, owner uint32) bool
	unlock(idx int)
}

func newCellTable(s Strategy, numCells int) cellTable {
	switch s {
	case StrategyOwnerOrdered:
		return newOwnerTable(numCells)
	case StrategyMutex:
		return newMutexTable(numCells)
	default:
		return newBinaryTable(numCells)
	}
}

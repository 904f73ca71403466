package gridlock

import (
	"runtime"
	"sync/atomic"
)

// ownerTable holds an atomic owner id per cell (0 = free). On contention
// the loser compares ids with the holder:
//
//   - holder id higher: spin (yield and retry) until the cell frees. Lower
//     ids have priority and wait out higher-numbered holders.
//   - holder id lower: fail immediately. A higher-numbered worker never
//     waits on a lower-numbered holder.
//
// Waiting therefore only ever flows towards strictly lower ids, and ids
// form a total order, so no cycle of mutual waiting can form. This
// asymmetry is the sole deadlock-avoidance mechanism for this strategy;
// keep it intact when touching the loop below.
type ownerTable struct {
	slots []atomic.Uint32
}

func newOwnerTable(numCells int) *ownerTable {
	return &ownerTable{slots: make([]atomic.Uint32, numCells)}
}

func (t *ownerTable) tryLock(idx int, owner uint32) bool {
	slot := &t.slots[idx]
	for {
		if slot.CompareAndSwap(0, owner) {
			return true
		}
		switch holder := slot.Load(); {
		case holder == 0:
			// Freed between the CAS and the load; retry at once.
		case holder == owner:
			// Already ours. The ledger short-circuits reentrant
			// attempts before reaching the table, so this only
			// happens if a Handle is misshared, but it is still
			// safe to report the cell as held.
			return true
		case holder > owner:
			runtime.Gosched()
		default:
			return false
		}
	}
}

func (t *ownerTable) unlock(idx int) {
	t.slots[idx].Store(0)
}

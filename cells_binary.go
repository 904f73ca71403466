package gridlock

import "sync/atomic"

// binaryTable holds an atomic flag per cell. Acquisition is a single CAS;
// a contended cell fails immediately with no spin and no wait.
type binaryTable struct {
	slots []atomic.Bool
}

func newBinaryTable(numCells int) *binaryTable {
	return &binaryTable{slots: make([]atomic.Bool, numCells)}
}

func (t *binaryTable) tryLock(idx int, _ uint32) bool {
	return t.slots[idx].CompareAndSwap(false, true)
}

func (t *binaryTable) unlock(idx int) {
	t.slots[idx].Store(false)
}

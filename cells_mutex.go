package gridlock

import "sync"

// mutexTable keeps one mutex per cell and try-acquires it; a contended
// cell fails immediately. Reentrant attempts never reach the mutex (the
// Handle's ledger short-circuits them), so a plain mutex suffices, and
// unlocking from a different goroutine during a bulk release is legal for
// sync.Mutex.
type mutexTable struct {
	mus []sync.Mutex
}

func newMutexTable(numCells int) *mutexTable {
	return &mutexTable{mus: make([]sync.Mutex, numCells)}
}

func (t *mutexTable) tryLock(idx int, _ uint32) bool {
	return t.mus[idx].TryLock()
}

func (t *mutexTable) unlock(idx int) {
	t.mus[idx].Unlock()
}

package gridlock

import "math/bits"

// ledger is one worker's private record of the cells it currently holds:
// a bitmap for O(1) reentrancy checks plus the ordered list of indices it
// has locked, for bulk release. It belongs to exactly one Handle and needs
// no synchronisation.
//
// Invariant: bit c is set iff the shared table slot for c is held by this
// worker. The list may accumulate an index more than once across separate
// lock/unlock rounds; releaseAll re-checks the bitmap before releasing so
// duplicates are harmless.
type ledger struct {
	words  []uint64
	locked []int
}

func newLedger(numCells int) *ledger {
	return &ledger{words: make([]uint64, (numCells+63)/64)}
}

func (l *ledger) holds(idx int) bool {
	return l.words[idx>>6]&(1<<(uint(idx)&63)) != 0
}

// mark records idx as newly held: sets the bit and appends to the list.
func (l *ledger) mark(idx int) {
	l.words[idx>>6] |= 1 << (uint(idx) & 63)
	l.locked = append(l.locked, idx)
}

// clear drops the held bit. The list entry stays; releaseAll skips
// indices whose bit is already clear.
func (l *ledger) clear(idx int) {
	l.words[idx>>6] &^= 1 << (uint(idx) & 63)
}

// releaseAll unlocks every cell this ledger still shows as held, then
// truncates the list. Used as the end-of-task safety net so no lock
// outlives its unit of work even if an individual unlock was missed.
func (l *ledger) releaseAll(t cellTable) {
	for _, idx := range l.locked {
		if l.holds(idx) {
			t.unlock(idx)
			l.clear(idx)
		}
	}
	l.locked = l.locked[:0]
}

// heldCount returns the number of cells currently held.
func (l *ledger) heldCount() int {
	n := 0
	for _, w := range l.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// allReleased reports whether every bit is clear. Diagnostic only.
func (l *ledger) allReleased() bool {
	for _, w := range l.words {
		if w != 0 {
			return false
		}
	}
	return true
}

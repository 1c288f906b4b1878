package advisor

import (
	"testing"

	"github.com/lattice-kv/pagecache/evictqueue"
	"github.com/lattice-kv/pagecache/pageid"
)

func childID(t *testing.T, idx uint8) pageid.PageID {
	t.Helper()
	ci, err := pageid.NewChildPageIndex(idx)
	if err != nil {
		t.Fatalf("NewChildPageIndex(%d): %v", idx, err)
	}
	id, err := pageid.Root.ChildPageID(ci)
	if err != nil {
		t.Fatalf("ChildPageID(%d): %v", idx, err)
	}
	return id
}

func TestAccessedWithinCapacityNominatesNothing(t *testing.T) {
	a := New(WithCapacityBytes(entryOverheadBytes * 100))
	q := evictqueue.New[pageid.PageID]()

	for i := uint8(0); i < 10; i++ {
		a.Accessed(childID(t, i), q)
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0 (capacity not exceeded)", got)
	}
}

func TestWindowOverflowNominatesOldest(t *testing.T) {
	// Four entries of capacity: mainCap clamps 0 -> 1, leaving a
	// three-entry window.
	a := New(WithCapacityBytes(entryOverheadBytes*4), WithHotFraction(0))
	q := evictqueue.New[pageid.PageID]()

	first := childID(t, 0)
	second := childID(t, 1)
	third := childID(t, 2)
	fourth := childID(t, 3)

	a.Accessed(first, q)
	a.Accessed(second, q)
	a.Accessed(third, q)
	if got := q.Len(); got != 0 {
		t.Fatalf("Len() = %d before overflow, want 0", got)
	}

	a.Accessed(fourth, q)
	victim, ok := q.Pop()
	if !ok {
		t.Fatalf("expected a nomination after window overflow")
	}
	if victim != first {
		t.Fatalf("nominated %v, want the oldest entry %v", victim, first)
	}
}

func TestPromotionToMainAfterRepeatedAccess(t *testing.T) {
	a := New(WithCapacityBytes(entryOverheadBytes*10), WithHotFraction(0.5))
	q := evictqueue.New[pageid.PageID]()

	id := childID(t, 5)
	a.Accessed(id, q)
	if _, ok := a.main.lookup(id); ok {
		t.Fatalf("id should still be in the window segment after one access")
	}

	a.Accessed(id, q)
	if _, ok := a.main.lookup(id); !ok {
		t.Fatalf("id should be promoted to main after repeated access")
	}
}

func TestPromotedResidueAgingOutOfWindowIsNotNominated(t *testing.T) {
	// Four entries of capacity at 25% hot: mainCap=1, windowCap=3. The
	// promoted id's stale window copy must age out silently.
	a := New(WithCapacityBytes(entryOverheadBytes*4), WithHotFraction(0.25))
	q := evictqueue.New[pageid.PageID]()

	hot := childID(t, 0)
	a.Accessed(hot, q)
	a.Accessed(hot, q) // promoted; residue remains in the window

	for i := uint8(1); i <= 3; i++ {
		a.Accessed(childID(t, i), q)
	}

	for {
		victim, ok := q.Pop()
		if !ok {
			break
		}
		if victim == hot {
			t.Fatalf("promoted id's window residue must not be nominated")
		}
	}
}

func TestAccessedTouchingExistingEntryDoesNotNominateIt(t *testing.T) {
	a := New(WithCapacityBytes(entryOverheadBytes*2), WithHotFraction(0))
	q := evictqueue.New[pageid.PageID]()

	id := childID(t, 0)
	a.Accessed(id, q)
	a.Accessed(id, q)
	if got := q.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0: repeated access to the only entry must not evict it", got)
	}
}

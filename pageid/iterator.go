package pageid

// Iterator lazily yields the sequence of page ids traversed by a 256-bit
// key path: the root first, then each descendant page, consuming 6 bits
// of the key (most-significant-first) per step. It yields at most
// MaxDepth+1 values, terminating early if a child page id would
// overflow (which cannot happen before 42 steps, since the key supplies
// exactly 256 bits and each step consumes 6).
type Iterator struct {
	keyPath [32]byte
	next    *PageID
}

// NewIterator creates a PageIdsIterator over the given key path.
func NewIterator(keyPath [32]byte) *Iterator {
	root := Root
	return &Iterator{keyPath: keyPath, next: &root}
}

// Next returns the next page id in the sequence, or false once the
// iterator is exhausted.
func (it *Iterator) Next() (PageID, bool) {
	if it.next == nil {
		return PageID{}, false
	}
	cur := *it.next

	// Consume the top 6 bits of the remaining key path (MSB-first).
	childIdx := ChildPageIndex(it.keyPath[0] >> 2)
	shiftLeft6(&it.keyPath)

	child, err := cur.ChildPageID(childIdx)
	if err != nil {
		it.next = nil
	} else {
		it.next = &child
	}
	return cur, true
}

// Package walkerdemo is a test harness only: a minimal trie walker that
// exercises cache.PageCache end-to-end, descending page by page along
// the pageid path segments derived from a 256-bit key. The production
// trie-walking algorithm lives outside this module.
package walkerdemo

import (
	"context"

	"github.com/lattice-kv/pagecache/cache"
	"github.com/lattice-kv/pagecache/pagedata"
	"github.com/lattice-kv/pagecache/pageid"
)

// Step records one level visited while walking a key path: the page id
// fetched and the node hash observed at the slot topSlotForDepth picks
// within it.
type Step struct {
	ID   pageid.PageID
	Slot int
	Node pagedata.Node
}

// Walk drills down from the trie root toward key, fetching one page per
// 6-bit group of the key via pc.RetrieveSync and stopping the first
// time it encounters a terminal (all-zero) node. hintFresh is forwarded
// to every RetrieveSync call, letting callers exercise the pre-emption
// path.
func Walk(ctx context.Context, pc *cache.PageCache, key [32]byte, hintFresh bool) []Step {
	var steps []Step
	it := pageid.NewIterator(key)
	rp := pc.NewReadPass()
	defer rp.Release()

	// The slot read within each page (slot 0 or slot 1) comes from
	// topSlotForDepth, not from the key; the key's 6-bit groups are
	// consumed only by the iterator to pick the next page.
	for {
		id, ok := it.Next()
		if !ok {
			return steps
		}

		pd := pc.RetrieveSync(ctx, id, hintFresh)
		slot := topSlotForDepth(id)
		node := pd.Node(rp, slot)
		steps = append(steps, Step{ID: id, Slot: slot, Node: node})

		if node.IsZero() {
			return steps
		}
	}
}

// topSlotForDepth picks slot 0 for an even-depth page and slot 1 for an
// odd-depth page, a simple alternation standing in for whatever
// real key-bit addressing a production walker would use to pick a slot
// within the page it just fetched. It exists only so Walk has a node to
// read per page; it encodes no real trie semantics.
func topSlotForDepth(id pageid.PageID) int {
	if id.Len()%2 == 0 {
		return 0
	}
	return 1
}

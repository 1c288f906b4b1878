package pagedata

import (
	"fmt"
	"math/bits"
)

// diffWords is the number of 64-bit words needed to cover slots 0..=126
// (127 bits fit in two 64-bit words).
const diffWords = 2

// PageDiff is a bitset over slots 0..=126 recording which slots have
// been mutated since the page was loaded or last committed. Created
// fresh per commit cycle and supplied by the caller.
type PageDiff struct {
	words [diffWords]uint64
}

// NewPageDiff returns an empty PageDiff.
func NewPageDiff() PageDiff {
	return PageDiff{}
}

// SetChanged marks slotIndex (0..=NodesPerPage, i.e. including the leaf
// bitfield slot) as changed.
func (d *PageDiff) SetChanged(slotIndex int) {
	if slotIndex < 0 || slotIndex > leafBitfieldSlot {
		panic(fmt.Sprintf("pagedata: diff slot %d out of bounds [0,%d]", slotIndex, leafBitfieldSlot))
	}
	d.words[slotIndex/64] |= 1 << uint(slotIndex%64)
}

// Changed reports whether slotIndex was marked as changed.
func (d PageDiff) Changed(slotIndex int) bool {
	if slotIndex < 0 || slotIndex > leafBitfieldSlot {
		return false
	}
	return d.words[slotIndex/64]&(1<<uint(slotIndex%64)) != 0
}

// PopCount returns the number of slots marked changed.
func (d PageDiff) PopCount() int {
	n := 0
	for _, w := range d.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// ChangedSlots returns the indices of changed slots in ascending order.
func (d PageDiff) ChangedSlots() []int {
	out := make([]int, 0, d.PopCount())
	for w := 0; w < diffWords; w++ {
		word := d.words[w]
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			out = append(out, w*64+bit)
			word &= word - 1
		}
	}
	return out
}

// Package pagedata implements the in-memory layout of a single page: 126
// node or leaf-data slots, a leaf-metadata bitfield, and a reserved
// slot, packed into a 4096-byte buffer that is lazily allocated so that
// never-written pages cost nothing but a nil pointer.
package pagedata

import (
	"fmt"

	"github.com/lattice-kv/pagecache/pageid"
	"github.com/lattice-kv/pagecache/passes"
)

// Depth mirrors pageid.Depth: a page is a rootless binary tree of this
// many levels.
const Depth = pageid.Depth

// NodesPerPage is the number of node/leaf-data slots in a page:
// 2^(Depth+1) - 2.
const NodesPerPage = (1 << (Depth + 1)) - 2

// PageSize is the fixed on-disk and in-memory size of a page, in bytes.
const PageSize = 4096

const (
	slotBytes        = 32
	leafBitfieldSlot = NodesPerPage        // slot 126
	leafBitfieldOff  = leafBitfieldSlot * slotBytes
	reservedOff      = leafBitfieldOff + slotBytes // slot 127, 4064..4096
)

// Node is a 32-byte trie node hash. The all-zero value denotes the
// absence of a node (a terminal).
type Node [32]byte

// IsZero reports whether n is the terminal (all-zero) node.
func (n Node) IsZero() bool { return n == Node{} }

// LeafData is the pair of 32-byte words (key-hash-prefix, value-hash)
// stored at a leaf position instead of two internal-node hashes.
type LeafData struct {
	KeyHashPrefix Node
	ValueHash     Node
}

// buffer is the raw 4096-byte page representation. A nil *buffer means
// the page has never been written to (entirely absent).
type buffer [PageSize]byte

// PageData is the per-page in-memory layout, shared by the cache map and
// every outstanding Page handle. Mutation is authorized by a write-pass
// over the owning domain, not by exclusive ownership of the PageData
// pointer.
type PageData struct {
	cell *passes.Cell[pageid.PageID, *buffer]
}

// PristineEmpty builds a PageData for a page with no stored data.
func PristineEmpty(domain *passes.Domain, id pageid.PageID) *PageData {
	return &PageData{cell: passes.Protect[pageid.PageID, *buffer](domain, id, nil)}
}

// PristineWithData builds a PageData from 4096 bytes loaded from the
// store. It rejects a buffer whose reserved bytes (4064..4096) are
// non-zero as a malformed page: no writer ever touches those bytes, so
// a non-zero value means corruption or a format mismatch.
func PristineWithData(domain *passes.Domain, id pageid.PageID, raw [PageSize]byte) (*PageData, error) {
	for i := reservedOff; i < PageSize; i++ {
		if raw[i] != 0 {
			return nil, fmt.Errorf("pagedata: reserved bytes non-zero at offset %d: %w", i, ErrMalformedPage)
		}
	}
	buf := buffer(raw)
	return &PageData{cell: passes.Protect[pageid.PageID, *buffer](domain, id, &buf)}, nil
}

// ErrMalformedPage is returned by PristineWithData when a loaded page
// violates the on-disk format (non-zero reserved bytes).
var ErrMalformedPage = malformedPageErr{}

type malformedPageErr struct{}

func (malformedPageErr) Error() string { return "pagedata: malformed page" }

// Node returns the 32 bytes at slot index, or the all-zero node if the
// page's buffer has never been allocated.
func (p *PageData) Node(pass passes.ReadPass[pageid.PageID], index int) Node {
	checkIndex(index)
	buf := p.cell.Read(pass)
	if buf == nil {
		return Node{}
	}
	var n Node
	copy(n[:], buf[index*slotBytes:index*slotBytes+slotBytes])
	return n
}

// IsAllocated reports whether the page's 4096-byte buffer has ever been
// lazily allocated, independent of whether it is currently logically
// empty. Commit uses this to detect pages that were never touched
// without re-deriving that fact from a fresh read of slots 0/1.
func (p *PageData) IsAllocated(pass passes.ReadPass[pageid.PageID]) bool {
	return p.cell.Read(pass) != nil
}

// SetNode writes node at slot index, lazily allocating the backing
// buffer, and clears the leaf-metadata bit at index.
//
// Clearing the leaf bit here means that when a caller builds a subtree
// bottom-up (writing leaf children before the parent), overwriting the
// parent slot with an internal-node hash automatically cancels any
// stale leaf interpretation left over at that position.
func (p *PageData) SetNode(pass *passes.WritePass[pageid.PageID], index int, node Node) {
	checkIndex(index)
	p.cell.Mutate(pass, func(buf **buffer) {
		allocate(buf)
		copy((*buf)[index*slotBytes:index*slotBytes+slotBytes], node[:])
		setLeafBit(*buf, index, false)
	})
}

// SetLeafData writes 64 bytes of leaf data at the slot pair
// (leftIndex, leftIndex+1) and marks both leaf-metadata bits set.
func (p *PageData) SetLeafData(pass *passes.WritePass[pageid.PageID], leftIndex int, leaf LeafData) {
	checkLeafIndex(leftIndex)
	p.cell.Mutate(pass, func(buf **buffer) {
		allocate(buf)
		start := leftIndex * slotBytes
		copy((*buf)[start:start+slotBytes], leaf.KeyHashPrefix[:])
		copy((*buf)[start+slotBytes:start+2*slotBytes], leaf.ValueHash[:])
		setLeafBit(*buf, leftIndex, true)
		setLeafBit(*buf, leftIndex+1, true)
	})
}

// ClearLeafData zeros whichever of the two slots at (leftIndex,
// leftIndex+1) currently hold leaf data, per their leaf-metadata bits,
// and clears both bits. A slot whose bit was already clear is left
// untouched, since it may legitimately hold a node hash written by
// SetNode afterward.
func (p *PageData) ClearLeafData(pass *passes.WritePass[pageid.PageID], leftIndex int) {
	checkLeafIndex(leftIndex)
	p.cell.Mutate(pass, func(buf **buffer) {
		if *buf == nil {
			return
		}
		if leafBit(*buf, leftIndex) {
			start := leftIndex * slotBytes
			zeroRange((*buf)[start : start+slotBytes])
			setLeafBit(*buf, leftIndex, false)
		}
		if leafBit(*buf, leftIndex+1) {
			start := (leftIndex + 1) * slotBytes
			zeroRange((*buf)[start : start+slotBytes])
			setLeafBit(*buf, leftIndex+1, false)
		}
	})
}

// Bytes copies out the full 4096-byte page contents for writing to the
// store, or false if the page was never allocated.
func (p *PageData) Bytes(pass passes.ReadPass[pageid.PageID]) ([PageSize]byte, bool) {
	buf := p.cell.Read(pass)
	if buf == nil {
		return [PageSize]byte{}, false
	}
	return [PageSize]byte(*buf), true
}

// PageIsEmpty reports whether a page is empty: slots 0 and 1 are both
// all-zero. Internal nodes with two terminal children are structurally
// forbidden, so this is a sound emptiness test; an unallocated page
// counts as empty.
func PageIsEmpty(raw *[PageSize]byte) bool {
	if raw == nil {
		return true
	}
	for i := 0; i < 2*slotBytes; i++ {
		if raw[i] != 0 {
			return false
		}
	}
	return true
}

func checkIndex(index int) {
	if index < 0 || index >= NodesPerPage {
		panic(fmt.Sprintf("pagedata: slot index %d out of bounds [0,%d)", index, NodesPerPage))
	}
}

func checkLeafIndex(leftIndex int) {
	if leftIndex < 0 || leftIndex >= NodesPerPage-1 {
		panic(fmt.Sprintf("pagedata: leaf left index %d out of bounds [0,%d)", leftIndex, NodesPerPage-1))
	}
}

func allocate(buf **buffer) {
	if *buf == nil {
		*buf = &buffer{}
	}
}

func zeroRange(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// leafBit/setLeafBit address bit i of the leaf-metadata bitfield
// (bytes 4032..4064), MSB-first within each byte.
func leafBit(buf *buffer, i int) bool {
	b := buf[leafBitfieldOff+i/8]
	return b&(1<<(7-uint(i%8))) != 0
}

func setLeafBit(buf *buffer, i int, v bool) {
	mask := byte(1 << (7 - uint(i%8)))
	if v {
		buf[leafBitfieldOff+i/8] |= mask
	} else {
		buf[leafBitfieldOff+i/8] &^= mask
	}
}

// Package pageid implements the canonical addressing scheme for pages in
// the trie store: a path of child indices through a tree of branching
// factor 64 and maximum depth 42, disambiguated into a fixed-width
// 256-bit integer encoding.
package pageid

import (
	"errors"
	"math/bits"
)

// Depth is the branching depth of a single page: each page is a rootless
// binary tree of this many levels, giving 2^Depth children per page.
const Depth = 6

// MaxChildIndex is the largest legal ChildPageIndex value: 2^Depth - 1.
const MaxChildIndex = (1 << Depth) - 1

// MaxDepth is the maximum number of limbs (child indices) a PageId may
// carry. The root page id has zero limbs.
const MaxDepth = 42

// ErrInvalidPageIdBytes is returned by Decode when the input encodes a
// value larger than the highest legal depth-42 page id.
var ErrInvalidPageIdBytes = errors.New("pageid: bytes exceed highest valid page id")

// ErrPageIdOverflow is returned by ChildPageID when the receiver is
// already at MaxDepth.
var ErrPageIdOverflow = errors.New("pageid: page id already at maximum depth")

// ErrInvalidChildIndex is returned by NewChildPageIndex for out-of-range
// values.
var ErrInvalidChildIndex = errors.New("pageid: child index exceeds 63")

// ChildPageIndex is a value in [0, 63] selecting one of a page's 64
// children.
type ChildPageIndex uint8

// NewChildPageIndex validates i and wraps it as a ChildPageIndex.
func NewChildPageIndex(i uint8) (ChildPageIndex, error) {
	if i > MaxChildIndex {
		return 0, ErrInvalidChildIndex
	}
	return ChildPageIndex(i), nil
}

// ToByte returns the underlying index value.
func (c ChildPageIndex) ToByte() uint8 { return uint8(c) }

// PageID is the canonical identifier of a page: a sequence of between 0
// and 42 child indices. The zero value is the root page id.
//
// PageID is a value type and safe to use as a map key and to compare with
// ==, since it is backed by a fixed array plus a length.
type PageID struct {
	limbs [MaxDepth]uint8
	n     uint8
}

// Root is the page id of length zero: the page directly beneath the trie
// root.
var Root = PageID{}

// highestEncoded42 is the 256-bit big-endian encoding of the all-63 path
// of length 42, the largest value Decode will accept. Precomputed once
// rather than derived on every call.
var highestEncoded42 = func() [32]byte {
	var p PageID
	for i := 0; i < MaxDepth; i++ {
		p.limbs[i] = MaxChildIndex
	}
	p.n = MaxDepth
	return p.Encode()
}()

// HighestEncoded42 returns the 256-bit encoding of the all-63 path of
// length 42, the largest value accepted by Decode.
func HighestEncoded42() [32]byte { return highestEncoded42 }

// Len reports the number of limbs (depth) of the page id.
func (p PageID) Len() int { return int(p.n) }

// Limb returns the child index at position i (0-indexed, root-most
// first). Panics if i is out of range; callers should only call this
// with i < p.Len().
func (p PageID) Limb(i int) ChildPageIndex {
	if i < 0 || i >= int(p.n) {
		panic("pageid: limb index out of range")
	}
	return ChildPageIndex(p.limbs[i])
}

// Encode produces the canonical 256-bit big-endian representation.
//
// Starting from zero, for each limb L in path order: x = (x << 6) + (L+1).
// Shifting before adding keeps every intermediate value no larger than
// the result, so a depth-42 id never overflows the 256-bit accumulator,
// and Decode's special-cased final limb (no trailing shift) is its exact
// inverse.
func (p PageID) Encode() [32]byte {
	var acc [32]byte // big-endian 256-bit accumulator
	for i := 0; i < int(p.n); i++ {
		shiftLeft6(&acc)
		addSmall(&acc, uint16(p.limbs[i])+1)
	}
	return acc
}

// Decode parses the canonical 256-bit encoding produced by Encode,
// rejecting any value above the highest legal depth-42 encoding.
func Decode(b [32]byte) (PageID, error) {
	if greater(b, highestEncoded42) {
		return PageID{}, ErrInvalidPageIdBytes
	}
	if isZero(b) {
		return Root, nil
	}

	bitCount := 256 - leadingZeros(b)
	sextets := (bitCount + 5) / 6

	var limbs [MaxDepth]uint8
	n := 0

	x := b
	for i := 0; i < sextets-1; i++ {
		subtractOne(&x)
		limbs[n] = lowSixBits(x)
		n++
		shiftRight6(&x)
	}
	// The final (most-significant) limb is whatever remains in the low
	// byte after the last subtract-1, without a further shift.
	if x[31] != 0 {
		subtractOne(&x)
		limbs[n] = x[31]
		n++
	}

	// limbs were collected least-significant-limb first; the path reads
	// root-most-first, so reverse in place.
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		limbs[i], limbs[j] = limbs[j], limbs[i]
	}

	return PageID{limbs: limbs, n: uint8(n)}, nil
}

// ChildPageID returns the PageID of the given child of p.
func (p PageID) ChildPageID(idx ChildPageIndex) (PageID, error) {
	if int(p.n) >= MaxDepth {
		return PageID{}, ErrPageIdOverflow
	}
	child := p
	child.limbs[p.n] = uint8(idx)
	child.n = p.n + 1
	return child, nil
}

// ParentPageID returns the PageID of p's parent, dropping the last limb.
// The root's parent is the root itself.
func (p PageID) ParentPageID() PageID {
	if p.n == 0 {
		return p
	}
	parent := p
	parent.n--
	parent.limbs[parent.n] = 0
	return parent
}

// ---- 256-bit big-endian helpers -------------------------------------
//
// PageID arithmetic never needs a general bignum: every operation is one
// of "shift left 6 then add a small value", "subtract 1", "shift right
// 6", or a comparison, all on a 32-byte big-endian buffer. Implementing
// these directly avoids pulling in a bignum dependency for six lines of
// carry propagation.

func addSmall(x *[32]byte, v uint16) {
	carry := uint32(v)
	for i := 31; i >= 0 && carry != 0; i-- {
		sum := uint32(x[i]) + carry
		x[i] = byte(sum)
		carry = sum >> 8
	}
}

func subtractOne(x *[32]byte) {
	for i := 31; i >= 0; i-- {
		if x[i] != 0 {
			x[i]--
			return
		}
		x[i] = 0xff
	}
}

func shiftLeft6(x *[32]byte) {
	var carry byte
	for i := 31; i >= 0; i-- {
		v := x[i]
		x[i] = (v << 6) | carry
		carry = v >> 2
	}
}

func shiftRight6(x *[32]byte) {
	var carry byte
	for i := 0; i < 32; i++ {
		v := x[i]
		x[i] = (v >> 6) | carry
		carry = v << 2
	}
}

func lowSixBits(x [32]byte) uint8 {
	return x[31] & 0x3f
}

func isZero(x [32]byte) bool {
	for _, b := range x {
		if b != 0 {
			return false
		}
	}
	return true
}

func greater(a, b [32]byte) bool {
	for i := 0; i < 32; i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

func leadingZeros(x [32]byte) int {
	count := 0
	for _, b := range x {
		if b == 0 {
			count += 8
			continue
		}
		count += bits.LeadingZeros8(b)
		break
	}
	return count
}

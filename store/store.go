// Package store defines the collaborator interface the page cache uses
// to load and persist pages. The cache owns concurrency, eviction, and
// pass discipline, and knows nothing about where bytes actually live.
package store

import (
	"context"
	"fmt"

	"github.com/lattice-kv/pagecache/pageid"
)

// PageSize is the fixed on-disk page size every Store implementation
// reads and writes.
const PageSize = 4096

// NodeRecord is one entry of a packed delta: a slot index and the
// 32-byte node value to place there. write_page_nodes receives a
// sequence of these, encoded as (slot_u8 ∥ 32-byte node) per record.
type NodeRecord struct {
	Slot  uint8
	Value [32]byte
}

// Store is the durable backing for pages. Implementations need not be
// transactional; the cache is the only writer serialization point.
type Store interface {
	// LoadPage returns the page's bytes, (zero-value, false, nil) for a
	// page that was never written, or a non-nil error for an I/O
	// failure. The cache treats a non-nil error as fatal (ErrStoreIO).
	LoadPage(ctx context.Context, id pageid.PageID) (buf [PageSize]byte, ok bool, err error)

	// WritePage replaces a page's contents wholesale.
	WritePage(ctx context.Context, id pageid.PageID, buf [PageSize]byte) error

	// WritePageNodes applies a compact delta: only the listed slots
	// change, every other byte of the page is left untouched.
	WritePageNodes(ctx context.Context, id pageid.PageID, records []NodeRecord) error

	// DeletePage removes a page that became empty. Deleting a page that
	// was never written is a no-op, not an error.
	DeletePage(ctx context.Context, id pageid.PageID) error
}

// ErrStoreIO wraps any underlying I/O failure surfaced by a Store. The
// cache has no recovery policy for it: load failures abort, commit
// failures propagate to the caller.
type ErrStoreIO struct {
	Op  string
	Err error
}

func (e *ErrStoreIO) Error() string {
	return fmt.Sprintf("store: %s failed: %v", e.Op, e.Err)
}

func (e *ErrStoreIO) Unwrap() error { return e.Err }

// EncodeNodeRecords packs records as (slot_u8 ∥ 32-byte node)* for a
// Store implementation that persists deltas as a flat byte stream
// rather than a structured record list.
func EncodeNodeRecords(records []NodeRecord) []byte {
	out := make([]byte, 0, len(records)*33)
	for _, r := range records {
		out = append(out, r.Slot)
		out = append(out, r.Value[:]...)
	}
	return out
}

// DecodeNodeRecords is the inverse of EncodeNodeRecords.
func DecodeNodeRecords(packed []byte) ([]NodeRecord, error) {
	if len(packed)%33 != 0 {
		return nil, fmt.Errorf("store: packed node delta length %d is not a multiple of 33", len(packed))
	}
	out := make([]NodeRecord, 0, len(packed)/33)
	for i := 0; i < len(packed); i += 33 {
		var rec NodeRecord
		rec.Slot = packed[i]
		copy(rec.Value[:], packed[i+1:i+33])
		out = append(out, rec)
	}
	return out, nil
}

// Package diskstore implements a disk-backed store.Store using
// O_DIRECT aligned I/O: a single flat page file opened with directio,
// and a translation table mapping each PageId to a fixed block offset
// assigned on first write.
package diskstore

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"

	"github.com/lattice-kv/pagecache/pageid"
	"github.com/lattice-kv/pagecache/store"
)

const blockSize = store.PageSize

// Store is a directio-backed store.Store over a single flat file.
// Every page occupies one aligned block; WritePageNodes read-modifies-
// writes the whole block, since O_DIRECT does not support partial-
// block writes.
type Store struct {
	file *os.File

	mu       sync.RWMutex
	offsets  map[pageid.PageID]int64
	nextSlot int64
}

// Open opens (creating if necessary) the flat page file at path for
// O_DIRECT access.
func Open(path string) (*Store, error) {
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &store.ErrStoreIO{Op: "Open", Err: err}
	}
	return &Store{file: f, offsets: make(map[pageid.PageID]int64)}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.file.Close()
}

func (s *Store) LoadPage(_ context.Context, id pageid.PageID) ([store.PageSize]byte, bool, error) {
	s.mu.RLock()
	off, ok := s.offsets[id]
	s.mu.RUnlock()
	if !ok {
		return [store.PageSize]byte{}, false, nil
	}

	block := directio.AlignedBlock(blockSize)
	if _, err := s.file.ReadAt(block, off); err != nil {
		return [store.PageSize]byte{}, false, &store.ErrStoreIO{Op: "LoadPage", Err: err}
	}
	var buf [store.PageSize]byte
	copy(buf[:], block)
	return buf, true, nil
}

func (s *Store) WritePage(_ context.Context, id pageid.PageID, buf [store.PageSize]byte) error {
	off := s.offsetFor(id)

	block := directio.AlignedBlock(blockSize)
	copy(block, buf[:])
	if _, err := s.file.WriteAt(block, off); err != nil {
		return &store.ErrStoreIO{Op: "WritePage", Err: err}
	}
	return nil
}

func (s *Store) WritePageNodes(ctx context.Context, id pageid.PageID, records []store.NodeRecord) error {
	buf, ok, err := s.LoadPage(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		buf = [store.PageSize]byte{}
	}
	for _, rec := range records {
		start := int(rec.Slot) * 32
		copy(buf[start:start+32], rec.Value[:])
	}
	return s.WritePage(ctx, id, buf)
}

func (s *Store) DeletePage(_ context.Context, id pageid.PageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offsets, id)
	return nil
}

// offsetFor returns id's block offset, assigning the next free slot on
// first use.
func (s *Store) offsetFor(id pageid.PageID) int64 {
	s.mu.RLock()
	off, ok := s.offsets[id]
	s.mu.RUnlock()
	if ok {
		return off
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if off, ok := s.offsets[id]; ok {
		return off
	}
	slot := atomic.AddInt64(&s.nextSlot, 1) - 1
	off = slot * blockSize
	s.offsets[id] = off
	return off
}

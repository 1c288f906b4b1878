// Package memstore implements an in-memory store.Store for tests: data
// lives only for the process lifetime and nothing is pinned or paged
// out.
//
// Each page is backed by a dsnet/golib/memfile.File rather than a bare
// byte slice, so tests exercise the same ReaderAt/WriterAt seam a real
// file-backed Store would, without touching disk.
package memstore

import (
	"context"
	"sync"

	"github.com/dsnet/golib/memfile"

	"github.com/lattice-kv/pagecache/pageid"
	"github.com/lattice-kv/pagecache/store"
)

// Store is a memfile-backed, goroutine-safe store.Store.
type Store struct {
	mu    sync.RWMutex
	pages map[pageid.PageID]*memfile.File
}

// New returns an empty Store.
func New() *Store {
	return &Store{pages: make(map[pageid.PageID]*memfile.File)}
}

func (s *Store) LoadPage(_ context.Context, id pageid.PageID) ([store.PageSize]byte, bool, error) {
	s.mu.RLock()
	f, ok := s.pages[id]
	s.mu.RUnlock()
	if !ok {
		return [store.PageSize]byte{}, false, nil
	}

	var buf [store.PageSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return [store.PageSize]byte{}, false, &store.ErrStoreIO{Op: "LoadPage", Err: err}
	}
	return buf, true, nil
}

func (s *Store) WritePage(_ context.Context, id pageid.PageID, buf [store.PageSize]byte) error {
	s.mu.Lock()
	f, ok := s.pages[id]
	if !ok {
		f = memfile.New(make([]byte, store.PageSize))
		s.pages[id] = f
	}
	s.mu.Unlock()

	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return &store.ErrStoreIO{Op: "WritePage", Err: err}
	}
	return nil
}

func (s *Store) WritePageNodes(ctx context.Context, id pageid.PageID, records []store.NodeRecord) error {
	s.mu.Lock()
	f, ok := s.pages[id]
	if !ok {
		f = memfile.New(make([]byte, store.PageSize))
		s.pages[id] = f
	}
	s.mu.Unlock()

	for _, rec := range records {
		off := int64(rec.Slot) * 32
		if _, err := f.WriteAt(rec.Value[:], off); err != nil {
			return &store.ErrStoreIO{Op: "WritePageNodes", Err: err}
		}
	}
	return nil
}

func (s *Store) DeletePage(_ context.Context, id pageid.PageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, id)
	return nil
}

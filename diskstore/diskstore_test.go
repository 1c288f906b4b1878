package diskstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lattice-kv/pagecache/pageid"
	"github.com/lattice-kv/pagecache/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pages.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDiskStoreWriteThenLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	var buf [store.PageSize]byte
	buf[0] = 0x7f
	buf[store.PageSize-1] = 0x01

	if err := s.WritePage(context.Background(), pageid.Root, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	got, ok, err := s.LoadPage(context.Background(), pageid.Root)
	if err != nil || !ok {
		t.Fatalf("LoadPage: ok=%v err=%v", ok, err)
	}
	if got != buf {
		t.Fatalf("round-tripped bytes mismatch")
	}
}

func TestDiskStoreLoadMissingPage(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LoadPage(context.Background(), pageid.Root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for never-written page")
	}
}

func TestDiskStoreWritePageNodesPreservesUntouchedSlots(t *testing.T) {
	s := openTestStore(t)
	var buf [store.PageSize]byte
	buf[32] = 0xAA
	if err := s.WritePage(context.Background(), pageid.Root, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	var node [32]byte
	node[0] = 0x99
	if err := s.WritePageNodes(context.Background(), pageid.Root, []store.NodeRecord{{Slot: 2, Value: node}}); err != nil {
		t.Fatalf("WritePageNodes: %v", err)
	}

	got, ok, err := s.LoadPage(context.Background(), pageid.Root)
	if err != nil || !ok {
		t.Fatalf("LoadPage: ok=%v err=%v", ok, err)
	}
	if got[32] != 0xAA {
		t.Fatalf("slot 1 should be untouched")
	}
	if got[64] != 0x99 {
		t.Fatalf("slot 2 should reflect the delta")
	}
}

func TestDiskStoreDeletePage(t *testing.T) {
	s := openTestStore(t)
	var buf [store.PageSize]byte
	buf[0] = 1
	if err := s.WritePage(context.Background(), pageid.Root, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := s.DeletePage(context.Background(), pageid.Root); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	_, ok, err := s.LoadPage(context.Background(), pageid.Root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false after delete")
	}
}

func TestDiskStoreAssignsDistinctOffsetsPerPage(t *testing.T) {
	s := openTestStore(t)
	root := pageid.Root
	child, err := root.ChildPageID(mustChildIndex(t, 3))
	if err != nil {
		t.Fatalf("ChildPageID: %v", err)
	}

	var rootBuf, childBuf [store.PageSize]byte
	rootBuf[0] = 1
	childBuf[0] = 2
	if err := s.WritePage(context.Background(), root, rootBuf); err != nil {
		t.Fatalf("WritePage(root): %v", err)
	}
	if err := s.WritePage(context.Background(), child, childBuf); err != nil {
		t.Fatalf("WritePage(child): %v", err)
	}

	gotRoot, _, err := s.LoadPage(context.Background(), root)
	if err != nil {
		t.Fatalf("LoadPage(root): %v", err)
	}
	gotChild, _, err := s.LoadPage(context.Background(), child)
	if err != nil {
		t.Fatalf("LoadPage(child): %v", err)
	}
	if gotRoot[0] != 1 || gotChild[0] != 2 {
		t.Fatalf("pages collided: root[0]=%d child[0]=%d", gotRoot[0], gotChild[0])
	}
}

func mustChildIndex(t *testing.T, i uint8) pageid.ChildPageIndex {
	t.Helper()
	idx, err := pageid.NewChildPageIndex(i)
	if err != nil {
		t.Fatalf("NewChildPageIndex: %v", err)
	}
	return idx
}

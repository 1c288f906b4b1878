package pagedata

import (
	"testing"

	"github.com/lattice-kv/pagecache/pageid"
	"github.com/lattice-kv/pagecache/passes"
)

func TestSetNodeClearsLeafBit(t *testing.T) {
	domain := passes.NewDomain()
	pd := PristineEmpty(domain, pageid.Root)

	wp := passes.NewWritePass[pageid.PageID](domain)
	var node Node
	node[0] = 0xAB
	pd.SetNode(wp, 10, node)
	rp := wp.Downgrade()

	if got := pd.Node(rp, 10); got != node {
		t.Fatalf("Node(10) = %x, want %x", got, node)
	}
	raw, ok := pd.Bytes(rp)
	if !ok {
		t.Fatalf("expected allocated buffer")
	}
	if leafBit(func() *buffer { b := buffer(raw); return &b }(), 10) {
		t.Fatalf("leaf bit at 10 should be clear after SetNode")
	}
	rp.Release()
}

func TestSetLeafDataThenClear(t *testing.T) {
	domain := passes.NewDomain()
	pd := PristineEmpty(domain, pageid.Root)
	wp := passes.NewWritePass[pageid.PageID](domain)

	leaf := LeafData{}
	leaf.KeyHashPrefix[0] = 1
	leaf.ValueHash[0] = 2
	pd.SetLeafData(wp, 10, leaf)

	rp := wp.Downgrade()
	raw, ok := pd.Bytes(rp)
	if !ok {
		t.Fatalf("expected allocated buffer")
	}
	buf := buffer(raw)
	if !leafBit(&buf, 10) || !leafBit(&buf, 11) {
		t.Fatalf("expected both leaf bits set")
	}
	if raw[320] != 1 || raw[352] != 2 {
		t.Fatalf("unexpected leaf bytes: %v", raw[320:352+32])
	}
	rp.Release()

	wp2 := passes.NewWritePass[pageid.PageID](domain)
	pd.ClearLeafData(wp2, 10)
	rp2 := wp2.Downgrade()
	raw2, _ := pd.Bytes(rp2)
	buf2 := buffer(raw2)
	if leafBit(&buf2, 10) || leafBit(&buf2, 11) {
		t.Fatalf("expected both leaf bits clear after ClearLeafData")
	}
	for i := 320; i < 384; i++ {
		if raw2[i] != 0 {
			t.Fatalf("expected slot bytes zeroed at %d, got %d", i, raw2[i])
		}
	}
	rp2.Release()
}

func TestSetNodeAfterLeafDataDoesNotAutoClearSibling(t *testing.T) {
	domain := passes.NewDomain()
	pd := PristineEmpty(domain, pageid.Root)
	wp := passes.NewWritePass[pageid.PageID](domain)

	leaf := LeafData{}
	leaf.ValueHash[0] = 9
	pd.SetLeafData(wp, 10, leaf)

	var n Node
	n[0] = 0x42
	pd.SetNode(wp, 10, n)

	rp := wp.Downgrade()
	if got := pd.Node(rp, 10); got != n {
		t.Fatalf("Node(10) = %x, want %x", got, n)
	}
	raw, _ := pd.Bytes(rp)
	buf := buffer(raw)
	if leafBit(&buf, 10) {
		t.Fatalf("leaf bit 10 should be cleared by SetNode")
	}
	if !leafBit(&buf, 11) {
		t.Fatalf("leaf bit 11 should still reflect the earlier SetLeafData")
	}
	rp.Release()
}

func TestPageIsEmpty(t *testing.T) {
	if !PageIsEmpty(nil) {
		t.Fatalf("nil buffer should be empty")
	}
	var raw [PageSize]byte
	if !PageIsEmpty(&raw) {
		t.Fatalf("zeroed buffer should be empty")
	}
	raw[0] = 1
	if PageIsEmpty(&raw) {
		t.Fatalf("buffer with slot 0 set should not be empty")
	}
}

func TestPristineWithDataRejectsNonZeroReserved(t *testing.T) {
	domain := passes.NewDomain()
	var raw [PageSize]byte
	raw[reservedOff] = 1
	if _, err := PristineWithData(domain, pageid.Root, raw); err == nil {
		t.Fatalf("expected error for non-zero reserved bytes")
	}
}

func TestDiffPopCountAndChangedSlots(t *testing.T) {
	var d PageDiff
	d.SetChanged(3)
	d.SetChanged(7)
	if got := d.PopCount(); got != 2 {
		t.Fatalf("PopCount = %d, want 2", got)
	}
	slots := d.ChangedSlots()
	if len(slots) != 2 || slots[0] != 3 || slots[1] != 7 {
		t.Fatalf("ChangedSlots = %v, want [3 7]", slots)
	}
}

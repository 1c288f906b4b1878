package walkerdemo

import (
	"context"
	"testing"

	"github.com/lattice-kv/pagecache/cache"
	"github.com/lattice-kv/pagecache/memstore"
	"github.com/lattice-kv/pagecache/pagedata"
	"github.com/lattice-kv/pagecache/pageid"
)

func TestWalkStopsAtFirstTerminalNode(t *testing.T) {
	backing := memstore.New()
	pc := cache.New(backing)
	defer pc.Close()

	var key [32]byte
	steps := Walk(context.Background(), pc, key, true)

	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1 (root page, terminal node immediately)", len(steps))
	}
	if steps[0].ID != pageid.Root {
		t.Fatalf("first step visited %v, want pageid.Root", steps[0].ID)
	}
	if !steps[0].Node.IsZero() {
		t.Fatalf("expected a terminal node at the root with an empty store")
	}
}

func TestWalkDescendsUntilWrittenNodeIsTerminal(t *testing.T) {
	backing := memstore.New()
	pc := cache.New(backing)
	defer pc.Close()

	var key [32]byte
	key[0] = 0xff // selects child index 63 from the root

	// Materialize the root page with a non-zero node at slot 0 so the
	// walk takes one more step before hitting a terminal.
	pc.RetrieveSync(context.Background(), pageid.Root, true)
	wp := pc.NewWritePass()
	rootPD := pc.RetrieveSync(context.Background(), pageid.Root, false)
	rootPD.SetNode(wp, 0, nonZeroNode())
	wp.Downgrade().Release()

	steps := Walk(context.Background(), pc, key, true)

	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2 (root non-terminal, child terminal)", len(steps))
	}
	if steps[0].ID != pageid.Root {
		t.Fatalf("first step should be the root page")
	}
	if steps[0].Node.IsZero() {
		t.Fatalf("root slot 0 should be non-zero after SetNode")
	}
	if !steps[1].Node.IsZero() {
		t.Fatalf("child page should be empty, so its step should be terminal")
	}
}

func nonZeroNode() (n pagedata.Node) {
	n[0] = 0xaa
	return n
}

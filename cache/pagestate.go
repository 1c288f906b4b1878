package cache

import (
	"hash/fnv"
	"sync"

	"github.com/lattice-kv/pagecache/inflight"
	"github.com/lattice-kv/pagecache/pagedata"
	"github.com/lattice-kv/pagecache/pageid"
)

const (
	numShards = 256
	shardMask = numShards - 1
)

type stateKind uint8

const (
	stateInflight stateKind = iota
	stateCached
)

// pageState is the cache map's value type: a page is either being
// fetched (Inflight) or resolved (Cached). There is no explicit Vacant
// variant; absence of a map entry for an id is Vacant.
type pageState struct {
	kind     stateKind
	inflight *inflight.Fetch[*pagedata.PageData]
	cached   *pagedata.PageData
}

// shard is one partition of the sharded concurrent page map: a striped
// sync.RWMutex table so unrelated pages never contend on the same lock.
type shard struct {
	mu      sync.RWMutex
	entries map[pageid.PageID]*pageState
}

func newShards() [numShards]*shard {
	var shards [numShards]*shard
	for i := range shards {
		shards[i] = &shard{entries: make(map[pageid.PageID]*pageState)}
	}
	return shards
}

// shardFor returns the shard owning id: fnv32a over the id's canonical
// bytes, masked to the shard count.
func shardFor(shards *[numShards]*shard, id pageid.PageID) *shard {
	encoded := id.Encode()
	h := fnv.New32a()
	h.Write(encoded[:])
	return shards[h.Sum32()&shardMask]
}

// Package cache implements the PageCache: the facade the trie walker
// (an external collaborator, not part of this module) uses to fetch
// and mutate pages, backed by a pluggable store.Store. It owns a
// sharded concurrent map keyed by pageid.PageID, a bounded fetch worker
// pool, an update-phase read/write lock, and an eviction queue.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/lattice-kv/pagecache/advisor"
	"github.com/lattice-kv/pagecache/evictqueue"
	"github.com/lattice-kv/pagecache/inflight"
	"github.com/lattice-kv/pagecache/pagedata"
	"github.com/lattice-kv/pagecache/pageid"
	"github.com/lattice-kv/pagecache/passes"
	"github.com/lattice-kv/pagecache/store"
)

// drainBatchFloor bounds one eviction pass: a drain pops at most
// max(drainBatchFloor, queue length) victims.
const drainBatchFloor = 128

type fetchJob struct {
	id    pageid.PageID
	fetch *inflight.Fetch[*pagedata.PageData]
}

// PageCache is the concurrency-safe page cache facade.
type PageCache struct {
	cfg    Config
	domain *passes.Domain
	store  store.Store

	shards     [numShards]*shard
	advisor    *advisor.Advisor
	evictQueue *evictqueue.Queue[pageid.PageID]

	// updateLock separates the mutation phase (held in write mode by
	// StartUpdatePhase) from eviction (acquired in read mode, bailing if
	// an update phase currently holds it).
	updateLock sync.RWMutex

	workCh chan fetchJob
	wg     sync.WaitGroup
}

// New constructs a PageCache over the given store.
func New(backing store.Store, options ...Option) *PageCache {
	cfg := Apply(options...)

	pc := &PageCache{
		cfg:        cfg,
		domain:     passes.NewDomain(),
		store:      backing,
		shards:     newShards(),
		evictQueue: evictqueue.New[pageid.PageID](),
		workCh:     make(chan fetchJob, cfg.FetchConcurrency*4),
	}
	pc.advisor = advisor.New(
		advisor.WithCapacityBytes(int64(cfg.CacheCapacityPages)*64),
		advisor.WithHotFraction(float64(cfg.AdvisorHotPercent)/100),
	)

	pc.wg.Add(cfg.FetchConcurrency)
	for i := 0; i < cfg.FetchConcurrency; i++ {
		go pc.fetchWorker()
	}
	return pc
}

// Close stops accepting new fetch tasks and waits for in-flight workers
// to drain. It does not flush dirty pages; callers should Commit first.
func (pc *PageCache) Close() {
	close(pc.workCh)
	pc.wg.Wait()
}

func (pc *PageCache) fetchWorker() {
	defer pc.wg.Done()
	for job := range pc.workCh {
		pc.runFetch(job)
	}
}

// shard returns the shard owning id.
func (pc *PageCache) shard(id pageid.PageID) *shard {
	return shardFor(&pc.shards, id)
}

// Prepopulate registers an access with the advisor and, if id has no
// map entry, starts a background fetch. It never blocks beyond
// submitting to the worker pool.
func (pc *PageCache) Prepopulate(id pageid.PageID) {
	pc.advisor.Accessed(id, pc.evictQueue)
	pc.tryDrainEvictions()

	sh := pc.shard(id)
	sh.mu.Lock()
	if _, exists := sh.entries[id]; exists {
		sh.mu.Unlock()
		return
	}
	fetch := inflight.New[*pagedata.PageData]()
	fetch.Retain() // the map entry's own hold
	sh.entries[id] = &pageState{kind: stateInflight, inflight: fetch}
	sh.mu.Unlock()

	fetch.Retain() // this task's hold, released when runFetch returns
	pc.workCh <- fetchJob{id: id, fetch: fetch}
}

// CancelPrepopulate is a best-effort pre-emption: if id is Inflight, it
// immediately publishes an empty page to every waiter and transitions
// the entry to Cached. A Cached or absent entry is left untouched.
func (pc *PageCache) CancelPrepopulate(id pageid.PageID) {
	sh := pc.shard(id)
	sh.mu.Lock()
	st, exists := sh.entries[id]
	if !exists || st.kind == stateCached {
		sh.mu.Unlock()
		return
	}
	empty := pagedata.PristineEmpty(pc.domain, id)
	fetch := st.inflight
	sh.entries[id] = &pageState{kind: stateCached, cached: empty}
	sh.mu.Unlock()

	fetch.Release() // the map's hold is gone now that the entry was replaced
	fetch.CompleteAndNotify(empty)
}

// RetrieveSync is the cache's workhorse: returns the current page for
// id, loading it from the store if necessary, or pre-empting an
// outstanding fetch when hintFresh tells the cache the page cannot
// exist.
func (pc *PageCache) RetrieveSync(ctx context.Context, id pageid.PageID, hintFresh bool) *pagedata.PageData {
	pc.advisor.Accessed(id, pc.evictQueue)
	pc.tryDrainEvictions()

	sh := pc.shard(id)
	sh.mu.Lock()
	st, exists := sh.entries[id]

	if exists && st.kind == stateCached {
		sh.mu.Unlock()
		return st.cached
	}

	if exists && st.kind == stateInflight {
		fetch := st.inflight
		if hintFresh {
			empty := pagedata.PristineEmpty(pc.domain, id)
			sh.entries[id] = &pageState{kind: stateCached, cached: empty}
			sh.mu.Unlock()
			fetch.Release()
			fetch.CompleteAndNotify(empty)
			return empty
		}
		sh.mu.Unlock()
		return fetch.Wait()
	}

	// Vacant.
	if hintFresh {
		empty := pagedata.PristineEmpty(pc.domain, id)
		sh.entries[id] = &pageState{kind: stateCached, cached: empty}
		sh.mu.Unlock()
		return empty
	}

	fetch := inflight.New[*pagedata.PageData]()
	fetch.Retain() // the map entry's own hold; this goroutine is the loader, not a worker task
	sh.entries[id] = &pageState{kind: stateInflight, inflight: fetch}
	sh.mu.Unlock()

	pd := pc.loadPageData(ctx, id)

	sh.mu.Lock()
	cur, exists := sh.entries[id]
	if exists && cur.kind == stateInflight && cur.inflight == fetch {
		sh.entries[id] = &pageState{kind: stateCached, cached: pd}
		sh.mu.Unlock()
		fetch.Release()
		fetch.CompleteAndNotify(pd)
		return pd
	}
	sh.mu.Unlock()
	// Pre-empted while this goroutine was loading; the pre-empter's
	// CompleteAndNotify already (or will shortly) resolve this same
	// fetch token, so wait for it instead of trusting our stale load.
	return fetch.Wait()
}

func (pc *PageCache) runFetch(job fetchJob) {
	defer job.fetch.Release()

	if job.fetch.Outstanding() <= 1 {
		// Every other referent (the map entry) is already gone: a
		// pre-emption beat this task to it. Skip the store round trip.
		return
	}

	pd := pc.loadPageData(context.Background(), job.id)

	sh := pc.shard(job.id)
	sh.mu.Lock()
	st, exists := sh.entries[job.id]
	if exists && st.kind == stateInflight && st.inflight == job.fetch {
		sh.entries[job.id] = &pageState{kind: stateCached, cached: pd}
		sh.mu.Unlock()
		job.fetch.Release()
		job.fetch.CompleteAndNotify(pd)
		return
	}
	sh.mu.Unlock()
	// Already pre-empted to Cached by someone else; discard pd.
}

// loadPageData loads id from the store and wraps it as a PageData. A
// store I/O failure is fatal at this layer: there is no recovery
// policy, so it aborts the process rather than returning a
// half-resolved fetch that would leave waiters blocked forever.
func (pc *PageCache) loadPageData(ctx context.Context, id pageid.PageID) *pagedata.PageData {
	raw, ok, err := pc.store.LoadPage(ctx, id)
	if err != nil {
		panic(fmt.Sprintf("cache: store load failed for page %v: %v", id, err))
	}
	if !ok {
		return pagedata.PristineEmpty(pc.domain, id)
	}
	pd, err := pagedata.PristineWithData(pc.domain, id, raw)
	if err != nil {
		panic(fmt.Sprintf("cache: malformed page loaded for %v: %v", id, err))
	}
	return pd
}

// NewReadPass mints a read-pass over this cache's domain.
func (pc *PageCache) NewReadPass() passes.ReadPass[pageid.PageID] {
	return passes.NewReadPass[pageid.PageID](pc.domain)
}

// NewWritePass mints this domain's single write-pass.
func (pc *PageCache) NewWritePass() *passes.WritePass[pageid.PageID] {
	return passes.NewWritePass[pageid.PageID](pc.domain)
}

// UpdateGuard is the scoped guard returned by StartUpdatePhase. Release
// ends the mutation phase and triggers a bounded eviction pass.
type UpdateGuard struct {
	pc *PageCache
}

// Release ends the update phase.
func (g *UpdateGuard) Release() {
	g.pc.updateLock.Unlock()
	g.pc.drainEvictions()
}

// StartUpdatePhase acquires the update lock in write mode, blocking any
// eviction attempt until the returned guard is released.
func (pc *PageCache) StartUpdatePhase() *UpdateGuard {
	pc.updateLock.Lock()
	return &UpdateGuard{pc: pc}
}

// tryDrainEvictions attempts to drain the eviction queue, but only if
// doing so would not contend with an in-progress update phase.
func (pc *PageCache) tryDrainEvictions() {
	if !pc.updateLock.TryRLock() {
		return
	}
	defer pc.updateLock.RUnlock()
	pc.drainBatch()
}

// drainEvictions is used right after an update phase ends: the lock is
// free, so this always proceeds.
func (pc *PageCache) drainEvictions() {
	pc.updateLock.RLock()
	defer pc.updateLock.RUnlock()
	pc.drainBatch()
}

// drainBatch pops up to max(drainBatchFloor, queue length) nominations
// and evicts each. A victim that is still Inflight must never have
// reached the queue, so finding one aborts.
func (pc *PageCache) drainBatch() {
	limit := pc.evictQueue.Len()
	if limit < drainBatchFloor {
		limit = drainBatchFloor
	}
	for i := 0; i < limit; i++ {
		id, ok := pc.evictQueue.Pop()
		if !ok {
			return
		}
		pc.evictOne(id)
	}
}

func (pc *PageCache) evictOne(id pageid.PageID) {
	sh := pc.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, exists := sh.entries[id]
	if !exists {
		return
	}
	if st.kind == stateInflight {
		panic(fmt.Sprintf("cache: eviction queue nominated an inflight page %v", id))
	}
	delete(sh.entries, id)
}

// DiffEntry pairs a page id with the set of slots mutated since it was
// loaded, the unit Commit operates over.
type DiffEntry struct {
	ID   pageid.PageID
	Diff pagedata.PageDiff
}

// Commit persists a batch of page diffs: a page with no allocated
// buffer or that is logically empty is deleted; a page whose changed
// slot count meets FullPageThreshold is written in full; otherwise a
// packed delta of only the changed slots is written. tx is accepted
// for interface symmetry with a durable transactional store and is not
// otherwise used; this layer makes no atomicity promises across pages.
func (pc *PageCache) Commit(ctx context.Context, diffs []DiffEntry, tx interface{}) error {
	rp := pc.NewReadPass()
	defer rp.Release()

	for _, de := range diffs {
		if err := pc.commitOne(ctx, rp, de); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PageCache) commitOne(ctx context.Context, rp passes.ReadPass[pageid.PageID], de DiffEntry) error {
	sh := pc.shard(de.ID)
	sh.mu.RLock()
	st, exists := sh.entries[de.ID]
	sh.mu.RUnlock()

	if !exists {
		return pc.deletePage(ctx, de.ID)
	}
	if st.kind == stateInflight {
		panic(fmt.Sprintf("cache: commit observed an inflight page %v", de.ID))
	}

	pd := st.cached
	if !pd.IsAllocated(rp) {
		return pc.deletePage(ctx, de.ID)
	}
	raw, ok := pd.Bytes(rp)
	if !ok || pagedata.PageIsEmpty(&raw) {
		return pc.deletePage(ctx, de.ID)
	}

	if de.Diff.PopCount() >= pc.cfg.FullPageThreshold {
		if err := pc.store.WritePage(ctx, de.ID, raw); err != nil {
			return &store.ErrStoreIO{Op: "Commit.WritePage", Err: err}
		}
		return nil
	}

	changed := de.Diff.ChangedSlots()
	records := make([]store.NodeRecord, 0, len(changed))
	for _, slot := range changed {
		var rec store.NodeRecord
		rec.Slot = uint8(slot)
		start := slot * 32
		copy(rec.Value[:], raw[start:start+32])
		records = append(records, rec)
	}
	if err := pc.store.WritePageNodes(ctx, de.ID, records); err != nil {
		return &store.ErrStoreIO{Op: "Commit.WritePageNodes", Err: err}
	}
	return nil
}

func (pc *PageCache) deletePage(ctx context.Context, id pageid.PageID) error {
	if err := pc.store.DeletePage(ctx, id); err != nil {
		return &store.ErrStoreIO{Op: "Commit.DeletePage", Err: err}
	}
	return nil
}

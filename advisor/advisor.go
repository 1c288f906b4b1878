// Package advisor implements the cache's eviction advisor: a
// dual-segment (window + main) access-frequency tracker built on
// segmentio/datastructures' generic LRU.
//
// Recently-seen ids live in the window segment (plain recency order);
// an id accessed often enough is promoted into the main segment, which
// tracks access frequency. Either segment, when over capacity,
// nominates its least-valuable member for eviction by pushing it onto
// the caller's evictqueue.Queue. Nomination is advisory only: the cache
// decides whether and when to actually evict.
package advisor

import (
	"sync"

	"github.com/segmentio/datastructures/v2/cache"

	"github.com/lattice-kv/pagecache/evictqueue"
	"github.com/lattice-kv/pagecache/pageid"
)

// entryOverheadBytes approximates the bookkeeping cost of one tracked
// id, used to turn a byte capacity into an entry-count capacity.
const entryOverheadBytes = 64

// promoteThreshold is the access count at which a window entry is
// promoted into the main segment.
const promoteThreshold = 2

// Config carries the advisor's tuning knobs.
type Config struct {
	// CapacityBytes bounds the advisor's own tracked-entry bookkeeping,
	// not page storage itself.
	CapacityBytes int64
	// HotFraction is the share of CapacityBytes reserved for the main
	// (frequency) segment; the rest is the window (recency) segment.
	HotFraction float64
}

// Option configures a Config, following the functional-options idiom.
type Option func(*Config)

// WithCapacityBytes overrides the default tracked-entry capacity.
func WithCapacityBytes(n int64) Option {
	return func(c *Config) { c.CapacityBytes = n }
}

// WithHotFraction overrides the default main-segment share.
func WithHotFraction(f float64) Option {
	return func(c *Config) { c.HotFraction = f }
}

// DefaultConfig returns the advisor's default tuning: 1 MiB of tracked
// entries, 20% reserved for the hot (main) segment.
func DefaultConfig() Config {
	return Config{CapacityBytes: 1 << 20, HotFraction: 0.2}
}

// Apply folds options onto a copy of DefaultConfig.
func Apply(options ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}

type entry struct {
	id   pageid.PageID
	freq uint32
	// promoted marks an entry that has moved to the main segment; the
	// LRU surface has no per-key removal, so the window keeps a stale
	// copy that is dropped without nomination when it reaches the tail.
	promoted bool
}

// segment is a capacity-bounded LRU of tracked entries. The LRU itself
// is unbounded and caller-driven (Evict pops the least-recently-used
// entry on demand), so the segment tracks its own size against cap.
type segment struct {
	cap  int
	size int
	lru  cache.LRU[pageid.PageID, *entry]
}

func newSegment(capacity int) *segment {
	if capacity < 1 {
		capacity = 1
	}
	return &segment{cap: capacity}
}

func (s *segment) lookup(id pageid.PageID) (*entry, bool) {
	return s.lru.Lookup(id)
}

func (s *segment) insert(e *entry) {
	if _, replaced := s.lru.Insert(e.id, e); !replaced {
		s.size++
	}
}

// evictTail removes and returns the least-recently-used entry, or nil
// if the segment is empty.
func (s *segment) evictTail() *entry {
	_, e, ok := s.lru.Evict()
	if !ok {
		return nil
	}
	s.size--
	return e
}

func (s *segment) overCap() bool {
	return s.size > s.cap
}

// Advisor tracks per-page access frequency and nominates eviction
// victims. One Advisor is shared by every goroutine using the same
// PageCache, so Accessed takes a plain mutex around the segments.
type Advisor struct {
	mu     sync.Mutex
	window *segment
	main   *segment
}

// New builds an Advisor from the given options.
func New(options ...Option) *Advisor {
	cfg := Apply(options...)
	entries := cfg.CapacityBytes / entryOverheadBytes
	if entries < 2 {
		entries = 2
	}
	mainCap := int(float64(entries) * cfg.HotFraction)
	if mainCap < 1 {
		mainCap = 1
	}
	windowCap := int(entries) - mainCap
	if windowCap < 1 {
		windowCap = 1
	}
	return &Advisor{window: newSegment(windowCap), main: newSegment(mainCap)}
}

// Accessed registers an access to id. If the access pushes a segment
// over capacity, the advisor nominates a victim by pushing its id onto
// outQueue. It never nominates id itself in the same call, since id was
// just touched and so is always the most-valuable entry in its segment.
func (a *Advisor) Accessed(id pageid.PageID, outQueue *evictqueue.Queue[pageid.PageID]) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.main.lookup(id); ok {
		e.freq++
		return
	}

	if e, ok := a.window.lookup(id); ok {
		e.freq++
		if e.freq >= promoteThreshold {
			// The window's copy becomes a stale residue; a previously
			// promoted entry that fell out of the main segment is
			// re-admitted here the same way.
			e.promoted = true
			a.promote(e, outQueue)
		}
		return
	}

	a.window.insert(&entry{id: id, freq: 1})
	for a.window.overCap() {
		victim := a.window.evictTail()
		if victim == nil {
			break
		}
		if !victim.promoted {
			outQueue.Push(victim.id)
		}
	}
}

func (a *Advisor) promote(e *entry, outQueue *evictqueue.Queue[pageid.PageID]) {
	a.main.insert(e)
	for a.main.overCap() {
		victim := a.main.evictTail()
		if victim == nil {
			break
		}
		outQueue.Push(victim.id)
	}
}

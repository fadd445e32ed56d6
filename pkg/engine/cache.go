package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Cache wires a full set of in-memory default collaborators around the
// prepare_clines pipeline: a dense-array Metadata, a lock-free FreeList, an
// intrusive-list LRU EvictionPolicy, per-bucket and per-line lock sets, a
// budget-tracking PartitionTable, and an always-promote PromotionPolicy.
// Every collaborator except the hash-bucket and cache-line lock sets is
// swappable through the With* options on NewCache; those two are always the
// in-memory defaults.
type Cache struct {
	metadata       Metadata
	freeList       FreeList
	eviction       EvictionPolicy
	hashBuckets    HashBucketLocker
	cacheLineLocks CacheLineLocker
	partitions     PartitionTable
	promotion      PromotionPolicy
	cleaner        Cleaner

	// metaMu is MetaX: the global metadata exclusive lock taken only on
	// the eviction slow path (evictSlow). See locks.go.
	metaMu sync.Mutex

	logger *zap.Logger

	// FallbackPTErrorCounter counts mapping errors across the whole cache
	// (it is never reset), for the fallback pass-through warning. LastAccessMs is
	// updated by NewRequest; both live as atomic fields directly on the
	// cache object rather than behind a separate stats collaborator.
	FallbackPTErrorCounter atomic.Int64
	LastAccessMs           atomic.Int64

	fallbackPTThreshold int64
	sectorsPerLine      uint8
}

// Option customizes a Cache at construction time, overriding one of the
// in-memory default collaborators NewCache otherwise wires from Config.
type Option func(*Cache)

// WithMetadata overrides the default dense-array Metadata, e.g. to back it
// with a persistent store.
func WithMetadata(md Metadata) Option { return func(c *Cache) { c.metadata = md } }

// WithFreeList overrides the default lock-free stack FreeList.
func WithFreeList(fl FreeList) Option { return func(c *Cache) { c.freeList = fl } }

// WithEvictionPolicy overrides the default LRU EvictionPolicy.
func WithEvictionPolicy(ev EvictionPolicy) Option { return func(c *Cache) { c.eviction = ev } }

// WithPartitionTable overrides the default budget-tracking PartitionTable.
func WithPartitionTable(pt PartitionTable) Option { return func(c *Cache) { c.partitions = pt } }

// WithPromotionPolicy overrides the default always-promote PromotionPolicy.
func WithPromotionPolicy(pp PromotionPolicy) Option { return func(c *Cache) { c.promotion = pp } }

// WithCleaner installs a Cleaner. Without one, Clean (cleaner.go) is a
// no-op: actual device I/O for writeback is out of scope here, so a cache
// with no dirty-writeback needs is not required to supply one.
func WithCleaner(cl Cleaner) Option { return func(c *Cache) { c.cleaner = cl } }

// WithLogger overrides the default production zap.Logger.
func WithLogger(l *zap.Logger) Option { return func(c *Cache) { c.logger = l } }

// NewCache builds a Cache from cfg, applying opts over the default
// in-memory collaborators. Panics if cfg fails Validate - constructing a
// cache with an invalid configuration is a programmer error, not a runtime
// condition callers are expected to recover from.
func NewCache(cfg Config, opts ...Option) *Cache {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	md := newArrayMetadata(cfg.CollisionEntries, cfg.Buckets, cfg.SectorsPerLine)

	fl := newStackFreeList(cfg.CollisionEntries)
	fl.seed(cfg.CollisionEntries)

	cache := &Cache{
		metadata:            md,
		freeList:            fl,
		eviction:            newLRUPolicy(),
		hashBuckets:         newHashBucketLocks(cfg.Buckets),
		cacheLineLocks:      newCacheLineLocks(cfg.CollisionEntries),
		partitions:          newDefaultPartitionTable(cfg.Partitions),
		promotion:           alwaysPromote{},
		logger:              newDefaultLogger(),
		fallbackPTThreshold: cfg.FallbackPTErrorThreshold,
		sectorsPerLine:      cfg.SectorsPerLine,
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// accountAdmit/accountEvict keep a PartitionTable's occupancy accurate if
// it opts in to partitionAccountant; custom PartitionTable implementations
// that don't are simply skipped.
func (cache *Cache) accountAdmit(part PartitionID) {
	if a, ok := cache.partitions.(partitionAccountant); ok {
		a.noteAdmitted(part)
	}
}

func (cache *Cache) accountEvict(part PartitionID) {
	if a, ok := cache.partitions.(partitionAccountant); ok {
		a.noteEvicted(part)
	}
}

// NewRequest builds a Request covering [coreLineFirst, coreLineFirst+lineCount)
// on coreID, ready for PrepareClines. The caller must still set EngineCBs
// (and IOIf, Complete, IOQueue) before submission - this only allocates and
// zeroes the per-entry map.
func (cache *Cache) NewRequest(coreID CoreID, coreLineFirst CoreLine, lineCount uint32, dir Direction) *Request {
	cache.LastAccessMs.Store(time.Now().UnixMilli())

	return &Request{
		Cache:         cache,
		CoreID:        coreID,
		CoreLineFirst: coreLineFirst,
		LineCount:     lineCount,
		Direction:     dir,
		Map:           make([]MapEntry, lineCount),
	}
}

// RunRequest dispatches req's currently-installed I/O interface. It is the
// run callback handed to Queue.Kick/PushReqBack/PushReqFront/PushReqFrontIf
// whenever Cache itself owns the queue's worker loop (the simulation CLI;
// see cmd/cachesim).
func (cache *Cache) RunRequest(req *Request) {
	assertf(req.IOIf != nil, "RunRequest called with no I/O interface installed")
	req.IOIf.dispatch(req)
}

// UnlockClines releases req's cache-line locks, acquired earlier by
// PrepareClines. External callers (outside this package) must use this
// rather than reaching into Cache's unexported collaborators.
func (cache *Cache) UnlockClines(req *Request) {
	cache.cacheLineLocks.Unlock(req)
}

// StatsSnapshot is a point-in-time, value-typed view of cache-wide counters
// suitable for logging or JSON export (see WriteStatsSnapshot).
type StatsSnapshot struct {
	FreeLines               uint64 `json:"freeLines"`
	FallbackPTErrorCounter  int64  `json:"fallbackPtErrorCounter"`
	LastAccessMs            int64  `json:"lastAccessMs"`
}

// StatsSnapshot reads the cache's free-list depth and fallback-error
// counter. Advisory only, like FreeList.NumFree itself.
func (cache *Cache) StatsSnapshot() StatsSnapshot {
	return StatsSnapshot{
		FreeLines:              cache.freeList.NumFree(),
		FallbackPTErrorCounter: cache.FallbackPTErrorCounter.Load(),
		LastAccessMs:           cache.LastAccessMs.Load(),
	}
}

package engine

import "fmt"

// requestHash computes each map entry's hash-bucket id before any lock is
// taken, so the hash-bucket set covering this request is known up front.
// Grounded on ocf_req_hash.
func requestHash(cache *Cache, req *Request) {
	md := cache.metadata
	for i := 0; i < int(req.LineCount); i++ {
		req.Map[i].Hash = md.Hash(req.CoreLineAt(i), req.CoreID)
	}
}

// bucketSet returns the distinct hash buckets req's core lines touch.
func bucketSet(req *Request) []CacheLine {
	out := make([]CacheLine, len(req.Map))
	for i := range req.Map {
		out[i] = req.Map[i].Hash
	}
	return out
}

// lockClines asks the request's engine callback what lock mode it needs on
// its mapped cache lines and acquires it, synchronously or asynchronously.
// Grounded on _lock_clines.
func lockClines(cache *Cache, req *Request) LockResult {
	switch req.EngineCBs.GetLockType(req) {
	case LockWrite:
		return cache.cacheLineLocks.AsyncLockWR(req, req.EngineCBs.Resume)
	case LockRead:
		return cache.cacheLineLocks.AsyncLockRD(req, req.EngineCBs.Resume)
	default:
		return LockAcquired
	}
}

// PrepareClines is the entry point: prepare.go's state machine. It
// transitions START -> HB_RD -> {DONE_HIT | PROMOTE_CHECK} -> HB_WR -> MAP
// -> {DONE_MAP | EVICT_SLOW} -> META_X -> RE_TRAVERSE -> EVICT -> MAP2 ->
// DONE_MAP2 | FAIL.
//
// Returns LockAcquired on synchronous success, ErrNoLock if a cache-line
// lock was deferred (req.EngineCBs.Resume fires later), or ErrMappingError
// if the request must downgrade to pass-through.
func (cache *Cache) PrepareClines(req *Request) (LockResult, error) {
	requestHash(cache, req)

	buckets := bucketSet(req)

	// START -> HB_RD: read-lock the bucket set so mapping for these core
	// lines cannot change during traversal.
	cache.hashBuckets.RDLock(buckets)
	req.hashBucketsHeldRD = true

	Traverse(cache, req)

	if req.IsMapped() {
		lock := lockClines(cache, req)

		cache.hashBuckets.RDUnlock(buckets)
		req.hashBucketsHeldRD = false

		if lock < 0 {
			return lock, ErrNoLock
		}
		return lock, nil
	}

	// PROMOTE_CHECK
	if !cache.promotion.ShouldPromote(req) {
		cache.markMappingError(req, "promotion refused")
		cache.hashBuckets.RDUnlock(buckets)
		req.hashBucketsHeldRD = false
		return -1, ErrMappingError
	}

	return cache.prepareClinesMiss(req, buckets)
}

// prepareClinesMiss is ocf_prepare_clines_miss: the HB_WR / MAP / EVICT_SLOW
// portion of the pipeline, reached once traversal found at least one MISS
// and promotion approved proceeding.
func (cache *Cache) prepareClinesMiss(req *Request, buckets []CacheLine) (LockResult, error) {
	if !cache.partitions.IsEnabled(req.PartID) {
		cache.markMappingError(req, "partition disabled")
		cache.hashBuckets.RDUnlock(buckets)
		req.hashBucketsHeldRD = false
		return -1, fmt.Errorf("%w: %w", ErrMappingError, ErrPartitionDisabled)
	}

	if !cache.partitions.HasSpace(req) {
		cache.hashBuckets.RDUnlock(buckets)
		req.hashBucketsHeldRD = false
		return cache.evictSlow(req, buckets)
	}

	// Mapping must be performed holding (at least) hash-bucket write lock.
	// Upgrade is release-RD-then-acquire-WR (see locks.go); re-traverse to
	// pick up anything that changed in between.
	cache.hashBuckets.Upgrade(buckets)
	req.hashBucketsHeldRD = false
	req.hashBucketsHeldWR = true
	Traverse(cache, req)

	engineMap(cache, req)

	if req.Info.MappingError {
		// The free list could not cover every MISS entry: drop HB_WR and
		// continue on the eviction slow path, which re-traverses under MetaX.
		cache.hashBuckets.WRUnlock(buckets)
		req.hashBucketsHeldWR = false
		return cache.evictSlow(req, buckets)
	}

	var err error
	lock := lockClines(cache, req)
	if lock < 0 {
		// Mapping succeeded, but the cache-line lock was contended or
		// refused. Don't attempt eviction - the mapping is valid, only
		// the lock was contended.
		cache.markMappingError(req, "cache line lock refused after mapping")
		err = ErrMappingError
	}

	cache.hashBuckets.WRUnlock(buckets)
	req.hashBucketsHeldWR = false

	return lock, err
}

// evictSlow is the EVICT_SLOW state: acquire MetaX, re-traverse, evict, and
// re-map under exclusive metadata access.
func (cache *Cache) evictSlow(req *Request, buckets []CacheLine) (LockResult, error) {
	cache.metaMu.Lock()
	defer cache.metaMu.Unlock()

	// Re-traverse without holding any hash-bucket lock: MetaX now excludes
	// every other writer path (mapping and eviction both take MetaX before
	// mutating chains on this slow path), so this is safe.
	Traverse(cache, req)

	if !cache.partitions.HasSpace(req) {
		req.Info.PartEvict = true
	} else {
		req.Info.PartEvict = false
	}

	var scope *PartitionID
	if req.Info.PartEvict {
		part := req.PartID
		scope = &part
	}

	// Evicting from any partition only has to cover what the free list
	// cannot; a full partition must supply a victim for every MISS entry.
	need := req.UnmappedCount()
	if !req.Info.PartEvict {
		if free := cache.freeList.NumFree(); free >= uint64(need) {
			need = 0
		} else {
			need -= uint32(free)
		}
	}
	supplied := cache.eviction.Evict(cache, req, need, scope)
	if supplied < need {
		// Return the victims Evict did supply: they are already off their
		// chains, invalidated and un-accounted, so only the free list and
		// the map entries need restoring.
		for i := range req.Map {
			if entry := &req.Map[i]; entry.Status == StatusRemapped {
				cache.freeList.Put(entry.CollIdx)
				entry.Status = StatusMiss
				entry.CollIdx = cache.metadata.CollisionTableEntries()
			}
		}
		cache.markMappingError(req, "eviction policy refused to supply enough victims")
		return -1, fmt.Errorf("%w: %w", ErrMappingError, ErrEvictionRefused)
	}

	engineMap(cache, req)
	if req.Info.MappingError {
		cache.markMappingError(req, "mapping failed after eviction")
		return -1, ErrMappingError
	}

	lock := lockClines(cache, req)
	if lock < 0 {
		cache.markMappingError(req, "cache line lock refused after eviction")
		return lock, ErrMappingError
	}

	return lock, nil
}

package engine

import (
	"errors"
	"testing"
)

// These tests exercise PrepareClines end to end against a small, fixed
// cache shape: 16 cache lines, 8 hash buckets, 4 sectors per line.

// Pure hit: {10,11,12} on core 0, all resident at CacheLines {3,4,5},
// valid, clean. Expect hit_no=3, insert_no=0, seq_no=2 (contiguous),
// ACQUIRED under READ lock.
func Test_Scenario_PureHit(t *testing.T) {
	cache := newTestCache(t)
	seedResident(cache, 0, 10, 3)
	seedResident(cache, 0, 11, 4)
	seedResident(cache, 0, 12, 5)

	req := newReq(cache, 0, 10, 3, blockingCallbacks{lockType: LockRead, resumed: make(chan *Request, 1)})
	lock, err := cache.PrepareClines(req)
	if err != nil {
		t.Fatalf("PrepareClines: %v", err)
	}
	defer cache.cacheLineLocks.Unlock(req)

	if lock != LockAcquired {
		t.Fatalf("expected LockAcquired, got %d", lock)
	}
	if req.Info.HitNo != 3 || req.Info.InsertNo != 0 {
		t.Fatalf("expected hit_no=3 insert_no=0, got hit_no=%d insert_no=%d", req.Info.HitNo, req.Info.InsertNo)
	}
	if req.Info.SeqNo != 2 {
		t.Fatalf("expected seq_no=2, got %d", req.Info.SeqNo)
	}
}

// Miss with free space: {100,101}, none resident, 10 free slots,
// promotion approves. Expect both INSERTED, insert_no=2, free count drops
// by 2.
func Test_Scenario_MissWithFreeSpace(t *testing.T) {
	cache := newTestCache(t)

	// Occupy 6 of 16 lines elsewhere so exactly 10 remain free.
	for i := CacheLine(0); i < 6; i++ {
		seedResident(cache, 0, CoreLine(900+i), i)
	}
	before := cache.freeList.NumFree()
	if before != 10 {
		t.Fatalf("test setup: expected 10 free lines, got %d", before)
	}

	req := newReq(cache, 0, 100, 2, blockingCallbacks{lockType: LockWrite, resumed: make(chan *Request, 1)})
	_, err := cache.PrepareClines(req)
	if err != nil {
		t.Fatalf("PrepareClines: %v", err)
	}
	defer cache.cacheLineLocks.Unlock(req)

	for i := range req.Map {
		if req.Map[i].Status != StatusInserted {
			t.Fatalf("entry %d: expected INSERTED, got %v", i, req.Map[i].Status)
		}
	}
	if req.Info.InsertNo != 2 {
		t.Fatalf("expected insert_no=2, got %d", req.Info.InsertNo)
	}
	if cache.freeList.NumFree() != before-2 {
		t.Fatalf("expected free count to drop by 2: before=%d after=%d", before, cache.freeList.NumFree())
	}
}

// Mixed hit/miss: {50 (HIT dirty-all), 51 (MISS)}. Expect hit_no=1,
// insert_no=1, dirty_any=1, dirty_all=1.
func Test_Scenario_MixedHitMiss(t *testing.T) {
	cache := newTestCache(t)
	seedResident(cache, 0, 50, 3)
	cache.metadata.(*arrayMetadata).MarkDirty(3, 0, cache.metadata.SectorsPerLine())

	req := newReq(cache, 0, 50, 2, blockingCallbacks{lockType: LockWrite, resumed: make(chan *Request, 1)})
	_, err := cache.PrepareClines(req)
	if err != nil {
		t.Fatalf("PrepareClines: %v", err)
	}
	defer cache.cacheLineLocks.Unlock(req)

	if req.Map[0].Status != StatusHit || req.Map[1].Status != StatusInserted {
		t.Fatalf("expected HIT then INSERTED, got %v then %v", req.Map[0].Status, req.Map[1].Status)
	}
	if req.Info.HitNo != 1 || req.Info.InsertNo != 1 {
		t.Fatalf("expected hit_no=1 insert_no=1, got hit_no=%d insert_no=%d", req.Info.HitNo, req.Info.InsertNo)
	}
	if req.Info.DirtyAny != 1 || req.Info.DirtyAll != 1 {
		t.Fatalf("expected dirty_any=1 dirty_all=1, got dirty_any=%d dirty_all=%d", req.Info.DirtyAny, req.Info.DirtyAll)
	}
}

// Free-list exhaustion during map: 4 MISS lines, free list has 2
// entries, partition has space. Expect the slow eviction path to run, 2
// clean victims evicted, re-map succeeds, ACQUIRED.
func Test_Scenario_FreeListExhaustionDuringMap(t *testing.T) {
	cache := newTestCache(t)

	// 14 of 16 lines resident elsewhere -> exactly 2 free.
	for i := CacheLine(0); i < 14; i++ {
		seedResident(cache, 0, CoreLine(900+i), i)
	}
	if cache.freeList.NumFree() != 2 {
		t.Fatalf("test setup: expected 2 free lines, got %d", cache.freeList.NumFree())
	}

	req := newReq(cache, 0, 200, 4, blockingCallbacks{lockType: LockWrite, resumed: make(chan *Request, 1)})
	lock, err := cache.PrepareClines(req)
	if err != nil {
		t.Fatalf("PrepareClines: %v", err)
	}
	defer cache.cacheLineLocks.Unlock(req)

	if lock != LockAcquired {
		t.Fatalf("expected LockAcquired, got %d", lock)
	}

	victims := 0
	for i := range req.Map {
		switch req.Map[i].Status {
		case StatusInserted:
		case StatusRemapped:
			victims++
		default:
			t.Fatalf("entry %d: expected INSERTED or REMAPPED, got %v", i, req.Map[i].Status)
		}
	}
	if victims != 2 {
		t.Fatalf("expected exactly 2 evicted victims remapped, got %d", victims)
	}
}

// Eviction refused: 4 MISS lines, free list empty, eviction supplies
// only 1 victim (the other 15 resident lines are dirty). Expect
// mapping_error=1, no INSERTED/REMAPPED remain, return value a failure.
func Test_Scenario_EvictionRefused(t *testing.T) {
	cache := newTestCache(t)

	for i := CacheLine(0); i < 16; i++ {
		seedResident(cache, 0, CoreLine(900+i), i)
	}
	// Mark 15 of 16 dirty so eviction can supply at most 1 clean victim.
	for i := CacheLine(1); i < 16; i++ {
		cache.metadata.(*arrayMetadata).MarkDirty(i, 0, cache.metadata.SectorsPerLine())
	}

	req := newReq(cache, 0, 200, 4, blockingCallbacks{lockType: LockWrite, resumed: make(chan *Request, 1)})
	_, err := cache.PrepareClines(req)
	if !errors.Is(err, ErrMappingError) || !errors.Is(err, ErrEvictionRefused) {
		t.Fatalf("expected ErrMappingError wrapping ErrEvictionRefused, got %v", err)
	}

	if !req.Info.MappingError {
		t.Fatalf("expected mapping_error latched")
	}
	for i := range req.Map {
		if req.Map[i].Status == StatusInserted || req.Map[i].Status == StatusRemapped {
			t.Fatalf("entry %d: status %v survived a refused eviction", i, req.Map[i].Status)
		}
	}

	if !cache.metaMu.TryLock() {
		t.Fatalf("MetaX still held after a refused eviction")
	}
	cache.metaMu.Unlock()
}

// Lock-deferred resume with stable metadata: a pure hit, but the
// cache-line lock is contended. Expect ErrNoLock; after resume, check
// passes and the original I/O-if is restored.
func Test_Scenario_LockDeferredResume_StableMetadata(t *testing.T) {
	cache := newTestCache(t)
	seedResident(cache, 0, 10, 3)
	seedResident(cache, 0, 11, 4)
	seedResident(cache, 0, 12, 5)

	// Hold line 3's write lock to force contention.
	holder := &cache.cacheLineLocks.(*cacheLineLocks).lines[3]
	holder.mu.Lock()

	resumed := make(chan *Request, 1)
	req := newReq(cache, 0, 10, 3, blockingCallbacks{lockType: LockRead, resumed: resumed})
	req.IOQueue = NewQueue()

	dispatched := make(chan struct{}, 1)
	req.IOIf = NewIOInterface(
		func(r *Request) { dispatched <- struct{}{} },
		func(r *Request) { dispatched <- struct{}{} },
	)

	lock, err := cache.PrepareClines(req)
	if err != ErrNoLock {
		t.Fatalf("expected ErrNoLock, got err=%v lock=%d", err, lock)
	}

	holder.mu.Unlock() // let the parked lock acquisition proceed

	<-resumed // blockingCallbacks.Resume -> cache.OnResume

	popped := popForTest(req.IOQueue)
	popped.IOIf.dispatch(popped)
	<-dispatched

	if req.Err != nil {
		t.Fatalf("expected no error after a stable resume, got %v", req.Err)
	}
	if req.IOIf == nil {
		t.Fatalf("expected an I/O interface to be reinstalled")
	}

	cache.cacheLineLocks.Unlock(req)
}

// Lock-deferred resume with invalidated mapping: same setup as above, but
// CacheLine 4 is remapped to a different (core_id, line) between park and
// resume. Expect check fails, request completes with ErrInconsistentRequest,
// locks released.
func Test_Scenario_LockDeferredResume_InvalidatedMapping(t *testing.T) {
	cache := newTestCache(t)
	seedResident(cache, 0, 10, 3)
	seedResident(cache, 0, 11, 4)
	seedResident(cache, 0, 12, 5)

	holder := &cache.cacheLineLocks.(*cacheLineLocks).lines[3]
	holder.mu.Lock()

	resumed := make(chan *Request, 1)
	req := newReq(cache, 0, 10, 3, blockingCallbacks{lockType: LockRead, resumed: resumed})
	req.IOQueue = NewQueue()
	req.IOIf = NewIOInterface(func(*Request) {}, func(*Request) {})

	lock, err := cache.PrepareClines(req)
	if err != ErrNoLock {
		t.Fatalf("expected ErrNoLock, got err=%v lock=%d", err, lock)
	}

	// Another request remaps CacheLine 4 while this one is parked.
	cache.metadata.(*arrayMetadata).RemoveFromCollision(4)
	seedResident(cache, 0, 999, 4)

	holder.mu.Unlock() // let the parked lock acquisition proceed

	<-resumed

	var completedErr error
	req.Complete = func(r *Request, err error) { completedErr = err }

	popped := popForTest(req.IOQueue)
	popped.IOIf.dispatch(popped)

	for completedErr == nil {
		// Complete is invoked synchronously inside dispatch on this path,
		// so completedErr is already set here; the loop never waits.
		break
	}

	if completedErr != ErrInconsistentRequest {
		t.Fatalf("expected ErrInconsistentRequest, got %v", completedErr)
	}
}

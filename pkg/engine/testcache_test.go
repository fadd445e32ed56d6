package engine

import "testing"

// newTestCache builds a small, deterministic cache for the test suite:
// 16 cache lines, 8 buckets, 4 sectors/line, single partition 0.
func newTestCache(t *testing.T) *Cache {
	t.Helper()

	cfg := Config{
		CollisionEntries:         16,
		Buckets:                  8,
		SectorsPerLine:           4,
		Partitions:               map[PartitionID]int{0: 16},
		FallbackPTErrorThreshold: 1_000_000,
	}
	return NewCache(cfg)
}

// blockingCallbacks is an EngineCallbacks whose Resume records that it
// fired, for tests that want to observe (or forbid) a deferred lock grant.
type blockingCallbacks struct {
	lockType LockType
	resumed  chan *Request
}

func (c blockingCallbacks) GetLockType(*Request) LockType { return c.lockType }
func (c blockingCallbacks) Resume(req *Request) {
	req.Cache.OnResume(req)
	c.resumed <- req
}

// newReq allocates a single-request helper with the given callbacks,
// defaulting PartID to 0 and Direction to Read.
func newReq(cache *Cache, coreID CoreID, first CoreLine, n uint32, cbs EngineCallbacks) *Request {
	req := cache.NewRequest(coreID, first, n, Read)
	req.PartID = 0
	req.EngineCBs = cbs
	return req
}

// seedResident directly installs (coreID, coreLine) as resident at line,
// valid and clean across its whole sector range, bypassing PrepareClines -
// for constructing exact test preconditions.
func seedResident(cache *Cache, coreID CoreID, coreLine CoreLine, line CacheLine) {
	md := cache.metadata.(*arrayMetadata)
	bucket := md.Hash(coreLine, coreID)
	md.AddToCollision(coreID, coreLine, bucket, line)
	md.AddToPartition(0, line)
	md.InitCacheLine(line, 0, md.SectorsPerLine())
	cache.accountAdmit(0)
	cache.eviction.Init(line)
	cache.eviction.TouchHot(line)

	fl := cache.freeList.(*stackFreeList)
	var putBack []CacheLine
	for {
		l, ok := fl.Take()
		if !ok {
			break
		}
		if l == line {
			break
		}
		putBack = append(putBack, l)
	}
	for _, l := range putBack {
		fl.Put(l)
	}
}

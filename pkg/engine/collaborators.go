package engine

// EngineCallbacks is the request-scoped collaborator engine_cbs.get_lock_type
// / engine_cbs.resume. Real callers (the I/O-if dispatch table) supply one
// per request based on its direction and cache mode (WA/WT/WB).
type EngineCallbacks interface {
	// GetLockType answers what lock mode _lock_clines should acquire on
	// this request's cache lines.
	GetLockType(req *Request) LockType

	// Resume is invoked by the cache-line concurrency manager once a
	// deferred lock is granted. It must eventually call back into
	// OnResume (see resume.go) - Cache.OnResume does this for the default
	// wiring.
	Resume(req *Request)
}

// PromotionPolicy is the external decider of whether a miss should be
// inserted or bypassed (promotion.*).
type PromotionPolicy interface {
	ShouldPromote(req *Request) bool
	Purge(req *Request)
}

// alwaysPromote is the default PromotionPolicy: every miss is promoted.
// Sufficient for the simulation driver and for tests that want to exercise
// the full mapping path without a real promotion heuristic.
type alwaysPromote struct{}

func (alwaysPromote) ShouldPromote(*Request) bool { return true }
func (alwaysPromote) Purge(*Request)              {}

// PartitionTable is the external collaborator partition.*.
type PartitionTable interface {
	IsEnabled(part PartitionID) bool
	HasSpace(req *Request) bool
}

// Cleaner is the external subsystem that writes dirty cache lines back to
// the core device. The engine only builds the attribs and fires it; the
// actual device I/O is the cleaner implementation's job.
type Cleaner interface {
	Fire(attribs *CleanerAttribs)
}

// CleanerAttribs is passed to Cleaner.Fire. Grounded on
// ocf_cleaner_attribs / ocf_engine_clean.
type CleanerAttribs struct {
	// LockCacheline is always false here: the caller already holds the
	// cache-line locks for every line the getter will yield.
	LockCacheline bool

	// Getter yields, in request order, the cache line of each HIT entry
	// that is currently dirty. Returns false once exhausted.
	Getter func() (CacheLine, bool)

	// Count is the number of lines Getter will yield (req.Info.DirtyAny).
	Count uint32

	// Complete is invoked by the cleaner when writeback finishes (nil
	// error) or fails (non-nil error).
	Complete func(err error)

	Request *Request
}

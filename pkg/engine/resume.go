package engine

// refresh re-verifies a request's mapping under a fresh HB_RD lock after a
// deferred cache-line lock was granted, then either dispatches the
// request's original I/O interface (on success) or completes it with
// ErrInconsistentRequest and releases the cache-line locks (on divergence).
// Grounded on _ocf_engine_refresh.
func refresh(cache *Cache, req *Request) {
	buckets := bucketSet(req)

	cache.hashBuckets.RDLock(buckets)
	req.hashBucketsHeldRD = true
	ok := Check(cache, req)
	cache.hashBuckets.RDUnlock(buckets)
	req.hashBucketsHeldRD = false

	if ok {
		io := req.priv
		req.priv = nil
		assertf(io != nil, "refresh succeeded with no saved I/O interface")

		req.IOIf = io
		io.dispatch(req)
		return
	}

	req.Err = ErrInconsistentRequest

	cache.cacheLineLocks.Unlock(req)

	if req.Complete != nil {
		req.Complete(req, req.Err)
	}
}

// refreshIOInterface is the single stateful continuation both Read and
// Write resumption swap in: an explicit state machine with a nullable
// saved_io_if field rather than a deep, suspended call stack.
func refreshIOInterface(cache *Cache) *IOInterface {
	io := &IOInterface{}
	io.read = func(req *Request) { refresh(cache, req) }
	io.write = func(req *Request) { refresh(cache, req) }
	return io
}

// OnResume is called by the cache-line concurrency manager once it grants a
// deferred lock. It saves the request's current I/O interface into priv,
// installs the refresh interface, and pushes the request to the front of
// its queue so refresh runs before any other queued work on it. Grounded on
// ocf_engine_on_resume.
func (cache *Cache) OnResume(req *Request) {
	assertf(req.priv == nil, "OnResume called with a resume already in flight")
	assertf(req.IOIf != nil, "OnResume called with no current I/O interface")

	req.priv = req.IOIf

	PushReqFrontIf(req, refreshIOInterface(cache), false, cache.RunRequest)
}

// assertNoPriorTerminalError documents the precondition PushReqFrontIf
// relies on rather than defending against it at runtime: a request must
// not already be mid-completion when it is pushed back onto its queue as a
// refresh. It has no caller in the package or its tests.
func assertNoPriorTerminalError(req *Request) {
	assertf(req.Err == nil, "request pushed for refresh with a pending terminal error %v", req.Err)
}

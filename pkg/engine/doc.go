// Package engine implements the request preparation core of a block-level
// cache engine: the prepare_clines pipeline that maps each core line touched
// by a request to a cache-device slot, acquires the right locks on it, and
// keeps the request's statistics aggregate consistent.
//
// # Basic usage
//
//	cache := engine.NewCache(engine.DefaultConfig())
//	req := cache.NewRequest(coreID, firstCoreLine, lineCount, engine.Read)
//	req.EngineCBs = cbs // an EngineCallbacks: lock mode and resume hook
//	lock, err := cache.PrepareClines(req)
//	if err == engine.ErrNoLock {
//	    // a cache-line lock was contended; req.EngineCBs.Resume will fire
//	    // once the concurrency manager grants it.
//	}
//
// # Concurrency
//
// See the package-level comment in locks.go for the full lock hierarchy.
// Traversal, mapping and lock computation run to completion on the calling
// goroutine; the only suspension points are a contended cache-line lock and
// the cleaner handoff, both resumed asynchronously via callback.
//
// # Error handling
//
// Errors fall into rebuild-class (none - this package holds no persistent
// state) and operational classes: ErrMappingError (pass-through downgrade),
// ErrNoLock (automatic retry via resume), ErrCleanError / ErrInconsistentRequest
// (surfaced to the request's completion function). See errors.go.
package engine

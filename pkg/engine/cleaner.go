package engine

// Clean builds a CleanerAttribs for every dirty HIT entry in req (in
// request order) and fires it at the configured Cleaner. If no Cleaner was
// installed, it completes immediately as if cleaning trivially succeeded: a
// cache with nothing dirty (or no writeback policy) must not block.
// Grounded on ocf_engine_clean / _ocf_engine_clean_getter / _ocf_engine_clean_end.
func (cache *Cache) Clean(req *Request, onDone func(err error)) {
	if req.Info.DirtyAny == 0 || cache.cleaner == nil {
		onDone(nil)
		return
	}

	dirty := make([]CacheLine, 0, req.Info.DirtyAny)
	for i := range req.Map {
		entry := &req.Map[i]
		if entry.Status != StatusHit {
			continue
		}
		if cache.metadata.DirtyTest(entry.CollIdx) {
			dirty = append(dirty, entry.CollIdx)
		}
	}

	pos := 0
	attribs := &CleanerAttribs{
		LockCacheline: false,
		Count:         uint32(len(dirty)),
		Request:       req,
		Getter: func() (CacheLine, bool) {
			if pos >= len(dirty) {
				return 0, false
			}
			line := dirty[pos]
			pos++
			return line, true
		},
		Complete: func(err error) {
			cache.cleanEnd(req, dirty, err, onDone)
		},
	}

	cache.cleaner.Fire(attribs)
}

// cleanEnd is _ocf_engine_clean_end: on success, clears the dirty bits the
// getter yielded, zeroes the request's dirty counters, and re-enqueues the
// request at the head of its worker queue so it proceeds past the now-clean
// lines; on failure, it releases the request's cache-line locks and
// completes it with ErrCleanError instead of letting it proceed.
func (cache *Cache) cleanEnd(req *Request, lines []CacheLine, err error, onDone func(err error)) {
	if err != nil {
		cache.cacheLineLocks.Unlock(req)
		req.Err = ErrCleanError
		if req.Complete != nil {
			req.Complete(req, req.Err)
		}
		onDone(ErrCleanError)
		return
	}

	for _, line := range lines {
		cache.metadata.StartCollisionSharedAccess(line)
		cache.metadata.ClearDirtySec(line, 0, cache.metadata.SectorsPerLine())
		cache.metadata.EndCollisionSharedAccess(line)
	}

	req.Info.DirtyAny = 0
	req.Info.DirtyAll = 0

	PushReqFront(req, false, cache.RunRequest)

	onDone(nil)
}

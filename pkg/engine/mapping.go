package engine

// spliceCacheLine assigns cacheLine to req's partition and splices it into
// the hash chain at entry idx's bucket, under the collision-access token.
// Grounded on ocf_map_cache_line.
func spliceCacheLine(cache *Cache, req *Request, idx int, cacheLine CacheLine) {
	md := cache.metadata
	entry := &req.Map[idx]

	md.StartCollisionSharedAccess(cacheLine)
	md.AddToCollision(req.CoreID, req.CoreLineAt(idx), entry.Hash, cacheLine)
	md.EndCollisionSharedAccess(cacheLine)

	entry.CollIdx = cacheLine
}

// mapCacheLine takes one fresh line from the free list for entry idx.
// Grounded on ocf_engine_map_cache_line. Returns false (and latches
// req.Info.MappingError) if the free list is exhausted.
func mapCacheLine(cache *Cache, req *Request, idx int) bool {
	line, ok := cache.freeList.Take()
	if !ok {
		req.Info.MappingError = true
		return false
	}

	cache.metadata.AddToPartition(req.PartID, line)
	spliceCacheLine(cache, req, idx, line)

	cache.eviction.Init(line)
	cache.eviction.TouchHot(line)
	cache.accountAdmit(req.PartID)

	return true
}

// mapHandleError walks the whole map and, for every entry currently
// INSERTED or REMAPPED, invalidates its cache line's sectors under the
// collision-access token and reverts it to MISS. Centralizes an unwind that
// was split between caller and callee in the original source: this
// implementation removes the line from its chain first (it is still
// spliced in at this point) and then returns the line to the free list
// itself. Grounded on ocf_engine_map_hndl_error.
func mapHandleError(cache *Cache, req *Request) {
	md := cache.metadata

	for i := range req.Map {
		entry := &req.Map[i]

		switch entry.Status {
		case StatusHit, StatusMiss:
			continue
		case StatusInserted, StatusRemapped:
			line := entry.CollIdx
			entry.Status = StatusMiss

			md.StartCollisionSharedAccess(line)
			md.RemoveFromCollision(line)
			md.SetInvalidNoFlush(line, 0, md.SectorsPerLine())
			md.EndCollisionSharedAccess(line)

			cache.accountEvict(req.PartID)
			cache.freeList.Put(line)

			entry.CollIdx = md.CollisionTableEntries()
		default:
			assertf(false, "illegal map entry status %v in mapHandleError", entry.Status)
		}
	}
}

// engineMap is the mapping phase (C7): for every non-HIT entry, either
// finish a REMAPPED eviction victim already chosen by Evict, or take a
// fresh line from the free list. On any free-list exhaustion, sets
// req.Info.MappingError and unwinds via mapHandleError. On full success,
// purges the request from the promotion policy. Grounded on
// ocf_engine_map.
func engineMap(cache *Cache, req *Request) {
	unmapped := req.UnmappedCount()
	if uint64(unmapped) > cache.freeList.NumFree() {
		req.Info.MappingError = true
		return
	}

	for i := range req.Map {
		entry := &req.Map[i]

		switch entry.Status {
		case StatusHit:
			continue

		case StatusRemapped:
			// Victim already chosen (and removed from its old chain) by
			// Evict; finish splicing it in under the request's identity.
			cache.metadata.AddToPartition(req.PartID, entry.CollIdx)
			spliceCacheLine(cache, req, i, entry.CollIdx)
			cache.eviction.Init(entry.CollIdx)
			cache.eviction.TouchHot(entry.CollIdx)
			cache.accountAdmit(req.PartID)
			patchReqInfo(cache.metadata, req, i)

		case StatusMiss:
			if !mapCacheLine(cache, req, i) {
				mapHandleError(cache, req)
				return
			}
			entry.Status = StatusInserted
			updateReqInfo(cache.metadata, req, i)

		default:
			assertf(false, "illegal map entry status %v entering engineMap", entry.Status)
		}
	}

	if !req.Info.MappingError {
		cache.promotion.Purge(req)
	}
}

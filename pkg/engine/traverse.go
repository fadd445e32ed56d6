package engine

// lookupMapEntry fills entry for (coreID, coreLine) against the hash index:
// MISS by default, promoted to HIT on a chain match. Grounded on
// ocf_engine_lookup_map_entry.
func lookupMapEntry(md Metadata, entry *MapEntry, coreID CoreID, coreLine CoreLine) {
	hash := md.Hash(coreLine, coreID)

	entry.Hash = hash
	entry.Status = StatusMiss
	entry.CollIdx = md.CollisionTableEntries()
	entry.CoreLine = coreLine
	entry.CoreID = coreID

	line := md.GetHash(hash)
	for line != md.CollisionTableEntries() {
		curCoreID, curCoreLine := md.CoreInfo(line)
		if curCoreID == coreID && curCoreLine == coreLine {
			entry.CollIdx = line
			entry.Status = StatusHit
			return
		}
		line = md.CollisionNext(line)
	}
}

// checkMapEntry reports whether entry still matches what Metadata says is
// resident at entry.CollIdx. Grounded on _ocf_engine_check_map_entry.
func checkMapEntry(md Metadata, entry *MapEntry, coreID CoreID) bool {
	if entry.Status == StatusMiss {
		return true
	}

	assertf(entry.CollIdx < md.CollisionTableEntries(), "map entry cache line out of range")

	curCoreID, curCoreLine := md.CoreInfo(entry.CollIdx)
	return curCoreID == coreID && curCoreLine == entry.CoreLine
}

// clinesPhysCont reports whether map entries idx and idx+1 are physically
// contiguous on the cache device. Grounded on ocf_engine_clines_phys_cont.
func clinesPhysCont(md Metadata, req *Request, idx int) bool {
	e1, e2 := &req.Map[idx], &req.Map[idx+1]
	if e1.Status == StatusMiss || e2.Status == StatusMiss {
		return false
	}

	p1 := md.PhysAddr(e1.CollIdx)
	p2 := md.PhysAddr(e2.CollIdx)
	return p1 < p2 && p1+1 == p2
}

// patchReqInfo accounts for a freshly-chosen eviction victim (status
// REMAPPED): bumps InsertNo and SeqNo against neighboring entries. Grounded
// on ocf_engine_patch_req_info; REMAPPED entries are intentionally not
// routed through updateReqInfo, matching the original source's split
// between the two functions.
func patchReqInfo(md Metadata, req *Request, idx int) {
	entry := &req.Map[idx]
	assertf(entry.Status == StatusRemapped, "patchReqInfo called on non-REMAPPED entry")

	req.Info.InsertNo++

	if idx > 0 && clinesPhysCont(md, req, idx-1) {
		req.Info.SeqNo++
	}
	if idx+1 < int(req.LineCount) && clinesPhysCont(md, req, idx) {
		req.Info.SeqNo++
	}
}

// updateReqInfo accounts for a map entry's HIT/INSERTED/MISS status into
// req.Info. Grounded on ocf_engine_update_req_info: a fresh INSERTED
// allocation intentionally gets no sector/dirty accounting.
func updateReqInfo(md Metadata, req *Request, idx int) {
	entry := &req.Map[idx]
	start := md.LineStartSector(req, idx)
	end := md.LineEndSector(req, idx)

	switch entry.Status {
	case StatusHit:
		if md.ValidSecTest(entry.CollIdx, start, end) {
			req.Info.HitNo++
		} else {
			req.Info.InvalidNo++
		}

		if md.DirtyTest(entry.CollIdx) {
			req.Info.DirtyAny++
			if md.DirtyAllSecTest(entry.CollIdx, start, end) {
				req.Info.DirtyAll++
			}
		}

		if req.PartID != md.PartitionID(entry.CollIdx) {
			entry.RePart = true
			req.Info.RePartNo++
		}

	case StatusInserted:
		req.Info.InsertNo++
		// Fall through intentionally: no sector/dirty accounting for a
		// fresh allocation.
	case StatusMiss:
		// nothing to account for yet.
	case StatusRemapped:
		// Remapped cache lines are accounted via patchReqInfo.
		assertf(false, "updateReqInfo called on REMAPPED entry")
	default:
		assertf(false, "illegal map entry status %v", entry.Status)
	}

	if idx > 0 && clinesPhysCont(md, req, idx-1) {
		req.Info.SeqNo++
	}
}

// Traverse fills req.Map from the hash index and updates LRU recency on
// every hit. The caller must hold the request's hash buckets in at least RD
// mode. Never allocates, never takes a bucket write lock. Grounded on
// ocf_engine_traverse.
func Traverse(cache *Cache, req *Request) {
	req.Info.Clear()

	md := cache.metadata
	coreID := req.CoreID

	for i := 0; i < int(req.LineCount); i++ {
		coreLine := req.CoreLineAt(i)
		entry := &req.Map[i]

		lookupMapEntry(md, entry, coreID, coreLine)

		if entry.Status != StatusHit {
			continue
		}

		cache.eviction.TouchHot(entry.CollIdx)
		updateReqInfo(md, req, i)
	}
}

// Check re-verifies every non-MISS entry against current metadata, setting
// entry.Invalid and returning false if any entry diverged. Used by the
// refresh continuation (resume.go) after a deferred cache-line lock is
// granted. Grounded on ocf_engine_check.
func Check(cache *Cache, req *Request) bool {
	req.Info.Clear()

	md := cache.metadata
	coreID := req.CoreID
	ok := true

	for i := 0; i < int(req.LineCount); i++ {
		entry := &req.Map[i]

		if entry.Status == StatusMiss {
			continue
		}

		if !checkMapEntry(md, entry, coreID) {
			entry.Invalid = true
			ok = false
			continue
		}

		entry.Invalid = false
		updateReqInfo(md, req, i)
	}

	return ok
}

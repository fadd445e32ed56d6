package engine

import (
	"errors"
	"testing"
)

// Test_Unwind_MapHandleError_RevertsPartialInserts is exercised directly
// against mapHandleError: once it runs, no entry may remain INSERTED or
// REMAPPED, the cache line it unwinds must be returned to the free list,
// and its chain membership removed.
func Test_Unwind_MapHandleError_RevertsPartialInserts(t *testing.T) {
	cache := newTestCache(t)

	before := cache.freeList.NumFree()

	req := cache.NewRequest(0, 200, 2, Read)
	req.PartID = 0
	requestHash(cache, req)
	req.Map[0].CoreLine = req.CoreLineAt(0)
	req.Map[1].CoreLine = req.CoreLineAt(1)

	// Entry 0 succeeded and was spliced in; entry 1 never got that far
	// (the free list ran out after the first admission, in the original
	// source's race window).
	line, ok := cache.freeList.Take()
	if !ok {
		t.Fatalf("free list unexpectedly empty")
	}
	spliceCacheLine(cache, req, 0, line)
	req.Map[0].Status = StatusInserted

	req.Map[1].Status = StatusMiss
	req.Info.MappingError = true

	mapHandleError(cache, req)

	for i := range req.Map {
		if req.Map[i].Status == StatusInserted || req.Map[i].Status == StatusRemapped {
			t.Fatalf("entry %d: status %v survived mapHandleError with mapping_error latched", i, req.Map[i].Status)
		}
	}

	if cache.freeList.NumFree() != before {
		t.Fatalf("free list count not restored: before=%d after=%d", before, cache.freeList.NumFree())
	}

	var probe MapEntry
	lookupMapEntry(cache.metadata, &probe, req.CoreID, req.CoreLineAt(0))
	if probe.Status != StatusMiss {
		t.Fatalf("unwound line still resolves as %v in the hash index", probe.Status)
	}
}

// Test_Unwind_PartitionDisabled_NeverAdmitsAnEntry covers the
// PrepareClines-level path that latches mapping_error before any entry can
// reach INSERTED/REMAPPED: a disabled partition.
func Test_Unwind_PartitionDisabled_NeverAdmitsAnEntry(t *testing.T) {
	cache := newTestCache(t)

	req := cache.NewRequest(0, 300, 3, Read)
	req.PartID = 7 // not in the configured partition budgets
	req.EngineCBs = blockingCallbacks{lockType: LockRead, resumed: make(chan *Request, 1)}

	_, err := cache.PrepareClines(req)
	if !errors.Is(err, ErrMappingError) || !errors.Is(err, ErrPartitionDisabled) {
		t.Fatalf("expected ErrMappingError wrapping ErrPartitionDisabled, got %v", err)
	}
	if !req.Info.MappingError {
		t.Fatalf("expected req.Info.MappingError to be latched")
	}

	for i := range req.Map {
		if req.Map[i].Status == StatusInserted || req.Map[i].Status == StatusRemapped {
			t.Fatalf("entry %d reached status %v despite a disabled partition", i, req.Map[i].Status)
		}
	}
}

package engine

import (
	"container/list"
	"sync"
)

// EvictionPolicy maintains recency among resident cache lines and selects
// victims on demand. The reference policy is LRU; the eviction policy
// itself is not meant to be redefined, only swapped for a conforming
// implementation.
type EvictionPolicy interface {
	// Init registers a newly populated cache line with the policy.
	Init(line CacheLine)
	// TouchHot promotes line to most-recently-used, on hit or allocate.
	// Tolerated as a benign race under a read lock - see lruPolicy.TouchHot.
	TouchHot(line CacheLine)
	// Evict selects count victim lines, each resident, unlocked, and clean,
	// from partition scope (or any partition if scope is nil), filling
	// REMAPPED entries into req.Map for the core lines they vacate.
	// Returns how many victims were actually supplied.
	Evict(cache *Cache, req *Request, count uint32, scope *PartitionID) uint32
}

// lruEntry is the intrusive-list payload: which cache line this node
// tracks.
type lruEntry struct {
	line CacheLine
}

// lruPolicy is a container/list-backed LRU with a single mutex. Concurrent
// TouchHot calls under a read lock must not corrupt the intrusive list; a
// single spinlock-equivalent mutex per policy instance, not per line,
// satisfies that at the cost of some contention on the hot path -
// acceptable since touch is a bounded constant-time list move.
type lruPolicy struct {
	mu       sync.Mutex
	list     *list.List
	elements map[CacheLine]*list.Element
}

func newLRUPolicy() *lruPolicy {
	return &lruPolicy{
		list:     list.New(),
		elements: make(map[CacheLine]*list.Element),
	}
}

func (p *lruPolicy) Init(line CacheLine) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.elements[line]; ok {
		p.list.Remove(el)
	}
	el := p.list.PushFront(&lruEntry{line: line})
	p.elements[line] = el
}

func (p *lruPolicy) TouchHot(line CacheLine) {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.elements[line]
	if !ok {
		return
	}
	p.list.MoveToFront(el)
}

// remove drops line from the recency list entirely (used once it is chosen
// as an eviction victim).
func (p *lruPolicy) remove(line CacheLine) {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.elements[line]
	if !ok {
		return
	}
	p.list.Remove(el)
	delete(p.elements, line)
}

// candidates returns resident lines ordered least-recently-used first.
// Init/TouchHot always move a line to the front of the list, so the list
// itself is a strict total order by recency - no separate tie-break is
// needed or possible (two lines can never occupy the same list position).
func (p *lruPolicy) candidates() []CacheLine {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CacheLine, 0, p.list.Len())
	for el := p.list.Back(); el != nil; el = el.Prev() {
		out = append(out, el.Value.(*lruEntry).line)
	}

	return out
}

// Evict picks, for each of count victims, the least-recently-used
// resident, unlocked, clean line, removes it from its hash chain,
// invalidates its sectors, and writes a REMAPPED MapEntry back into req at
// the position of the core line it vacates room for.
func (p *lruPolicy) Evict(cache *Cache, req *Request, count uint32, scope *PartitionID) uint32 {
	if count == 0 {
		return 0
	}

	md := cache.metadata
	var supplied uint32

	// unmapped map-entry indices, in increasing core-line order, that still
	// need a victim.
	targets := make([]int, 0, count)
	for i := range req.Map {
		if req.Map[i].Status == StatusMiss {
			targets = append(targets, i)
		}
	}

	for _, line := range p.candidates() {
		if supplied >= count || len(targets) == 0 {
			break
		}

		if l, ok := cache.cacheLineLocks.(interface{ isLocked(CacheLine) bool }); ok && l.isLocked(line) {
			continue
		}
		if md.DirtyTest(line) {
			continue
		}
		if scope != nil && md.PartitionID(line) != *scope {
			continue
		}

		idx := targets[0]
		targets = targets[1:]

		oldPart := md.PartitionID(line)

		md.StartCollisionSharedAccess(line)
		md.RemoveFromCollision(line)
		md.SetInvalidNoFlush(line, 0, md.SectorsPerLine())
		md.EndCollisionSharedAccess(line)

		cache.accountEvict(oldPart)
		p.remove(line)

		entry := &req.Map[idx]
		entry.Status = StatusRemapped
		entry.CollIdx = line

		supplied++
	}

	return supplied
}

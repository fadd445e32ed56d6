package engine

import "sync/atomic"

// partitionState tracks one partition's configured budget and current
// occupancy.
type partitionState struct {
	budget   int
	occupied atomic.Int64
}

// defaultPartitionTable is the in-memory PartitionTable Cache wires by
// default: a fixed budget per PartitionID, all enabled unless absent from
// the configured map. Grounded on the partition.* collaborator, following
// the same atomic-counter-per-bucket shape as stackFreeList's count field.
type defaultPartitionTable struct {
	states map[PartitionID]*partitionState
}

func newDefaultPartitionTable(budgets map[PartitionID]int) *defaultPartitionTable {
	t := &defaultPartitionTable{states: make(map[PartitionID]*partitionState, len(budgets))}
	for part, budget := range budgets {
		t.states[part] = &partitionState{budget: budget}
	}
	return t
}

// partitionAccountant is an optional capability a PartitionTable
// implementation may offer so Cache can keep occupancy accurate as lines
// are admitted and evicted. defaultPartitionTable implements it; a custom
// PartitionTable supplied to NewCache need not.
type partitionAccountant interface {
	noteAdmitted(part PartitionID)
	noteEvicted(part PartitionID)
}

func (t *defaultPartitionTable) IsEnabled(part PartitionID) bool {
	_, ok := t.states[part]
	return ok
}

// HasSpace reports whether req's partition has room for at least one more
// resident cache line. A partition absent from the configured budgets is
// treated as disabled (HasSpace is never consulted - IsEnabled is checked
// first by PrepareClines).
func (t *defaultPartitionTable) HasSpace(req *Request) bool {
	st, ok := t.states[req.PartID]
	if !ok {
		return false
	}
	return st.occupied.Load() < int64(st.budget)
}

// noteAdmitted records that line was just admitted to part, for budget
// accounting. Called by Cache after a successful map.
func (t *defaultPartitionTable) noteAdmitted(part PartitionID) {
	if st, ok := t.states[part]; ok {
		st.occupied.Add(1)
	}
}

// noteEvicted records that a line left part's occupancy, e.g. when chosen
// as an eviction victim or unwound by mapHandleError.
func (t *defaultPartitionTable) noteEvicted(part PartitionID) {
	if st, ok := t.states[part]; ok {
		st.occupied.Add(-1)
	}
}

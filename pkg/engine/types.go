package engine

// CacheLine is an index into the dense array of fixed-size cache-device
// slots, in range [0, N). A "none" sentinel must be compared against a
// specific cache's Metadata.CollisionTableEntries, not a package constant,
// since N varies per cache instance.
type CacheLine uint32

// CoreID identifies one of the (potentially several) core devices a cache
// fronts.
type CoreID uint16

// CoreLine is a 64-bit index identifying an aligned block on a core device.
type CoreLine uint64

// PartitionID identifies a logical grouping of cache lines with an
// independent capacity budget.
type PartitionID uint16

// Direction is the request's I/O direction.
type Direction uint8

const (
	Read Direction = iota
	Write
)

// LookupStatus is the lifecycle state of a MapEntry.
type LookupStatus uint8

const (
	// StatusMiss is the initial assumption written by traversal.
	StatusMiss LookupStatus = iota
	// StatusHit means traversal found the core line resident in the chain.
	StatusHit
	// StatusInserted means mapping allocated a fresh free-list slot.
	StatusInserted
	// StatusRemapped means mapping reused an eviction victim.
	StatusRemapped
)

func (s LookupStatus) String() string {
	switch s {
	case StatusMiss:
		return "MISS"
	case StatusHit:
		return "HIT"
	case StatusInserted:
		return "INSERTED"
	case StatusRemapped:
		return "REMAPPED"
	default:
		return "UNKNOWN"
	}
}

// LockType is what a request's engine callback declares it needs on the
// cache lines it touches.
type LockType uint8

const (
	LockNone LockType = iota
	LockRead
	LockWrite
)

// LockResult is the return code of an (a)synchronous cache-line lock
// acquisition.
type LockResult int

const (
	// LockAcquired indicates the lock was granted synchronously.
	LockAcquired LockResult = 0
)

// MapEntry is the per-core-line slot inside a request's map.
type MapEntry struct {
	Hash     CacheLine // precomputed hash-bucket index for this entry's core line
	Status   LookupStatus
	CollIdx  CacheLine // cache line this entry maps to, or the sentinel Metadata.CollisionTableEntries()
	CoreID   CoreID
	CoreLine CoreLine
	RePart   bool // true if this HIT's line must move to the request's partition
	Invalid  bool // set by Check if mapping raced and diverged
}

// Info is the per-request statistics aggregate built up by traversal and
// mapping.
type Info struct {
	HitNo         uint32
	InsertNo      uint32
	InvalidNo     uint32
	SeqNo         uint32
	DirtyAny      uint32
	DirtyAll      uint32
	RePartNo      uint32
	MappingError  bool
	PartEvict     bool
	Internal      bool
}

// Clear zeroes the aggregate. Grounded on ocf_req_clear_info.
func (info *Info) Clear() {
	*info = Info{}
}

// Request is an ordered batch covering a contiguous range of core lines
// [CoreLineFirst, CoreLineFirst+LineCount) on a single core.
//
// Ownership: the Request is owned by whoever submitted it; the engine
// borrows it through PrepareClines and hands it back via Complete. Once
// PushReqBack/PushReqFront has been called, the caller MUST NOT touch the
// request again - see queue.go.
type Request struct {
	Cache *Cache

	CoreID        CoreID
	CoreLineFirst CoreLine
	LineCount     uint32
	Direction     Direction
	PartID        PartitionID

	Map  []MapEntry
	Info Info

	// EngineCBs answers "what lock mode do I need" and resumes the request
	// after a deferred cache-line lock is granted.
	EngineCBs EngineCallbacks

	// Complete is invoked (by the caller's I/O-if dispatch, or by this
	// package's cleaner/refresh paths) once the request terminates with an
	// error. PrepareClines itself never calls Complete on the success path.
	Complete func(req *Request, err error)

	// IOQueue is the worker queue this request is (or will be) enqueued on.
	IOQueue *Queue

	// Err accumulates a terminal error for completion paths (refresh,
	// cleaner). Cleared unconditionally by PushReqFrontIf, since the refresh
	// interface begins a new logical operation.
	Err error

	// IOIf is the interface that will be dispatched the next time this
	// request is popped from its queue. Swapped to the refresh interface by
	// OnResume, and back to priv by a successful refresh - see resume.go.
	IOIf *IOInterface

	// priv saves the original IOIf across a resume/refresh cycle, modeling
	// an explicit stateful continuation. nil unless a resume is in flight.
	priv *IOInterface

	// hashBucketsHeldRD/WR record whether this request's bucket set is
	// currently held in each mode, so lock-discipline can be asserted on
	// every return path.
	hashBucketsHeldRD bool
	hashBucketsHeldWR bool
}

// IOInterface is the "I/O-if dispatch table" a request's submission path
// installs, reduced to the two entry points the refresh continuation needs
// to restore.
type IOInterface struct {
	read  func(req *Request)
	write func(req *Request)
}

// NewIOInterface builds an IOInterface from its read and write dispatch
// functions. External callers (the submission path) use this to give a
// Request somewhere to go once prepared or resumed.
func NewIOInterface(read, write func(req *Request)) *IOInterface {
	return &IOInterface{read: read, write: write}
}

// dispatch invokes the read or write half of the interface per req.Direction.
func (io *IOInterface) dispatch(req *Request) {
	switch req.Direction {
	case Read:
		io.read(req)
	case Write:
		io.write(req)
	default:
		assertf(false, "illegal request direction %v", req.Direction)
	}
}

// CoreLineAt returns the core line covered by map entry i.
func (req *Request) CoreLineAt(i int) CoreLine {
	return req.CoreLineFirst + CoreLine(i)
}

// IsMapped reports whether every entry in the request's map is a HIT. This
// is ocf_engine_is_mapped.
func (req *Request) IsMapped() bool {
	for i := range req.Map {
		if req.Map[i].Status != StatusHit {
			return false
		}
	}
	return true
}

// IsSequential reports whether the request maps to physically contiguous
// cache lines.
func (req *Request) IsSequential() bool {
	if req.LineCount == 0 {
		return false
	}
	return req.Info.SeqNo+1 == req.LineCount
}

// UnmappedCount returns how many entries are not yet HIT/INSERTED/REMAPPED,
// i.e. still MISS. This is ocf_engine_unmapped_count.
func (req *Request) UnmappedCount() uint32 {
	var n uint32
	for i := range req.Map {
		if req.Map[i].Status == StatusMiss {
			n++
		}
	}
	return n
}

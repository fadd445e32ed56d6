package engine

import "errors"

// Error classification. Callers MUST classify with errors.Is; implementations
// MAY wrap these with additional context via fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidInput indicates a Config or request construction argument
	// is out of range.
	ErrInvalidInput = errors.New("engine: invalid input")

	// ErrMappingError is latched on Request.Info.MappingError whenever the
	// pipeline cannot complete the mapping: partition disabled, partition
	// full and eviction failed, free-list exhaustion mid-map, or a deferred
	// cache-line lock that was refused. Recovery: caller downgrades the
	// request to pass-through and calls mapHandleError to unwind. The
	// partition-disabled and eviction-refused reasons also wrap
	// ErrPartitionDisabled/ErrEvictionRefused so callers that care can tell
	// them apart with errors.Is without a separate reason enum.
	ErrMappingError = errors.New("engine: mapping error")

	// ErrNoLock is returned by PrepareClines when a cache-line lock was
	// contended. The request has been parked; EngineCallbacks.Resume fires
	// once the lock is granted. Not a failure.
	ErrNoLock = errors.New("engine: cache line lock deferred")

	// ErrCleanError is surfaced via Request.Complete when the cleaner fails
	// to write back a dirty line before the request can proceed.
	ErrCleanError = errors.New("engine: cleaning failed")

	// ErrInconsistentRequest is set on Request.Err and passed to
	// Request.Complete by refresh when Check finds that a parked request's
	// mapping diverged from metadata between park and resume.
	ErrInconsistentRequest = errors.New("engine: inconsistent request")

	// ErrPartitionDisabled indicates the request's partition has been
	// administratively disabled; requests to it always pass through.
	ErrPartitionDisabled = errors.New("engine: partition disabled")

	// ErrEvictionRefused indicates the eviction policy could not supply
	// enough victims to satisfy an insert.
	ErrEvictionRefused = errors.New("engine: eviction refused")
)

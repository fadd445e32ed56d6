package engine

import (
	"container/list"
	"sync"
)

// Queue is a single worker queue: requests are processed in list order
// within one queue, while multiple queues run concurrently. A single
// spinlock-equivalent mutex guards the intrusive list and its
// length counter.
//
// Ownership: after PushReqBack/PushReqFront returns, the caller MUST NOT
// dereference the request again - a worker goroutine may already have
// popped and be mutating (or have freed) it. This mirrors
// ocf_engine_push_req_back's "do not dereference @req past this line"
// comment in the original source.
type Queue struct {
	mu   sync.Mutex
	list *list.List
}

// NewQueue creates an empty worker queue.
func NewQueue() *Queue {
	return &Queue{list: list.New()}
}

// Len returns the current queue length. Advisory only - may be stale the
// instant it returns under concurrent push/pop.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// pushBack appends req to the tail of the queue.
func (q *Queue) pushBack(req *Request) {
	q.mu.Lock()
	q.list.PushBack(req)
	q.mu.Unlock()
}

// pushFront prepends req to the head of the queue, used for resumptions so
// they overtake newly submitted work.
func (q *Queue) pushFront(req *Request) {
	q.mu.Lock()
	q.list.PushFront(req)
	q.mu.Unlock()
}

// pop removes and returns the request at the head of the queue, or nil if
// empty.
func (q *Queue) pop() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	el := q.list.Front()
	if el == nil {
		return nil
	}
	q.list.Remove(el)
	return el.Value.(*Request)
}

// Kick signals the queue's worker(s) that new work is available. allowSync
// permits the kick to run the work inline on the calling goroutine when
// nothing else is pending (a real executor's own scheduling policy governs
// the rest). The default implementation here pops and runs
// synchronously when allowSync is true and a runner is registered; it is
// primarily exercised by the simulation CLI (cmd/cachesim), which supplies
// the runner.
func (q *Queue) Kick(allowSync bool, run func(*Request)) {
	if !allowSync || run == nil {
		return
	}

	for {
		req := q.pop()
		if req == nil {
			return
		}
		run(req)
	}
}

// PushReqBack enqueues req at the tail of its IOQueue and kicks it. This is
// ocf_engine_push_req_back.
func PushReqBack(req *Request, allowSync bool, run func(*Request)) {
	assertf(req.IOQueue != nil, "request has no assigned queue")

	q := req.IOQueue
	q.pushBack(req)
	// NOTE: do not dereference req past this line - see the Queue doc
	// comment.
	q.Kick(allowSync, run)
}

// PushReqFront enqueues req at the head of its IOQueue and kicks it. This
// is ocf_engine_push_req_front, used for resumptions.
func PushReqFront(req *Request, allowSync bool, run func(*Request)) {
	assertf(req.IOQueue != nil, "request has no assigned queue")

	q := req.IOQueue
	q.pushFront(req)
	q.Kick(allowSync, run)
}

// PushReqFrontIf swaps in io_if before pushing req to the front of its
// queue. This is ocf_engine_push_req_front_if.
//
// It clears req.Err unconditionally - this is treated as intentional: the
// refresh interface begins a new logical
// operation and must not carry forward a prior terminal error.
// assertNoPriorTerminalError (resume.go) states the precondition this
// relies on; nothing calls it at present.
func PushReqFrontIf(req *Request, io *IOInterface, allowSync bool, run func(*Request)) {
	req.Err = nil
	req.IOIf = io
	PushReqFront(req, allowSync, run)
}

package session

import (
	"container/heap"
	"sync"
	"time"
)

// pendingRequest is one in-flight request awaiting a response keyed by
// its opaque value (§4.1 "Pending request", §5 "opaque-keyed").
type pendingRequest struct {
	opaque   uint32
	deadline time.Time
	index    int // heap.Interface bookkeeping
	promise  func(frame Frame, err error)
}

// deadlineHeap is a container/heap min-heap ordered by deadline, used to
// find the next-to-expire pending request without a per-request timer
// (§5: "a single timer keyed off the earliest deadline"). DESIGN.md
// records why this uses container/heap rather than the teacher's
// github.com/twmb/go-rbtree: nothing in the retrieval pack exercises
// go-rbtree's actual API shape, and fabricating a call against an
// unverified third-party signature is worse than a small stdlib
// container behind an unexported type.
type deadlineHeap []*pendingRequest

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *deadlineHeap) Push(x interface{}) {
	req := x.(*pendingRequest)
	req.index = len(*h)
	*h = append(*h, req)
}
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	req.index = -1
	*h = old[:n-1]
	return req
}

// pendingTable is the single-connection opaque->request index. register
// is called from Do in the caller's goroutine, complete from the readLoop
// goroutine (and from Do when a write fails), and expireBefore from the
// expiryLoop deadline sweep; all
// access is serialized by mu (§5 "RWMutex-guarded shared state" applied
// at connection scope rather than topology scope here).
type pendingTable struct {
	mu       sync.Mutex
	byOpaque map[uint32]*pendingRequest
	byDeadline deadlineHeap
}

func newPendingTable() *pendingTable {
	return &pendingTable{byOpaque: make(map[uint32]*pendingRequest)}
}

func (t *pendingTable) register(req *pendingRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byOpaque[req.opaque] = req
	heap.Push(&t.byDeadline, req)
}

// complete resolves and removes the pending request for opaque, if any.
// It reports whether a matching request was found; the caller logs and
// drops unmatched frames (§4.3 "an opaque with no matching pending
// request is logged at debug and discarded", grounded on the unknown
// alt-magic frame-id skip decision recorded in DESIGN.md).
func (t *pendingTable) complete(opaque uint32, frame Frame, err error) bool {
	t.mu.Lock()
	req, ok := t.byOpaque[opaque]
	if ok {
		delete(t.byOpaque, opaque)
		if req.index >= 0 {
			heap.Remove(&t.byDeadline, req.index)
		}
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	req.promise(frame, err)
	return true
}

// expireBefore completes, with a deadline-exceeded error, every pending
// request whose deadline is at or before now. It returns the earliest
// remaining deadline (zero if the table is now empty) so the caller can
// rearm its single sweep timer (§5).
func (t *pendingTable) expireBefore(now time.Time, errDeadline error) time.Time {
	var expired []*pendingRequest

	t.mu.Lock()
	for t.byDeadline.Len() > 0 && !t.byDeadline[0].deadline.After(now) {
		req := heap.Pop(&t.byDeadline).(*pendingRequest)
		delete(t.byOpaque, req.opaque)
		expired = append(expired, req)
	}
	var next time.Time
	if t.byDeadline.Len() > 0 {
		next = t.byDeadline[0].deadline
	}
	t.mu.Unlock()

	for _, req := range expired {
		req.promise(Frame{}, errDeadline)
	}
	return next
}

// drainAll completes every pending request with err, used when a
// connection dies so no caller is left waiting forever (§4.1 "Close").
func (t *pendingTable) drainAll(err error) {
	t.mu.Lock()
	reqs := make([]*pendingRequest, 0, len(t.byOpaque))
	for _, req := range t.byOpaque {
		reqs = append(reqs, req)
	}
	t.byOpaque = make(map[uint32]*pendingRequest)
	t.byDeadline = nil
	t.mu.Unlock()

	for _, req := range reqs {
		req.promise(Frame{}, err)
	}
}

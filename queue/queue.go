// Package queue implements the thread-affine MessageQueue: a FIFO of
// envelopes owned by exactly one runner goroutine, plus the
// ThreadMessageQueueRunner that gives a Hub or Host its own driver thread.
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

// Handler is called with each envelope a MessageQueue dispatches, on the
// queue's owning goroutine, never twice concurrently for the same queue.
type Handler interface {
	HandleMessage(msg envelope.Message, userData any)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg envelope.Message, userData any)

func (f HandlerFunc) HandleMessage(msg envelope.Message, userData any) { f(msg, userData) }

// ForeignEventSource abstracts a pre-existing event loop sharing the
// runner's goroutine (e.g. a host application's GUI loop). Events fires
// when a foreign event is ready; Pump processes exactly one. A queue with
// no ForeignEventSource behaves as the "simple" backend from the design
// notes; one with a source behaves as the "GUI-cooperative" backend.
type ForeignEventSource interface {
	Events() <-chan struct{}
	Pump()
}

type item struct {
	msg      envelope.Message
	userData any
}

// Queue is a thread-affine FIFO. Any goroutine may call Post and Quit; only
// the binding goroutine (the first to call DoMessage or
// DoMessageNonexclusive) may drain it.
type Queue struct {
	handler Handler
	foreign ForeignEventSource
	logger  buslog.Logger

	mu    sync.Mutex
	items []item

	signal chan struct{}
	quitCh chan struct{}
	quit   atomic.Bool

	recursionDepth    int32
	nonexclusiveDepth int32

	ownerOnce sync.Once
	ownerID   uint64
}

// New constructs a Queue draining via handler. A nil foreign source gives
// the simple backend; a non-nil one gives the GUI-cooperative backend.
func New(handler Handler, foreign ForeignEventSource, logger buslog.Logger) *Queue {
	if logger == nil {
		logger = buslog.Noop()
	}
	return &Queue{
		handler: handler,
		foreign: foreign,
		logger:  logger,
		signal:  make(chan struct{}, 1),
		quitCh:  make(chan struct{}),
	}
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Post enqueues msg for the owning goroutine. Fails after Quit, in which
// case the caller retains ownership of msg.
func (q *Queue) Post(msg envelope.Message, userData any) bool {
	if q.quit.Load() {
		return false
	}
	q.mu.Lock()
	if q.quit.Load() {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item{msg: msg, userData: userData})
	q.mu.Unlock()
	q.wake()
	return true
}

// Quit marks the queue closed and rejects subsequent Posts. Envelopes
// already queued are still dispatched by later DoMessage /
// DoMessageNonexclusive calls; once the queue is empty, every current and
// future call (at any recursion depth) returns false.
func (q *Queue) Quit() {
	if q.quit.CompareAndSwap(false, true) {
		close(q.quitCh)
	}
}

// PendingCount returns the number of envelopes currently queued.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Quit has been called, so a caller blocked in a
// DoMessage retry loop can stop polling a queue that will never dispatch
// again instead of busy-looping on its immediate false returns.
func (q *Queue) Closed() bool {
	return q.quit.Load()
}

// InCurrentThread reports whether the calling goroutine is the one bound as
// this Queue's owner. Binding happens lazily on the first DoMessage /
// DoMessageNonexclusive call. Go exposes no public goroutine identity, so
// this parses the runtime stack trace the same way the few existing
// goroutine-affinity checkers in the ecosystem do; it is diagnostic only
// and never load-bearing for dispatch correctness.
func (q *Queue) InCurrentThread() bool {
	return atomic.LoadUint64(&q.ownerID) == currentGoroutineID()
}

func (q *Queue) bindOwner() {
	id := currentGoroutineID()
	q.ownerOnce.Do(func() {
		atomic.StoreUint64(&q.ownerID, id)
	})
}

// pop removes and returns the head envelope, if any.
func (q *Queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true
}

// DoMessage waits up to timeout (negative = infinite, zero = poll) for one
// envelope, dispatches it to handler, and reports whether one was
// dispatched. Recursive calls (handler calling DoMessage again) are
// permitted; Quit unblocks every nested level.
func (q *Queue) DoMessage(timeout time.Duration) bool {
	q.bindOwner()
	atomic.AddInt32(&q.recursionDepth, 1)
	defer atomic.AddInt32(&q.recursionDepth, -1)

	return q.drainOnce(timeout, nil)
}

// DoMessageNonexclusive is DoMessage but also pumps the ForeignEventSource,
// if any, while waiting. It must not be called recursively: a nested call
// while one is already active on this Queue returns false immediately.
func (q *Queue) DoMessageNonexclusive(timeout time.Duration) bool {
	if atomic.LoadInt32(&q.nonexclusiveDepth) > 0 {
		q.logger.Warn("do_message_nonexclusive called recursively, rejecting")
		return false
	}
	q.bindOwner()
	atomic.AddInt32(&q.nonexclusiveDepth, 1)
	defer atomic.AddInt32(&q.nonexclusiveDepth, -1)

	return q.drainOnce(timeout, q.foreign)
}

func (q *Queue) drainOnce(timeout time.Duration, foreign ForeignEventSource) bool {
	for {
		if it, ok := q.pop(); ok {
			q.handler.HandleMessage(it.msg, it.userData)
			return true
		}
		if q.quit.Load() {
			return false
		}

		var timer *time.Timer
		var timeoutCh <-chan time.Time
		if timeout >= 0 {
			timer = time.NewTimer(timeout)
			timeoutCh = timer.C
		}

		var foreignEvents <-chan struct{}
		if foreign != nil {
			foreignEvents = foreign.Events()
		}

		select {
		case <-q.signal:
		case <-q.quitCh:
			if timer != nil {
				timer.Stop()
			}
			return false
		case <-foreignEvents:
			foreign.Pump()
		case <-timeoutCh:
			return false
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

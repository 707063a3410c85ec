package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
)

// Delegate constructs the MessageQueue inside the runner's own goroutine and
// is notified of its lifecycle, mirroring ThreadMessageQueueRunner::Delegate.
type Delegate interface {
	// CreateMessageQueue is called on the runner goroutine itself, so the
	// returned Queue binds to the correct owner on its first DoMessage call.
	CreateMessageQueue() *Queue
	// MessageQueueCreated is called once CreateMessageQueue has returned, on
	// the runner goroutine, before the drain loop starts.
	MessageQueueCreated(mq *Queue)
	// RunnerThreadTerminated is called when the runner goroutine exits,
	// whether by a clean Quit or because its context was cancelled out from
	// under it (the Go stand-in for a thread being killed externally).
	RunnerThreadTerminated()
}

// Runner owns a goroutine that drains a Queue via DoMessageNonexclusive
// until Quit, notifying a Delegate of the queue's creation and the
// runner's termination.
type Runner struct {
	delegate Delegate
	logger   buslog.Logger

	mu       sync.Mutex
	mq       *Queue
	done     chan struct{}
	finished atomic.Bool
}

// NewRunner constructs a Runner. Call Start to spawn its goroutine.
func NewRunner(delegate Delegate, logger buslog.Logger) *Runner {
	if logger == nil {
		logger = buslog.Noop()
	}
	return &Runner{
		delegate: delegate,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start spawns the runner goroutine. ctx cancellation simulates the runner
// thread being killed externally: the drain loop notices, calls
// RunnerThreadTerminated itself, and exits without requiring a Quit.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer r.terminate()

		mq := r.delegate.CreateMessageQueue()
		r.mu.Lock()
		r.mq = mq
		r.mu.Unlock()
		r.delegate.MessageQueueCreated(mq)

		killed := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				mq.Quit()
				close(killed)
			case <-r.done:
			}
		}()

		for mq.DoMessageNonexclusive(-1) {
		}
		_ = killed
	}()
}

// terminate runs exactly once, however the drain loop exited.
func (r *Runner) terminate() {
	if r.finished.CompareAndSwap(false, true) {
		close(r.done)
		r.delegate.RunnerThreadTerminated()
	}
}

// Quit stops the driving Queue and blocks until the runner goroutine has
// fully exited (the Go analogue of joining the thread handle). If the
// goroutine already terminated — e.g. its context was cancelled — Quit
// returns immediately without invoking termination a second time.
func (r *Runner) Quit() {
	r.mu.Lock()
	mq := r.mq
	r.mu.Unlock()
	if mq != nil {
		mq.Quit()
	}
	<-r.done
}

// MessageQueue returns the queue created for this runner, or nil before
// Start's goroutine has reached CreateMessageQueue.
func (r *Runner) MessageQueue() *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mq
}

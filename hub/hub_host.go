package hub

import (
	"context"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
	"github.com/jeeves-cluster-organization/hubcore/channel"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/queue"
)

// HubHost wraps a single-threaded Hub with a dedicated driver goroutine,
// so any number of MessageChannels running on their own goroutines can
// attach, dispatch, and detach concurrently while Hub's registries are only
// ever touched from the one goroutine it requires. Every external call is
// marshalled onto the driver goroutine via an internal control envelope
// (InternalAttachHubHost's type reuses InternalChannelConnected as the
// generic "run this closure" carrier; the type value itself is not
// inspected, only its reserved-range membership matters).
//
// HubHost must not be used from inside a callback Hub itself invokes on the
// driver goroutine (a channel.Peer.Deliver implementation, for instance) —
// doing so would post back into the same goroutine that is blocked waiting
// for the post to drain, and deadlock.
type HubHost struct {
	hub    *Hub
	logger buslog.Logger
	runner *queue.Runner
	mq     *queue.Queue
	ready  chan struct{}
}

// NewHubHost wraps h. Call Start to spawn its driver goroutine.
func NewHubHost(h *Hub, logger buslog.Logger) *HubHost {
	if logger == nil {
		logger = buslog.Noop()
	}
	host := &HubHost{hub: h, logger: logger, ready: make(chan struct{})}
	host.runner = queue.NewRunner(&hostDelegate{host: host}, logger)
	return host
}

// Start spawns the driver goroutine. ctx cancellation stops it the same way
// an externally killed thread would, per ThreadMessageQueueRunner.
func (host *HubHost) Start(ctx context.Context) {
	host.runner.Start(ctx)
}

// Stop drains and joins the driver goroutine.
func (host *HubHost) Stop() {
	host.runner.Quit()
}

// Attach implements channel.Connector by marshalling the real Hub.Attach
// call onto the driver goroutine and wrapping the returned Session so every
// subsequent Dispatch/Close is marshalled the same way.
func (host *HubHost) Attach(peer channel.Peer) channel.Session {
	var inner channel.Session
	host.run(func() {
		inner = host.hub.Attach(peer)
	})
	return &hostSession{host: host, inner: inner}
}

func (host *HubHost) run(fn func()) {
	<-host.ready
	done := make(chan struct{})
	host.mq.Post(envelope.Message{Type: envelope.InternalChannelConnected}, func() {
		fn()
		close(done)
	})
	<-done
}

type hostSession struct {
	host  *HubHost
	inner channel.Session
}

func (s *hostSession) Dispatch(msg envelope.Message) {
	s.host.run(func() { s.inner.Dispatch(msg) })
}

func (s *hostSession) Close() {
	s.host.run(func() { s.inner.Close() })
}

// hostDelegate wires HubHost into queue.Runner: it builds the driving Queue
// on the runner goroutine and publishes it (and the ready signal) once
// created, per queue.Delegate's contract.
type hostDelegate struct {
	host *HubHost
}

func (d *hostDelegate) CreateMessageQueue() *queue.Queue {
	return queue.New(queue.HandlerFunc(func(msg envelope.Message, userData any) {
		if fn, ok := userData.(func()); ok {
			fn()
		}
	}), nil, d.host.logger)
}

func (d *hostDelegate) MessageQueueCreated(mq *queue.Queue) {
	d.host.mq = mq
	close(d.host.ready)
}

func (d *hostDelegate) RunnerThreadTerminated() {
	d.host.logger.Info("hub host driver goroutine terminated")
}

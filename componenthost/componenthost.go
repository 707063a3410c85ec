package componenthost

import (
	"context"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
	"github.com/jeeves-cluster-organization/hubcore/channel"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/observability"
	"github.com/jeeves-cluster-organization/hubcore/queue"
)

// Mode selects how a ComponentHost schedules its components' message
// handling.
type Mode int

const (
	// Threaded gives each added component its own MessageQueue runner
	// goroutine.
	Threaded Mode = iota
	// Borrowed runs every added component's handler on whatever goroutine
	// calls Pump, via one MessageQueue shared across the whole host.
	Borrowed
)

// ComponentHost owns a set of components, runs them on cooperative message
// queues, performs the register/deregister handshake over a MessageChannel,
// and mediates every Send, SendWithReply, Pause, and Resume call on their
// behalf. It implements channel.Listener so it can be wired directly to a
// DirectChannel or PipeChannel via SetListener.
type ComponentHost struct {
	mode    Mode
	channel channel.MessageChannel
	logger  buslog.Logger

	mu          sync.Mutex
	byComponent map[Component]*Host
	byID        map[envelope.ComponentId]*Host
	byStringID  map[string]*Host
	nextSerial  uint32

	borrowedMQ *queue.Queue

	waitMu      sync.Mutex
	waitCh      chan struct{}
	quitWaiting bool
}

// New constructs a ComponentHost that drives components over ch. It
// installs itself as ch's Listener immediately.
func New(ch channel.MessageChannel, mode Mode, logger buslog.Logger) *ComponentHost {
	if logger == nil {
		logger = buslog.Noop()
	}
	host := &ComponentHost{
		mode:        mode,
		channel:     ch,
		logger:      logger,
		byComponent: map[Component]*Host{},
		byID:        map[envelope.ComponentId]*Host{},
		byStringID:  map[string]*Host{},
		waitCh:      make(chan struct{}),
	}
	if mode == Borrowed {
		host.borrowedMQ = queue.New(queue.HandlerFunc(host.dispatchFunc), nil, logger)
	}
	ch.SetListener(host)
	return host
}

func (ch *ComponentHost) dispatchFunc(msg envelope.Message, userData any) {
	if h, ok := userData.(*Host); ok {
		h.dispatch(msg)
	}
}

func (ch *ComponentHost) allocSerial() envelope.Serial {
	ch.mu.Lock()
	ch.nextSerial++
	s := ch.nextSerial
	ch.mu.Unlock()
	return envelope.Serial(s)
}

func (ch *ComponentHost) sendRaw(msg envelope.Message) bool {
	return ch.channel.Send(msg)
}

// Pump drains at most one envelope from the shared Borrowed-mode queue,
// blocking up to timeout; it is the caller's own event loop driving every
// component this host owns. It is a no-op returning false in Threaded mode,
// where each component has its own runner goroutine instead.
func (ch *ComponentHost) Pump(timeout time.Duration) bool {
	if ch.mode != Borrowed {
		return false
	}
	return ch.borrowedMQ.DoMessageNonexclusive(timeout)
}

// AddComponent builds a Host record for c: calls c.GetInfo(), rejects a
// string id already used within this host, creates the Host's queue (and
// runner thread in Threaded mode), and posts an internal channel-connected
// envelope to itself so the registration handshake runs as soon as it is
// drained — immediately if the channel is already connected, otherwise once
// OnChannelConnected fires. Returns nil if the string id collides.
func (ch *ComponentHost) AddComponent(c Component) *Host {
	info := c.GetInfo()

	ch.mu.Lock()
	if _, exists := ch.byStringID[info.StringId]; exists {
		ch.mu.Unlock()
		return nil
	}
	h := &Host{ch: ch, component: c, info: info, stringID: info.StringId, pendingRegister: true}
	ch.byComponent[c] = h
	ch.byStringID[info.StringId] = h
	ch.mu.Unlock()

	ch.waitMu.Lock()
	ch.quitWaiting = false
	ch.waitMu.Unlock()

	if ch.mode == Threaded {
		delegate := &hostRunnerDelegate{host: h, ready: make(chan struct{})}
		h.runner = queue.NewRunner(delegate, ch.logger)
		h.runner.Start(context.Background())
		<-delegate.ready
	} else {
		h.mq = ch.borrowedMQ
	}

	c.DidAddToHost(h)
	h.mq.Post(envelope.Message{Type: envelope.InternalChannelConnected}, h)
	return h
}

// RemoveComponent tears down c's Host. In Threaded mode this quits its
// runner goroutine, which unblocks any nested SendWithReply wait in
// progress; in Borrowed mode a Host with a send-with-reply in flight cannot
// be removed and RemoveComponent returns false.
func (ch *ComponentHost) RemoveComponent(c Component) bool {
	ch.mu.Lock()
	h, ok := ch.byComponent[c]
	ch.mu.Unlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	inFlight := len(h.replyStack) > 0
	if inFlight && ch.mode == Borrowed {
		h.mu.Unlock()
		return false
	}
	h.removed = true
	id := h.id
	h.mu.Unlock()

	if ch.mode == Threaded && h.runner != nil {
		h.runner.Quit()
	}

	ch.mu.Lock()
	delete(ch.byComponent, c)
	delete(ch.byStringID, h.stringID)
	if id != envelope.ComponentDefault {
		delete(ch.byID, id)
	}
	ch.mu.Unlock()

	if id != envelope.ComponentDefault {
		ch.sendRaw(envelope.NewNotification(envelope.DeregisterComponent, id, envelope.ComponentDefault, envelope.InputContextNone,
			envelope.Payload{Uint32Array: []uint32{uint32(id)}}))
	}

	c.DidRemoveFromHost()
	ch.wakeWaiters()
	return true
}

// Send stamps msg's Source with c's assigned id, allocates a serial, and
// forwards it to the channel. It fails if msg's type is system-reserved,
// c is not a component of this host, or c is not yet registered.
func (ch *ComponentHost) Send(c Component, msg envelope.Message) (envelope.Serial, bool) {
	if msg.Type.IsSystemReserved() {
		return 0, false
	}
	h, ok := ch.hostOf(c)
	if !ok {
		return 0, false
	}
	id := h.ID()
	if id == envelope.ComponentDefault {
		return 0, false
	}

	serial := ch.allocSerial()
	out := msg
	out.Source = id
	out.Serial = serial
	if !ch.sendRaw(out) {
		return 0, false
	}
	return serial, true
}

// SendWithReply sends msg as NEED_REPLY on c's behalf and blocks the
// calling goroutine — which must be the goroutine driving c's Host queue —
// until a matching IS_REPLY arrives, timeout elapses, or the channel
// closes. Recursive calls nest correctly: the reply stack always matches
// the innermost wait's serial first, and completion of an outer wait never
// races ahead of an inner one still pending. A zero or negative timeout
// fails immediately, matching a message that needs a reply with no time to
// wait for one.
func (ch *ComponentHost) SendWithReply(c Component, msg envelope.Message, timeout time.Duration) (envelope.Message, bool) {
	start := time.Now()
	if timeout <= 0 {
		observability.RecordSendWithReply(time.Since(start).Seconds(), true)
		return envelope.Message{}, false
	}
	h, ok := ch.hostOf(c)
	if !ok {
		observability.RecordSendWithReply(time.Since(start).Seconds(), true)
		return envelope.Message{}, false
	}
	id := h.ID()
	if id == envelope.ComponentDefault {
		observability.RecordSendWithReply(time.Since(start).Seconds(), true)
		return envelope.Message{}, false
	}

	serial := ch.allocSerial()
	out := msg
	out.Source = id
	out.Serial = serial
	out.ReplyMode = envelope.NeedReply

	frame := &replyFrame{serial: serial}
	h.mu.Lock()
	h.replyStack = append(h.replyStack, frame)
	h.mu.Unlock()
	defer h.popReplyFrame(frame)

	if !ch.sendRaw(out) {
		observability.RecordSendWithReply(time.Since(start).Seconds(), true)
		return envelope.Message{}, false
	}

	deadline := time.Now().Add(timeout)
	for {
		h.mu.Lock()
		done := frame.done
		result := frame.result
		h.mu.Unlock()
		if done {
			if result == nil {
				observability.RecordSendWithReply(time.Since(start).Seconds(), true)
				return envelope.Message{}, false
			}
			observability.RecordSendWithReply(time.Since(start).Seconds(), false)
			return *result, true
		}
		if h.mq.Closed() {
			observability.RecordSendWithReply(time.Since(start).Seconds(), true)
			return envelope.Message{}, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			observability.RecordSendWithReply(time.Since(start).Seconds(), true)
			return envelope.Message{}, false
		}
		h.mq.DoMessage(remaining)
	}
}

func (h *Host) popReplyFrame(frame *replyFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.replyStack) - 1; i >= 0; i-- {
		if h.replyStack[i] == frame {
			h.replyStack = append(h.replyStack[:i], h.replyStack[i+1:]...)
			return
		}
	}
}

// PauseMessageHandling increments c's Host's pause counter; while nonzero,
// inbound envelopes are queued instead of dispatched to c.HandleMessage.
// Replies matching an in-progress SendWithReply wait are still intercepted
// directly regardless of pause state, so a paused component's own
// outstanding request can still complete.
func (ch *ComponentHost) PauseMessageHandling(c Component) {
	h, ok := ch.hostOf(c)
	if !ok {
		return
	}
	h.mu.Lock()
	h.pauseCount++
	h.mu.Unlock()
}

// ResumeMessageHandling decrements c's Host's pause counter; on transition
// to zero it self-posts a drain of any messages queued while paused.
func (ch *ComponentHost) ResumeMessageHandling(c Component) {
	h, ok := ch.hostOf(c)
	if !ok {
		return
	}

	h.mu.Lock()
	if h.pauseCount == 0 {
		h.mu.Unlock()
		return
	}
	h.pauseCount--
	shouldDrain := h.pauseCount == 0 && len(h.pendingMessages) > 0 && !h.draining
	if shouldDrain {
		h.draining = true
	}
	h.mu.Unlock()

	if shouldDrain {
		h.mq.Post(envelope.Message{Type: envelope.InternalDrainPending}, h)
	}
}

// WaitForComponents blocks until every added component has completed its
// registration handshake (successfully or not), or timeout elapses.
func (ch *ComponentHost) WaitForComponents(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if ch.allRegistered() {
			return true
		}

		ch.waitMu.Lock()
		if ch.quitWaiting {
			ch.waitMu.Unlock()
			return false
		}
		waitCh := ch.waitCh
		ch.waitMu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-waitCh:
		case <-time.After(remaining):
			return false
		}
	}
}

// QuitWaitingComponents aborts every in-progress and future WaitForComponents
// call on this host until a new one is implicitly re-armed by AddComponent.
func (ch *ComponentHost) QuitWaitingComponents() {
	ch.waitMu.Lock()
	ch.quitWaiting = true
	close(ch.waitCh)
	ch.waitCh = make(chan struct{})
	ch.waitMu.Unlock()
}

func (ch *ComponentHost) wakeWaiters() {
	ch.waitMu.Lock()
	close(ch.waitCh)
	ch.waitCh = make(chan struct{})
	ch.waitMu.Unlock()
}

func (ch *ComponentHost) allRegistered() bool {
	ch.mu.Lock()
	hosts := make([]*Host, 0, len(ch.byComponent))
	for _, h := range ch.byComponent {
		hosts = append(hosts, h)
	}
	ch.mu.Unlock()

	for _, h := range hosts {
		if h.Pending() {
			return false
		}
	}
	return true
}

func (ch *ComponentHost) hostOf(c Component) (*Host, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	h, ok := ch.byComponent[c]
	return h, ok
}

// OnMessageReceived implements channel.Listener: it resolves msg.Target to
// a Host and posts msg onto that Host's queue. A message for an unknown
// target is logged and dropped.
func (ch *ComponentHost) OnMessageReceived(msg envelope.Message) {
	h, ok := ch.resolveTarget(msg)
	if !ok {
		ch.logger.Warn("message for unknown component dropped", "target", uint32(msg.Target), "type", uint32(msg.Type))
		return
	}
	h.mq.Post(msg, h)
}

// resolveTarget finds the Host a received envelope belongs to. Ordinary
// traffic is addressed by the Hub-assigned id, already keyed in byID. A
// REGISTER_COMPONENT reply has no id yet — both Source and Target are still
// ComponentDefault — so it is matched by scanning for the pending Host whose
// own registerSerial equals the reply's serial instead.
func (ch *ComponentHost) resolveTarget(msg envelope.Message) (*Host, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if h, ok := ch.byID[msg.Target]; ok {
		return h, true
	}
	if msg.Target == envelope.ComponentDefault && msg.ReplyMode == envelope.IsReply {
		for _, h := range ch.byComponent {
			h.mu.Lock()
			match := h.pendingRegister && h.registerSerial == msg.Serial
			h.mu.Unlock()
			if match {
				return h, true
			}
		}
	}
	return nil, false
}

// OnChannelConnected implements channel.Listener: every added component is
// re-driven through the registration handshake, whether it is connecting
// for the first time or reconnecting after a drop.
func (ch *ComponentHost) OnChannelConnected() {
	observability.RecordChannelConnection("component_host")
	for _, h := range ch.snapshotHosts() {
		h.mq.Post(envelope.Message{Type: envelope.InternalChannelConnected}, h)
	}
}

// OnChannelClosed implements channel.Listener: every Host is notified so it
// can reset to pending-register and unblock any in-flight SendWithReply.
func (ch *ComponentHost) OnChannelClosed() {
	for _, h := range ch.snapshotHosts() {
		h.mq.Post(envelope.Message{Type: envelope.InternalChannelBroken}, h)
	}
}

func (ch *ComponentHost) OnAttached() {}
func (ch *ComponentHost) OnDetached() {}

func (ch *ComponentHost) snapshotHosts() []*Host {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	hosts := make([]*Host, 0, len(ch.byComponent))
	for _, h := range ch.byComponent {
		hosts = append(hosts, h)
	}
	return hosts
}

// hostRunnerDelegate binds a Threaded-mode Host's queue to its own runner
// goroutine, mirroring hub.HubHost's own queue.Delegate.
type hostRunnerDelegate struct {
	host  *Host
	ready chan struct{}
}

func (d *hostRunnerDelegate) CreateMessageQueue() *queue.Queue {
	return queue.New(queue.HandlerFunc(d.host.ch.dispatchFunc), nil, d.host.ch.logger)
}

func (d *hostRunnerDelegate) MessageQueueCreated(mq *queue.Queue) {
	d.host.mu.Lock()
	d.host.mq = mq
	d.host.mu.Unlock()
	close(d.ready)
}

func (d *hostRunnerDelegate) RunnerThreadTerminated() {
	d.host.ch.logger.Info("component host runner terminated", "component", d.host.stringID)
}

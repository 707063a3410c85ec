package componenthost

import (
	"sync"

	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/observability"
	"github.com/jeeves-cluster-organization/hubcore/queue"
)

// replyFrame tracks one in-flight SendWithReply wait. Host.replyStack holds
// these in call order so a nested SendWithReply's reply (pushed last) is
// always matched before an outer one's, per the reply-stack nesting rule.
type replyFrame struct {
	serial envelope.Serial
	result *envelope.Message
	done   bool
}

// Host is the per-component record a ComponentHost owns: the component
// itself, its dedicated MessageQueue (own runner goroutine in Threaded mode,
// the ComponentHost's shared queue in Borrowed mode), and the registration,
// pause, and reply-stack bookkeeping the spec's send discipline requires.
type Host struct {
	ch        *ComponentHost
	component Component
	mq        *queue.Queue
	runner    *queue.Runner

	mu              sync.Mutex
	id              envelope.ComponentId
	stringID        string
	info            envelope.ComponentInfo
	pendingRegister bool
	registerSerial  envelope.Serial
	removed         bool

	pauseCount      int
	pendingMessages []envelope.Message
	draining        bool

	replyStack []*replyFrame
}

// ID returns the component's Hub-assigned id, or ComponentDefault before
// registration completes or after the channel drops.
func (h *Host) ID() envelope.ComponentId {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

// StringID returns the component's string id, fixed for this Host's lifetime.
func (h *Host) StringID() string { return h.stringID }

// Pending reports whether the registration handshake has not yet completed.
func (h *Host) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pendingRegister
}

// dispatch is the Handler callback for both Threaded-mode per-Host queues
// and the Borrowed-mode shared queue; userData always identifies the Host
// an item belongs to, so dispatch runs on whichever goroutine owns that
// queue.
func (h *Host) dispatch(msg envelope.Message) {
	switch msg.Type {
	case envelope.InternalChannelConnected:
		h.beginRegistration()
		return
	case envelope.InternalChannelBroken:
		h.handleChannelBroken()
		return
	case envelope.InternalDrainPending:
		h.drainOne()
		return
	}

	if msg.ReplyMode == envelope.IsReply {
		h.mu.Lock()
		if h.pendingRegister && msg.Serial == h.registerSerial {
			h.mu.Unlock()
			h.completeRegistration(msg)
			return
		}
		if n := len(h.replyStack); n > 0 && h.replyStack[n-1].serial == msg.Serial {
			frame := h.replyStack[n-1]
			reply := msg
			frame.result = &reply
			frame.done = true
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()
		// A reply matching neither the registration wait nor the innermost
		// send-with-reply wait is a duplicate; route it as an ordinary
		// message instead of dropping it.
	}

	h.mu.Lock()
	paused := h.pauseCount > 0
	if paused {
		h.pendingMessages = append(h.pendingMessages, msg)
	}
	h.mu.Unlock()
	if paused {
		observability.RecordPausedMessageQueued()
		return
	}

	h.component.HandleMessage(msg)
}

// beginRegistration sends REGISTER_COMPONENT for this Host's component and
// remembers the serial so the matching IS_REPLY is intercepted above rather
// than delivered to the component.
func (h *Host) beginRegistration() {
	serial := h.ch.allocSerial()
	h.mu.Lock()
	h.registerSerial = serial
	h.pendingRegister = true
	info := h.info
	h.mu.Unlock()

	req := envelope.NewRequest(envelope.RegisterComponent, envelope.ComponentDefault, envelope.ComponentDefault, envelope.InputContextNone, serial,
		envelope.Payload{ComponentInfoArray: []envelope.ComponentInfo{info}})
	h.ch.sendRaw(req)
}

func (h *Host) completeRegistration(reply envelope.Message) {
	h.mu.Lock()
	removed := h.removed
	h.mu.Unlock()

	if reply.IsError() || len(reply.Payload.ComponentInfoArray) == 0 {
		h.mu.Lock()
		h.pendingRegister = false
		h.mu.Unlock()
		h.component.Registered(envelope.ComponentDefault)
		h.ch.wakeWaiters()
		return
	}

	info := reply.Payload.ComponentInfoArray[0]
	h.mu.Lock()
	h.id = info.Id
	h.pendingRegister = false
	h.mu.Unlock()

	if !removed {
		h.ch.mu.Lock()
		h.ch.byID[info.Id] = h
		h.ch.mu.Unlock()
	}

	h.component.Registered(info.Id)
	h.ch.wakeWaiters()

	if removed {
		// Removed between request and reply: the component never sees its
		// own id, but Hub still thinks it registered, so tell it otherwise.
		h.ch.sendRaw(envelope.NewNotification(envelope.DeregisterComponent, info.Id, envelope.ComponentDefault, envelope.InputContextNone,
			envelope.Payload{Uint32Array: []uint32{uint32(info.Id)}}))
	}
}

// handleChannelBroken resets this Host to pending-register, unblocks every
// outstanding send-with-reply wait with a failure result, and drops any
// paused messages, mirroring a component's deregistered() notification.
func (h *Host) handleChannelBroken() {
	h.mu.Lock()
	prevID := h.id
	h.id = envelope.ComponentDefault
	h.pendingRegister = true
	h.pendingMessages = nil
	h.draining = false
	for _, frame := range h.replyStack {
		frame.done = true
		frame.result = nil
	}
	h.mu.Unlock()

	if prevID != envelope.ComponentDefault {
		h.ch.mu.Lock()
		delete(h.ch.byID, prevID)
		h.ch.mu.Unlock()
	}
	h.component.Deregistered()
}

// drainOne dispatches exactly one pending message accumulated while paused,
// then self-posts to drain the next, so other queued events still
// interleave between drains instead of one drain monopolizing the queue.
func (h *Host) drainOne() {
	h.mu.Lock()
	if h.pauseCount > 0 || len(h.pendingMessages) == 0 {
		h.draining = false
		h.mu.Unlock()
		return
	}
	next := h.pendingMessages[0]
	h.pendingMessages = h.pendingMessages[1:]
	more := len(h.pendingMessages) > 0
	h.mu.Unlock()

	h.component.HandleMessage(next)

	if more {
		h.mq.Post(envelope.Message{Type: envelope.InternalDrainPending}, h)
	} else {
		h.mu.Lock()
		h.draining = false
		h.mu.Unlock()
	}
}

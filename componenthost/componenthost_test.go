package componenthost_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/hubcore/channel"
	"github.com/jeeves-cluster-organization/hubcore/componenthost"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

// fakeChannel is a minimal channel.MessageChannel test double: Send records
// envelopes instead of delivering them anywhere, and connect/close/deliver
// let a test drive the Listener callbacks directly.
type fakeChannel struct {
	mu        sync.Mutex
	listener  channel.Listener
	connected bool
	sent      []envelope.Message
}

func (f *fakeChannel) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) SetListener(l channel.Listener) {
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
}

func (f *fakeChannel) Send(msg envelope.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeChannel) connect() {
	f.mu.Lock()
	f.connected = true
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l.OnChannelConnected()
	}
}

func (f *fakeChannel) close() {
	f.mu.Lock()
	f.connected = false
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l.OnChannelClosed()
	}
}

func (f *fakeChannel) deliver(msg envelope.Message) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l.OnMessageReceived(msg)
	}
}

func (f *fakeChannel) lastSent() (envelope.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return envelope.Message{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeComponent is a test Component that records every call it receives and
// optionally invokes a hook from inside HandleMessage, so a test can drive
// nested Host/ComponentHost calls (SendWithReply, Pause) from within the
// handler, the way a real component would.
type fakeComponent struct {
	componenthost.BaseComponent
	info envelope.ComponentInfo

	mu              sync.Mutex
	handled         []envelope.Message
	registeredIDs   []envelope.ComponentId
	deregisterCalls int
	onHandle        func(msg envelope.Message)
}

func (c *fakeComponent) GetInfo() envelope.ComponentInfo { return c.info }

func (c *fakeComponent) HandleMessage(msg envelope.Message) {
	c.mu.Lock()
	c.handled = append(c.handled, msg)
	hook := c.onHandle
	c.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
}

func (c *fakeComponent) Registered(id envelope.ComponentId) {
	c.mu.Lock()
	c.registeredIDs = append(c.registeredIDs, id)
	c.mu.Unlock()
}

func (c *fakeComponent) Deregistered() {
	c.mu.Lock()
	c.deregisterCalls++
	c.mu.Unlock()
}

func (c *fakeComponent) lastRegisteredID() envelope.ComponentId {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.registeredIDs) == 0 {
		return envelope.ComponentDefault
	}
	return c.registeredIDs[len(c.registeredIDs)-1]
}

func (c *fakeComponent) registerCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registeredIDs)
}

func (c *fakeComponent) handledCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handled)
}

func registerReply(req envelope.Message, id envelope.ComponentId) envelope.Message {
	info := req.Payload.ComponentInfoArray[0]
	info.Id = id
	return req.Reply(envelope.Payload{ComponentInfoArray: []envelope.ComponentInfo{info}})
}

func TestAddComponentCompletesHandshakeOnChannelConnected(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}

	h := ch.AddComponent(comp)
	require.NotNil(t, h)
	assert.True(t, h.Pending())

	fc.connect()

	require.Eventually(t, func() bool { return fc.sentCount() > 0 }, time.Second, time.Millisecond)
	req, ok := fc.lastSent()
	require.True(t, ok)
	assert.Equal(t, envelope.RegisterComponent, req.Type)
	assert.Equal(t, envelope.NeedReply, req.ReplyMode)

	fc.deliver(registerReply(req, 7))

	require.Eventually(t, func() bool { return comp.registerCalls() > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, envelope.ComponentId(7), comp.lastRegisteredID())
	assert.Equal(t, envelope.ComponentId(7), h.ID())
	assert.False(t, h.Pending())
}

func TestWaitForComponentsBlocksUntilRegistered(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	ch.AddComponent(comp)

	fc.connect()
	require.Eventually(t, func() bool { return fc.sentCount() > 0 }, time.Second, time.Millisecond)

	done := make(chan bool, 1)
	go func() { done <- ch.WaitForComponents(time.Second) }()

	req, _ := fc.lastSent()
	fc.deliver(registerReply(req, 3))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForComponents never returned")
	}
}

func TestWaitForComponentsTimesOutWhenNeverRegistered(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	ch.AddComponent(comp)

	ok := ch.WaitForComponents(30 * time.Millisecond)
	assert.False(t, ok)
}

func TestQuitWaitingComponentsUnblocksWait(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	ch.AddComponent(comp)

	done := make(chan bool, 1)
	go func() { done <- ch.WaitForComponents(5 * time.Second) }()

	time.Sleep(20 * time.Millisecond)
	ch.QuitWaitingComponents()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("QuitWaitingComponents did not unblock WaitForComponents")
	}
}

func registerComponent(t *testing.T, ch *componenthost.ComponentHost, fc *fakeChannel, comp *fakeComponent, id envelope.ComponentId) *componenthost.Host {
	t.Helper()
	h := ch.AddComponent(comp)
	require.NotNil(t, h)
	fc.connect()
	require.Eventually(t, func() bool { return fc.sentCount() > 0 }, time.Second, time.Millisecond)
	req, _ := fc.lastSent()
	fc.deliver(registerReply(req, id))
	require.Eventually(t, func() bool { return h.ID() == id }, time.Second, time.Millisecond)
	return h
}

func TestSendStampsSourceAndAllocatesSerial(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	registerComponent(t, ch, fc, comp, 9)

	serial, ok := ch.Send(comp, envelope.NewNotification(envelope.DoCommand, envelope.ComponentDefault, envelope.ComponentBroadcast, envelope.InputContextNone, envelope.Payload{}))
	require.True(t, ok)
	assert.NotZero(t, serial)

	sent, ok := fc.lastSent()
	require.True(t, ok)
	assert.Equal(t, envelope.ComponentId(9), sent.Source)
	assert.Equal(t, serial, sent.Serial)
}

func TestSendRejectsSystemReservedType(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	registerComponent(t, ch, fc, comp, 1)

	_, ok := ch.Send(comp, envelope.NewNotification(envelope.InternalChannelConnected, envelope.ComponentDefault, envelope.ComponentBroadcast, envelope.InputContextNone, envelope.Payload{}))
	assert.False(t, ok)
}

func TestSendWithReplyUnblocksOnMatchingReply(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	verified := make(chan struct{})
	comp.onHandle = func(msg envelope.Message) {
		if msg.Type != envelope.QueryComponent {
			return
		}
		reply, ok := ch.SendWithReply(comp, envelope.NewRequest(envelope.QueryActiveConsumer, envelope.ComponentDefault, envelope.ComponentDefault, 1, 0, envelope.Payload{}), time.Second)
		assert.True(t, ok)
		assert.Equal(t, []bool{true}, reply.Payload.BoolArray)
		close(verified)
	}
	registerComponent(t, ch, fc, comp, 5)

	fc.deliver(envelope.NewNotification(envelope.QueryComponent, envelope.ComponentDefault, 5, envelope.InputContextNone, envelope.Payload{}))

	require.Eventually(t, func() bool { return fc.sentCount() >= 2 }, time.Second, time.Millisecond)
	nested, ok := fc.lastSent()
	require.True(t, ok)
	require.Equal(t, envelope.QueryActiveConsumer, nested.Type)

	fc.deliver(nested.Reply(envelope.Payload{BoolArray: []bool{true}}))

	select {
	case <-verified:
	case <-time.After(time.Second):
		t.Fatal("nested send_with_reply never completed")
	}
}

func TestSendWithReplyZeroTimeoutFailsImmediately(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	registerComponent(t, ch, fc, comp, 1)

	_, ok := ch.SendWithReply(comp, envelope.NewRequest(envelope.QueryComponent, envelope.ComponentDefault, envelope.ComponentDefault, envelope.InputContextNone, 0, envelope.Payload{}), 0)
	assert.False(t, ok)
}

func TestChannelClosedResetsHostAndNotifiesComponent(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	h := registerComponent(t, ch, fc, comp, 4)

	fc.close()

	require.Eventually(t, func() bool { return countDeregisters(comp) >= 1 && h.ID() == envelope.ComponentDefault }, time.Second, time.Millisecond)
	assert.True(t, h.Pending())
}

func countDeregisters(c *fakeComponent) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deregisterCalls
}

func TestPauseMessageHandlingQueuesThenDrainsOnResume(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	registerComponent(t, ch, fc, comp, 2)

	ch.PauseMessageHandling(comp)
	fc.deliver(envelope.NewNotification(envelope.DoCommand, envelope.ComponentDefault, 2, 1, envelope.Payload{}))
	fc.deliver(envelope.NewNotification(envelope.DoCommand, envelope.ComponentDefault, 2, 1, envelope.Payload{}))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, comp.handledCount())

	ch.ResumeMessageHandling(comp)
	require.Eventually(t, func() bool { return comp.handledCount() == 2 }, time.Second, time.Millisecond)
}

func TestRemoveComponentSendsDeregisterAndStopsDelivery(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}
	registerComponent(t, ch, fc, comp, 6)

	ok := ch.RemoveComponent(comp)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		sent, ok := fc.lastSent()
		return ok && sent.Type == envelope.DeregisterComponent
	}, time.Second, time.Millisecond)

	_, ok = ch.Send(comp, envelope.NewNotification(envelope.DoCommand, envelope.ComponentDefault, envelope.ComponentBroadcast, 1, envelope.Payload{}))
	assert.False(t, ok)
}

func TestAddComponentRejectsDuplicateStringID(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Threaded, nil)
	comp1 := &fakeComponent{info: envelope.ComponentInfo{StringId: "dup"}}
	comp2 := &fakeComponent{info: envelope.ComponentInfo{StringId: "dup"}}

	require.NotNil(t, ch.AddComponent(comp1))
	assert.Nil(t, ch.AddComponent(comp2))
}

func TestBorrowedModePumpDrivesHandling(t *testing.T) {
	fc := &fakeChannel{}
	ch := componenthost.New(fc, componenthost.Borrowed, nil)
	fc.connect()
	comp := &fakeComponent{info: envelope.ComponentInfo{StringId: "comp1"}}

	h := ch.AddComponent(comp)
	require.NotNil(t, h)

	for i := 0; i < 5 && !ch.Pump(50*time.Millisecond); i++ {
	}
	req, ok := fc.lastSent()
	require.True(t, ok)
	assert.Equal(t, envelope.RegisterComponent, req.Type)

	fc.deliver(registerReply(req, 11))
	for i := 0; i < 5 && h.ID() == envelope.ComponentDefault; i++ {
		ch.Pump(50 * time.Millisecond)
	}
	assert.Equal(t, envelope.ComponentId(11), h.ID())
}

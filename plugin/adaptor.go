package plugin

import (
	"sync"

	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

// PluginComponent is the contract a component built into a plugin .so
// implements. It is narrower than componenthost.Component: a plugin
// cannot import componenthost (or anything that transitively pulls in
// queue/channel) without loading its own copy of the runtime state those
// packages keep, which package plugin refuses to link against a
// differently built copy already loaded into the host. Adaptor bridges
// the gap, so the only thing a plugin author writes is this.
type PluginComponent interface {
	GetInfo() envelope.ComponentInfo
	HandleMessage(msg envelope.Message)
	Registered(id envelope.ComponentId)
	Deregistered()
}

// Adaptor wraps one PluginComponent and answers the exported ABI
// (GetInfo/Registered/Deregistered/HandleMessage) on its behalf, mirroring
// PluginComponentAdaptor: the class the C plugin wrapper uses to own a
// real ipc::Component and expose it through exports.cc's extern "C"
// functions. A plugin's CreateInstance symbol constructs one Adaptor per
// call and returns it as the opaque Instance; every later ABI call is
// routed back through it.
type Adaptor struct {
	mu        sync.Mutex
	component PluginComponent
	callbacks Callbacks
}

// NewAdaptor binds component to the host via cb. A plugin's
// CreateInstanceFunc implementation calls this once per CreateInstance
// invocation.
func NewAdaptor(component PluginComponent, cb Callbacks) *Adaptor {
	return &Adaptor{component: component, callbacks: cb}
}

// GetInfo answers the GetInfoFunc symbol: encode the wrapped component's
// ComponentInfo the same way envelope/codec.go encodes any other payload.
func (a *Adaptor) GetInfo() []byte {
	a.mu.Lock()
	info := a.component.GetInfo()
	a.mu.Unlock()

	body, err := envelope.Encode(envelope.Message{
		Payload: envelope.Payload{ComponentInfoArray: []envelope.ComponentInfo{info}},
	})
	if err != nil {
		return nil
	}
	return body
}

// Registered answers the RegisteredFunc symbol.
func (a *Adaptor) Registered(id uint32) {
	a.mu.Lock()
	c := a.component
	a.mu.Unlock()
	c.Registered(envelope.ComponentId(id))
}

// Deregistered answers the DeregisteredFunc symbol.
func (a *Adaptor) Deregistered() {
	a.mu.Lock()
	c := a.component
	a.mu.Unlock()
	c.Deregistered()
}

// HandleMessage answers the HandleMessageFunc symbol: decode buf the same
// way envelope/codec.go decodes any other frame body and forward it.
func (a *Adaptor) HandleMessage(buf []byte) {
	msg, err := envelope.Decode(buf)
	if err != nil {
		return
	}
	a.mu.Lock()
	c := a.component
	a.mu.Unlock()
	c.HandleMessage(msg)
}

// Send lets the wrapped component push an unsolicited message out to the
// host, answering what ComponentCallbacks.send answers across the C ABI.
func (a *Adaptor) Send(msg envelope.Message) {
	if a.callbacks.Send != nil {
		a.callbacks.Send(msg)
	}
}

// SendWithReply lets the wrapped component make a blocking round trip
// through the host, answering what ComponentCallbacks.send_with_reply
// answers across the C ABI.
func (a *Adaptor) SendWithReply(msg envelope.Message) (envelope.Message, bool) {
	if a.callbacks.SendWithReply == nil {
		return envelope.Message{}, false
	}
	return a.callbacks.SendWithReply(msg)
}

// PauseMessageHandling lets the wrapped component ask the host to hold
// further HandleMessage calls until ResumeMessageHandling.
func (a *Adaptor) PauseMessageHandling() {
	if a.callbacks.PauseMessageHandling != nil {
		a.callbacks.PauseMessageHandling()
	}
}

// ResumeMessageHandling reverses PauseMessageHandling.
func (a *Adaptor) ResumeMessageHandling() {
	if a.callbacks.ResumeMessageHandling != nil {
		a.callbacks.ResumeMessageHandling()
	}
}

// RemoveComponent lets the wrapped component ask the host to tear it down,
// answering what ComponentCallbacks.remove_component answers across the C
// ABI.
func (a *Adaptor) RemoveComponent() {
	if a.callbacks.RemoveComponent != nil {
		a.callbacks.RemoveComponent()
	}
}

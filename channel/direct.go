package channel

import (
	"sync"

	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

// DirectChannel is the in-process MessageChannel: it attaches to a
// Connector (a Hub) the moment a listener is set and detaches the moment
// the listener is cleared. Send hands the envelope straight to the Hub's
// dispatch on the caller's goroutine; Hub answers by invoking Deliver,
// which forwards to the listener.
type DirectChannel struct {
	connector Connector

	mu        sync.Mutex
	listener  Listener
	session   Session
	connected bool
}

// NewDirectChannel constructs a DirectChannel bound to connector. It stays
// detached until SetListener is called with a non-nil Listener.
func NewDirectChannel(connector Connector) *DirectChannel {
	return &DirectChannel{connector: connector}
}

func (c *DirectChannel) SetListener(l Listener) {
	c.mu.Lock()
	old := c.listener
	c.listener = l
	c.mu.Unlock()

	switch {
	case l != nil && old == nil:
		c.attach(l)
	case l == nil && old != nil:
		c.detach(old)
	}
}

func (c *DirectChannel) attach(l Listener) {
	session := c.connector.Attach(c)

	c.mu.Lock()
	c.session = session
	c.connected = true
	c.mu.Unlock()

	l.OnChannelConnected()
	l.OnAttached()
}

func (c *DirectChannel) detach(l Listener) {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.connected = false
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
	l.OnDetached()
	l.OnChannelClosed()
}

func (c *DirectChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *DirectChannel) Send(msg envelope.Message) bool {
	c.mu.Lock()
	session := c.session
	connected := c.connected
	c.mu.Unlock()

	if !connected || session == nil {
		return false
	}
	session.Dispatch(msg)
	return true
}

// Deliver implements Peer: Hub calls this with envelopes addressed back to
// this channel's side (replies, broadcasts).
func (c *DirectChannel) Deliver(msg envelope.Message) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()

	if l != nil {
		l.OnMessageReceived(msg)
	}
}

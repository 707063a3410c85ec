// Package channel implements MessageChannel: the ordered, bidirectional
// envelope pipe between two bus endpoints, in-process (DirectChannel) or
// cross-process (PipeChannel over a PipeServer).
package channel

import "github.com/jeeves-cluster-organization/hubcore/envelope"

// Listener receives callbacks from a MessageChannel. Methods may be invoked
// from any goroutine; implementations must tolerate a re-entrant
// SetListener call from inside a callback.
type Listener interface {
	OnMessageReceived(msg envelope.Message)
	OnChannelConnected()
	OnChannelClosed()
	OnAttached()
	OnDetached()
}

// MessageChannel is an ordered, bidirectional envelope pipe with observable
// connection state.
type MessageChannel interface {
	IsConnected() bool
	// Send takes ownership of msg and hands it to the peer, best-effort and
	// asynchronous; it reports false immediately if the channel cannot
	// accept it (not connected, or closed).
	Send(msg envelope.Message) bool
	SetListener(l Listener)
}

// Peer is implemented by a channel endpoint so a Connector can deliver
// envelopes addressed back to it (replies, broadcasts).
type Peer interface {
	Deliver(msg envelope.Message)
}

// Session is returned by Connector.Attach. The channel uses it to push
// inbound envelopes into the router and to detach cleanly when its
// listener is cleared.
type Session interface {
	Dispatch(msg envelope.Message)
	Close()
}

// Connector is the interface a router (hub.Hub, via hub.HubHost) exposes so
// a DirectChannel can attach to it without the channel package depending on
// the hub package.
type Connector interface {
	Attach(peer Peer) Session
}

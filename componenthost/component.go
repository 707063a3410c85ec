// Package componenthost implements the component-side front end of the
// bus: Component, the synchronous contract a component implements, and
// Host/ComponentHost, which own components, run them on cooperative
// MessageQueues, and mediate every send / send-with-reply / pause / resume.
package componenthost

import "github.com/jeeves-cluster-organization/hubcore/envelope"

// Component is the synchronous contract a component implements. Every
// method is called on the owning Host's runner goroutine except Registered
// and Deregistered, which may arrive from a different goroutine and must
// not block.
type Component interface {
	// GetInfo fills in the component's string id, name, and produce/consume
	// sets. Must not call back into the Host: doing so risks deadlock, since
	// GetInfo runs before the Host's registries are ready to accept calls.
	GetInfo() envelope.ComponentInfo
	// HandleMessage processes one envelope, taking ownership of it. Replies
	// and further sends are produced via Host methods, not a return value.
	HandleMessage(msg envelope.Message)
	// Registered is notified of the Hub-assigned id, or ComponentDefault if
	// registration failed.
	Registered(id envelope.ComponentId)
	// Deregistered is the symmetric teardown notification.
	Deregistered()
	// DidAddToHost/DidRemoveFromHost are host-lifecycle bookkeeping hooks,
	// called once each, synchronously, from AddComponent/RemoveComponent.
	DidAddToHost(h *Host)
	DidRemoveFromHost()
}

// BaseComponent is an embeddable no-op implementation of the lifecycle hooks
// a Component rarely needs to customize (DidAddToHost/DidRemoveFromHost),
// the way the teacher's host records keep those as weak, non-owning back
// references.
type BaseComponent struct {
	host *Host
}

func (b *BaseComponent) DidAddToHost(h *Host) { b.host = h }
func (b *BaseComponent) DidRemoveFromHost()    { b.host = nil }

// Host returns the per-component Host record this component was added
// under, or nil.
func (b *BaseComponent) Host() *Host { return b.host }

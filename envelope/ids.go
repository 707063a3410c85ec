// Package envelope defines the Message envelope that flows over the Hub's
// component bus: identifiers, the message-type catalogue, the payload union,
// and the wire codec used by cross-process MessageChannel implementations.
package envelope

// ComponentId identifies a registered component. Allocated monotonically by
// Hub on successful registration.
type ComponentId uint32

const (
	// ComponentDefault means "unaddressed" on send (Hub resolves a target by
	// icid/message semantics) or "registration failed" on reply.
	ComponentDefault ComponentId = 0
	// ComponentBroadcast means "every attached consumer of this message type".
	ComponentBroadcast ComponentId = 0xFFFFFFFF
)

// InputContextId identifies an editing session owned by an application.
type InputContextId uint32

const (
	// InputContextNone is the global/no-context sentinel.
	InputContextNone InputContextId = 0
	// InputContextFocused means "whichever context currently holds focus".
	InputContextFocused InputContextId = 0xFFFFFFFF
)

// Serial correlates a NEED_REPLY message with its IS_REPLY, unique within the
// sending ComponentHost's lifetime.
type Serial uint32

// ReplyMode describes the reply discipline of a Message.
type ReplyMode uint8

const (
	NoReply ReplyMode = iota
	NeedReply
	IsReply
)

func (m ReplyMode) String() string {
	switch m {
	case NoReply:
		return "NO_REPLY"
	case NeedReply:
		return "NEED_REPLY"
	case IsReply:
		return "IS_REPLY"
	default:
		return "UNKNOWN_REPLY_MODE"
	}
}

package envelope

import "fmt"

// Message is the envelope every component, Hub, and MessageChannel passes
// around. A NEED_REPLY Message is answered by exactly one IS_REPLY Message
// carrying the same Serial; a NO_REPLY Message gets no answer at all.
type Message struct {
	Type      MessageType
	ReplyMode ReplyMode
	Source    ComponentId
	Target    ComponentId
	Icid      InputContextId
	Serial    Serial
	Payload   Payload
}

// NewRequest builds a NEED_REPLY Message. serial must be unique among the
// sender's in-flight requests; ComponentHost assigns it.
func NewRequest(t MessageType, source, target ComponentId, icid InputContextId, serial Serial, payload Payload) Message {
	return Message{
		Type:      t,
		ReplyMode: NeedReply,
		Source:    source,
		Target:    target,
		Icid:      icid,
		Serial:    serial,
		Payload:   payload,
	}
}

// NewNotification builds a NO_REPLY Message.
func NewNotification(t MessageType, source, target ComponentId, icid InputContextId, payload Payload) Message {
	return Message{
		Type:      t,
		ReplyMode: NoReply,
		Source:    source,
		Target:    target,
		Icid:      icid,
		Payload:   payload,
	}
}

// Reply builds the IS_REPLY Message answering req, swapping Source/Target
// and carrying req's Serial forward.
func (req Message) Reply(payload Payload) Message {
	return Message{
		Type:      req.Type,
		ReplyMode: IsReply,
		Source:    req.Target,
		Target:    req.Source,
		Icid:      req.Icid,
		Serial:    req.Serial,
		Payload:   payload,
	}
}

// ReplyWithError builds a failure IS_REPLY carrying an ErrorInfo payload.
func (req Message) ReplyWithError(code ErrorCode, msg string) Message {
	return req.Reply(Payload{Error: &ErrorInfo{Code: code, Message: msg}})
}

// IsError reports whether a reply Message carries an ErrorInfo payload.
func (m Message) IsError() bool {
	return m.Payload.Error != nil && m.Payload.Error.Code != NotError
}

func (m Message) String() string {
	return fmt.Sprintf("Message{Type:%#04x Reply:%s Source:%d Target:%d Icid:%d Serial:%d}",
		uint32(m.Type), m.ReplyMode, m.Source, m.Target, m.Icid, m.Serial)
}

package hub

import (
	"sort"

	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

func (h *Hub) handleListInputMethods(connectorID uint64, msg envelope.Message) {
	var infos []envelope.ComponentInfo
	for _, rec := range h.componentsByID {
		if containsType(rec.info.Consume, envelope.ProcessKeyEvent) {
			infos = append(infos, rec.info)
		}
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{ComponentInfoArray: infos}))
	}
}

// handleSwitchToInputMethod implements SWITCH_TO_INPUT_METHOD: the named
// component becomes the icid's active input method, gets attached if it
// wasn't already, and takes over the SEND_KEY_EVENT active-consumer role.
func (h *Hub) handleSwitchToInputMethod(connectorID uint64, msg envelope.Message) {
	if len(msg.Payload.Uint32Array) == 0 {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "SWITCH_TO_INPUT_METHOD requires a component id")
		return
	}
	id := envelope.ComponentId(msg.Payload.Uint32Array[0])
	if _, ok := h.componentsByID[id]; !ok {
		h.replyError(connectorID, msg, envelope.ComponentNotFound, "no such component")
		return
	}

	h.activeInputMethod[msg.Icid] = id
	if ctx, ok := h.contexts[msg.Icid]; ok {
		if !ctx.attached[id] {
			h.attachToContext(id, msg.Icid)
		}
		ctx.activeConsumer[envelope.SendKeyEvent] = id
		h.broadcastActiveConsumerChanged(msg.Icid, []envelope.MessageType{envelope.SendKeyEvent})
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastAll(envelope.InputMethodActivated, envelope.Payload{Uint32Array: []uint32{uint32(id)}})
}

func (h *Hub) handleQueryActiveInputMethod(connectorID uint64, msg envelope.Message) {
	var u32 []uint32
	if id, ok := h.activeInputMethod[msg.Icid]; ok {
		u32 = []uint32{uint32(id)}
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{Uint32Array: u32}))
	}
}

// switchRelative implements SWITCH_TO_NEXT_INPUT_METHOD_IN_LIST and
// SWITCH_TO_PREVIOUS_INPUT_METHOD: cycle through the registered input
// methods in ComponentId order, delta steps from the icid's current one.
func (h *Hub) switchRelative(connectorID uint64, msg envelope.Message, delta int) {
	var ids []envelope.ComponentId
	for id, rec := range h.componentsByID {
		if containsType(rec.info.Consume, envelope.ProcessKeyEvent) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		h.replyError(connectorID, msg, envelope.ComponentNotFound, "no input methods registered")
		return
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	current := h.activeInputMethod[msg.Icid]
	idx := 0
	for i, id := range ids {
		if id == current {
			idx = i
			break
		}
	}
	next := ids[(idx+delta+len(ids))%len(ids)]

	switched := msg
	switched.Payload = envelope.Payload{Uint32Array: []uint32{uint32(next)}}
	h.handleSwitchToInputMethod(connectorID, switched)
}

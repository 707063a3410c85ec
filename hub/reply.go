package hub

import "github.com/jeeves-cluster-organization/hubcore/envelope"

// handleReply routes an inbound IS_REPLY Message. Most replies answer a
// request Hub itself issued on another component's behalf (a forwarded
// PROCESS_KEY_EVENT, a recruiting ATTACH_TO_INPUT_CONTEXT) and are looked up
// by serial in one of the two pending tables; anything else is an
// orphaned reply and gets logged and dropped.
func (h *Hub) handleReply(msg envelope.Message) {
	if entry, ok := h.pendingAttach[msg.Serial]; ok {
		delete(h.pendingAttach, msg.Serial)
		h.completePendingAttach(entry, msg)
		return
	}

	if entry, ok := h.pendingForward[msg.Serial]; ok {
		delete(h.pendingForward, msg.Serial)
		out := msg
		out.Type = entry.msgType
		out.Target = entry.origSource
		out.Serial = entry.origSerial
		out.Icid = entry.icid
		h.deliverReply(out)
		return
	}

	h.logger.Warn("reply with unknown serial dropped", "serial", uint32(msg.Serial), "type", uint32(msg.Type))
}

func (h *Hub) completePendingAttach(entry pendingAttach, reply envelope.Message) {
	accepted := len(reply.Payload.BoolArray) > 0 && reply.Payload.BoolArray[0]
	if !accepted {
		return
	}

	h.attachToContext(entry.candidate, entry.icid)
	ctx, ok := h.contexts[entry.icid]
	if !ok {
		return
	}
	ctx.activeConsumer[entry.msgType] = entry.candidate
	h.broadcastActiveConsumerChanged(entry.icid, []envelope.MessageType{entry.msgType})
	h.broadcastAll(envelope.ComponentActivated, envelope.Payload{Uint32Array: []uint32{uint32(entry.candidate), uint32(entry.msgType)}})
}

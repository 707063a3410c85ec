package hub

import "github.com/jeeves-cluster-organization/hubcore/envelope"

// handleSendKeyEvent implements the SEND_KEY_EVENT resolution order: a
// binding in the icid's active HotkeyList wins first (and never reaches the
// active consumer at all), otherwise the key is forwarded as
// PROCESS_KEY_EVENT to whatever component holds the SEND_KEY_EVENT active-
// consumer role, with the reply (if one was requested) relayed back
// re-labelled as SEND_KEY_EVENT.
func (h *Hub) handleSendKeyEvent(connectorID uint64, msg envelope.Message) {
	if len(msg.Payload.KeyEventArray) == 0 {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "SEND_KEY_EVENT requires a KeyEvent")
		return
	}
	key := msg.Payload.KeyEventArray[0]

	if commandID, ok := h.matchHotkey(msg.Icid, key); ok {
		h.invokeHotkeyCommand(msg.Icid, commandID)
		if msg.ReplyMode == envelope.NeedReply {
			key.Consumed = true
			h.sendToConnector(connectorID, msg.Reply(envelope.Payload{KeyEventArray: []envelope.KeyEvent{key}}))
		}
		return
	}

	consumer, ok := h.activeConsumerFor(msg.Icid, envelope.SendKeyEvent)
	if !ok {
		h.replyError(connectorID, msg, envelope.ComponentNotFound, "no active consumer for SEND_KEY_EVENT")
		return
	}

	if msg.ReplyMode != envelope.NeedReply {
		h.deliverToComponent(consumer, envelope.NewNotification(envelope.ProcessKeyEvent, msg.Source, consumer, msg.Icid, msg.Payload))
		return
	}

	h.nextHubSerial++
	serial := envelope.Serial(h.nextHubSerial)
	h.pendingForward[serial] = pendingForward{origSource: msg.Source, origSerial: msg.Serial, icid: msg.Icid, msgType: msg.Type}
	forward := envelope.NewRequest(envelope.ProcessKeyEvent, msg.Source, consumer, msg.Icid, serial, msg.Payload)
	h.deliverToComponent(consumer, forward)
}

func (h *Hub) matchHotkey(icid envelope.InputContextId, key envelope.KeyEvent) (uint32, bool) {
	activeID, ok := h.activeHotkeyList[icid]
	if !ok {
		return 0, false
	}
	hl, ok := h.hotkeyLists[activeID]
	if !ok {
		return 0, false
	}
	for _, b := range hl.Bindings {
		if b.KeyCode == key.KeyCode && b.Modifiers == key.Modifiers {
			return b.CommandId, true
		}
	}
	return 0, false
}

func (h *Hub) invokeHotkeyCommand(icid envelope.InputContextId, commandID uint32) {
	h.broadcastToAttached(icid, envelope.NewNotification(envelope.DoCommand, envelope.ComponentDefault, envelope.ComponentBroadcast, icid, envelope.Payload{Uint32Array: []uint32{commandID}}))
}

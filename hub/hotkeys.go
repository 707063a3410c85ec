package hub

import "github.com/jeeves-cluster-organization/hubcore/envelope"

func (h *Hub) handleAddHotkeyList(connectorID uint64, msg envelope.Message) {
	hl := msg.Payload.HotkeyList
	if hl == nil {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "ADD_HOTKEY_LIST requires a HotkeyList")
		return
	}
	hl.Owner = msg.Source
	h.hotkeyLists[hl.Id] = hl
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
}

func (h *Hub) handleRemoveHotkeyList(connectorID uint64, msg envelope.Message) {
	if len(msg.Payload.Uint32Array) == 0 {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "REMOVE_HOTKEY_LIST requires a list id")
		return
	}
	id := msg.Payload.Uint32Array[0]
	delete(h.hotkeyLists, id)
	for icid, active := range h.activeHotkeyList {
		if active == id {
			delete(h.activeHotkeyList, icid)
		}
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
}

func (h *Hub) handleActivateHotkeyList(connectorID uint64, msg envelope.Message) {
	if len(msg.Payload.Uint32Array) == 0 {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "ACTIVATE_HOTKEY_LIST requires a list id")
		return
	}
	id := msg.Payload.Uint32Array[0]
	if _, ok := h.hotkeyLists[id]; !ok {
		h.replyError(connectorID, msg, envelope.InvalidArgument, "no such hotkey list")
		return
	}
	h.activeHotkeyList[msg.Icid] = id
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.ActiveHotkeyListUpdated, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{Uint32Array: []uint32{id}}))
}

func (h *Hub) handleDeactivateHotkeyList(connectorID uint64, msg envelope.Message) {
	delete(h.activeHotkeyList, msg.Icid)
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.ActiveHotkeyListUpdated, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{Uint32Array: []uint32{0}}))
}

func (h *Hub) handleQueryActiveHotkeyList(connectorID uint64, msg envelope.Message) {
	id := h.activeHotkeyList[msg.Icid]
	hl := h.hotkeyLists[id]
	if hl == nil {
		hl = &envelope.HotkeyList{}
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{HotkeyList: hl}))
	}
}

// handleCheckHotkeyConflict compares a candidate HotkeyList against every
// HotkeyList currently ADDed to Hub, not just the icid's active one, per
// the resolved open question on CHECK_HOTKEY_CONFLICT's contract. It is
// read-only: Hub's hotkey table is never mutated by this call.
func (h *Hub) handleCheckHotkeyConflict(connectorID uint64, msg envelope.Message) {
	candidate := msg.Payload.HotkeyList
	if candidate == nil {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "CHECK_HOTKEY_CONFLICT requires a HotkeyList")
		return
	}

	var conflicts []envelope.HotkeyBinding
	for id, hl := range h.hotkeyLists {
		if id == candidate.Id {
			continue
		}
		for _, b := range hl.Bindings {
			for _, cb := range candidate.Bindings {
				if b.KeyCode == cb.KeyCode && b.Modifiers == cb.Modifiers {
					conflicts = append(conflicts, b)
				}
			}
		}
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{HotkeyList: &envelope.HotkeyList{Id: candidate.Id, Bindings: conflicts}}))
	}
}

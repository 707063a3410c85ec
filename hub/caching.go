package hub

import "github.com/jeeves-cluster-organization/hubcore/envelope"

func (h *Hub) handleSetComposition(connectorID uint64, msg envelope.Message) {
	c := msg.Payload.Composition
	if c == nil {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "SET_COMPOSITION requires a Composition")
		return
	}
	h.compositions[msg.Icid] = c
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.CompositionChanged, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{Composition: c}))
}

func (h *Hub) handleCancelComposition(connectorID uint64, msg envelope.Message) {
	delete(h.compositions, msg.Icid)
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.CompositionChanged, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{Composition: &envelope.Composition{}}))
}

func (h *Hub) handleCompleteComposition(connectorID uint64, msg envelope.Message) {
	delete(h.compositions, msg.Icid)
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.CompositionChanged, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{Composition: &envelope.Composition{}}))
}

func (h *Hub) handleQueryComposition(connectorID uint64, msg envelope.Message) {
	c := h.compositions[msg.Icid]
	if c == nil {
		c = &envelope.Composition{}
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{Composition: c}))
	}
}

func (h *Hub) handleSetCandidateList(connectorID uint64, msg envelope.Message) {
	cl := msg.Payload.CandidateList
	if cl == nil {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "SET_CANDIDATE_LIST requires a CandidateList")
		return
	}
	h.candidateLists[msg.Icid] = cl
	h.candidateVisible[msg.Icid] = cl.Visible
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.CandidateListChanged, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{CandidateList: cl}))
}

func (h *Hub) handleSetSelectedCandidate(connectorID uint64, msg envelope.Message) {
	cl, ok := h.candidateLists[msg.Icid]
	if !ok || len(msg.Payload.Uint32Array) == 0 {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "no candidate list or selection index")
		return
	}
	cl.Selected = int(msg.Payload.Uint32Array[0])
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.SelectedCandidateChanged, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{Uint32Array: []uint32{uint32(cl.Selected)}}))
}

func (h *Hub) handleSetCandidateListVisibility(connectorID uint64, msg envelope.Message) {
	visible := len(msg.Payload.BoolArray) > 0 && msg.Payload.BoolArray[0]
	h.candidateVisible[msg.Icid] = visible
	if cl, ok := h.candidateLists[msg.Icid]; ok {
		cl.Visible = visible
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.CandidateListVisibilityChanged, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{BoolArray: []bool{visible}}))
}

func (h *Hub) handleQueryCandidateList(connectorID uint64, msg envelope.Message) {
	cl := h.candidateLists[msg.Icid]
	if cl == nil {
		cl = &envelope.CandidateList{}
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{CandidateList: cl}))
	}
}

// handleSetCommandList implements both SET_COMMAND_LIST and UPDATE_COMMANDS:
// the new list fully replaces whatever the source component previously
// published for this icid. Command lists are tracked per (icid, owner) so a
// newly attached component is pushed every live publisher's list rather
// than just the most recent one.
func (h *Hub) handleSetCommandList(connectorID uint64, msg envelope.Message) {
	cl := msg.Payload.CommandList
	if cl == nil {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "SET_COMMAND_LIST requires a CommandList")
		return
	}
	cl.Owner = msg.Source
	if h.commandLists[msg.Icid] == nil {
		h.commandLists[msg.Icid] = map[envelope.ComponentId]*envelope.CommandList{}
	}
	h.commandLists[msg.Icid][msg.Source] = cl

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.CommandListChanged, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{CommandList: cl}))
}

func (h *Hub) handleQueryCommandList(connectorID uint64, msg envelope.Message) {
	var result *envelope.CommandList
	if lists, ok := h.commandLists[msg.Icid]; ok && len(msg.Payload.Uint32Array) > 0 {
		owner := envelope.ComponentId(msg.Payload.Uint32Array[0])
		result = lists[owner]
	}
	if result == nil {
		result = &envelope.CommandList{}
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{CommandList: result}))
	}
}

func (h *Hub) handleUpdateInputCaret(connectorID uint64, msg envelope.Message) {
	c := msg.Payload.InputCaret
	if c == nil {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "UPDATE_INPUT_CARET requires an InputCaret")
		return
	}
	h.inputCarets[msg.Icid] = c
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(msg.Icid, envelope.NewNotification(envelope.UpdateInputCaret, envelope.ComponentDefault, envelope.ComponentBroadcast, msg.Icid, envelope.Payload{InputCaret: c}))
}

func (h *Hub) handleQueryInputCaret(connectorID uint64, msg envelope.Message) {
	c := h.inputCarets[msg.Icid]
	if c == nil {
		c = &envelope.InputCaret{}
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{InputCaret: c}))
	}
}

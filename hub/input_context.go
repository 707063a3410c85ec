package hub

import (
	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/observability"
)

func (h *Hub) contextInfo(ctx *inputContextRecord) envelope.InputContextInfo {
	attached := make([]envelope.ComponentId, 0, len(ctx.attached))
	for id := range ctx.attached {
		attached = append(attached, id)
	}
	// ActiveConsumer reflects SEND_KEY_EVENT's consumer, the one type whose
	// routing a caller virtually always cares about; the full per-type table
	// is only visible through QUERY_ACTIVE_CONSUMER.
	active := ctx.activeConsumer[envelope.SendKeyEvent]
	return envelope.InputContextInfo{
		Id:             ctx.id,
		Owner:          ctx.owner,
		Focused:        ctx.focused,
		Attached:       attached,
		ActiveConsumer: active,
	}
}

func (h *Hub) handleCreateInputContext(connectorID uint64, msg envelope.Message) {
	h.nextICID++
	id := envelope.InputContextId(h.nextICID)
	ctx := &inputContextRecord{
		id:             id,
		owner:          msg.Source,
		attached:       map[envelope.ComponentId]bool{},
		activeConsumer: map[envelope.MessageType]envelope.ComponentId{},
	}
	h.contexts[id] = ctx
	observability.SetInputContextsActive(len(h.contexts))

	h.broadcastAll(envelope.InputContextCreated, envelope.Payload{InputContextInfoArray: []envelope.InputContextInfo{h.contextInfo(ctx)}})
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{Uint32Array: []uint32{uint32(id)}}))
	}
}

func (h *Hub) handleDeleteInputContext(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}
	if ctx.owner != msg.Source {
		h.replyError(connectorID, msg, envelope.PermissionDenied, "only the owning component may delete an input context")
		return
	}

	for id := range ctx.attached {
		h.detachFromContext(id, ctx.id)
	}
	delete(h.contexts, ctx.id)
	if h.focusedICID == ctx.id {
		h.focusedICID = envelope.InputContextNone
	}
	delete(h.compositions, ctx.id)
	delete(h.candidateLists, ctx.id)
	delete(h.candidateVisible, ctx.id)
	delete(h.commandLists, ctx.id)
	delete(h.inputCarets, ctx.id)
	delete(h.activeHotkeyList, ctx.id)
	delete(h.activeInputMethod, ctx.id)
	observability.SetInputContextsActive(len(h.contexts))

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastAll(envelope.InputContextDeleted, envelope.Payload{Uint32Array: []uint32{uint32(ctx.id)}})
}

func (h *Hub) handleFocusInputContext(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}

	prev := h.focusedICID
	if prev != envelope.InputContextNone && prev != ctx.id {
		if prevCtx, ok := h.contexts[prev]; ok {
			prevCtx.focused = false
			h.broadcastToAttached(prev, envelope.NewNotification(envelope.InputContextLostFocus, envelope.ComponentDefault, envelope.ComponentBroadcast, prev, envelope.Payload{Uint32Array: []uint32{uint32(prev)}}))
		}
	}

	h.focusedICID = ctx.id
	ctx.focused = true

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(ctx.id, envelope.NewNotification(envelope.InputContextGotFocus, envelope.ComponentDefault, envelope.ComponentBroadcast, ctx.id, envelope.Payload{Uint32Array: []uint32{uint32(ctx.id)}}))
}

func (h *Hub) handleBlurInputContext(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}
	if h.focusedICID != ctx.id {
		if msg.ReplyMode == envelope.NeedReply {
			h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
		}
		return
	}

	ctx.focused = false
	h.focusedICID = envelope.InputContextNone

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastToAttached(ctx.id, envelope.NewNotification(envelope.InputContextLostFocus, envelope.ComponentDefault, envelope.ComponentBroadcast, ctx.id, envelope.Payload{Uint32Array: []uint32{uint32(ctx.id)}}))
}

func (h *Hub) handleAttachToInputContext(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}
	h.attachToContext(msg.Source, ctx.id)
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{BoolArray: []bool{true}}))
	}
}

func (h *Hub) handleDetachFromInputContext(connectorID uint64, msg envelope.Message) {
	h.detachFromContext(msg.Source, msg.Icid)
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
}

func (h *Hub) handleQueryInputContext(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{InputContextInfoArray: []envelope.InputContextInfo{h.contextInfo(ctx)}}))
	}
}

// attachToContext performs the bookkeeping and notification side of an
// attach, whether it originated from the component itself (ATTACH_TO_INPUT_
// CONTEXT) or from Hub recruiting a consumer on REQUEST_CONSUMER's behalf.
// Idempotent: attaching an already-attached component is a no-op.
func (h *Hub) attachToContext(id envelope.ComponentId, icid envelope.InputContextId) {
	ctx, ok := h.contexts[icid]
	if !ok {
		return
	}
	if ctx.attached[id] {
		return
	}
	ctx.attached[id] = true

	h.broadcastAll(envelope.ComponentAttached, envelope.Payload{Uint32Array: []uint32{uint32(icid), uint32(id)}})
	h.pushCachedStateTo(id, icid)
}

// detachFromContext removes id from icid's attached set, releasing any
// active-consumer role it held (and broadcasting the resulting change), and
// broadcasts COMPONENT_DETACHED. A no-op if id was not attached.
func (h *Hub) detachFromContext(id envelope.ComponentId, icid envelope.InputContextId) {
	ctx, ok := h.contexts[icid]
	if !ok || !ctx.attached[id] {
		return
	}
	delete(ctx.attached, id)

	var released []envelope.MessageType
	for t, consumer := range ctx.activeConsumer {
		if consumer == id {
			delete(ctx.activeConsumer, t)
			released = append(released, t)
		}
	}
	if len(released) > 0 {
		h.broadcastActiveConsumerChanged(icid, released)
	}

	h.broadcastAll(envelope.ComponentDetached, envelope.Payload{Uint32Array: []uint32{uint32(icid), uint32(id)}})
}

// pushCachedStateTo re-delivers icid's cached composition, candidate list,
// command lists and input caret to a newly attached component, so it does
// not have to separately poll with a QUERY_* round trip to catch up
// (push-on-attach caching). The active input method and active hotkey list
// are not pushed.
func (h *Hub) pushCachedStateTo(id envelope.ComponentId, icid envelope.InputContextId) {
	if c, ok := h.compositions[icid]; ok {
		h.deliverToComponent(id, envelope.NewNotification(envelope.CompositionChanged, envelope.ComponentDefault, id, icid, envelope.Payload{Composition: c}))
	}
	if c, ok := h.candidateLists[icid]; ok {
		h.deliverToComponent(id, envelope.NewNotification(envelope.CandidateListChanged, envelope.ComponentDefault, id, icid, envelope.Payload{CandidateList: c}))
	}
	if lists, ok := h.commandLists[icid]; ok {
		for _, cl := range lists {
			h.deliverToComponent(id, envelope.NewNotification(envelope.CommandListChanged, envelope.ComponentDefault, id, icid, envelope.Payload{CommandList: cl}))
		}
	}
	if caret, ok := h.inputCarets[icid]; ok {
		h.deliverToComponent(id, envelope.NewNotification(envelope.UpdateInputCaret, envelope.ComponentDefault, id, icid, envelope.Payload{InputCaret: caret}))
	}
}

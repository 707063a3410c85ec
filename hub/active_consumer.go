package hub

import (
	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/observability"
)

func (h *Hub) activeConsumerFor(icid envelope.InputContextId, t envelope.MessageType) (envelope.ComponentId, bool) {
	ctx, ok := h.contexts[icid]
	if !ok {
		return 0, false
	}
	id, ok := ctx.activeConsumer[t]
	return id, ok
}

func (h *Hub) broadcastActiveConsumerChanged(icid envelope.InputContextId, types []envelope.MessageType) {
	if len(types) == 0 {
		return
	}
	ctx, ok := h.contexts[icid]
	if !ok {
		return
	}
	typesU32 := make([]uint32, len(types))
	present := make([]bool, len(types))
	for i, t := range types {
		typesU32[i] = uint32(t)
		_, present[i] = ctx.activeConsumer[t]
		observability.RecordActiveConsumerAssignment(uint32(t))
	}
	h.broadcastAll(envelope.ActiveConsumerChanged, envelope.Payload{Uint32Array: typesU32, BoolArray: present})
}

func (h *Hub) handleAssignActiveConsumer(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}
	if !ctx.attached[msg.Source] {
		h.replyError(connectorID, msg, envelope.PermissionDenied, "component must be attached before becoming an active consumer")
		return
	}

	types := messageTypesFromUint32(msg.Payload.Uint32Array)
	var changed []envelope.MessageType
	for _, t := range types {
		ctx.activeConsumer[t] = msg.Source
		changed = append(changed, t)
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	if len(changed) > 0 {
		h.broadcastActiveConsumerChanged(ctx.id, changed)
		h.broadcastAll(envelope.ComponentActivated, envelope.Payload{Uint32Array: append([]uint32{uint32(msg.Source)}, messageTypesToUint32(changed)...)})
	}
}

func (h *Hub) handleResignActiveConsumer(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}

	types := messageTypesFromUint32(msg.Payload.Uint32Array)
	var changed []envelope.MessageType
	for _, t := range types {
		if ctx.activeConsumer[t] == msg.Source {
			delete(ctx.activeConsumer, t)
			changed = append(changed, t)
		}
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	if len(changed) > 0 {
		h.broadcastActiveConsumerChanged(ctx.id, changed)
		h.broadcastAll(envelope.ComponentDeactivated, envelope.Payload{Uint32Array: append([]uint32{uint32(msg.Source)}, messageTypesToUint32(changed)...)})
	}
}

// handleActivateComponent implements ACTIVATE_COMPONENT: msg.Source claims
// every message type in its own Consume list that nobody else already holds
// in this icid. Unlike ASSIGN_ACTIVE_CONSUMER it never preempts an existing
// holder and never touches system-reserved types.
func (h *Hub) handleActivateComponent(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}
	rec, ok := h.componentsByID[msg.Source]
	if !ok {
		h.replyError(connectorID, msg, envelope.ComponentNotFound, "component not registered")
		return
	}

	var changed []envelope.MessageType
	for _, t := range rec.info.Consume {
		if t.IsSystemReserved() {
			continue
		}
		if _, taken := ctx.activeConsumer[t]; taken {
			continue
		}
		ctx.activeConsumer[t] = msg.Source
		changed = append(changed, t)
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	if len(changed) > 0 {
		h.broadcastActiveConsumerChanged(ctx.id, changed)
		h.broadcastAll(envelope.ComponentActivated, envelope.Payload{Uint32Array: append([]uint32{uint32(msg.Source)}, messageTypesToUint32(changed)...)})
	}
}

// findConsumeCandidate returns a registered component that declares t in
// its Consume list, preferring one already attached to ctx over one that
// would need recruiting.
func (h *Hub) findConsumeCandidate(t envelope.MessageType, ctx *inputContextRecord) (envelope.ComponentId, bool) {
	var fallback envelope.ComponentId
	haveFallback := false
	for id, rec := range h.componentsByID {
		if !containsType(rec.info.Consume, t) {
			continue
		}
		if ctx.attached[id] {
			return id, true
		}
		if !haveFallback {
			fallback, haveFallback = id, true
		}
	}
	return fallback, haveFallback
}

// handleRequestConsumer implements REQUEST_CONSUMER: for each requested
// message type still unassigned in this icid, Hub finds a candidate that
// declares it and either assigns it immediately (candidate already
// attached) or issues an ATTACH_TO_INPUT_CONTEXT request and assigns it
// asynchronously once the candidate acknowledges. Types with no candidate
// at all are reported back as unresolved.
func (h *Hub) handleRequestConsumer(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}

	requested := messageTypesFromUint32(msg.Payload.Uint32Array)
	var unresolved []envelope.MessageType

	for _, t := range requested {
		if _, taken := ctx.activeConsumer[t]; taken {
			continue
		}

		candidate, ok := h.findConsumeCandidate(t, ctx)
		if !ok {
			unresolved = append(unresolved, t)
			continue
		}

		if ctx.attached[candidate] {
			ctx.activeConsumer[t] = candidate
			h.broadcastActiveConsumerChanged(ctx.id, []envelope.MessageType{t})
			h.broadcastAll(envelope.ComponentActivated, envelope.Payload{Uint32Array: []uint32{uint32(candidate), uint32(t)}})
			continue
		}

		h.requestAttach(candidate, ctx.id, t)
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{Uint32Array: messageTypesToUint32(unresolved)}))
	}
}

func (h *Hub) handleQueryActiveConsumer(connectorID uint64, msg envelope.Message) {
	ctx, ok := h.contexts[msg.Icid]
	if !ok {
		h.replyError(connectorID, msg, envelope.InputContextNotFound, "no such input context")
		return
	}

	types := messageTypesFromUint32(msg.Payload.Uint32Array)
	ids := make([]uint32, 0, len(types))
	present := make([]bool, 0, len(types))
	for _, t := range types {
		id, ok := ctx.activeConsumer[t]
		ids = append(ids, uint32(id))
		present = append(present, ok)
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{Uint32Array: ids, BoolArray: present}))
	}
}

// requestAttach asks candidate to attach to icid for the purpose of
// consuming t, tracking the request so handleReply can finish the
// active-consumer assignment once candidate acknowledges.
func (h *Hub) requestAttach(candidate envelope.ComponentId, icid envelope.InputContextId, t envelope.MessageType) {
	h.nextHubSerial++
	serial := envelope.Serial(h.nextHubSerial)
	h.pendingAttach[serial] = pendingAttach{icid: icid, msgType: t, candidate: candidate}
	req := envelope.NewRequest(envelope.AttachToInputContext, envelope.ComponentDefault, candidate, icid, serial, envelope.Payload{})
	h.deliverToComponent(candidate, req)
}

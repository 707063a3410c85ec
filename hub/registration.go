package hub

import (
	"fmt"

	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/observability"
)

// handleRegister implements REGISTER_COMPONENT: one or more ComponentInfo
// records are validated against the string_id registry before any of them
// are committed, so a single conflict fails the whole batch rather than
// leaving a partially registered group behind.
func (h *Hub) handleRegister(connectorID uint64, msg envelope.Message) {
	infos := msg.Payload.ComponentInfoArray
	if len(infos) == 0 {
		h.replyError(connectorID, msg, envelope.InvalidPayload, "REGISTER_COMPONENT requires at least one ComponentInfo")
		return
	}

	for _, info := range infos {
		if _, exists := h.componentsByStringID[info.StringId]; exists {
			if msg.ReplyMode == envelope.NeedReply {
				h.sendToConnector(connectorID, msg.ReplyWithError(envelope.InvalidArgument,
					fmt.Sprintf("string_id %q already registered", info.StringId)))
			} else {
				h.logger.Warn("duplicate string_id on NO_REPLY registration", "string_id", info.StringId)
			}
			return
		}
	}

	registered := make([]envelope.ComponentInfo, 0, len(infos))
	for _, info := range infos {
		h.nextComponentID++
		id := envelope.ComponentId(h.nextComponentID)
		info.Id = id

		h.componentsByID[id] = &componentRecord{info: info, connectorID: connectorID}
		h.componentsByStringID[info.StringId] = id
		h.connectors[connectorID].components[id] = true
		h.attachToContext(id, envelope.InputContextNone)

		registered = append(registered, info)
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{ComponentInfoArray: registered}))
	}

	for _, info := range registered {
		h.broadcastExcept(info.Id, envelope.ComponentCreated, envelope.Payload{ComponentInfoArray: []envelope.ComponentInfo{info}})
	}
	observability.SetComponentsRegistered(len(h.componentsByID))
}

func (h *Hub) handleDeregisterMsg(connectorID uint64, msg envelope.Message) {
	h.deregisterComponent(msg.Source)
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
}

// deregisterComponent detaches id from every input context it is attached
// to (releasing any active-consumer role it held), removes it from both
// registries, and broadcasts COMPONENT_DELETED. A no-op if id is unknown,
// since a connector closing after its components already deregistered
// themselves must not double-fire the broadcast.
func (h *Hub) deregisterComponent(id envelope.ComponentId) {
	rec, ok := h.componentsByID[id]
	if !ok {
		return
	}

	for icid, ctx := range h.contexts {
		if ctx.attached[id] {
			h.detachFromContext(id, icid)
		}
	}

	delete(h.componentsByStringID, rec.info.StringId)
	delete(h.componentsByID, id)
	if conn, ok := h.connectors[rec.connectorID]; ok {
		delete(conn.components, id)
	}

	h.broadcastAll(envelope.ComponentDeleted, envelope.Payload{ComponentInfoArray: []envelope.ComponentInfo{rec.info}})
	observability.SetComponentsRegistered(len(h.componentsByID))
}

func (h *Hub) handleQueryComponent(connectorID uint64, msg envelope.Message) {
	var results []envelope.ComponentInfo
	switch {
	case len(msg.Payload.Uint32Array) > 0:
		for _, u := range msg.Payload.Uint32Array {
			if rec, ok := h.componentsByID[envelope.ComponentId(u)]; ok {
				results = append(results, rec.info)
			}
		}
	case len(msg.Payload.StringArray) > 0:
		for _, s := range msg.Payload.StringArray {
			if id, ok := h.componentsByStringID[s]; ok {
				results = append(results, h.componentsByID[id].info)
			}
		}
	default:
		for _, rec := range h.componentsByID {
			results = append(results, rec.info)
		}
	}

	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{ComponentInfoArray: results}))
	}
}

package hub

import "github.com/jeeves-cluster-organization/hubcore/envelope"

// handleQuit implements HUB_SERVER_QUIT: every registered component is
// notified before the registered onQuit callback runs, so components get a
// chance to see the shutdown coming rather than just losing their channel.
func (h *Hub) handleQuit(connectorID uint64, msg envelope.Message) {
	if msg.ReplyMode == envelope.NeedReply {
		h.sendToConnector(connectorID, msg.Reply(envelope.Payload{}))
	}
	h.broadcastAll(envelope.HubServerQuit, envelope.Payload{})
	if h.onQuit != nil {
		h.onQuit()
	}
}

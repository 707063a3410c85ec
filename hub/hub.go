// Package hub implements the single-threaded authoritative router: the
// component registry, input-context registry, active-consumer arbitration,
// hotkey table, and cache-with-push-on-attach semantics described by the
// component bus. Hub itself holds no lock — every exported method must only
// ever be called from the single goroutine that drives it, normally
// HubHost's driver goroutine (see hub_host.go).
package hub

import (
	"time"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
	"github.com/jeeves-cluster-organization/hubcore/channel"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/observability"
)

type connectorRecord struct {
	id         uint64
	peer       channel.Peer
	components map[envelope.ComponentId]bool
}

type componentRecord struct {
	info        envelope.ComponentInfo
	connectorID uint64
}

type inputContextRecord struct {
	id             envelope.InputContextId
	owner          envelope.ComponentId
	focused        bool
	attached       map[envelope.ComponentId]bool
	activeConsumer map[envelope.MessageType]envelope.ComponentId
}

// pendingForward correlates a Hub-originated forwarded request (e.g.
// SEND_KEY_EVENT re-issued as PROCESS_KEY_EVENT to the active IME) with the
// original requester, so the eventual reply can be routed back and
// re-labelled with the original Type/Serial.
type pendingForward struct {
	origSource envelope.ComponentId
	origSerial envelope.Serial
	icid       envelope.InputContextId
	msgType    envelope.MessageType
}

// pendingAttach correlates an ATTACH_TO_INPUT_CONTEXT request Hub issued on
// a candidate's behalf (REQUEST_CONSUMER recruiting an unattached consumer)
// with the active-consumer assignment to complete once the candidate
// acknowledges.
type pendingAttach struct {
	icid      envelope.InputContextId
	msgType   envelope.MessageType
	candidate envelope.ComponentId
}

// Hub is the single-threaded message router. It implements channel.Connector
// so a DirectChannel (or HubHost's internal plumbing) can attach to it
// without this package depending on channel for anything but that interface.
type Hub struct {
	logger buslog.Logger

	nextConnectorID uint64
	nextComponentID uint32
	nextICID        uint32
	nextHubSerial   uint32

	connectors           map[uint64]*connectorRecord
	componentsByID       map[envelope.ComponentId]*componentRecord
	componentsByStringID map[string]envelope.ComponentId

	contexts    map[envelope.InputContextId]*inputContextRecord
	focusedICID envelope.InputContextId

	hotkeyLists      map[uint32]*envelope.HotkeyList
	activeHotkeyList map[envelope.InputContextId]uint32

	compositions      map[envelope.InputContextId]*envelope.Composition
	candidateLists    map[envelope.InputContextId]*envelope.CandidateList
	candidateVisible  map[envelope.InputContextId]bool
	commandLists      map[envelope.InputContextId]map[envelope.ComponentId]*envelope.CommandList
	inputCarets       map[envelope.InputContextId]*envelope.InputCaret
	activeInputMethod map[envelope.InputContextId]envelope.ComponentId

	pendingForward map[envelope.Serial]pendingForward
	pendingAttach  map[envelope.Serial]pendingAttach

	onQuit func()
}

// New constructs an empty Hub. logger may be nil, in which case a no-op
// logger is used.
func New(logger buslog.Logger) *Hub {
	if logger == nil {
		logger = buslog.Noop()
	}
	return &Hub{
		logger:               logger,
		connectors:           make(map[uint64]*connectorRecord),
		componentsByID:       make(map[envelope.ComponentId]*componentRecord),
		componentsByStringID: make(map[string]envelope.ComponentId),
		contexts:             make(map[envelope.InputContextId]*inputContextRecord),
		hotkeyLists:          make(map[uint32]*envelope.HotkeyList),
		activeHotkeyList:     make(map[envelope.InputContextId]uint32),
		compositions:         make(map[envelope.InputContextId]*envelope.Composition),
		candidateLists:       make(map[envelope.InputContextId]*envelope.CandidateList),
		candidateVisible:     make(map[envelope.InputContextId]bool),
		commandLists:         make(map[envelope.InputContextId]map[envelope.ComponentId]*envelope.CommandList),
		inputCarets:          make(map[envelope.InputContextId]*envelope.InputCaret),
		activeInputMethod:    make(map[envelope.InputContextId]envelope.ComponentId),
		pendingForward:       make(map[envelope.Serial]pendingForward),
		pendingAttach:        make(map[envelope.Serial]pendingAttach),
	}
}

// SetQuitHandler registers a callback invoked when a HUB_SERVER_QUIT
// message is processed, after the broadcast has gone out. Typically wired
// by cmd/hubd to cancel the process context.
func (h *Hub) SetQuitHandler(fn func()) {
	h.onQuit = fn
}

// Attach implements channel.Connector. It allocates a connector slot and
// returns a Session the channel uses to push inbound envelopes into
// handleInbound and to detach on close.
func (h *Hub) Attach(peer channel.Peer) channel.Session {
	h.nextConnectorID++
	id := h.nextConnectorID
	h.connectors[id] = &connectorRecord{id: id, peer: peer, components: map[envelope.ComponentId]bool{}}
	return &connectorSession{hub: h, connectorID: id}
}

type connectorSession struct {
	hub         *Hub
	connectorID uint64
}

func (s *connectorSession) Dispatch(msg envelope.Message) { s.hub.handleInbound(s.connectorID, msg) }
func (s *connectorSession) Close()                        { s.hub.detachConnector(s.connectorID) }

// detachConnector deregisters every component that was registered through
// connectorID, as if each had sent DEREGISTER_COMPONENT, then discards the
// connector slot. Used when a channel closes (process died, pipe dropped).
func (h *Hub) detachConnector(connectorID uint64) {
	conn, ok := h.connectors[connectorID]
	if !ok {
		return
	}
	ids := make([]envelope.ComponentId, 0, len(conn.components))
	for id := range conn.components {
		ids = append(ids, id)
	}
	for _, id := range ids {
		h.deregisterComponent(id)
	}
	delete(h.connectors, connectorID)
}

// handleInbound is the single dispatch entry point for every envelope
// arriving from any connector, reply or request alike.
func (h *Hub) handleInbound(connectorID uint64, msg envelope.Message) {
	start := time.Now()
	if msg.ReplyMode == envelope.IsReply {
		h.handleReply(msg)
		observability.RecordDispatch(uint32(msg.Type), "reply", time.Since(start).Seconds())
		return
	}
	defer func() {
		observability.RecordDispatch(uint32(msg.Type), "dispatched", time.Since(start).Seconds())
	}()

	switch msg.Type {
	case envelope.RegisterComponent:
		h.handleRegister(connectorID, msg)
	case envelope.DeregisterComponent:
		h.handleDeregisterMsg(connectorID, msg)
	case envelope.QueryComponent:
		h.handleQueryComponent(connectorID, msg)

	case envelope.CreateInputContext:
		h.handleCreateInputContext(connectorID, msg)
	case envelope.DeleteInputContext:
		h.handleDeleteInputContext(connectorID, msg)
	case envelope.FocusInputContext:
		h.handleFocusInputContext(connectorID, msg)
	case envelope.BlurInputContext:
		h.handleBlurInputContext(connectorID, msg)
	case envelope.AttachToInputContext:
		h.handleAttachToInputContext(connectorID, msg)
	case envelope.DetachFromInputContext:
		h.handleDetachFromInputContext(connectorID, msg)
	case envelope.QueryInputContext:
		h.handleQueryInputContext(connectorID, msg)

	case envelope.AssignActiveConsumer:
		h.handleAssignActiveConsumer(connectorID, msg)
	case envelope.ResignActiveConsumer:
		h.handleResignActiveConsumer(connectorID, msg)
	case envelope.ActivateComponent:
		h.handleActivateComponent(connectorID, msg)
	case envelope.RequestConsumer:
		h.handleRequestConsumer(connectorID, msg)
	case envelope.QueryActiveConsumer:
		h.handleQueryActiveConsumer(connectorID, msg)

	case envelope.SendKeyEvent:
		h.handleSendKeyEvent(connectorID, msg)

	case envelope.SetComposition:
		h.handleSetComposition(connectorID, msg)
	case envelope.CancelComposition:
		h.handleCancelComposition(connectorID, msg)
	case envelope.CompleteComposition:
		h.handleCompleteComposition(connectorID, msg)
	case envelope.QueryComposition:
		h.handleQueryComposition(connectorID, msg)

	case envelope.SetCandidateList:
		h.handleSetCandidateList(connectorID, msg)
	case envelope.SetSelectedCandidate:
		h.handleSetSelectedCandidate(connectorID, msg)
	case envelope.SetCandidateListVisibility:
		h.handleSetCandidateListVisibility(connectorID, msg)
	case envelope.QueryCandidateList:
		h.handleQueryCandidateList(connectorID, msg)

	case envelope.UpdateInputCaret:
		h.handleUpdateInputCaret(connectorID, msg)
	case envelope.QueryInputCaret:
		h.handleQueryInputCaret(connectorID, msg)

	case envelope.SetCommandList, envelope.UpdateCommands:
		h.handleSetCommandList(connectorID, msg)
	case envelope.QueryCommandList:
		h.handleQueryCommandList(connectorID, msg)

	case envelope.AddHotkeyList:
		h.handleAddHotkeyList(connectorID, msg)
	case envelope.RemoveHotkeyList:
		h.handleRemoveHotkeyList(connectorID, msg)
	case envelope.CheckHotkeyConflict:
		h.handleCheckHotkeyConflict(connectorID, msg)
	case envelope.ActivateHotkeyList:
		h.handleActivateHotkeyList(connectorID, msg)
	case envelope.DeactivateHotkeyList:
		h.handleDeactivateHotkeyList(connectorID, msg)
	case envelope.QueryActiveHotkeyList:
		h.handleQueryActiveHotkeyList(connectorID, msg)

	case envelope.ListInputMethods:
		h.handleListInputMethods(connectorID, msg)
	case envelope.SwitchToInputMethod:
		h.handleSwitchToInputMethod(connectorID, msg)
	case envelope.SwitchToNextInputMethodInList:
		h.switchRelative(connectorID, msg, 1)
	case envelope.SwitchToPreviousInputMethod:
		h.switchRelative(connectorID, msg, -1)
	case envelope.QueryActiveInputMethod:
		h.handleQueryActiveInputMethod(connectorID, msg)

	case envelope.HubServerQuit:
		h.handleQuit(connectorID, msg)

	default:
		h.genericDispatch(connectorID, msg)
	}
}

// genericDispatch is the DEFAULT-target algorithm of §4.4 applied to every
// message type that has no bespoke handler above: settings, UI visibility,
// command invocation, plugin-manager control, application UI, and any
// third-party UserDefined type. Explicit targets bypass icid routing
// entirely; BROADCAST fans out to every attached component; DEFAULT resolves
// through the active-consumer table and falls back to a broadcast only for
// types HasBroadcastFallback names.
func (h *Hub) genericDispatch(connectorID uint64, msg envelope.Message) {
	if msg.Type.IsSystemReserved() {
		h.replyError(connectorID, msg, envelope.InvalidMessage, "system-reserved message type not permitted from a component")
		return
	}

	switch msg.Target {
	case envelope.ComponentBroadcast:
		h.broadcastToAttached(msg.Icid, msg)
		return
	case envelope.ComponentDefault:
		// fall through to active-consumer resolution below
	default:
		h.deliverToComponent(msg.Target, msg)
		return
	}

	consumer, ok := h.activeConsumerFor(msg.Icid, msg.Type)
	if ok {
		h.deliverToComponent(consumer, msg)
		return
	}
	if msg.Type.HasBroadcastFallback() {
		h.broadcastToAttached(msg.Icid, msg)
		return
	}
	h.replyError(connectorID, msg, envelope.ComponentNotFound, "no active consumer for message type")
}

// deliverToComponent sets msg.Target and hands it to target's owning
// connector. If target is not registered, a NEED_REPLY message gets an
// error reply back to its source and a NO_REPLY message is logged and
// dropped.
func (h *Hub) deliverToComponent(target envelope.ComponentId, msg envelope.Message) {
	rec, ok := h.componentsByID[target]
	if !ok {
		if msg.ReplyMode == envelope.NeedReply {
			h.deliverReply(msg.ReplyWithError(envelope.ComponentNotFound, "target component not registered"))
		} else {
			h.logger.Warn("dropping message to unknown component", "target", uint32(target), "type", uint32(msg.Type))
		}
		return
	}
	out := msg
	out.Target = target
	h.sendToConnector(rec.connectorID, out)
}

func (h *Hub) sendToConnector(connectorID uint64, msg envelope.Message) {
	conn, ok := h.connectors[connectorID]
	if !ok {
		return
	}
	conn.peer.Deliver(msg)
}

// deliverReply routes an IS_REPLY Message to whatever component owns
// reply.Target (the original requester).
func (h *Hub) deliverReply(reply envelope.Message) {
	rec, ok := h.componentsByID[reply.Target]
	if !ok {
		return
	}
	h.sendToConnector(rec.connectorID, reply)
}

// replyError answers req with an error IS_REPLY when req needs one,
// otherwise just logs; the reply goes to the connector the request arrived
// on, which is always req.Source's owning connector for externally
// originated requests.
func (h *Hub) replyError(connectorID uint64, req envelope.Message, code envelope.ErrorCode, text string) {
	if req.ReplyMode != envelope.NeedReply {
		h.logger.Warn(text, "type", uint32(req.Type), "code", code.String())
		return
	}
	h.sendToConnector(connectorID, req.ReplyWithError(code, text))
}

func (h *Hub) broadcastToAttached(icid envelope.InputContextId, msg envelope.Message) {
	ctx, ok := h.contexts[icid]
	if !ok {
		return
	}
	for id := range ctx.attached {
		h.deliverToComponent(id, msg)
	}
}

func (h *Hub) broadcastAll(msgType envelope.MessageType, payload envelope.Payload) {
	msg := envelope.NewNotification(msgType, envelope.ComponentDefault, envelope.ComponentBroadcast, envelope.InputContextNone, payload)
	for id := range h.componentsByID {
		h.deliverToComponent(id, msg)
	}
}

func (h *Hub) broadcastExcept(except envelope.ComponentId, msgType envelope.MessageType, payload envelope.Payload) {
	msg := envelope.NewNotification(msgType, envelope.ComponentDefault, envelope.ComponentBroadcast, envelope.InputContextNone, payload)
	for id := range h.componentsByID {
		if id == except {
			continue
		}
		h.deliverToComponent(id, msg)
	}
}

func containsType(types []envelope.MessageType, t envelope.MessageType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func messageTypesFromUint32(u []uint32) []envelope.MessageType {
	out := make([]envelope.MessageType, len(u))
	for i, v := range u {
		out[i] = envelope.MessageType(v)
	}
	return out
}

func messageTypesToUint32(t []envelope.MessageType) []uint32 {
	out := make([]uint32, len(t))
	for i, v := range t {
		out[i] = uint32(v)
	}
	return out
}

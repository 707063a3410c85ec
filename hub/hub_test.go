package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
	"github.com/jeeves-cluster-organization/hubcore/channel"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

// testPeer is a minimal channel.Peer that records everything Hub delivers
// to it and lets a test drive Hub's Session directly, without a real
// MessageChannel or HubHost in the loop.
type testPeer struct {
	session  channel.Session
	received []envelope.Message
}

func (p *testPeer) Deliver(msg envelope.Message) { p.received = append(p.received, msg) }

func newConnector(t *testing.T, h *Hub) *testPeer {
	t.Helper()
	p := &testPeer{}
	p.session = h.Attach(p)
	return p
}

func (p *testPeer) send(msg envelope.Message) { p.session.Dispatch(msg) }

// last returns the most recently received message, failing the test if none
// arrived.
func (p *testPeer) last(t *testing.T) envelope.Message {
	t.Helper()
	require.NotEmpty(t, p.received)
	return p.received[len(p.received)-1]
}

func (p *testPeer) findType(t envelope.MessageType) (envelope.Message, bool) {
	for i := len(p.received) - 1; i >= 0; i-- {
		if p.received[i].Type == t {
			return p.received[i], true
		}
	}
	return envelope.Message{}, false
}

func registerComponent(t *testing.T, p *testPeer, info envelope.ComponentInfo) envelope.ComponentId {
	t.Helper()
	p.send(envelope.NewRequest(envelope.RegisterComponent, envelope.ComponentDefault, envelope.ComponentDefault, envelope.InputContextNone, 1, envelope.Payload{ComponentInfoArray: []envelope.ComponentInfo{info}}))
	reply := p.last(t)
	require.Equal(t, envelope.IsReply, reply.ReplyMode)
	require.Len(t, reply.Payload.ComponentInfoArray, 1)
	return reply.Payload.ComponentInfoArray[0].Id
}

// Scenario 1: Create input context.
func TestScenarioCreateInputContext(t *testing.T) {
	h := New(buslog.Noop())
	app := newConnector(t, h)

	appID := registerComponent(t, app, envelope.ComponentInfo{StringId: "app1", Name: "App"})
	assert.Equal(t, envelope.ComponentId(1), appID)

	app.send(envelope.NewRequest(envelope.CreateInputContext, appID, envelope.ComponentDefault, envelope.InputContextNone, 2, envelope.Payload{}))
	reply := app.last(t)
	require.Equal(t, envelope.IsReply, reply.ReplyMode)
	require.Len(t, reply.Payload.Uint32Array, 1)
	icid := envelope.InputContextId(reply.Payload.Uint32Array[0])

	created, ok := app.findType(envelope.InputContextCreated)
	require.True(t, ok)
	require.Len(t, created.Payload.InputContextInfoArray, 1)
	assert.Equal(t, icid, created.Payload.InputContextInfoArray[0].Id)
	assert.Equal(t, appID, created.Payload.InputContextInfoArray[0].Owner)
}

// Scenario 2: Attach + request consumer.
func TestScenarioAttachAndRequestConsumer(t *testing.T) {
	h := New(buslog.Noop())
	app := newConnector(t, h)
	ime := newConnector(t, h)

	appID := registerComponent(t, app, envelope.ComponentInfo{StringId: "app1"})
	imeID := registerComponent(t, ime, envelope.ComponentInfo{StringId: "ime1", Consume: []envelope.MessageType{envelope.SendKeyEvent, envelope.ProcessKeyEvent}})

	app.send(envelope.NewRequest(envelope.CreateInputContext, appID, envelope.ComponentDefault, envelope.InputContextNone, 2, envelope.Payload{}))
	icid := envelope.InputContextId(app.last(t).Payload.Uint32Array[0])

	ime.send(envelope.NewNotification(envelope.AttachToInputContext, imeID, envelope.ComponentDefault, icid, envelope.Payload{}))
	attached, ok := app.findType(envelope.ComponentAttached)
	require.True(t, ok)
	assert.Equal(t, []uint32{uint32(icid), uint32(imeID)}, attached.Payload.Uint32Array)

	app.send(envelope.NewRequest(envelope.RequestConsumer, appID, envelope.ComponentDefault, icid, 3, envelope.Payload{Uint32Array: []uint32{uint32(envelope.SendKeyEvent)}}))
	reply := app.last(t)
	assert.Empty(t, reply.Payload.Uint32Array, "no unresolved types expected")

	changed, ok := app.findType(envelope.ActiveConsumerChanged)
	require.True(t, ok)
	assert.Equal(t, []uint32{uint32(envelope.SendKeyEvent)}, changed.Payload.Uint32Array)
	assert.Equal(t, []bool{true}, changed.Payload.BoolArray)

	activated, ok := app.findType(envelope.ComponentActivated)
	require.True(t, ok)
	assert.Contains(t, activated.Payload.Uint32Array, uint32(imeID))
}

// Scenario 3: Key routing through an active IME consumer.
func TestScenarioKeyRouting(t *testing.T) {
	h := New(buslog.Noop())
	app := newConnector(t, h)
	ime := newConnector(t, h)

	appID := registerComponent(t, app, envelope.ComponentInfo{StringId: "app1"})
	imeID := registerComponent(t, ime, envelope.ComponentInfo{StringId: "ime1", Consume: []envelope.MessageType{envelope.SendKeyEvent, envelope.ProcessKeyEvent}})

	app.send(envelope.NewRequest(envelope.CreateInputContext, appID, envelope.ComponentDefault, envelope.InputContextNone, 2, envelope.Payload{}))
	icid := envelope.InputContextId(app.last(t).Payload.Uint32Array[0])

	ime.send(envelope.NewNotification(envelope.AttachToInputContext, imeID, envelope.ComponentDefault, icid, envelope.Payload{}))
	app.send(envelope.NewRequest(envelope.RequestConsumer, appID, envelope.ComponentDefault, icid, 3, envelope.Payload{Uint32Array: []uint32{uint32(envelope.SendKeyEvent)}}))

	key := envelope.KeyEvent{KeyCode: 'A'}
	app.send(envelope.NewRequest(envelope.SendKeyEvent, appID, envelope.ComponentDefault, icid, 4, envelope.Payload{KeyEventArray: []envelope.KeyEvent{key}}))

	forwarded, ok := ime.findType(envelope.ProcessKeyEvent)
	require.True(t, ok)
	require.Equal(t, envelope.NeedReply, forwarded.ReplyMode)
	require.Len(t, forwarded.Payload.KeyEventArray, 1)
	assert.Equal(t, key.KeyCode, forwarded.Payload.KeyEventArray[0].KeyCode)

	ime.send(forwarded.Reply(envelope.Payload{BoolArray: []bool{true}}))

	reply := app.last(t)
	assert.Equal(t, envelope.IsReply, reply.ReplyMode)
	assert.Equal(t, envelope.SendKeyEvent, reply.Type)
	assert.Equal(t, envelope.Serial(4), reply.Serial)
	assert.Equal(t, []bool{true}, reply.Payload.BoolArray)
}

// Scenario 6: Duplicate string-id.
func TestScenarioDuplicateStringID(t *testing.T) {
	h := New(buslog.Noop())
	first := newConnector(t, h)
	second := newConnector(t, h)

	firstID := registerComponent(t, first, envelope.ComponentInfo{StringId: "dup"})
	assert.NotEqual(t, envelope.ComponentDefault, firstID)

	second.send(envelope.NewRequest(envelope.RegisterComponent, envelope.ComponentDefault, envelope.ComponentDefault, envelope.InputContextNone, 1, envelope.Payload{ComponentInfoArray: []envelope.ComponentInfo{{StringId: "dup"}}}))
	reply := second.last(t)
	require.True(t, reply.IsError())
	assert.Equal(t, envelope.InvalidArgument, reply.Payload.Error.Code)

	// First registration remains intact.
	first.send(envelope.NewRequest(envelope.QueryComponent, firstID, envelope.ComponentDefault, envelope.InputContextNone, 2, envelope.Payload{Uint32Array: []uint32{uint32(firstID)}}))
	queryReply := first.last(t)
	require.Len(t, queryReply.Payload.ComponentInfoArray, 1)
	assert.Equal(t, "dup", queryReply.Payload.ComponentInfoArray[0].StringId)
}

// Round-trip: register then deregister returns registries to their prior
// state.
func TestRegisterDeregisterRoundTrip(t *testing.T) {
	h := New(buslog.Noop())
	conn := newConnector(t, h)
	observer := newConnector(t, h)

	id := registerComponent(t, conn, envelope.ComponentInfo{StringId: "a"})
	registerComponent(t, observer, envelope.ComponentInfo{StringId: "b"})
	assert.Len(t, h.componentsByID, 2)

	observer.received = nil
	conn.send(envelope.NewNotification(envelope.DeregisterComponent, id, envelope.ComponentDefault, envelope.InputContextNone, envelope.Payload{}))
	assert.Len(t, h.componentsByID, 1)
	assert.NotContains(t, h.componentsByStringID, "a")

	deleted, ok := observer.findType(envelope.ComponentDeleted)
	require.True(t, ok)
	assert.Equal(t, "a", deleted.Payload.ComponentInfoArray[0].StringId)
}

// Focus toggling: FOCUS then BLUR emits GOT_FOCUS then LOST_FOCUS and
// leaves no focused context.
func TestFocusToggling(t *testing.T) {
	h := New(buslog.Noop())
	app := newConnector(t, h)
	appID := registerComponent(t, app, envelope.ComponentInfo{StringId: "app1"})

	app.send(envelope.NewRequest(envelope.CreateInputContext, appID, envelope.ComponentDefault, envelope.InputContextNone, 2, envelope.Payload{}))
	icid := envelope.InputContextId(app.last(t).Payload.Uint32Array[0])
	app.send(envelope.NewNotification(envelope.AttachToInputContext, appID, envelope.ComponentDefault, icid, envelope.Payload{}))

	app.received = nil
	app.send(envelope.NewRequest(envelope.FocusInputContext, appID, envelope.ComponentDefault, icid, 3, envelope.Payload{}))
	_, gotFocus := app.findType(envelope.InputContextGotFocus)
	assert.True(t, gotFocus)
	assert.Equal(t, icid, h.focusedICID)

	app.send(envelope.NewRequest(envelope.BlurInputContext, appID, envelope.ComponentDefault, icid, 4, envelope.Payload{}))
	_, lostFocus := app.findType(envelope.InputContextLostFocus)
	assert.True(t, lostFocus)
	assert.Equal(t, envelope.InputContextNone, h.focusedICID)
}

// CHECK_HOTKEY_CONFLICT compares against every ADDed hotkey list, not only
// the icid's active one.
func TestCheckHotkeyConflictAgainstAllLists(t *testing.T) {
	h := New(buslog.Noop())
	owner := newConnector(t, h)
	ownerID := registerComponent(t, owner, envelope.ComponentInfo{StringId: "owner"})

	owner.send(envelope.NewNotification(envelope.AddHotkeyList, ownerID, envelope.ComponentDefault, envelope.InputContextNone, envelope.Payload{
		HotkeyList: &envelope.HotkeyList{Id: 1, Bindings: []envelope.HotkeyBinding{{KeyCode: 'C', Modifiers: envelope.ModControl, CommandId: 9}}},
	}))

	candidate := &envelope.HotkeyList{Id: 2, Bindings: []envelope.HotkeyBinding{{KeyCode: 'C', Modifiers: envelope.ModControl, CommandId: 42}}}
	owner.send(envelope.NewRequest(envelope.CheckHotkeyConflict, ownerID, envelope.ComponentDefault, envelope.InputContextNone, 5, envelope.Payload{HotkeyList: candidate}))

	reply := owner.last(t)
	require.NotNil(t, reply.Payload.HotkeyList)
	require.Len(t, reply.Payload.HotkeyList.Bindings, 1)
	assert.Equal(t, uint32(9), reply.Payload.HotkeyList.Bindings[0].CommandId)
}

// UPDATE_INPUT_CARET caching: a newly attached component receives the
// cached caret via push, not only via an explicit query.
func TestUpdateInputCaretPushOnAttach(t *testing.T) {
	h := New(buslog.Noop())
	app := newConnector(t, h)
	appID := registerComponent(t, app, envelope.ComponentInfo{StringId: "app1"})
	app.send(envelope.NewRequest(envelope.CreateInputContext, appID, envelope.ComponentDefault, envelope.InputContextNone, 2, envelope.Payload{}))
	icid := envelope.InputContextId(app.last(t).Payload.Uint32Array[0])

	caret := &envelope.InputCaret{Position: envelope.Rect{X: 10, Y: 20}, Visible: true}
	app.send(envelope.NewNotification(envelope.UpdateInputCaret, appID, envelope.ComponentDefault, icid, envelope.Payload{InputCaret: caret}))

	ui := newConnector(t, h)
	uiID := registerComponent(t, ui, envelope.ComponentInfo{StringId: "ui1"})
	ui.received = nil
	ui.send(envelope.NewNotification(envelope.AttachToInputContext, uiID, envelope.ComponentDefault, icid, envelope.Payload{}))

	pushed, ok := ui.findType(envelope.UpdateInputCaret)
	require.True(t, ok)
	require.NotNil(t, pushed.Payload.InputCaret)
	assert.Equal(t, int32(10), pushed.Payload.InputCaret.Position.X)
}

func TestSystemReservedRangeRejectedFromComponents(t *testing.T) {
	h := New(buslog.Noop())
	conn := newConnector(t, h)
	id := registerComponent(t, conn, envelope.ComponentInfo{StringId: "a"})

	conn.send(envelope.NewRequest(envelope.MessageType(envelope.SystemReservedStart), id, envelope.ComponentDefault, envelope.InputContextNone, 7, envelope.Payload{}))
	reply := conn.last(t)
	require.True(t, reply.IsError())
	assert.Equal(t, envelope.InvalidMessage, reply.Payload.Error.Code)
}

func TestExplicitTargetBypassesInputContextRouting(t *testing.T) {
	h := New(buslog.Noop())
	a := newConnector(t, h)
	b := newConnector(t, h)
	aID := registerComponent(t, a, envelope.ComponentInfo{StringId: "a"})
	bID := registerComponent(t, b, envelope.ComponentInfo{StringId: "b"})

	b.received = nil
	msg := envelope.NewNotification(envelope.MessageType(0x10000), aID, bID, envelope.InputContextNone, envelope.Payload{StringArray: []string{"hi"}})
	a.send(msg)

	got, ok := b.findType(envelope.MessageType(0x10000))
	require.True(t, ok)
	assert.Equal(t, []string{"hi"}, got.Payload.StringArray)
}

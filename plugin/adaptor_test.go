package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

type fakePluginComponent struct {
	info        envelope.ComponentInfo
	handled     []envelope.Message
	registered  []envelope.ComponentId
	deregistered int
}

func (f *fakePluginComponent) GetInfo() envelope.ComponentInfo { return f.info }
func (f *fakePluginComponent) HandleMessage(msg envelope.Message) {
	f.handled = append(f.handled, msg)
}
func (f *fakePluginComponent) Registered(id envelope.ComponentId) {
	f.registered = append(f.registered, id)
}
func (f *fakePluginComponent) Deregistered() { f.deregistered++ }

func TestAdaptor_GetInfo_EncodesWrappedComponentInfo(t *testing.T) {
	comp := &fakePluginComponent{info: envelope.ComponentInfo{StringId: "ime.plugin", Name: "Plugin"}}
	a := NewAdaptor(comp, Callbacks{})

	body := a.GetInfo()
	require.NotEmpty(t, body)

	msg, err := envelope.Decode(body)
	require.NoError(t, err)
	require.Len(t, msg.Payload.ComponentInfoArray, 1)
	assert.Equal(t, "ime.plugin", msg.Payload.ComponentInfoArray[0].StringId)
	assert.Equal(t, "Plugin", msg.Payload.ComponentInfoArray[0].Name)
}

func TestAdaptor_HandleMessage_DecodesAndForwards(t *testing.T) {
	comp := &fakePluginComponent{}
	a := NewAdaptor(comp, Callbacks{})

	msg := envelope.NewNotification(envelope.MessageType(7), envelope.ComponentId(1), envelope.ComponentId(2), envelope.InputContextId(3), envelope.Payload{})
	body, err := envelope.Encode(msg)
	require.NoError(t, err)

	a.HandleMessage(body)
	require.Len(t, comp.handled, 1)
	assert.Equal(t, msg.Type, comp.handled[0].Type)
}

func TestAdaptor_HandleMessage_IgnoresUndecodableBuffer(t *testing.T) {
	comp := &fakePluginComponent{}
	a := NewAdaptor(comp, Callbacks{})

	a.HandleMessage([]byte{0x01})
	assert.Empty(t, comp.handled)
}

func TestAdaptor_Registered_ForwardsToComponent(t *testing.T) {
	comp := &fakePluginComponent{}
	a := NewAdaptor(comp, Callbacks{})

	a.Registered(42)
	require.Len(t, comp.registered, 1)
	assert.Equal(t, envelope.ComponentId(42), comp.registered[0])
}

func TestAdaptor_Deregistered_ForwardsToComponent(t *testing.T) {
	comp := &fakePluginComponent{}
	a := NewAdaptor(comp, Callbacks{})

	a.Deregistered()
	assert.Equal(t, 1, comp.deregistered)
}

func TestAdaptor_Send_NilCallbackIsSafe(t *testing.T) {
	a := NewAdaptor(&fakePluginComponent{}, Callbacks{})
	assert.NotPanics(t, func() { a.Send(envelope.Message{}) })
}

func TestAdaptor_SendWithReply_NilCallbackReturnsFalse(t *testing.T) {
	a := NewAdaptor(&fakePluginComponent{}, Callbacks{})
	_, ok := a.SendWithReply(envelope.Message{})
	assert.False(t, ok)
}

func TestAdaptor_SendWithReply_InvokesCallback(t *testing.T) {
	want := envelope.Message{Type: envelope.MessageType(9)}
	a := NewAdaptor(&fakePluginComponent{}, Callbacks{
		SendWithReply: func(msg envelope.Message) (envelope.Message, bool) {
			return want, true
		},
	})

	got, ok := a.SendWithReply(envelope.Message{})
	require.True(t, ok)
	assert.Equal(t, want.Type, got.Type)
}

func TestAdaptor_PauseAndResumeMessageHandling_InvokeCallbacks(t *testing.T) {
	var paused, resumed bool
	a := NewAdaptor(&fakePluginComponent{}, Callbacks{
		PauseMessageHandling:  func() { paused = true },
		ResumeMessageHandling: func() { resumed = true },
	})

	a.PauseMessageHandling()
	a.ResumeMessageHandling()
	assert.True(t, paused)
	assert.True(t, resumed)
}

func TestAdaptor_RemoveComponent_InvokesCallback(t *testing.T) {
	var removed bool
	a := NewAdaptor(&fakePluginComponent{}, Callbacks{
		RemoveComponent: func() { removed = true },
	})

	a.RemoveComponent()
	assert.True(t, removed)
}

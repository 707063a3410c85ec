package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

// fakeConnector is a minimal Connector used to test DirectChannel's
// attach/detach and send/deliver plumbing without a real Hub.
type fakeConnector struct {
	attachedPeer Peer
	dispatched   []envelope.Message
	closed       bool
}

type fakeSession struct{ c *fakeConnector }

func (s *fakeSession) Dispatch(msg envelope.Message) { s.c.dispatched = append(s.c.dispatched, msg) }
func (s *fakeSession) Close()                        { s.c.closed = true }

func (c *fakeConnector) Attach(peer Peer) Session {
	c.attachedPeer = peer
	return &fakeSession{c: c}
}

type recordingListener struct {
	received  []envelope.Message
	connected int
	closedN   int
	attached  int
	detached  int
}

func (l *recordingListener) OnMessageReceived(msg envelope.Message) { l.received = append(l.received, msg) }
func (l *recordingListener) OnChannelConnected()                    { l.connected++ }
func (l *recordingListener) OnChannelClosed()                       { l.closedN++ }
func (l *recordingListener) OnAttached()                            { l.attached++ }
func (l *recordingListener) OnDetached()                            { l.detached++ }

func TestDirectChannelAttachesOnSetListener(t *testing.T) {
	conn := &fakeConnector{}
	dc := NewDirectChannel(conn)
	assert.False(t, dc.IsConnected())

	l := &recordingListener{}
	dc.SetListener(l)

	assert.True(t, dc.IsConnected())
	assert.Equal(t, 1, l.connected)
	assert.Equal(t, 1, l.attached)
	assert.Same(t, dc, conn.attachedPeer)
}

func TestDirectChannelSendForwardsToConnector(t *testing.T) {
	conn := &fakeConnector{}
	dc := NewDirectChannel(conn)
	dc.SetListener(&recordingListener{})

	msg := envelope.Message{Type: envelope.RegisterComponent}
	ok := dc.Send(msg)

	require.True(t, ok)
	require.Len(t, conn.dispatched, 1)
	assert.Equal(t, msg, conn.dispatched[0])
}

func TestDirectChannelSendFailsWhenDetached(t *testing.T) {
	conn := &fakeConnector{}
	dc := NewDirectChannel(conn)

	ok := dc.Send(envelope.Message{Type: envelope.RegisterComponent})
	assert.False(t, ok)
}

func TestDirectChannelDetachOnNilListener(t *testing.T) {
	conn := &fakeConnector{}
	dc := NewDirectChannel(conn)
	l := &recordingListener{}
	dc.SetListener(l)

	dc.SetListener(nil)

	assert.False(t, dc.IsConnected())
	assert.True(t, conn.closed)
	assert.Equal(t, 1, l.detached)
	assert.Equal(t, 1, l.closedN)
}

func TestDirectChannelDeliverReachesListener(t *testing.T) {
	conn := &fakeConnector{}
	dc := NewDirectChannel(conn)
	l := &recordingListener{}
	dc.SetListener(l)

	reply := envelope.Message{Type: envelope.ComponentCreated}
	dc.Deliver(reply)

	require.Len(t, l.received, 1)
	assert.Equal(t, reply, l.received[0])
}

package channel

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/hubcore/config"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

func TestPipeServerPublishesDiscoverableSession(t *testing.T) {
	dir := t.TempDir()
	sharedName := filepath.Join(dir, "hub.session")

	srv, err := NewPipeServer(dir, sharedName, "hubd", 0, nil)
	require.NoError(t, err)
	defer srv.Close()

	sessionID, err := DiscoverSession(sharedName)
	require.NoError(t, err)
	assert.Equal(t, srv.SessionID(), sessionID)
}

func TestPipeServerAcceptsConnection(t *testing.T) {
	dir := t.TempDir()
	sharedName := filepath.Join(dir, "hub.session")

	srv, err := NewPipeServer(dir, sharedName, "hubd", 0, nil)
	require.NoError(t, err)
	defer srv.Close()

	accepted := make(chan *PipeChannel, 1)
	go srv.Serve(func(pc *PipeChannel) { accepted <- pc })

	path := SocketPath(dir, srv.SessionID(), "hubd")
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case pc := <-accepted:
		assert.True(t, pc.IsConnected())
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
	}
}

func TestRunReconnectLoopConnectsAndRetriesOnFailure(t *testing.T) {
	dir := t.TempDir()
	sharedName := filepath.Join(dir, "hub.session")

	srv, err := NewPipeServer(dir, sharedName, "hubd", 0, nil)
	require.NoError(t, err)
	defer srv.Close()

	accepted := make(chan *PipeChannel, 4)
	go srv.Serve(func(pc *PipeChannel) { accepted <- pc })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan *PipeChannel, 4)
	cfg := &config.Config{ReconnectInterval: 10 * time.Millisecond, MaxEnvelopeBytes: 0}
	go RunReconnectLoop(ctx, dir, sharedName, "hubd", cfg, nil, func(pc *PipeChannel) {
		connected <- pc
	})

	var client *PipeChannel
	select {
	case client = <-connected:
	case <-time.After(time.Second):
		t.Fatal("reconnect loop never connected")
	}

	var server *PipeChannel
	select {
	case server = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("server never accepted the reconnect loop's connection")
	}

	msg := envelope.Message{Type: envelope.RegisterComponent}
	serverListener := &recordingListener{}
	server.SetListener(serverListener)
	require.True(t, client.Send(msg))

	require.Eventually(t, func() bool {
		return len(serverListener.received) == 1
	}, time.Second, 5*time.Millisecond)
}

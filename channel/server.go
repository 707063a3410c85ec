package channel

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
)

// SocketPath reproduces the pipe-name scoping rule
// `\\.\pipe\<prefix>\<session-id>\<server-name>` on a POSIX filesystem: a
// Unix domain socket is the duplex, byte-stream, same-machine transport Go
// offers in place of a Windows named pipe, and a directory scoped by
// session id gives the same same-session isolation a pipe ACL would.
func SocketPath(prefix, sessionID, serverName string) string {
	return filepath.Join(prefix, sessionID, serverName+".sock")
}

// PublishSession writes sessionID to sharedName, standing in for the
// read-only named shared-memory segment a client's reconnect loop consults.
// The file is created with owner-only permissions, matching the
// same-session ACL the named pipe itself carries.
func PublishSession(sharedName, sessionID string) error {
	if err := os.MkdirAll(filepath.Dir(sharedName), 0700); err != nil {
		return fmt.Errorf("channel: create shared session directory: %w", err)
	}
	return os.WriteFile(sharedName, []byte(sessionID), 0600)
}

// DiscoverSession reads back the session id PublishSession wrote.
func DiscoverSession(sharedName string) (string, error) {
	b, err := os.ReadFile(sharedName)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PipeServer listens for incoming PipeChannel connections under a
// session-scoped socket path and publishes its session id for clients'
// reconnect loops to discover.
type PipeServer struct {
	listener  net.Listener
	sessionID string
	maxBytes  int
	logger    buslog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPipeServer allocates a fresh session id, binds a socket scoped under
// it, and publishes the session id at sharedName.
func NewPipeServer(prefix, sharedName, serverName string, maxBytes int, logger buslog.Logger) (*PipeServer, error) {
	if logger == nil {
		logger = buslog.Noop()
	}

	sessionID := uuid.New().String()
	path := SocketPath(prefix, sessionID, serverName)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("channel: create socket directory: %w", err)
	}
	os.Remove(path) // clear a stale socket left by an unclean prior exit.

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("channel: listen on %s: %w", path, err)
	}

	if err := PublishSession(sharedName, sessionID); err != nil {
		ln.Close()
		return nil, err
	}

	return &PipeServer{
		listener:  ln,
		sessionID: sessionID,
		maxBytes:  maxBytes,
		logger:    logger,
	}, nil
}

// SessionID returns the id this server published for client discovery.
func (s *PipeServer) SessionID() string { return s.sessionID }

// Serve accepts connections until Close is called, handing each freshly
// accepted connection's PipeChannel to onAccept.
func (s *PipeServer) Serve(onAccept func(*PipeChannel)) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		onAccept(NewPipeChannel(conn, s.maxBytes, s.logger))
	}
}

// Close stops accepting new connections. Connections already accepted are
// unaffected.
func (s *PipeServer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.listener.Close()
}

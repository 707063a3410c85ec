package channel

import (
	"net"
	"sync"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/observability"
)

// PipeChannel is the cross-process MessageChannel: a duplex, ordered byte
// stream framed per envelope.WriteFrame/ReadFrame. The four-event Windows
// overlapped-I/O loop from the original design (quit, read-complete,
// write-complete, send-queued) collapses into two goroutines over net.Conn,
// the idiomatic Go shape for a duplex stream: a read loop that blocks on
// ReadFrame, and a write loop that drains a send queue and blocks on
// WriteFrame — blocking I/O in a dedicated goroutine is itself the
// asynchronous primitive, so no explicit event multiplexing is needed.
type PipeChannel struct {
	conn     net.Conn
	maxBytes int
	logger   buslog.Logger

	mu       sync.Mutex
	listener Listener

	sendCh    chan envelope.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewPipeChannel wraps an already-established duplex connection (typically
// from net.Dial("unix", ...) or a PipeServer accept) and starts its
// read/write goroutines immediately; call SetListener to start receiving
// callbacks.
func NewPipeChannel(conn net.Conn, maxBytes int, logger buslog.Logger) *PipeChannel {
	if logger == nil {
		logger = buslog.Noop()
	}
	if maxBytes <= 0 {
		maxBytes = envelope.DefaultMaxEnvelopeBytes
	}
	pc := &PipeChannel{
		conn:     conn,
		maxBytes: maxBytes,
		logger:   logger,
		sendCh:   make(chan envelope.Message, 64),
		closeCh:  make(chan struct{}),
	}
	observability.RecordChannelConnection("pipe")
	go pc.readLoop()
	go pc.writeLoop()
	return pc
}

func (pc *PipeChannel) SetListener(l Listener) {
	pc.mu.Lock()
	old := pc.listener
	pc.listener = l
	pc.mu.Unlock()

	if l != nil && old == nil {
		l.OnAttached()
		if pc.IsConnected() {
			l.OnChannelConnected()
		}
	} else if l == nil && old != nil {
		old.OnDetached()
	}
}

func (pc *PipeChannel) snapshotListener() Listener {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.listener
}

func (pc *PipeChannel) IsConnected() bool {
	select {
	case <-pc.closeCh:
		return false
	default:
		return true
	}
}

// Closed returns a channel closed once this PipeChannel has shut down,
// letting a reconnect loop wait for it without polling.
func (pc *PipeChannel) Closed() <-chan struct{} {
	return pc.closeCh
}

func (pc *PipeChannel) Send(msg envelope.Message) bool {
	select {
	case <-pc.closeCh:
		return false
	default:
	}
	select {
	case pc.sendCh <- msg:
		return true
	case <-pc.closeCh:
		return false
	}
}

// Close shuts the channel down from the local side.
func (pc *PipeChannel) Close() {
	pc.shutdown(nil)
}

func (pc *PipeChannel) shutdown(err error) {
	pc.closeOnce.Do(func() {
		pc.closeErr = err
		close(pc.closeCh)
		pc.conn.Close()
		if l := pc.snapshotListener(); l != nil {
			l.OnChannelClosed()
		}
	})
}

func (pc *PipeChannel) readLoop() {
	for {
		msg, err := envelope.ReadFrame(pc.conn, pc.maxBytes)
		if err != nil {
			pc.shutdown(err)
			return
		}
		if l := pc.snapshotListener(); l != nil {
			l.OnMessageReceived(msg)
		}
	}
}

func (pc *PipeChannel) writeLoop() {
	for {
		select {
		case msg := <-pc.sendCh:
			if err := envelope.WriteFrame(pc.conn, msg, pc.maxBytes); err != nil {
				pc.shutdown(err)
				return
			}
		case <-pc.closeCh:
			return
		}
	}
}

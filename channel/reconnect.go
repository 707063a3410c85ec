package channel

import (
	"context"
	"net"
	"time"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
	"github.com/jeeves-cluster-organization/hubcore/config"
)

// RunReconnectLoop implements the client side of session discovery: open
// the shared session-id publication, dial the socket it names, hand the
// resulting PipeChannel to onConnected, and wait for it to report closed
// before trying again. Any step failing sleeps cfg.ReconnectInterval and
// retries. The loop exits when ctx is cancelled.
func RunReconnectLoop(ctx context.Context, prefix, sharedName, serverName string, cfg *config.Config, logger buslog.Logger, onConnected func(*PipeChannel)) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = buslog.Noop()
	}

	for {
		if ctx.Err() != nil {
			return
		}

		sessionID, err := DiscoverSession(sharedName)
		if err != nil {
			logger.Debug("reconnect: session discovery failed", "error", err)
			if !sleepOrDone(ctx, cfg.ReconnectInterval) {
				return
			}
			continue
		}

		path := SocketPath(prefix, sessionID, serverName)
		conn, err := net.Dial("unix", path)
		if err != nil {
			logger.Debug("reconnect: dial failed", "path", path, "error", err)
			if !sleepOrDone(ctx, cfg.ReconnectInterval) {
				return
			}
			continue
		}

		pc := NewPipeChannel(conn, cfg.MaxEnvelopeBytes, logger)
		onConnected(pc)

		select {
		case <-pc.Closed():
		case <-ctx.Done():
			pc.Close()
			return
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, reporting whether it slept
// the full duration (false means the caller should stop looping).
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Command hubd runs the component bus as a standalone process: a Hub
// driven by its own goroutine (hub.HubHost), listening for component
// connections on a PipeServer, with Prometheus metrics and OpenTelemetry
// tracing wired in.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeeves-cluster-organization/hubcore/buslog"
	"github.com/jeeves-cluster-organization/hubcore/channel"
	"github.com/jeeves-cluster-organization/hubcore/config"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
	"github.com/jeeves-cluster-organization/hubcore/hub"
	"github.com/jeeves-cluster-organization/hubcore/observability"
)

func main() {
	sharedName := flag.String("shared-name", "hubcore", "name used to publish/discover this hub's session id")
	serverName := flag.String("server-name", "hubd", "socket name suffix this hub binds")
	socketPrefix := flag.String("socket-prefix", "", "directory the bound socket is created under (defaults to os.TempDir)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address the Prometheus /metrics and pprof-free health endpoint listens on")
	flag.Parse()
	if *socketPrefix == "" {
		*socketPrefix = os.TempDir()
	}

	logger := buslog.Default()
	cfg := config.DefaultConfig()

	shutdownTracer, err := observability.InitTracer("hubd", nil)
	if err != nil {
		logger.Error("failed to init tracer", "error", err.Error())
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		_ = shutdownTracer(ctx)
	}()

	h := hub.New(logger)
	h.SetQuitHandler(cancel)
	hostedHub := hub.NewHubHost(h, logger)
	hostedHub.Start(ctx)

	server, err := channel.NewPipeServer(*socketPrefix, *sharedName, *serverName, cfg.MaxEnvelopeBytes, logger)
	if err != nil {
		logger.Error("failed to bind pipe server", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("hubd listening", "session_id", server.SessionID())

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err.Error())
		}
	}()

	go func() {
		err := server.Serve(func(pc *channel.PipeChannel) {
			adapter := &connectorPeer{pc: pc}
			session := hostedHub.Attach(adapter)
			adapter.session = session
			pc.SetListener(adapter)
		})
		if err != nil {
			logger.Warn("pipe server stopped serving", "error", err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("hubd received shutdown signal")
	case <-ctx.Done():
		logger.Info("hubd stopped via HUB_SERVER_QUIT")
	}

	cancel()
	_ = server.Close()
	hostedHub.Stop()
}

// connectorPeer adapts one accepted PipeChannel into the channel.Peer /
// channel.Listener pair Hub's Connector protocol expects: inbound frames
// become session.Dispatch calls, and messages Hub addresses back to this
// connection go out over the wire via pc.Send.
type connectorPeer struct {
	pc      *channel.PipeChannel
	session channel.Session
}

func (p *connectorPeer) Deliver(msg envelope.Message) {
	p.pc.Send(msg)
}

func (p *connectorPeer) OnMessageReceived(msg envelope.Message) {
	if p.session != nil {
		p.session.Dispatch(msg)
	}
}

func (p *connectorPeer) OnChannelConnected() {}

func (p *connectorPeer) OnChannelClosed() {
	if p.session != nil {
		p.session.Close()
	}
}

func (p *connectorPeer) OnAttached() {}
func (p *connectorPeer) OnDetached() {}

// Package observability provides Prometheus metrics and OpenTelemetry
// tracing instrumentation for the component bus.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// HUB METRICS
// =============================================================================

var (
	messagesDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_messages_dispatched_total",
			Help: "Total number of envelopes Hub has routed, by message type and outcome",
		},
		[]string{"message_type", "outcome"}, // outcome: dispatched or reply, as Hub records it
	)

	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hub_dispatch_duration_seconds",
			Help:    "Time Hub spends handling one inbound envelope",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"message_type"},
	)

	componentsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_components_registered",
			Help: "Current number of components registered with Hub",
		},
	)

	inputContextsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_input_contexts_active",
			Help: "Current number of live input contexts",
		},
	)

	activeConsumerAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_active_consumer_assignments_total",
			Help: "Total number of active-consumer assignments, by message type",
		},
		[]string{"message_type"},
	)
)

// =============================================================================
// COMPONENT HOST METRICS
// =============================================================================

var (
	sendWithReplyDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "componenthost_send_with_reply_duration_seconds",
			Help:    "Time a SendWithReply call spent blocked waiting for its reply",
			Buckets: prometheus.DefBuckets,
		},
	)

	sendWithReplyTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "componenthost_send_with_reply_timeouts_total",
			Help: "Total number of SendWithReply calls that returned false on timeout or channel loss",
		},
	)

	pausedMessagesQueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "componenthost_paused_messages_queued_total",
			Help: "Total number of messages queued while a component's handling was paused",
		},
	)
)

// =============================================================================
// CHANNEL METRICS
// =============================================================================

var (
	channelConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_connections_total",
			Help: "Total number of MessageChannel connect and reconnect events",
		},
		[]string{"transport"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordDispatch records one Hub.handleInbound call's outcome and duration.
func RecordDispatch(messageType uint32, outcome string, durationSeconds float64) {
	messagesDispatchedTotal.WithLabelValues(labelForType(messageType), outcome).Inc()
	dispatchDurationSeconds.WithLabelValues(labelForType(messageType)).Observe(durationSeconds)
}

// SetComponentsRegistered reports Hub's current component count.
func SetComponentsRegistered(n int) {
	componentsRegistered.Set(float64(n))
}

// SetInputContextsActive reports Hub's current live input-context count.
func SetInputContextsActive(n int) {
	inputContextsActive.Set(float64(n))
}

// RecordActiveConsumerAssignment records one active-consumer table change.
func RecordActiveConsumerAssignment(messageType uint32) {
	activeConsumerAssignmentsTotal.WithLabelValues(labelForType(messageType)).Inc()
}

// RecordSendWithReply records one completed SendWithReply call.
func RecordSendWithReply(durationSeconds float64, timedOut bool) {
	sendWithReplyDurationSeconds.Observe(durationSeconds)
	if timedOut {
		sendWithReplyTimeoutsTotal.Inc()
	}
}

// RecordPausedMessageQueued records one message appended to a paused Host's
// pending queue.
func RecordPausedMessageQueued() {
	pausedMessagesQueuedTotal.Inc()
}

// RecordChannelConnection records a MessageChannel connect or reconnect.
func RecordChannelConnection(transport string) {
	channelConnectionsTotal.WithLabelValues(transport).Inc()
}

// labelForType renders a message type as a stable hex label rather than a
// high-cardinality decimal, since MessageType spans the full uint32 range
// including the third-party UserDefined block.
func labelForType(t uint32) string {
	return "0x" + hexUint32(t)
}

func hexUint32(v uint32) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xF]
		v >>= 4
	}
	return string(buf[i:])
}

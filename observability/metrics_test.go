package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// HUB METRICS TESTS
// =============================================================================

func TestRecordDispatch(t *testing.T) {
	tests := []struct {
		name        string
		messageType uint32
		outcome     string
		duration    float64
	}{
		{"dispatched key event", 0x0060, "dispatched", 0.001},
		{"reply", 0x0001, "reply", 0.0005},
		{"error outcome", 0x0024, "error", 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordDispatch(tt.messageType, tt.outcome, tt.duration)
			count := testutil.ToFloat64(messagesDispatchedTotal.WithLabelValues(labelForType(tt.messageType), tt.outcome))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestSetComponentsRegistered(t *testing.T) {
	SetComponentsRegistered(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(componentsRegistered))

	SetComponentsRegistered(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(componentsRegistered))
}

func TestSetInputContextsActive(t *testing.T) {
	SetInputContextsActive(5)
	assert.Equal(t, 5.0, testutil.ToFloat64(inputContextsActive))
}

func TestRecordActiveConsumerAssignment(t *testing.T) {
	RecordActiveConsumerAssignment(0x0060)
	count := testutil.ToFloat64(activeConsumerAssignmentsTotal.WithLabelValues(labelForType(0x0060)))
	assert.Greater(t, count, 0.0)
}

// =============================================================================
// COMPONENT HOST METRICS TESTS
// =============================================================================

func TestRecordSendWithReply(t *testing.T) {
	RecordSendWithReply(0.005, false)
	before := testutil.ToFloat64(sendWithReplyTimeoutsTotal)

	RecordSendWithReply(1.0, true)
	after := testutil.ToFloat64(sendWithReplyTimeoutsTotal)

	assert.Equal(t, before+1, after)
}

func TestRecordPausedMessageQueued(t *testing.T) {
	before := testutil.ToFloat64(pausedMessagesQueuedTotal)
	RecordPausedMessageQueued()
	after := testutil.ToFloat64(pausedMessagesQueuedTotal)
	assert.Equal(t, before+1, after)
}

// =============================================================================
// CHANNEL METRICS TESTS
// =============================================================================

func TestRecordChannelConnection(t *testing.T) {
	RecordChannelConnection("pipe")
	count := testutil.ToFloat64(channelConnectionsTotal.WithLabelValues("pipe"))
	assert.Greater(t, count, 0.0)
}

// =============================================================================
// LABEL HELPER TESTS
// =============================================================================

func TestLabelForType(t *testing.T) {
	assert.Equal(t, "0x0", labelForType(0))
	assert.Equal(t, "0x60", labelForType(0x60))
	assert.Equal(t, "0x10000", labelForType(0x10000))
}

func TestMetrics_Concurrent(t *testing.T) {
	const goroutines = 10
	const iterations = 50

	done := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				RecordDispatch(0x0060, "dispatched", 0.001)
				RecordActiveConsumerAssignment(0x0060)
				RecordPausedMessageQueued()
			}
			done <- true
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	count := testutil.ToFloat64(messagesDispatchedTotal.WithLabelValues(labelForType(0x0060), "dispatched"))
	assert.GreaterOrEqual(t, count, float64(goroutines*iterations))
}

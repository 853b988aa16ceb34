// Package metrics exposes the Prometheus series the central system
// publishes, registered once at package init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of live charge-point connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "centralsystem_active_connections",
		Help: "The total number of active charge-point WebSocket connections.",
	})

	// MessagesReceived counts inbound CALL frames that pass the messageId
	// check, labeled by OCPP action.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_messages_received_total",
		Help: "Total number of messages received from charge points.",
	}, []string{"action"})

	// MessagesSent counts outbound CALLRESULT and server-initiated CALL
	// frames, labeled by action; the Kafka mirror also counts delivered
	// events here under "kafka:<eventType>" labels.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_messages_sent_total",
		Help: "Total number of messages sent to charge points.",
	}, []string{"action"})

	// ValidationFailures counts rejected CALLs, labeled by CALLERROR code.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_validation_failures_total",
		Help: "Total number of CALLERROR responses sent, labeled by error code.",
	}, []string{"code"})

	// PendingRequests is the current number of outstanding server-initiated
	// requests awaiting a charge-point response.
	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "centralsystem_pending_requests",
		Help: "Current number of server-initiated requests awaiting a response.",
	})

	// PendingRequestTimeouts counts pending requests that hit their
	// deadline unanswered.
	PendingRequestTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "centralsystem_pending_request_timeouts_total",
		Help: "Total number of server-initiated requests that timed out.",
	})

	// ConnectionTakeovers counts duplicate-connection takeovers for a
	// station ID.
	ConnectionTakeovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "centralsystem_connection_takeovers_total",
		Help: "Total number of times a new connection took over from an existing one for the same station.",
	})

	// EventBusDrops counts dashboard-subscriber deltas dropped because a
	// subscriber's outbound queue was full.
	EventBusDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_eventbus_drops_total",
		Help: "Total number of dashboard events dropped due to a full subscriber queue.",
	}, []string{"topic"})

	// MessageProcessingDuration observes dispatch latency, labeled by
	// action.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "centralsystem_message_processing_duration_seconds",
		Help:    "Histogram of message processing times.",
		Buckets: prometheus.LinearBuckets(0.001, 0.005, 10),
	}, []string{"action"})
)

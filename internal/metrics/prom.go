package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "unitymcp_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	editorConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "unitymcp_editor_connected",
		Help: "Whether an editor host is connected to the bridge (1 or 0)",
	})

	bridgeSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitymcp_bridge_sessions_total",
			Help: "Bridge session lifecycle events",
		},
		[]string{"event"},
	)

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitymcp_commands_total",
			Help: "Commands issued to the editor",
		},
		[]string{"kind", "outcome"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unitymcp_command_duration_seconds",
			Help:    "Round trip time from send to reply",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	pendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "unitymcp_pending_requests",
		Help: "Requests currently waiting for a reply",
	})

	droppedReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitymcp_replies_dropped_total",
			Help: "Replies discarded because no waiter was outstanding",
		},
		[]string{"kind"},
	)

	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitymcp_protocol_errors_total",
			Help: "Frames dropped without tearing down the connection",
		},
		[]string{"reason"},
	)

	relayedLogs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitymcp_relayed_logs_total",
			Help: "Editor log records received over the bridge",
		},
		[]string{"severity"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, editorConnected, bridgeSessions, commands, commandDuration, pendingRequests, droppedReplies, protocolErrors, relayedLogs)
}

// SetServerBuildInfo sets the build info metric for the server.
func SetServerBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetEditorConnected reflects whether a bridge session is open.
func SetEditorConnected(v bool) {
	if v {
		editorConnected.Set(1)
	} else {
		editorConnected.Set(0)
	}
}

// RecordSession counts a bridge session lifecycle event such as opened,
// closed or rejected.
func RecordSession(event string) {
	bridgeSessions.WithLabelValues(event).Inc()
}

// RecordCommand counts a command round trip and its duration.
func RecordCommand(kind string, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	commands.WithLabelValues(kind, outcome).Inc()
	commandDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetPendingRequests reports the number of waiters in the correlator.
func SetPendingRequests(n int) {
	pendingRequests.Set(float64(n))
}

// RecordDroppedReply counts a reply that arrived with no waiter.
func RecordDroppedReply(kind string) {
	droppedReplies.WithLabelValues(kind).Inc()
}

// RecordProtocolError counts a malformed or unknown frame.
func RecordProtocolError(reason string) {
	protocolErrors.WithLabelValues(reason).Inc()
}

// RecordRelayedLog counts an editor log record received over the bridge.
func RecordRelayedLog(severity string) {
	relayedLogs.WithLabelValues(severity).Inc()
}

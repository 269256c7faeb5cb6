package hostlink

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/setohima/UnityMCP-VRC/internal/logx"
)

var (
	connectedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "unitymcp_host_connected",
		Help: "Whether the host link is open (1 or 0)",
	})
	connectAttemptsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "unitymcp_host_connect_attempts_total",
		Help: "Connection attempts by outcome",
	}, []string{"outcome"})
	gateFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "unitymcp_host_gate_failures_total",
		Help: "Health gate refusals by reason",
	}, []string{"reason"})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unitymcp_host_disconnects_total",
		Help: "Involuntary connection teardowns",
	})
	pingsSentCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unitymcp_host_pings_sent_total",
		Help: "Heartbeat pings sent",
	})
	livenessTimeoutsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unitymcp_host_liveness_timeouts_total",
		Help: "Connections dropped for missing pongs",
	})
	commandsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "unitymcp_host_commands_total",
		Help: "Commands received by reply kind",
	}, []string{"kind"})
	commandDurationHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "unitymcp_host_command_duration_seconds",
		Help:    "Time from request arrival to reply send",
		Buckets: prometheus.DefBuckets,
	})
	relayedLogsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unitymcp_host_relayed_logs_total",
		Help: "Log records forwarded to the server",
	})
	relayDroppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unitymcp_host_relay_dropped_total",
		Help: "Log records dropped by the relay",
	})
)

// StartMetricsServer serves Prometheus metrics from a private registry on
// addr and returns the address it is actually listening on.
func StartMetricsServer(ctx context.Context, addr string) (string, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		connectedGauge,
		connectAttemptsCounter,
		gateFailuresCounter,
		disconnectsCounter,
		pingsSentCounter,
		livenessTimeoutsCounter,
		commandsCounter,
		commandDurationHist,
		relayedLogsCounter,
		relayDroppedCounter,
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("metrics server error")
		}
	}()
	return actual, nil
}

func setConnectedGauge(v bool) {
	if v {
		connectedGauge.Set(1)
	} else {
		connectedGauge.Set(0)
	}
}

func RecordConnectAttempt(ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	connectAttemptsCounter.WithLabelValues(outcome).Inc()
}

func RecordGateFailure(reason string) {
	gateFailuresCounter.WithLabelValues(reason).Inc()
}

func RecordDisconnect() {
	disconnectsCounter.Inc()
}

func RecordPing() {
	pingsSentCounter.Inc()
}

func RecordLivenessTimeout() {
	livenessTimeoutsCounter.Inc()
}

// RecordCommand counts one inbound command by its reply kind.
func RecordCommand(kind string) {
	commandsCounter.WithLabelValues(kind).Inc()
	incCommands()
}

func ObserveCommandDuration(d time.Duration) {
	commandDurationHist.Observe(d.Seconds())
}

func RecordRelayedLog() {
	relayedLogsCounter.Inc()
}

func RecordRelayDropped() {
	relayDroppedCounter.Inc()
}

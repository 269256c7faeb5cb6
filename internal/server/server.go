// Package server assembles the tool server HTTP surface: the bridge
// websocket, the MCP mount, status, log queries and metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/setohima/UnityMCP-VRC/internal/config"
	"github.com/setohima/UnityMCP-VRC/internal/mcptools"
	"github.com/setohima/UnityMCP-VRC/internal/metrics"
	"github.com/setohima/UnityMCP-VRC/internal/serverstate"
	"github.com/setohima/UnityMCP-VRC/internal/toolserver"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// New constructs the HTTP handler for the tool server.
func New(cfg config.ServerConfig, ts *toolserver.Server, version string) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range MiddlewareChain() {
		r.Use(m)
	}

	preg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = preg
	prometheus.DefaultGatherer = preg
	metrics.Register(preg)

	start := time.Now()
	r.Get("/status", StatusHandler(ts, version, start))
	r.Get("/logs", LogsHandler(ts))

	bridgePath := cfg.BridgePath
	if bridgePath == "" {
		bridgePath = "/bridge"
	}
	r.Get(bridgePath, ts.HandleBridge)

	if cfg.MCPMode == "http" {
		r.Mount("/mcp", mcpserver.NewStreamableHTTPServer(mcptools.NewServer(ts, version)))
	}

	if cfg.MetricsAddr == "" || cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	}

	return r
}

// StatusHandler serves the health document the host gate reads before
// dialing. Anything but 200 with status "ok" keeps the host away.
func StatusHandler(ts *toolserver.Server, version string, start time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := ts.SnapshotState()
		st := wire.StatusPayload{
			Status:        serverstate.GetState(),
			Version:       version,
			UptimeSeconds: time.Since(start).Seconds(),
			Connected:     snap.Connected,
			Timestamp:     time.Now().UTC(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}

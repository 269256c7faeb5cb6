package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/setohima/UnityMCP-VRC/internal/config"
	"github.com/setohima/UnityMCP-VRC/internal/logbuf"
	"github.com/setohima/UnityMCP-VRC/internal/logx"
	"github.com/setohima/UnityMCP-VRC/internal/mcptools"
	"github.com/setohima/UnityMCP-VRC/internal/metrics"
	"github.com/setohima/UnityMCP-VRC/internal/secret"
	"github.com/setohima/UnityMCP-VRC/internal/server"
	"github.com/setohima/UnityMCP-VRC/internal/serverstate"
	"github.com/setohima/UnityMCP-VRC/internal/toolserver"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func binaryName() string {
	return filepath.Base(os.Args[0])
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "%s version=%s sha=%s date=%s\n\n", binaryName(), version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s version=%s sha=%s date=%s\n", binaryName(), version, buildSHA, buildDate)
		return
	}

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)

	metrics.SetServerBuildInfo(version, buildSHA, buildDate)

	var logs logbuf.Store
	if cfg.RedisAddr != "" {
		rs, err := logbuf.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Str("addr", secret.MaskURL(cfg.RedisAddr)).Msg("connect redis log store")
		}
		defer func() { _ = rs.Close() }()
		logs = rs
		logx.Log.Info().Str("addr", secret.MaskURL(cfg.RedisAddr)).Msg("log buffer backed by redis")
	}

	ts := toolserver.New(cfg, version, logs)
	handler := server.New(cfg, ts, version)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.Port) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			if cfg.DrainTimeout > 0 {
				logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
				go func(d time.Duration) {
					time.Sleep(d)
					if serverstate.IsDraining() {
						logx.Log.Warn().Msg("drain timeout exceeded; terminating")
						cancel()
					}
				}(cfg.DrainTimeout)
			} else {
				logx.Log.Info().Msg("draining; send SIGTERM again to terminate immediately")
			}
		}
	}()
	go func() {
		<-ctx.Done()
		ts.Close()
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
	}()
	if metricsSrv != nil {
		go func() {
			<-ctx.Done()
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}()
	}

	if cfg.MCPMode == "stdio" {
		go func() {
			if err := mcpserver.ServeStdio(mcptools.NewServer(ts, version)); err != nil {
				logx.Log.Error().Err(err).Msg("stdio server stopped")
			}
			cancel()
		}()
		logx.Log.Info().Msg("MCP serving on stdio")
	}

	serverstate.SetState("ok")
	logx.Log.Info().Int("port", cfg.Port).Str("version", version).Msg("server starting")
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}

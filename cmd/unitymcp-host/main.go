package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/setohima/UnityMCP-VRC/internal/config"
	"github.com/setohima/UnityMCP-VRC/internal/hostlink"
	"github.com/setohima/UnityMCP-VRC/internal/logx"
	"github.com/setohima/UnityMCP-VRC/internal/mainthread"
	"github.com/setohima/UnityMCP-VRC/internal/script"
	"github.com/setohima/UnityMCP-VRC/internal/world"
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
	var cfg config.HostConfig
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

	hostlink.SetBuildInfo(version, buildSHA, buildDate)

	w := world.NewWorld()
	if cfg.SceneFile != "" {
		if err := w.LoadSceneFile(cfg.SceneFile); err != nil {
			logx.Log.Fatal().Err(err).Str("path", cfg.SceneFile).Msg("load scene")
		}
		logx.Log.Info().Str("path", cfg.SceneFile).Msg("scene loaded")
	}
	if cfg.ScreenshotDir != "" {
		w.SetScreenshotDir(cfg.ScreenshotDir)
	}
	runner := script.NewRunner(w)

	disp := mainthread.NewDispatcher(64)
	disp.WaitReady = w.WaitReady

	link := hostlink.New(cfg, runner, disp)
	relay := hostlink.NewLogRelay(link)
	logx.Log = logx.Log.Hook(relay)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Info().Msg("shutting down")
		cancel()
	}()

	if cfg.StatusAddr != "" {
		addr, err := hostlink.StartStatusServer(ctx, cfg.StatusAddr)
		if err != nil {
			logx.Log.Error().Err(err).Str("addr", cfg.StatusAddr).Msg("status server failed to start")
		} else {
			logx.Log.Info().Str("addr", addr).Msg("status server listening")
		}
	}
	if cfg.MetricsAddr != "" {
		addr, err := hostlink.StartMetricsServer(ctx, cfg.MetricsAddr)
		if err != nil {
			logx.Log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed to start")
		} else {
			logx.Log.Info().Str("addr", addr).Msg("metrics listening")
		}
	}

	go disp.Run(ctx)

	logx.Log.Info().Str("server_url", cfg.ServerURL).Str("version", version).Msg("editor host starting")
	if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.Log.Error().Err(err).Msg("link stopped")
	}
	relay.Close()
}

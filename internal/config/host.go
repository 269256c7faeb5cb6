package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HostConfig holds configuration for the editor host simulator.
type HostConfig struct {
	ServerURL         string        `yaml:"server_url"`
	StatusURL         string        `yaml:"status_url"`
	SceneFile         string        `yaml:"scene"`
	ScreenshotDir     string        `yaml:"screenshot_dir"`
	StatusAddr        string        `yaml:"status_addr"`
	MetricsAddr       string        `yaml:"metrics_port"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	GateTimeout       time.Duration `yaml:"gate_timeout"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	LivenessTimeout   time.Duration `yaml:"liveness_timeout"`
	LogLevel          string        `yaml:"log_level"`
	ConfigFile        string        `yaml:"-"`
}

func (c *HostConfig) BindFlags() {
	c.ConfigFile = getEnv("CONFIG_FILE", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")

	c.ServerURL = getEnv("SERVER_URL", "ws://localhost:8080/bridge")
	c.StatusURL = getEnv("STATUS_URL", "")
	c.SceneFile = getEnv("SCENE_FILE", "")
	c.ScreenshotDir = getEnv("SCREENSHOT_DIR", "")
	c.StatusAddr = getEnv("STATUS_ADDR", "")
	mp := getEnv("METRICS_PORT", "")
	if mp != "" && !strings.Contains(mp, ":") {
		mp = ":" + mp
	}
	c.MetricsAddr = mp
	c.TickInterval = envDuration("TICK_INTERVAL", time.Second)
	c.GateTimeout = envDuration("GATE_TIMEOUT", 2*time.Second)
	c.DialTimeout = envDuration("DIAL_TIMEOUT", 5*time.Second)
	c.ReconnectInterval = envDuration("RECONNECT_INTERVAL", 5*time.Second)
	c.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL", 10*time.Second)
	c.LivenessTimeout = envDuration("LIVENESS_TIMEOUT", 20*time.Second)

	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "host config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.StringVar(&c.ServerURL, "server-url", c.ServerURL, "tool server bridge WebSocket URL")
	flag.StringVar(&c.StatusURL, "status-url", c.StatusURL, "tool server status URL; derived from --server-url when empty")
	flag.StringVar(&c.SceneFile, "scene", c.SceneFile, "YAML scene file loaded into the simulated editor at startup")
	flag.StringVar(&c.ScreenshotDir, "screenshot-dir", c.ScreenshotDir, "directory screenshots are written to when a path is requested")
	flag.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "local status HTTP listen address (enables /status)")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port (disabled when empty)")
	flag.DurationVar(&c.TickInterval, "tick-interval", c.TickInterval, "supervisor tick cadence")
	flag.DurationVar(&c.GateTimeout, "gate-timeout", c.GateTimeout, "health gate probe timeout")
	flag.DurationVar(&c.DialTimeout, "dial-timeout", c.DialTimeout, "bridge dial timeout")
	flag.DurationVar(&c.ReconnectInterval, "reconnect-interval", c.ReconnectInterval, "wait between reconnect attempts")
	flag.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "interval between pings while connected")
	flag.DurationVar(&c.LivenessTimeout, "liveness-timeout", c.LivenessTimeout, "force a disconnect when no pong arrives for this long")
}

// LoadFile populates the config from a YAML file. Fields already set
// remain unless overwritten by corresponding entries in the file.
func (c *HostConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil && d > 0 {
		return d
	}
	return def
}

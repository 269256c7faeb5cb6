package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the tool server.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	MetricsAddr    string        `yaml:"metrics_port"`
	BridgePath     string        `yaml:"bridge_path"`
	MCPMode        string        `yaml:"mcp"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RedisAddr      string        `yaml:"redis_addr"`
	MaxFrameBytes  int64         `yaml:"max_frame_bytes"`
	ReplyTimeout   time.Duration `yaml:"reply_timeout"`
	ExecTimeout    time.Duration `yaml:"exec_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// BindFlags populates the struct with defaults from environment variables
// and binds command line flags so main can call flag.Parse().
func (c *ServerConfig) BindFlags() {
	c.ConfigFile = getEnv("CONFIG_FILE", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")

	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	c.Port = port
	mp := getEnv("METRICS_PORT", "")
	if mp != "" && !strings.Contains(mp, ":") {
		mp = ":" + mp
	}
	c.MetricsAddr = mp
	c.BridgePath = getEnv("BRIDGE_PATH", "/bridge")
	c.MCPMode = getEnv("MCP_MODE", "http")
	c.AllowedOrigins = splitComma(getEnv("ALLOWED_ORIGINS", ""))
	c.RedisAddr = getEnv("REDIS_ADDR", "")
	fb, _ := strconv.ParseInt(getEnv("MAX_FRAME_BYTES", "10485760"), 10, 64)
	c.MaxFrameBytes = fb
	if d, err := time.ParseDuration(getEnv("REPLY_TIMEOUT", "30s")); err == nil {
		c.ReplyTimeout = d
	} else {
		c.ReplyTimeout = 30 * time.Second
	}
	if d, err := time.ParseDuration(getEnv("EXEC_TIMEOUT", "60s")); err == nil {
		c.ExecTimeout = d
	} else {
		c.ExecTimeout = 60 * time.Second
	}
	if d, err := time.ParseDuration(getEnv("DRAIN_TIMEOUT", "1m")); err == nil {
		c.DrainTimeout = d
	} else {
		c.DrainTimeout = time.Minute
	}

	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port; defaults to the main port")
	flag.StringVar(&c.BridgePath, "bridge-path", c.BridgePath, "path the editor host connects to")
	flag.StringVar(&c.MCPMode, "mcp", c.MCPMode, "MCP transport: http, stdio or off")
	flag.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	flag.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for the log buffer; empty keeps logs in memory")
	flag.Int64Var(&c.MaxFrameBytes, "max-frame-bytes", c.MaxFrameBytes, "maximum size of one bridge frame")
	flag.DurationVar(&c.ReplyTimeout, "reply-timeout", c.ReplyTimeout, "how long to wait for an editor reply")
	flag.DurationVar(&c.ExecTimeout, "exec-timeout", c.ExecTimeout, "reply wait for heavy operations such as executeCommand")
	flag.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight commands on shutdown")
}

// LoadFile populates the config from a YAML file. Fields already set
// remain unless overwritten by corresponding entries in the file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Package config binds configuration for both binaries from environment
// variables, command line flags and an optional YAML file. Precedence is
// flags over environment over file over defaults; main parses flags after
// loading the file so that holds.
package config

import (
	"os"
	"strings"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Package config provides runtime configuration for a packing terminal.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the knobs one terminal process needs.
type Config struct {
	// HTTPAddr is the listen address for the terminal API.
	HTTPAddr string

	// RedisAddr is the shared order ledger.
	RedisAddr string

	// Actor identifies this operator/terminal in timeline entries and the
	// activity log, e.g. "desk-1" or "handheld-4".
	Actor string

	// PackLogPath is the SQLite activity log location. Empty disables it.
	PackLogPath string

	// ServiceName labels traces and logs for this process.
	ServiceName string

	ShutdownTimeout time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durenvs(key string, defSec int) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return time.Duration(defSec) * time.Second
	}
	sec, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(defSec) * time.Second
	}
	return time.Duration(sec) * time.Second
}

// Load collects configuration from the environment with defaults suitable
// for local development.
func Load() Config {
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		Actor:           getenv("TERMINAL_ACTOR", "desk-1"),
		PackLogPath:     getenv("PACK_LOG_PATH", "./data/packlog.db"),
		ServiceName:     getenv("SERVICE_NAME", "packstation"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
	}
}

// Package config loads engine configuration from ASTRA_* environment
// variables, one typed getter per value shape.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the engine's top-level settings. All fields are
// sourced from ASTRA_* environment variables via Load.
type Config struct {
	// PipelinePath points at the JSON pipeline document consumed by
	// internal/scripthost/jsonhost.
	PipelinePath string

	// ListenMetrics is the address the Prometheus handler binds, empty
	// to disable.
	ListenMetrics string
	// ListenHealth is the address the health/readiness handler binds.
	ListenHealth string

	// Sync buffer defaults, overridable per-module by the pipeline
	// document; see internal/syncbuf's option string format.
	SyncBufferOpts string

	// T2-MI defaults.
	T2MIPLP uint32

	// DiagnosticsPath is the sqlite database path for
	// internal/diagnostics; empty disables persistence.
	DiagnosticsPath string
	// DiagnosticsRetain bounds how many events are kept.
	DiagnosticsRetain int

	// RecorderDir, if set, enables internal/recorder captures under
	// this directory.
	RecorderDir string

	// ShutdownGrace bounds how long child processes (internal/child)
	// are given after a polite signal before being force-killed.
	ShutdownGrace time.Duration

	Debug bool
}

// Load reads configuration from the environment; every field has a
// working default.
func Load() *Config {
	return &Config{
		PipelinePath:      getEnv("ASTRA_PIPELINE", "pipeline.json"),
		ListenMetrics:     getEnv("ASTRA_LISTEN_METRICS", ":9308"),
		ListenHealth:      getEnv("ASTRA_LISTEN_HEALTH", ":9309"),
		SyncBufferOpts:    getEnv("ASTRA_SYNC_OPTS", "10,5,8"),
		T2MIPLP:           getEnvUint32("ASTRA_T2MI_PLP", 0x100),
		DiagnosticsPath:   getEnv("ASTRA_DIAGNOSTICS_DB", "diagnostics.sqlite"),
		DiagnosticsRetain: getEnvInt("ASTRA_DIAGNOSTICS_RETAIN", 10000),
		RecorderDir:       getEnv("ASTRA_RECORDER_DIR", ""),
		ShutdownGrace:     getEnvDuration("ASTRA_SHUTDOWN_GRACE", 1500*time.Millisecond),
		Debug:             getEnvBool("ASTRA_DEBUG", false),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvUint32(key string, defaultVal uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return defaultVal
	}
	return uint32(n)
}

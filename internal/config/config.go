// Package config loads daemon configuration from the local YAML config file,
// with environment variables layered on top for deployment overrides.
package config

import (
	"os"
	"strconv"
)

// applyEnv overlays environment variables onto the local config. Environment
// values win over the YAML file.
func applyEnv(cfg *LocalConfig) {
	if v, ok := getEnvInt("PORT"); ok {
		cfg.Daemon.Port = v
	}
	if getEnvBool("DEBUG") {
		cfg.Daemon.LogLevel = "debug"
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("BACKEND_TOKEN"); v != "" {
		cfg.Backend.APIToken = v
	}
	if v, ok := getEnvInt("BACKEND_TIMEOUT"); ok {
		cfg.Backend.TimeoutSeconds = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.Queue.Enabled = true
		cfg.Queue.URL = v
	}
	if v := os.Getenv("HISTORY_DB_PATH"); v != "" {
		cfg.Storage.Enabled = true
		cfg.Storage.Path = v
	}
}

func getEnvInt(key string) (int, bool) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return false
}

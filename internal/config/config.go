package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env      string // "dev" | "prod"
	LogLevel string
	DBPath   string // e.g. "./data/llllogs.db"

	// Ingestion
	Format     string // log format of ingested files
	LayoutPath string // YAML layout; empty means the Apache layout
	BatchSize  int

	HTTPAddr  string
	SentryDSN string
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("LLLLOGS_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		Env:      env,
		LogLevel: getenvDefault("LLLLOGS_LOG_LEVEL", "info"),
		DBPath:   getenvDefault("LLLLOGS_DB_PATH", "./data/llllogs.db"),

		Format:     getenvDefault("LLLLOGS_FORMAT", "vhost_combined"),
		LayoutPath: strings.TrimSpace(os.Getenv("LLLLOGS_LAYOUT")),
		BatchSize:  getenvInt("LLLLOGS_BATCH_SIZE", 500),

		HTTPAddr:  getenvDefault("LLLLOGS_HTTP_ADDR", "127.0.0.1:8080"),
		SentryDSN: strings.TrimSpace(os.Getenv("SENTRY_DSN")),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

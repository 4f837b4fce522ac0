package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// ── FromEnv ──────────────────────────────────────────────────────────────────

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"LLLLOGS_ENV", "LLLLOGS_LOG_LEVEL", "LLLLOGS_DB_PATH", "LLLLOGS_FORMAT",
		"LLLLOGS_LAYOUT", "LLLLOGS_BATCH_SIZE", "LLLLOGS_HTTP_ADDR", "SENTRY_DSN",
	} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./data/llllogs.db", cfg.DBPath)
	assert.Equal(t, "vhost_combined", cfg.Format)
	assert.Empty(t, cfg.LayoutPath)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.SentryDSN)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LLLLOGS_ENV", "PROD")
	t.Setenv("LLLLOGS_DB_PATH", "/var/lib/llllogs/logs.db")
	t.Setenv("LLLLOGS_BATCH_SIZE", "50")
	t.Setenv("LLLLOGS_FORMAT", "jsonl")

	cfg := FromEnv()
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "/var/lib/llllogs/logs.db", cfg.DBPath)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "jsonl", cfg.Format)
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("LLLLOGS_ENV", "staging")
	t.Setenv("LLLLOGS_BATCH_SIZE", "-3")

	cfg := FromEnv()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 500, cfg.BatchSize)

	t.Setenv("LLLLOGS_BATCH_SIZE", "lots")
	assert.Equal(t, 500, FromEnv().BatchSize)
}

// ── NewLogger ────────────────────────────────────────────────────────────────

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug", "prod")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	l, err = NewLogger("WARN", "dev")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)

	_, err = NewLogger("loud", "dev")
	assert.Error(t, err)
}

// ── Layouts ──────────────────────────────────────────────────────────────────

const appLayoutYAML = `
table: events
dedupe: true
columns:
  - name: at
    type: time
    source: ts
  - name: msg
    type: text
kinds:
  - name: user
    source: actor.id
  - name: ip
`

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout([]byte(appLayoutYAML))
	require.NoError(t, err)

	assert.Equal(t, "events", l.Table)
	assert.True(t, l.Dedupe)
	require.Len(t, l.Columns, 2)
	assert.Equal(t, types.Column{Name: "at", Type: types.ColumnTime, Source: "ts"}, l.Columns[0])
	assert.Equal(t, []string{"user", "ip"}, l.KindNames())
	assert.Equal(t, "actor.id", l.Kinds[0].Source)
}

func TestParseLayout_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "table: t\ncolour: red\nkinds: [{name: u}]\n",
		"no kinds":     "table: t\ncolumns: [{name: a, type: text}]\n",
		"bad type":     "table: t\ncolumns: [{name: a, type: blob}]\nkinds: [{name: u}]\n",
		"clash":        "table: t\ncolumns: [{name: u, type: text}]\nkinds: [{name: u}]\n",
		"bad name":     "table: \"t; drop\"\nkinds: [{name: u}]\n",
		"reserved":     "table: t\nkinds: [{name: kind_privacy}]\n",
		"not yaml map": "- a\n- b\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLayout([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadLayout(t *testing.T) {
	l, err := LoadLayout("")
	require.NoError(t, err)
	assert.Equal(t, types.ApacheLayout(), l)

	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(appLayoutYAML), 0o600))
	l, err = LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, "events", l.Table)

	_, err = LoadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

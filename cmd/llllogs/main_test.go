package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/llllogs/internal/config"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/service"
)

var accessLog = strings.Join([]string{
	`192.0.2.1 - - [01/Feb/2024:08:00:00 +0000] "GET /a HTTP/1.1" 200 10 "-" "curl/8.4.0"`,
	`192.0.2.2 - - [01/Feb/2024:08:00:01 +0000] "GET /b?q=1 HTTP/1.1" 404 - "https://example.org/" "Mozilla/5.0"`,
	`192.0.2.1 - - [01/Feb/2024:08:00:00 +0000] "GET /a HTTP/1.1" 200 10 "-" "curl/8.4.0"`,
	`not an access log line`,
}, "\n") + "\n"

func newTestApp(t *testing.T) (*app, string) {
	t.Helper()
	dir := t.TempDir()
	a := &app{
		cfg: config.Config{
			Env:       "dev",
			LogLevel:  "error",
			DBPath:    filepath.Join(dir, "logs.db"),
			Format:    "combined",
			BatchSize: 100,
		},
		logger: logrus.New(),
	}
	path := filepath.Join(dir, "access.log")
	require.NoError(t, os.WriteFile(path, []byte(accessLog), 0o600))
	return a, path
}

func run(a *app, args ...string) (string, error) {
	var out bytes.Buffer
	c := a.cli()
	c.Writer = &out
	c.ErrWriter = io.Discard
	err := c.Run(append([]string{"llllogs"}, args...))
	return out.String(), err
}

func TestCLI_IngestAndReduce(t *testing.T) {
	a, logPath := newTestApp(t)

	out, err := run(a, "ingest", logPath)
	require.NoError(t, err)
	assert.Contains(t, out, "read 3, stored 2, duplicates 1, rejected 0, malformed lines 1")

	out, err = run(a, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "table log: 2 facts")
	assert.Regexp(t, `remote\s+identified\s+2\s+0`, out)

	_, err = run(a, "pseudonymize", "remote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err = run(a, "pseudonymize", "--yes", "remote")
	require.NoError(t, err)
	assert.Equal(t, "remote: pseudonymized\n", out)

	// Tokens still link rows after pseudonymization, so a re-ingest of the
	// same lines is all duplicates.
	out, err = run(a, "ingest", logPath)
	require.NoError(t, err)
	assert.Contains(t, out, "stored 0, duplicates 3")

	out, err = run(a, "anonymize", "--yes", "remote")
	require.NoError(t, err)
	assert.Equal(t, "remote: anonymized (2 surrogates)\n", out)

	_, err = run(a, "ingest", logPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrPrivacyReduced)

	out, err = run(a, "status")
	require.NoError(t, err)
	assert.Regexp(t, `remote\s+anonymized\s+0\s+2`, out)
	assert.Regexp(t, `agent\s+identified\s+2`, out)
}

func TestCLI_IngestNeedsFiles(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := run(a, "ingest")
	assert.Error(t, err)
}

func TestCLI_UnknownKind(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := run(a, "anonymize", "--yes", "nobody")
	assert.Error(t, err)
}

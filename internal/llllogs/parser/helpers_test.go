package parser_test

import (
	"io"
	"iter"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

func silentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// collect drains seq and fails the test on the first error.
func collect(t *testing.T, seq iter.Seq2[types.LogRecord, error]) []types.LogRecord {
	t.Helper()
	var out []types.LogRecord
	for rec, err := range seq {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

const combinedLine = `127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET /apache_pb.gif?x=1&y=2 HTTP/1.0" 200 2326 "http://www.example.com/start.html" "Mozilla/4.08 [en] (Win98; I ;Nav)"`

const vhostLine = `www.example.org:443 10.0.0.7 - - [01/Feb/2024:08:00:00 +0000] "POST /login HTTP/1.1" 302 - "-" "curl/8.4.0"`

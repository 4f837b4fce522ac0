// Package parser turns log files into LogRecord sequences. Parsers skip
// and count malformed lines; only I/O failures surface as errors.
package parser

import (
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

const (
	FormatCombined      = "combined"
	FormatVhostCombined = "vhost_combined"
	FormatJSONLines     = "jsonl"
)

// maxLine bounds a single log line.
const maxLine = 1 << 20

type Parser interface {
	// Records lazily parses r. The sequence can be consumed once.
	Records(r io.Reader, source string) iter.Seq2[types.LogRecord, error]
	// Skipped is the number of malformed lines seen so far.
	Skipped() int64
}

// New returns the parser for format. Apache formats ignore layout except
// to check it has the Apache shape; jsonl reads every layout column and
// kind from its Source key.
func New(format string, layout types.Layout, logger logrus.FieldLogger) (Parser, error) {
	switch format {
	case FormatCombined, FormatVhostCombined:
		if err := checkApacheLayout(layout); err != nil {
			return nil, err
		}
		return NewApache(format, logger), nil
	case FormatJSONLines:
		return NewJSONLines(layout, logger), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func checkApacheLayout(l types.Layout) error {
	want := types.ApacheLayout()
	for _, c := range want.Columns {
		got, ok := l.Column(c.Name)
		if !ok || got.Type != c.Type {
			return fmt.Errorf("apache formats need column %s of type %s", c.Name, c.Type)
		}
	}
	for _, k := range want.Kinds {
		if !l.HasKind(k.Name) {
			return fmt.Errorf("apache formats need identifying kind %s", k.Name)
		}
	}
	return nil
}

// Files chains the records of every path, opening each file only when the
// previous one is exhausted and closing it afterwards. "-" is stdin.
func Files(paths []string, p Parser, logger logrus.FieldLogger) iter.Seq2[types.LogRecord, error] {
	return func(yield func(types.LogRecord, error) bool) {
		for _, path := range paths {
			logger.WithField("source", path).Info("reading")

			var rc io.ReadCloser
			if path == "-" {
				rc = io.NopCloser(os.Stdin)
			} else {
				var err error
				if rc, err = Open(path); err != nil {
					yield(types.LogRecord{}, err)
					return
				}
			}

			ok := func() bool {
				defer rc.Close()
				for rec, err := range p.Records(rc, path) {
					if !yield(rec, err) || err != nil {
						return false
					}
				}
				return true
			}()
			if !ok {
				return
			}
		}
	}
}

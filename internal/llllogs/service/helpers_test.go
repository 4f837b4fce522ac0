package service_test

import (
	"errors"
	"io"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

func silentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func userLayout() types.Layout {
	return types.Layout{
		Table:   "events",
		Columns: []types.Column{{Name: "msg", Type: types.ColumnText}},
		Kinds:   []types.Kind{{Name: "user"}},
	}
}

func userRecord(line int, user any, msg string) types.LogRecord {
	return types.LogRecord{
		Source:      "test.log",
		Line:        line,
		Behavioral:  map[string]any{"msg": msg},
		Identifying: map[string]any{"user": user},
	}
}

// scenario is the three-record dataset used throughout.
func scenario() []types.LogRecord {
	return []types.LogRecord{
		userRecord(1, "a", "login"),
		userRecord(2, "b", "login"),
		userRecord(3, "a", "logout"),
	}
}

func seq(recs ...types.LogRecord) iter.Seq2[types.LogRecord, error] {
	return func(yield func(types.LogRecord, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// failingSeq yields recs and then err.
func failingSeq(err error, recs ...types.LogRecord) iter.Seq2[types.LogRecord, error] {
	return func(yield func(types.LogRecord, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
		yield(types.LogRecord{}, err)
	}
}

// constHasher maps every value to the same token.
type constHasher struct{}

func (constHasher) Hash(string, any) (string, error) { return "same-token", nil }

var errBoom = errors.New("boom")

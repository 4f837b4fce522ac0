package parser

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// composite holds a JSON object or array found where a scalar was
// expected. Neither the writer nor the hasher accepts it, so the record
// is rejected instead of silently stored as text.
type composite string

// JSONLines reads one JSON object per line. Layout columns and kinds are
// looked up by their Source key; a dotted key walks nested objects.
type JSONLines struct {
	layout  types.Layout
	logger  logrus.FieldLogger
	pool    fastjson.ParserPool
	skipped atomic.Int64
}

func NewJSONLines(layout types.Layout, logger logrus.FieldLogger) *JSONLines {
	return &JSONLines{layout: layout, logger: logger}
}

func (p *JSONLines) Skipped() int64 { return p.skipped.Load() }

func (p *JSONLines) Records(r io.Reader, source string) iter.Seq2[types.LogRecord, error] {
	return func(yield func(types.LogRecord, error) bool) {
		jp := p.pool.Get()
		defer p.pool.Put(jp)

		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLine)

		line := 0
		for sc.Scan() {
			line++
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}
			v, err := jp.Parse(text)
			if err == nil && v.Type() != fastjson.TypeObject {
				err = fmt.Errorf("want object, got %s", v.Type())
			}
			if err != nil {
				p.skipped.Add(1)
				p.logger.WithFields(logrus.Fields{"source": source, "line": line}).
					WithError(err).Debug("skipping malformed line")
				continue
			}

			rec := p.record(v)
			rec.Source = source
			rec.Line = line
			if !yield(rec, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(types.LogRecord{}, fmt.Errorf("read %s after line %d: %w", source, line, err))
		}
	}
}

// record copies every value out of v; v is reused by the next Parse.
func (p *JSONLines) record(v *fastjson.Value) types.LogRecord {
	rec := types.LogRecord{
		Behavioral:  make(map[string]any, len(p.layout.Columns)),
		Identifying: make(map[string]any, len(p.layout.Kinds)),
	}
	for _, c := range p.layout.Columns {
		rec.Behavioral[c.Name] = columnOf(c.Type, lookup(v, types.SourceKey(c.Name, c.Source)))
	}
	for _, k := range p.layout.Kinds {
		f := lookup(v, types.SourceKey(k.Name, k.Source))
		if f == nil {
			continue // missing kind: the writer rejects the record
		}
		rec.Identifying[k.Name] = identityOf(f)
	}
	return rec
}

func lookup(v *fastjson.Value, key string) *fastjson.Value {
	return v.Get(strings.Split(key, ".")...)
}

func columnOf(t types.ColumnType, f *fastjson.Value) any {
	if f == nil {
		return nil
	}
	switch f.Type() {
	case fastjson.TypeNull:
		return nil
	case fastjson.TypeString:
		s := string(f.GetStringBytes())
		if t == types.ColumnTime {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return ts
			}
		}
		return s
	case fastjson.TypeNumber:
		if t == types.ColumnText {
			return string(f.MarshalTo(nil))
		}
		fl := f.GetFloat64()
		if t != types.ColumnReal && fl == math.Trunc(fl) && math.Abs(fl) < 1<<53 {
			return int64(fl)
		}
		return fl
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return composite(f.MarshalTo(nil))
	}
}

func identityOf(f *fastjson.Value) any {
	switch f.Type() {
	case fastjson.TypeNull:
		return nil
	case fastjson.TypeString:
		return string(f.GetStringBytes())
	case fastjson.TypeNumber, fastjson.TypeTrue, fastjson.TypeFalse:
		return string(f.MarshalTo(nil))
	default:
		return composite(f.MarshalTo(nil))
	}
}

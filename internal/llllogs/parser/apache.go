package parser

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// quoted matches an Apache-escaped quoted field without the quotes.
const quoted = `"((?:[^"\\]|\\.)*)"`

// combinedTail is %h %l %u %t "%r" %>s %b "%{Referer}i" "%{User-Agent}i".
const combinedTail = `(\S+) \S+ \S+ \[([^\]]+)\] ` + quoted + ` (\d{3}) (\S+) ` + quoted + ` ` + quoted

var (
	combinedRe      = regexp.MustCompile(`^` + combinedTail)
	vhostCombinedRe = regexp.MustCompile(`^([^\s:]+):(\d+) ` + combinedTail)
)

const apacheTime = "02/Jan/2006:15:04:05 -0700"

// Apache parses the combined and vhost_combined access log formats.
type Apache struct {
	format  string
	re      *regexp.Regexp
	logger  logrus.FieldLogger
	skipped atomic.Int64
}

func NewApache(format string, logger logrus.FieldLogger) *Apache {
	re := combinedRe
	if format == FormatVhostCombined {
		re = vhostCombinedRe
	}
	return &Apache{format: format, re: re, logger: logger}
}

func (p *Apache) Skipped() int64 { return p.skipped.Load() }

func (p *Apache) Records(r io.Reader, source string) iter.Seq2[types.LogRecord, error] {
	return func(yield func(types.LogRecord, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLine)

		line := 0
		for sc.Scan() {
			line++
			text := strings.TrimRight(sc.Text(), "\r")
			if strings.TrimSpace(text) == "" {
				continue
			}
			rec, err := p.parseLine(text)
			if err != nil {
				p.skipped.Add(1)
				p.logger.WithFields(logrus.Fields{"source": source, "line": line}).
					WithError(err).Debug("skipping malformed line")
				continue
			}
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

func (p *Apache) parseLine(text string) (types.LogRecord, error) {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return types.LogRecord{}, fmt.Errorf("not a %s line", p.format)
	}

	var vhost, port any
	if p.format == FormatVhostCombined {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return types.LogRecord{}, fmt.Errorf("bad port: %w", err)
		}
		vhost, port = m[1], n
		m = m[2:]
	}
	// m[1..8]: remote, time, request, status, bytes, referer, agent
	remote, stamp, request, status, size, referer, agent := m[1], m[2], unescape(m[3]), m[4], m[5], m[6], m[7]

	t, err := time.Parse(apacheTime, stamp)
	if err != nil {
		return types.LogRecord{}, fmt.Errorf("bad time: %w", err)
	}

	method, target, proto, ok := splitRequest(request)
	if !ok {
		return types.LogRecord{}, fmt.Errorf("bad request line")
	}
	path, params, _ := strings.Cut(target, "?")

	code, err := strconv.Atoi(status)
	if err != nil {
		return types.LogRecord{}, fmt.Errorf("bad status: %w", err)
	}

	var bytes any
	if size != "-" {
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return types.LogRecord{}, fmt.Errorf("bad size: %w", err)
		}
		bytes = n
	}

	return types.LogRecord{
		Behavioral: map[string]any{
			"vhost":   vhost,
			"port":    port,
			"time_ms": t,
			"method":  method,
			"path":    path,
			"params":  params,
			"http":    proto,
			"status":  code,
			"bytes":   bytes,
		},
		Identifying: map[string]any{
			"remote":  remote,
			"referer": header(referer),
			"agent":   header(agent),
		},
	}, nil
}

// splitRequest splits "GET /path?q HTTP/1.1".
func splitRequest(r string) (method, target, proto string, ok bool) {
	parts := strings.Split(r, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// header maps Apache's "-" placeholder for an absent header to "".
func header(v string) string {
	v = unescape(v)
	if v == "-" {
		return ""
	}
	return v
}

// unescape reverses Apache's \" \\ and \xhh escaping in quoted fields.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch n := s[i+1]; n {
		case '"', '\\':
			b.WriteByte(n)
			i++
		case 'n':
			b.WriteByte('\n')
			i++
		case 't':
			b.WriteByte('\t')
			i++
		case 'x':
			if i+3 < len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
					b.WriteByte(byte(v))
					i += 3
					continue
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

package types

import (
	"fmt"
	"regexp"
)

// ColumnType is the declared type of a behavioral column.
type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnInteger ColumnType = "integer"
	ColumnReal    ColumnType = "real"
	ColumnTime    ColumnType = "time" // stored as INTEGER unix milliseconds
)

// SQLType is the type the column is declared with in SQLite.
func (t ColumnType) SQLType() string {
	switch t {
	case ColumnText:
		return "TEXT"
	case ColumnInteger, ColumnTime:
		return "INTEGER"
	case ColumnReal:
		return "REAL"
	default:
		return ""
	}
}

type Column struct {
	Name   string     `yaml:"name"`
	Type   ColumnType `yaml:"type"`
	Source string     `yaml:"source,omitempty"` // key in structured input; defaults to Name
}

// Kind is an identifying attribute. Each kind gets its own identity table
// named after it and one column of the same name in the fact table.
type Kind struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source,omitempty"`
}

// Layout describes the fact table and the identifying kinds around it.
type Layout struct {
	Table   string   `yaml:"table"`
	Dedupe  bool     `yaml:"dedupe"`
	Columns []Column `yaml:"columns"`
	Kinds   []Kind   `yaml:"kinds"`
}

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reserved names used by the bookkeeping migrations.
var reserved = map[string]bool{
	"schema_migrations": true,
	"kind_privacy":      true,
	"ingest_runs":       true,
}

// Validate checks names and types. Table, column and kind names must be
// distinct because kinds become both table and column names.
func (l Layout) Validate() error {
	if !identRe.MatchString(l.Table) {
		return fmt.Errorf("layout: bad table name %q", l.Table)
	}
	if reserved[l.Table] {
		return fmt.Errorf("layout: table name %q is reserved", l.Table)
	}
	if len(l.Kinds) == 0 {
		return fmt.Errorf("layout: at least one identifying kind is required")
	}

	seen := map[string]string{l.Table: "table"}
	for _, c := range l.Columns {
		if !identRe.MatchString(c.Name) {
			return fmt.Errorf("layout: bad column name %q", c.Name)
		}
		if c.Type.SQLType() == "" {
			return fmt.Errorf("layout: column %s: unknown type %q", c.Name, c.Type)
		}
		if prev, ok := seen[c.Name]; ok {
			return fmt.Errorf("layout: column %s clashes with %s of the same name", c.Name, prev)
		}
		seen[c.Name] = "column"
	}
	for _, k := range l.Kinds {
		if !identRe.MatchString(k.Name) {
			return fmt.Errorf("layout: bad kind name %q", k.Name)
		}
		if reserved[k.Name] {
			return fmt.Errorf("layout: kind name %q is reserved", k.Name)
		}
		if prev, ok := seen[k.Name]; ok {
			return fmt.Errorf("layout: kind %s clashes with %s of the same name", k.Name, prev)
		}
		seen[k.Name] = "kind"
	}
	return nil
}

// Column returns the column named name.
func (l Layout) Column(name string) (Column, bool) {
	for _, c := range l.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasKind reports whether kind is one of the layout's identifying kinds.
func (l Layout) HasKind(kind string) bool {
	for _, k := range l.Kinds {
		if k.Name == kind {
			return true
		}
	}
	return false
}

// KindNames returns the kind names in layout order.
func (l Layout) KindNames() []string {
	out := make([]string, len(l.Kinds))
	for i, k := range l.Kinds {
		out[i] = k.Name
	}
	return out
}

// SourceKey returns the structured-input key for a column or kind.
func SourceKey(name, source string) string {
	if source != "" {
		return source
	}
	return name
}

// ApacheLayout is the layout for Apache combined / vhost_combined access
// logs. The client address, referer and user agent are identifying.
func ApacheLayout() Layout {
	return Layout{
		Table:  "log",
		Dedupe: true,
		Columns: []Column{
			{Name: "vhost", Type: ColumnText},
			{Name: "port", Type: ColumnInteger},
			{Name: "time_ms", Type: ColumnTime},
			{Name: "method", Type: ColumnText},
			{Name: "path", Type: ColumnText},
			{Name: "params", Type: ColumnText},
			{Name: "http", Type: ColumnText},
			{Name: "status", Type: ColumnInteger},
			{Name: "bytes", Type: ColumnInteger},
		},
		Kinds: []Kind{
			{Name: "remote"},
			{Name: "referer"},
			{Name: "agent"},
		},
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/llllogs/internal/db"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

type SchemaStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	layout types.Layout
}

func NewSchemaStore(db *sql.DB, writer *dbpkg.Worker, layout types.Layout) *SchemaStore {
	return &SchemaStore{db: db, writer: writer, layout: layout}
}

// EnsureSchema creates whatever is missing and checks whatever exists.
// Identity tables are only created for kinds that are still identified, so
// a pseudonymized kind never gets its mapping back.
func (s *SchemaStore) EnsureSchema(ctx context.Context) error {
	layout := s.layout
	if err := layout.Validate(); err != nil {
		return err
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, k := range layout.Kinds {
			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO kind_privacy(kind, state, updated_at_ms) VALUES (?, ?, ?);
`, k.Name, string(types.KindIdentified), nowMs); err != nil {
				return fmt.Errorf("EnsureSchema kind_privacy %s: %w", k.Name, err)
			}
		}

		states, err := kindStates(ctx, tx)
		if err != nil {
			return err
		}

		if err := ensureTable(ctx, tx, layout.Table, factColumns(layout), createFactSQL(layout)); err != nil {
			return err
		}

		for _, k := range layout.Kinds {
			state := states[k.Name]
			if state.HasIdentities() || state.InProgress() {
				// An interrupted pseudonymization may or may not have dropped
				// the table; check it if it is there but never recreate it.
				create := createIdentitySQL(k.Name)
				if state.InProgress() {
					create = nil
				}
				if err := ensureTable(ctx, tx, k.Name, identityColumns(), create); err != nil {
					return err
				}
				continue
			}

			ok, err := tableExists(ctx, tx, k.Name)
			if err != nil {
				return err
			}
			if ok {
				return &store.SchemaMismatchError{
					Table:    k.Name,
					Problems: []string{fmt.Sprintf("identity table present for %s kind", state)},
				}
			}
		}
		return nil
	})
}

// ensureTable creates the table with create when it is missing (and create
// is non-nil) and otherwise compares its columns with want.
func ensureTable(ctx context.Context, tx *sql.Tx, table string, want []tableColumn, create []string) error {
	ok, err := tableExists(ctx, tx, table)
	if err != nil {
		return err
	}
	if !ok {
		for _, stmt := range create {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", table, err)
			}
		}
		return nil
	}

	have, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	if problems := diffColumns(want, have); len(problems) > 0 {
		return &store.SchemaMismatchError{Table: table, Problems: problems}
	}
	return nil
}

func diffColumns(want, have []tableColumn) []string {
	var problems []string
	byName := make(map[string]tableColumn, len(have))
	for _, c := range have {
		byName[c.name] = c
	}
	for _, w := range want {
		h, ok := byName[w.name]
		if !ok {
			problems = append(problems, "missing column "+w.name)
			continue
		}
		delete(byName, w.name)
		if !strings.EqualFold(h.typ, w.typ) {
			problems = append(problems, fmt.Sprintf("column %s declared %q, want %q", w.name, h.typ, w.typ))
		}
		if h.pk != w.pk {
			problems = append(problems, fmt.Sprintf("column %s primary key mismatch", w.name))
		}
	}
	for _, h := range have {
		if _, extra := byName[h.name]; extra {
			problems = append(problems, "unexpected column "+h.name)
		}
	}
	return problems
}

// factColumns: behavioral columns with their declared types, then one
// untyped column per kind. Untyped columns have no affinity, so a column
// can hold text tokens before anonymization and integer surrogates after.
func factColumns(l types.Layout) []tableColumn {
	out := make([]tableColumn, 0, len(l.Columns)+len(l.Kinds))
	for _, c := range l.Columns {
		out = append(out, tableColumn{name: c.Name, typ: c.Type.SQLType()})
	}
	for _, k := range l.Kinds {
		out = append(out, tableColumn{name: k.Name})
	}
	return out
}

func identityColumns() []tableColumn {
	return []tableColumn{
		{name: "hash_token", typ: "TEXT", pk: true},
		{name: "raw_value", typ: "TEXT"},
	}
}

func createFactSQL(l types.Layout) []string {
	var defs, keys []string
	for _, c := range factColumns(l) {
		defs = append(defs, strings.TrimSpace("  "+quoteIdent(c.name)+" "+c.typ))
		// NULLs are distinct under UNIQUE; x'' is a value no column stores.
		keys = append(keys, "IFNULL("+quoteIdent(c.name)+", x'')")
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", quoteIdent(l.Table), strings.Join(defs, ",\n  ")),
	}
	if l.Dedupe {
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(%s);",
			quoteIdent("uniq_"+l.Table), quoteIdent(l.Table), strings.Join(keys, ", ")))
	}
	for _, k := range l.Kinds {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s);",
			quoteIdent("idx_"+l.Table+"_"+k.Name), quoteIdent(l.Table), quoteIdent(k.Name)))
	}
	return stmts
}

func createIdentitySQL(kind string) []string {
	return []string{fmt.Sprintf(`
CREATE TABLE %s (
  hash_token TEXT PRIMARY KEY,
  raw_value  TEXT NOT NULL
);`, quoteIdent(kind))}
}

func (s *SchemaStore) KindStates(ctx context.Context) (map[string]types.KindState, error) {
	return kindStates(ctx, s.db)
}

func kindStates(ctx context.Context, q querier) (map[string]types.KindState, error) {
	rows, err := q.QueryContext(ctx, `SELECT kind, state FROM kind_privacy;`)
	if err != nil {
		return nil, fmt.Errorf("KindStates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.KindState)
	for rows.Next() {
		var kind, state string
		if err := rows.Scan(&kind, &state); err != nil {
			return nil, fmt.Errorf("KindStates scan: %w", err)
		}
		out[kind] = types.KindState(state)
	}
	return out, rows.Err()
}

func (s *SchemaStore) SetKindState(ctx context.Context, kind string, state types.KindState, surrogates *int64) error {
	if !s.layout.HasKind(kind) {
		return fmt.Errorf("%w: %q", store.ErrUnknownKind, kind)
	}
	nowMs := time.Now().UTC().UnixMilli()

	var surr any
	if surrogates != nil {
		surr = *surrogates
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO kind_privacy(kind, state, surrogates, updated_at_ms) VALUES (?, ?, ?, ?)
ON CONFLICT(kind) DO UPDATE SET
  state = excluded.state,
  surrogates = COALESCE(excluded.surrogates, kind_privacy.surrogates),
  updated_at_ms = excluded.updated_at_ms;
`, kind, string(state), surr, nowMs); err != nil {
			return fmt.Errorf("SetKindState %s: %w", kind, err)
		}
		return nil
	})
}

// KindStatuses reports every layout kind in layout order.
func (s *SchemaStore) KindStatuses(ctx context.Context) ([]store.KindStatus, error) {
	out := make([]store.KindStatus, 0, len(s.layout.Kinds))
	for _, k := range s.layout.Kinds {
		st := store.KindStatus{Kind: k.Name, State: types.KindIdentified}

		var (
			state      string
			surrogates sql.NullInt64
			updatedMs  int64
		)
		err := s.db.QueryRowContext(ctx, `
SELECT state, surrogates, updated_at_ms FROM kind_privacy WHERE kind = ?;
`, k.Name).Scan(&state, &surrogates, &updatedMs)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, fmt.Errorf("KindStatuses %s: %w", k.Name, err)
		default:
			st.State = types.KindState(state)
			st.Surrogates = surrogates.Int64
			st.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		}

		n, err := countIdentities(ctx, s.db, k.Name)
		if err != nil {
			return nil, err
		}
		st.Identities = n
		out = append(out, st)
	}
	return out, nil
}

// Compact checkpoints the WAL and vacuums so pages freed by dropped or
// rewritten tables leave the database file and its WAL.
func (s *SchemaStore) Compact(ctx context.Context) error {
	return s.writer.Exec(ctx, func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
			return fmt.Errorf("Compact checkpoint: %w", err)
		}
		if _, err := db.ExecContext(ctx, `VACUUM;`); err != nil {
			return fmt.Errorf("Compact vacuum: %w", err)
		}
		return nil
	})
}

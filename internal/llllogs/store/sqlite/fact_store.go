package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	dbpkg "github.com/BrandonDHaskell/llllogs/internal/db"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

type FactStore struct {
	db        *sql.DB
	writer    *dbpkg.Worker
	layout    types.Layout
	insertSQL string
}

func NewFactStore(db *sql.DB, writer *dbpkg.Worker, layout types.Layout) *FactStore {
	return &FactStore{
		db:        db,
		writer:    writer,
		layout:    layout,
		insertSQL: buildInsert(layout),
	}
}

func buildInsert(l types.Layout) string {
	cols := make([]string, 0, len(l.Columns)+len(l.Kinds))
	for _, c := range l.Columns {
		cols = append(cols, quoteIdent(c.Name))
	}
	for _, k := range l.Kinds {
		cols = append(cols, quoteIdent(k.Name))
	}
	verb := "INSERT"
	if l.Dedupe {
		verb = "INSERT OR IGNORE"
	}
	return fmt.Sprintf("%s INTO %s(%s) VALUES (%s);",
		verb, quoteIdent(l.Table), strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
}

func (s *FactStore) args(row store.FactRow) ([]any, error) {
	if len(row.Values) != len(s.layout.Columns) {
		return nil, fmt.Errorf("fact row has %d values, layout has %d columns", len(row.Values), len(s.layout.Columns))
	}
	args := make([]any, 0, len(row.Values)+len(s.layout.Kinds))
	args = append(args, row.Values...)
	for _, k := range s.layout.Kinds {
		tok, ok := row.Tokens[k.Name]
		if !ok {
			return nil, fmt.Errorf("fact row has no %s token", k.Name)
		}
		args = append(args, tok)
	}
	return args, nil
}

// AppendEntries writes the batch in one transaction with a savepoint per
// entry. A hash collision rolls back only its own entry.
func (s *FactStore) AppendEntries(ctx context.Context, entries []store.Entry) (store.AppendResult, error) {
	var res store.AppendResult
	if len(entries) == 0 {
		return res, nil
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res = store.AppendResult{}

		stmt, err := tx.PrepareContext(ctx, s.insertSQL)
		if err != nil {
			return fmt.Errorf("AppendEntries prepare: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `SAVEPOINT entry;`); err != nil {
				return fmt.Errorf("AppendEntries savepoint: %w", err)
			}

			inserted, err := s.applyEntry(ctx, tx, stmt, e)
			if err != nil {
				if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO entry; RELEASE entry;`); rbErr != nil {
					return fmt.Errorf("AppendEntries rollback entry %d: %w", e.Ref, rbErr)
				}
				if errors.Is(err, store.ErrHashCollision) {
					res.Rejected = append(res.Rejected, store.EntryError{Ref: e.Ref, Err: err})
					continue
				}
				return err
			}

			if _, err := tx.ExecContext(ctx, `RELEASE entry;`); err != nil {
				return fmt.Errorf("AppendEntries release: %w", err)
			}
			if inserted {
				res.Appended++
			} else {
				res.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return store.AppendResult{}, err
	}
	return res, nil
}

func (s *FactStore) applyEntry(ctx context.Context, tx *sql.Tx, stmt *sql.Stmt, e store.Entry) (bool, error) {
	for _, id := range e.Identities {
		if !s.layout.HasKind(id.Kind) {
			return false, fmt.Errorf("%w: %q", store.ErrUnknownKind, id.Kind)
		}
		if err := upsertIdentity(ctx, tx, id); err != nil {
			return false, err
		}
	}

	args, err := s.args(e.Fact)
	if err != nil {
		return false, err
	}
	r, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return false, fmt.Errorf("append fact: %w", err)
	}
	n, _ := r.RowsAffected()
	return n == 1, nil
}

func (s *FactStore) CountFacts(ctx context.Context) (int64, error) {
	return countFacts(ctx, s.db, s.layout.Table)
}

func countFacts(ctx context.Context, q querier, table string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoteIdent(table)+`;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountFacts: %w", err)
	}
	return n, nil
}

func (s *FactStore) FactTokens(ctx context.Context, kind string) ([]any, error) {
	if !s.layout.HasKind(kind) {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownKind, kind)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+quoteIdent(kind)+` FROM `+quoteIdent(s.layout.Table)+` ORDER BY rowid;`)
	if err != nil {
		return nil, fmt.Errorf("FactTokens %s: %w", kind, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("FactTokens %s scan: %w", kind, err)
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AnonymizeKind numbers the distinct tokens of the kind column 1..K in
// order of first appearance, rewrites every token to its number, and drops
// the identity table, all in one transaction. Numbering continues after any
// surrogates already present so a retried run stays injective.
func (s *FactStore) AnonymizeKind(ctx context.Context, kind string) (int64, error) {
	if !s.layout.HasKind(kind) {
		return 0, fmt.Errorf("%w: %q", store.ErrUnknownKind, kind)
	}
	col := quoteIdent(kind)
	tbl := quoteIdent(s.layout.Table)

	var surrogates int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		steps := []struct{ name, sql string }{
			{"reset map", `DROP TABLE IF EXISTS temp.surrogate_map;`},
			{"create map", `CREATE TEMP TABLE surrogate_map (token TEXT PRIMARY KEY, idx INTEGER NOT NULL UNIQUE);`},
			{"number tokens", `
INSERT INTO temp.surrogate_map(token, idx)
SELECT token,
       (SELECT COALESCE(MAX(` + col + `), 0) FROM ` + tbl + ` WHERE typeof(` + col + `) = 'integer')
         + ROW_NUMBER() OVER (ORDER BY first_seen)
FROM (
  SELECT ` + col + ` AS token, MIN(rowid) AS first_seen
  FROM ` + tbl + `
  WHERE typeof(` + col + `) = 'text'
  GROUP BY ` + col + `
);`},
			{"rewrite facts", `
UPDATE ` + tbl + `
SET ` + col + ` = (SELECT m.idx FROM temp.surrogate_map m WHERE m.token = ` + tbl + `.` + col + `)
WHERE typeof(` + col + `) = 'text';`},
			{"drop map", `DROP TABLE temp.surrogate_map;`},
			{"drop identities", `DROP TABLE IF EXISTS ` + col + `;`},
		}
		for _, st := range steps {
			if _, err := tx.ExecContext(ctx, st.sql); err != nil {
				return fmt.Errorf("AnonymizeKind %s %s: %w", kind, st.name, err)
			}
		}

		var leftover int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+tbl+` WHERE typeof(`+col+`) = 'text';`,
		).Scan(&leftover); err != nil {
			return fmt.Errorf("AnonymizeKind %s verify: %w", kind, err)
		}
		if leftover != 0 {
			return fmt.Errorf("AnonymizeKind %s: %d rows still hold tokens", kind, leftover)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT `+col+`) FROM `+tbl+` WHERE typeof(`+col+`) = 'integer';`,
		).Scan(&surrogates); err != nil {
			return fmt.Errorf("AnonymizeKind %s count: %w", kind, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return surrogates, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
)

// querier is the read surface shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// quoteIdent quotes a table or column name. Names are validated by
// types.Layout before they get here.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?;
`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("tableExists %s: %w", name, err)
	}
	return n > 0, nil
}

type tableColumn struct {
	name string
	typ  string
	pk   bool
}

func tableColumns(ctx context.Context, q querier, table string) ([]tableColumn, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type, pk FROM pragma_table_info(?);`, table)
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var out []tableColumn
	for rows.Next() {
		var c tableColumn
		var pk int
		if err := rows.Scan(&c.name, &c.typ, &pk); err != nil {
			return nil, fmt.Errorf("table_info %s scan: %w", table, err)
		}
		c.pk = pk > 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// upsertIdentity inserts rec into its kind table unless the token is
// already there. An existing token with a different raw value is a
// collision.
//
// Must be called inside an existing transaction.
func upsertIdentity(ctx context.Context, tx *sql.Tx, rec store.IdentityRecord) error {
	tbl := quoteIdent(rec.Kind)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+tbl+`(hash_token, raw_value) VALUES (?, ?) ON CONFLICT(hash_token) DO NOTHING;`,
		rec.Token, rec.Raw,
	)
	if err != nil {
		return fmt.Errorf("upsert %s identity: %w", rec.Kind, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT raw_value FROM `+tbl+` WHERE hash_token = ?;`, rec.Token,
	).Scan(&existing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("upsert %s identity: token vanished after conflict", rec.Kind)
		}
		return fmt.Errorf("upsert %s identity check: %w", rec.Kind, err)
	}
	if existing != rec.Raw {
		return &store.HashCollisionError{Kind: rec.Kind, Token: rec.Token}
	}
	return nil
}

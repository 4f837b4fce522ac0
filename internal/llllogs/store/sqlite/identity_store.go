package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dbpkg "github.com/BrandonDHaskell/llllogs/internal/db"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

type IdentityStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	layout types.Layout
}

func NewIdentityStore(db *sql.DB, writer *dbpkg.Worker, layout types.Layout) *IdentityStore {
	return &IdentityStore{db: db, writer: writer, layout: layout}
}

func (s *IdentityStore) checkKind(kind string) error {
	if !s.layout.HasKind(kind) {
		return fmt.Errorf("%w: %q", store.ErrUnknownKind, kind)
	}
	return nil
}

func (s *IdentityStore) UpsertIdentity(ctx context.Context, rec store.IdentityRecord) error {
	if err := s.checkKind(rec.Kind); err != nil {
		return err
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsertIdentity(ctx, tx, rec)
	})
}

// ResolveIdentity looks a token up. found is false when the token is
// unknown or the kind has already been pseudonymized.
func (s *IdentityStore) ResolveIdentity(ctx context.Context, kind, token string) (string, bool, error) {
	if err := s.checkKind(kind); err != nil {
		return "", false, err
	}
	ok, err := tableExists(ctx, s.db, kind)
	if err != nil || !ok {
		return "", false, err
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT raw_value FROM `+quoteIdent(kind)+` WHERE hash_token = ?;`, token,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ResolveIdentity %s: %w", kind, err)
	}
	return raw, true, nil
}

// CountIdentities returns the rows in the kind's identity table; a dropped
// table counts as empty.
func (s *IdentityStore) CountIdentities(ctx context.Context, kind string) (int64, error) {
	if err := s.checkKind(kind); err != nil {
		return 0, err
	}
	return countIdentities(ctx, s.db, kind)
}

func countIdentities(ctx context.Context, q querier, kind string) (int64, error) {
	ok, err := tableExists(ctx, q, kind)
	if err != nil || !ok {
		return 0, err
	}
	var n int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoteIdent(kind)+`;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountIdentities %s: %w", kind, err)
	}
	return n, nil
}

// DropIdentities drops the kind's identity table. Fact rows keep their
// tokens; with the table gone nothing maps them back to raw values. This
// is pseudonymization and cannot be undone.
func (s *IdentityStore) DropIdentities(ctx context.Context, kind string) error {
	if err := s.checkKind(kind); err != nil {
		return err
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(kind)+`;`); err != nil {
			return fmt.Errorf("DropIdentities %s: %w", kind, err)
		}
		return nil
	})
}

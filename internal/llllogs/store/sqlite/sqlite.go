// Package sqlite is the SQLite-backed dataset: one fact table, one identity
// table per identifying kind, and the bookkeeping tables from internal/db.
package sqlite

import (
	"database/sql"

	dbpkg "github.com/BrandonDHaskell/llllogs/internal/db"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// Store bundles the per-concern stores over one connection and writer.
// The caller owns db and writer and closes them.
type Store struct {
	*IdentityStore
	*FactStore
	*SchemaStore
	*RunStore
}

func New(db *sql.DB, writer *dbpkg.Worker, layout types.Layout) (*Store, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		IdentityStore: NewIdentityStore(db, writer, layout),
		FactStore:     NewFactStore(db, writer, layout),
		SchemaStore:   NewSchemaStore(db, writer, layout),
		RunStore:      NewRunStore(db, writer),
	}, nil
}

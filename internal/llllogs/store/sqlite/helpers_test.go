package sqlite_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/llllogs/internal/db"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/hasher"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	sqlitestore "github.com/BrandonDHaskell/llllogs/internal/llllogs/store/sqlite"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and migrations as production. Closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each test gets its own shared-cache in-memory database; the shared
	// cache keeps it alive while the pool holds a connection.
	name := "test_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := sql.Open("sqlite", db.DSN(name, "mode=memory", "cache=shared"))
	require.NoError(t, err)

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	require.NoError(t, conn.Ping())
	_, err = db.Migrate(context.Background(), conn)
	require.NoError(t, err)

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed when the test
// finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}

// userLayout is the small layout used throughout: a message column and a
// single "user" kind.
func userLayout() types.Layout {
	return types.Layout{
		Table:   "events",
		Columns: []types.Column{{Name: "msg", Type: types.ColumnText}},
		Kinds:   []types.Kind{{Name: "user"}},
	}
}

// newTestStore opens a fresh database and ensures the layout's schema.
func newTestStore(t *testing.T, layout types.Layout) (*sqlitestore.Store, *sql.DB) {
	t.Helper()

	conn := openTestDB(t)
	st, err := sqlitestore.New(conn, newTestWriter(t, conn), layout)
	require.NoError(t, err)
	require.NoError(t, st.EnsureSchema(context.Background()))
	return st, conn
}

func token(t *testing.T, v string) string {
	t.Helper()
	tok, err := hasher.SHA3{}.Hash("user", v)
	require.NoError(t, err)
	return tok
}

// userEntry builds the entry the writer would produce for {user, msg}.
func userEntry(t *testing.T, ref int, user, msg string) store.Entry {
	t.Helper()
	tok := token(t, user)
	return store.Entry{
		Ref:        ref,
		Identities: []store.IdentityRecord{{Kind: "user", Token: tok, Raw: user}},
		Fact: store.FactRow{
			Values: []any{msg},
			Tokens: map[string]string{"user": tok},
		},
	}
}

func tableExists(t *testing.T, conn *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

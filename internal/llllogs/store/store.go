package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// IdentityRecord maps a hash token back to the raw value it was made from.
// The identity table of its kind is the only place that link exists.
type IdentityRecord struct {
	Kind  string
	Token string
	Raw   string
}

// FactRow is one behavioral record. Values are in layout column order;
// Tokens maps every kind to the hash token of the record's value.
type FactRow struct {
	Values []any
	Tokens map[string]string
}

// Entry is everything one log record writes: its identities (only for
// kinds that are still identified) and its fact row. An entry is applied
// atomically.
type Entry struct {
	Ref        int // caller-chosen reference echoed back in EntryError
	Identities []IdentityRecord
	Fact       FactRow
}

// EntryError is a per-entry failure; the rest of the batch is unaffected.
type EntryError struct {
	Ref int
	Err error
}

// AppendResult summarises an AppendEntries call.
type AppendResult struct {
	Appended   int
	Duplicates int
	Rejected   []EntryError
}

// KindStatus is the privacy state of one identifying kind.
type KindStatus struct {
	Kind       string
	State      types.KindState
	Identities int64
	Surrogates int64
	UpdatedAt  time.Time
}

// IdentityStore holds one token -> raw value table per identifying kind.
type IdentityStore interface {
	UpsertIdentity(ctx context.Context, rec IdentityRecord) error
	ResolveIdentity(ctx context.Context, kind, token string) (string, bool, error)
	CountIdentities(ctx context.Context, kind string) (int64, error)
	// DropIdentities irreversibly removes the kind's identity table.
	DropIdentities(ctx context.Context, kind string) error
}

// FactStore is the append-only table of behavioral records.
type FactStore interface {
	// AppendEntries writes a batch. A returned error is fatal and nothing in
	// the batch is kept; per-entry failures come back in AppendResult.
	AppendEntries(ctx context.Context, entries []Entry) (AppendResult, error)
	CountFacts(ctx context.Context) (int64, error)
	// FactTokens returns the kind column of every fact row in insertion
	// order: hash tokens (string) or surrogate indices (int64).
	FactTokens(ctx context.Context, kind string) ([]any, error)
	// AnonymizeKind replaces every token of kind with a surrogate index and
	// drops the kind's identity table. Irreversible.
	AnonymizeKind(ctx context.Context, kind string) (int64, error)
}

// SchemaStore creates and checks tables and keeps per-kind privacy state.
type SchemaStore interface {
	// EnsureSchema creates missing tables and checks existing ones against
	// the store's layout.
	EnsureSchema(ctx context.Context) error
	KindStates(ctx context.Context) (map[string]types.KindState, error)
	SetKindState(ctx context.Context, kind string, state types.KindState, surrogates *int64) error
	KindStatuses(ctx context.Context) ([]KindStatus, error)
	// Compact reclaims space freed by dropped tables.
	Compact(ctx context.Context) error
}

// IngestRun is the bookkeeping row for one ingestion run.
type IngestRun struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	State      types.RunState
	Read       int64
	Accepted   int64
	Duplicates int64
	Rejected   int64
	Error      string
}

type RunStore interface {
	StartRun(ctx context.Context, run IngestRun) error
	FinishRun(ctx context.Context, run IngestRun) error
	RecentRuns(ctx context.Context, limit int) ([]IngestRun, error)
}

// Store is the full set of stores one dataset is made of.
type Store interface {
	IdentityStore
	FactStore
	SchemaStore
	RunStore
}

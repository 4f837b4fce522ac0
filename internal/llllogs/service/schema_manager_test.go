package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/service"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store/memory"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// brokenDrop fails the identity drop, as a disk error mid-pseudonymize would.
type brokenDrop struct{ *memory.Store }

func (brokenDrop) DropIdentities(context.Context, string) error { return errBoom }

// brokenAnonymize fails the fact rewrite.
type brokenAnonymize struct{ *memory.Store }

func (brokenAnonymize) AnonymizeKind(context.Context, string) (int64, error) { return 0, errBoom }

func ingested(t *testing.T, st store.Store) *service.SchemaManager {
	t.Helper()
	sm := service.NewSchemaManager(st, userLayout(), silentLogger())
	w := service.NewWriter(st, sm, service.WriterConfig{}, silentLogger())
	_, err := w.Ingest(context.Background(), seq(scenario()...))
	require.NoError(t, err)
	return sm
}

// ── Pseudonymize ─────────────────────────────────────────────────────────────

func TestSchemaManager_Pseudonymize(t *testing.T) {
	st := memory.New(userLayout())
	sm := ingested(t, st)
	ctx := context.Background()

	before, err := st.FactTokens(ctx, "user")
	require.NoError(t, err)

	state, err := sm.Pseudonymize(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, types.KindPseudonymized, state)

	ids, err := st.CountIdentities(ctx, "user")
	require.NoError(t, err)
	assert.Zero(t, ids)

	after, err := st.FactTokens(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, after[0], after[2])

	// Second call is a no-op.
	state, err = sm.Pseudonymize(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, types.KindPseudonymized, state)
}

func TestSchemaManager_UnknownKind(t *testing.T) {
	sm := service.NewSchemaManager(memory.New(userLayout()), userLayout(), silentLogger())
	ctx := context.Background()

	_, err := sm.Pseudonymize(ctx, "events")
	assert.ErrorIs(t, err, store.ErrUnknownKind)

	_, err = sm.Anonymize(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrUnknownKind)
}

func TestSchemaManager_Pseudonymize_FailureIsDetectable(t *testing.T) {
	mem := memory.New(userLayout())
	ingested(t, mem)
	st := brokenDrop{mem}
	sm := service.NewSchemaManager(st, userLayout(), silentLogger())
	ctx := context.Background()

	state, err := sm.Pseudonymize(ctx, "user")
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, types.KindPseudonymizing, state)

	states, err := st.KindStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.KindPseudonymizing, states["user"])

	// Ingestion refuses to run on a half-reduced kind.
	w := service.NewWriter(st, sm, service.WriterConfig{}, silentLogger())
	_, err = w.Ingest(ctx, seq(userRecord(9, "q", "x")))
	assert.ErrorIs(t, err, service.ErrPrivacyReduced)

	// Retrying with a working store completes it.
	state, err = service.NewSchemaManager(mem, userLayout(), silentLogger()).Pseudonymize(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, types.KindPseudonymized, state)
}

// ── Anonymize ────────────────────────────────────────────────────────────────

func TestSchemaManager_Anonymize(t *testing.T) {
	st := memory.New(userLayout())
	sm := ingested(t, st)
	ctx := context.Background()

	ks, err := sm.Anonymize(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, types.KindAnonymized, ks.State)
	assert.EqualValues(t, 2, ks.Surrogates)
	assert.Zero(t, ks.Identities)

	vals, err := st.FactTokens(ctx, "user")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, vals[0], vals[2])
	assert.NotEqual(t, vals[0], vals[1])
	for _, v := range vals {
		assert.IsType(t, int64(0), v)
	}

	// Idempotent.
	again, err := sm.Anonymize(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, types.KindAnonymized, again.State)

	vals2, err := st.FactTokens(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, vals, vals2)

	// Pseudonymizing an anonymized kind has nothing left to do.
	state, err := sm.Pseudonymize(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, types.KindAnonymized, state)
}

func TestSchemaManager_Anonymize_AfterPseudonymize(t *testing.T) {
	st := memory.New(userLayout())
	sm := ingested(t, st)
	ctx := context.Background()

	_, err := sm.Pseudonymize(ctx, "user")
	require.NoError(t, err)

	ks, err := sm.Anonymize(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, types.KindAnonymized, ks.State)

	vals, err := st.FactTokens(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(1)}, vals)
}

func TestSchemaManager_Anonymize_FailureIsDetectable(t *testing.T) {
	mem := memory.New(userLayout())
	ingested(t, mem)
	sm := service.NewSchemaManager(brokenAnonymize{mem}, userLayout(), silentLogger())
	ctx := context.Background()

	ks, err := sm.Anonymize(ctx, "user")
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, types.KindAnonymizing, ks.State)

	states, err := mem.KindStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.KindAnonymizing, states["user"])

	// Pseudonymize will not paper over an unfinished anonymization.
	_, err = sm.Pseudonymize(ctx, "user")
	assert.ErrorIs(t, err, service.ErrPrivacyReduced)
}

// ── Status ───────────────────────────────────────────────────────────────────

func TestSchemaManager_Status(t *testing.T) {
	st := memory.New(userLayout())
	sm := ingested(t, st)

	status, err := sm.Status(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "events", status.Table)
	assert.EqualValues(t, 3, status.Facts)
	require.Len(t, status.Kinds, 1)
	assert.Equal(t, types.KindIdentified, status.Kinds[0].State)
	assert.EqualValues(t, 2, status.Kinds[0].Identities)
	require.Len(t, status.Runs, 1)
}

func TestSchemaManager_Status_ZeroRuns(t *testing.T) {
	st := memory.New(userLayout())
	sm := ingested(t, st)

	status, err := sm.Status(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, status.Runs)
	assert.EqualValues(t, 3, status.Facts)
}

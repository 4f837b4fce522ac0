package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

func TestRunStore_StartFinishRecent(t *testing.T) {
	st, _ := newTestStore(t, userLayout())
	ctx := context.Background()

	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.StartRun(ctx, store.IngestRun{RunID: "r1", StartedAt: base, State: types.RunIngesting}))
	require.NoError(t, st.StartRun(ctx, store.IngestRun{RunID: "r2", StartedAt: base.Add(time.Minute), State: types.RunIngesting}))

	require.NoError(t, st.FinishRun(ctx, store.IngestRun{
		RunID:      "r1",
		FinishedAt: base.Add(30 * time.Second),
		State:      types.RunIdle,
		Read:       10,
		Accepted:   8,
		Duplicates: 1,
		Rejected:   1,
	}))
	require.NoError(t, st.FinishRun(ctx, store.IngestRun{
		RunID: "r2",
		State: types.RunFailed,
		Error: "store unreachable",
	}))

	runs, err := st.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r2", runs[0].RunID)
	assert.Equal(t, types.RunFailed, runs[0].State)
	assert.Equal(t, "store unreachable", runs[0].Error)

	assert.Equal(t, "r1", runs[1].RunID)
	assert.Equal(t, types.RunIdle, runs[1].State)
	assert.EqualValues(t, 8, runs[1].Accepted)
	assert.EqualValues(t, 1, runs[1].Rejected)
	assert.Equal(t, base.Add(30*time.Second), runs[1].FinishedAt)
	assert.Empty(t, runs[1].Error)
}

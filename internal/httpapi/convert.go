package httpapi

import (
	"time"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/service"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
)

// Response bodies are built as plain maps so the same value can be encoded
// as JSON or converted with structpb. Lists must be []any for structpb.

// ── Status ───────────────────────────────────────────────────────────────────

func statusBody(st service.Status) map[string]any {
	kinds := make([]any, 0, len(st.Kinds))
	for _, k := range st.Kinds {
		kinds = append(kinds, kindBody(k))
	}
	runs := make([]any, 0, len(st.Runs))
	for _, r := range st.Runs {
		runs = append(runs, runBody(r))
	}
	return map[string]any{
		"table": st.Table,
		"facts": st.Facts,
		"kinds": kinds,
		"runs":  runs,
	}
}

// ── Kinds ────────────────────────────────────────────────────────────────────

func kindBody(k store.KindStatus) map[string]any {
	return map[string]any{
		"kind":       k.Kind,
		"state":      string(k.State),
		"identities": k.Identities,
		"surrogates": k.Surrogates,
		"updated_at": timestamp(k.UpdatedAt),
	}
}

// ── Runs ─────────────────────────────────────────────────────────────────────

func runBody(r store.IngestRun) map[string]any {
	m := map[string]any{
		"run_id":      r.RunID,
		"state":       string(r.State),
		"started_at":  timestamp(r.StartedAt),
		"finished_at": timestamp(r.FinishedAt),
		"read":        r.Read,
		"accepted":    r.Accepted,
		"duplicates":  r.Duplicates,
		"rejected":    r.Rejected,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

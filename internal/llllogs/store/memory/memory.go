// Package memory is an in-memory store.Store for tests and dry runs. It
// follows the SQLite store's semantics, including per-entry atomicity.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

type fact struct {
	values []any
	kinds  map[string]any // token string or surrogate int64
}

type kindState struct {
	state      types.KindState
	surrogates int64
	updatedAt  time.Time
}

type Store struct {
	mu sync.Mutex

	layout     types.Layout
	identities map[string]map[string]string // kind -> token -> raw; a missing kind is a dropped table
	facts      []fact
	states     map[string]kindState
	runs       []store.IngestRun

	// FailAppend, when set, makes AppendEntries fail as a broken store would.
	FailAppend error
}

func New(layout types.Layout) *Store {
	return &Store{
		layout:     layout,
		identities: make(map[string]map[string]string),
		states:     make(map[string]kindState),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) checkKind(kind string) error {
	if !s.layout.HasKind(kind) {
		return fmt.Errorf("%w: %q", store.ErrUnknownKind, kind)
	}
	return nil
}

// ── Schema ───────────────────────────────────────────────────────────────────

func (s *Store) EnsureSchema(_ context.Context) error {
	if err := s.layout.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, k := range s.layout.Kinds {
		st, ok := s.states[k.Name]
		if !ok {
			st = kindState{state: types.KindIdentified, updatedAt: now}
			s.states[k.Name] = st
		}
		_, present := s.identities[k.Name]
		switch {
		case st.state.HasIdentities() && !present:
			s.identities[k.Name] = make(map[string]string)
		case !st.state.HasIdentities() && !st.state.InProgress() && present:
			return &store.SchemaMismatchError{
				Table:    k.Name,
				Problems: []string{fmt.Sprintf("identity table present for %s kind", st.state)},
			}
		}
	}
	return nil
}

func (s *Store) KindStates(_ context.Context) (map[string]types.KindState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.KindState, len(s.states))
	for k, v := range s.states {
		out[k] = v.state
	}
	return out, nil
}

func (s *Store) SetKindState(_ context.Context, kind string, state types.KindState, surrogates *int64) error {
	if err := s.checkKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[kind]
	st.state = state
	if surrogates != nil {
		st.surrogates = *surrogates
	}
	st.updatedAt = time.Now().UTC()
	s.states[kind] = st
	return nil
}

func (s *Store) KindStatuses(_ context.Context) ([]store.KindStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.KindStatus, 0, len(s.layout.Kinds))
	for _, k := range s.layout.Kinds {
		st, ok := s.states[k.Name]
		if !ok {
			st.state = types.KindIdentified
		}
		out = append(out, store.KindStatus{
			Kind:       k.Name,
			State:      st.state,
			Identities: int64(len(s.identities[k.Name])),
			Surrogates: st.surrogates,
			UpdatedAt:  st.updatedAt,
		})
	}
	return out, nil
}

func (s *Store) Compact(_ context.Context) error { return nil }

// ── Identities ───────────────────────────────────────────────────────────────

func (s *Store) UpsertIdentity(_ context.Context, rec store.IdentityRecord) error {
	if err := s.checkKind(rec.Kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(rec)
}

func (s *Store) upsertLocked(rec store.IdentityRecord) error {
	tbl, ok := s.identities[rec.Kind]
	if !ok {
		return fmt.Errorf("upsert %s identity: no such table", rec.Kind)
	}
	if existing, ok := tbl[rec.Token]; ok {
		if existing != rec.Raw {
			return &store.HashCollisionError{Kind: rec.Kind, Token: rec.Token}
		}
		return nil
	}
	tbl[rec.Token] = rec.Raw
	return nil
}

func (s *Store) ResolveIdentity(_ context.Context, kind, token string) (string, bool, error) {
	if err := s.checkKind(kind); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.identities[kind][token]
	return raw, ok, nil
}

func (s *Store) CountIdentities(_ context.Context, kind string) (int64, error) {
	if err := s.checkKind(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.identities[kind])), nil
}

func (s *Store) DropIdentities(_ context.Context, kind string) error {
	if err := s.checkKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, kind)
	return nil
}

// ── Facts ────────────────────────────────────────────────────────────────────

func (s *Store) AppendEntries(_ context.Context, entries []store.Entry) (store.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res store.AppendResult
	if s.FailAppend != nil {
		return res, s.FailAppend
	}

	for _, e := range entries {
		if len(e.Fact.Values) != len(s.layout.Columns) {
			return store.AppendResult{}, fmt.Errorf("fact row has %d values, layout has %d columns",
				len(e.Fact.Values), len(s.layout.Columns))
		}

		// Check every identity before touching anything so a collision
		// leaves the entry fully unapplied.
		var collision error
		for _, id := range e.Identities {
			if raw, ok := s.identities[id.Kind][id.Token]; ok && raw != id.Raw {
				collision = &store.HashCollisionError{Kind: id.Kind, Token: id.Token}
				break
			}
		}
		if collision != nil {
			res.Rejected = append(res.Rejected, store.EntryError{Ref: e.Ref, Err: collision})
			continue
		}
		for _, id := range e.Identities {
			if err := s.upsertLocked(id); err != nil {
				return store.AppendResult{}, err
			}
		}

		f := fact{values: slices.Clone(e.Fact.Values), kinds: make(map[string]any, len(s.layout.Kinds))}
		for _, k := range s.layout.Kinds {
			f.kinds[k.Name] = e.Fact.Tokens[k.Name]
		}
		if s.layout.Dedupe && s.containsLocked(f) {
			res.Duplicates++
			continue
		}
		s.facts = append(s.facts, f)
		res.Appended++
	}
	return res, nil
}

func (s *Store) containsLocked(f fact) bool {
	for _, g := range s.facts {
		if slices.Equal(g.values, f.values) && equalKinds(g.kinds, f.kinds) {
			return true
		}
	}
	return false
}

func equalKinds(a, b map[string]any) bool {
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return len(a) == len(b)
}

func (s *Store) CountFacts(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.facts)), nil
}

func (s *Store) FactTokens(_ context.Context, kind string) ([]any, error) {
	if err := s.checkKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.facts))
	for i, f := range s.facts {
		out[i] = f.kinds[kind]
	}
	return out, nil
}

func (s *Store) AnonymizeKind(_ context.Context, kind string) (int64, error) {
	if err := s.checkKind(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var next int64
	for _, f := range s.facts {
		if n, ok := f.kinds[kind].(int64); ok && n > next {
			next = n
		}
	}

	assigned := make(map[string]int64)
	for _, f := range s.facts {
		tok, ok := f.kinds[kind].(string)
		if !ok {
			continue
		}
		idx, seen := assigned[tok]
		if !seen {
			next++
			idx = next
			assigned[tok] = idx
		}
		f.kinds[kind] = idx
	}
	delete(s.identities, kind)

	distinct := make(map[int64]struct{})
	for _, f := range s.facts {
		if n, ok := f.kinds[kind].(int64); ok {
			distinct[n] = struct{}{}
		}
	}
	return int64(len(distinct)), nil
}

// ── Runs ─────────────────────────────────────────────────────────────────────

func (s *Store) StartRun(_ context.Context, run store.IngestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) FinishRun(_ context.Context, run store.IngestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	for i := range s.runs {
		if s.runs[i].RunID == run.RunID {
			run.StartedAt = s.runs[i].StartedAt
			s.runs[i] = run
			return nil
		}
	}
	return fmt.Errorf("FinishRun: unknown run %s", run.RunID)
}

func (s *Store) RecentRuns(_ context.Context, limit int) ([]store.IngestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	out := make([]store.IngestRun, 0, limit)
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

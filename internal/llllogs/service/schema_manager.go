package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// SchemaManager owns the dataset's tables and is the only way to reduce
// privacy. Pseudonymize and Anonymize are irreversible.
type SchemaManager struct {
	store  store.Store
	layout types.Layout
	logger logrus.FieldLogger
}

func NewSchemaManager(st store.Store, layout types.Layout, logger logrus.FieldLogger) *SchemaManager {
	return &SchemaManager{store: st, layout: layout, logger: logger}
}

func (m *SchemaManager) Layout() types.Layout { return m.layout }

// Ensure creates missing tables, checks existing ones, and returns the
// privacy state of every kind.
func (m *SchemaManager) Ensure(ctx context.Context) (map[string]types.KindState, error) {
	if err := m.store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	states, err := m.store.KindStates(ctx)
	if err != nil {
		return nil, err
	}
	for kind, st := range states {
		if st.InProgress() {
			m.logger.WithFields(logrus.Fields{"kind": kind, "state": st}).
				Warn("privacy operation did not complete; run it again")
		}
	}
	return states, nil
}

func (m *SchemaManager) state(ctx context.Context, kind string) (types.KindState, error) {
	if !m.layout.HasKind(kind) {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownKind, kind)
	}
	states, err := m.Ensure(ctx)
	if err != nil {
		return "", err
	}
	return states[kind], nil
}

// Pseudonymize drops the kind's identity table. Fact rows keep their
// tokens, so rows of the same person stay linked, but nothing maps a token
// back to its raw value any more.
//
// If the drop fails the kind stays recorded as pseudonymizing.
func (m *SchemaManager) Pseudonymize(ctx context.Context, kind string) (types.KindState, error) {
	st, err := m.state(ctx, kind)
	if err != nil {
		return "", err
	}
	log := m.logger.WithField("kind", kind)

	switch st {
	case types.KindPseudonymized, types.KindAnonymized:
		log.WithField("state", st).Info("kind already reduced, nothing to do")
		return st, nil
	case types.KindAnonymizing:
		return st, fmt.Errorf("pseudonymize %s: anonymization incomplete, run anonymize again: %w", kind, ErrPrivacyReduced)
	}

	if err := m.store.SetKindState(ctx, kind, types.KindPseudonymizing, nil); err != nil {
		return st, fmt.Errorf("pseudonymize %s: %w", kind, err)
	}
	if err := m.store.DropIdentities(ctx, kind); err != nil {
		log.WithError(err).Error("pseudonymize failed; kind left as pseudonymizing")
		return types.KindPseudonymizing, fmt.Errorf("pseudonymize %s: %w", kind, err)
	}
	if err := m.store.SetKindState(ctx, kind, types.KindPseudonymized, nil); err != nil {
		log.WithError(err).Error("identities dropped but state not recorded; kind left as pseudonymizing")
		return types.KindPseudonymizing, fmt.Errorf("pseudonymize %s: record state: %w", kind, err)
	}
	log.Info("kind pseudonymized")

	if err := m.store.Compact(ctx); err != nil {
		return types.KindPseudonymized, fmt.Errorf("pseudonymize %s: compact: %w", kind, err)
	}
	return types.KindPseudonymized, nil
}

// Anonymize replaces the kind's tokens in every fact row with sequential
// surrogate indices and drops the identity table if it is still there.
// Rows that shared a token share a surrogate; nothing links a surrogate to
// the hasher's output, so future ingests cannot be joined to these rows.
//
// If the rewrite fails the kind stays recorded as anonymizing.
func (m *SchemaManager) Anonymize(ctx context.Context, kind string) (store.KindStatus, error) {
	st, err := m.state(ctx, kind)
	if err != nil {
		return store.KindStatus{}, err
	}
	log := m.logger.WithField("kind", kind)

	if st == types.KindAnonymized {
		log.Info("kind already anonymized, nothing to do")
		return m.kindStatus(ctx, kind)
	}

	if err := m.store.SetKindState(ctx, kind, types.KindAnonymizing, nil); err != nil {
		return store.KindStatus{}, fmt.Errorf("anonymize %s: %w", kind, err)
	}
	n, err := m.store.AnonymizeKind(ctx, kind)
	if err != nil {
		log.WithError(err).Error("anonymize failed; kind left as anonymizing")
		return store.KindStatus{Kind: kind, State: types.KindAnonymizing}, fmt.Errorf("anonymize %s: %w", kind, err)
	}
	if err := m.store.SetKindState(ctx, kind, types.KindAnonymized, &n); err != nil {
		log.WithError(err).Error("facts rewritten but state not recorded; kind left as anonymizing")
		return store.KindStatus{Kind: kind, State: types.KindAnonymizing}, fmt.Errorf("anonymize %s: record state: %w", kind, err)
	}
	log.WithField("surrogates", n).Info("kind anonymized")

	if err := m.store.Compact(ctx); err != nil {
		return store.KindStatus{Kind: kind, State: types.KindAnonymized, Surrogates: n},
			fmt.Errorf("anonymize %s: compact: %w", kind, err)
	}
	return m.kindStatus(ctx, kind)
}

func (m *SchemaManager) kindStatus(ctx context.Context, kind string) (store.KindStatus, error) {
	all, err := m.store.KindStatuses(ctx)
	if err != nil {
		return store.KindStatus{}, err
	}
	for _, s := range all {
		if s.Kind == kind {
			return s, nil
		}
	}
	return store.KindStatus{}, fmt.Errorf("%w: %q", store.ErrUnknownKind, kind)
}

// Status is a snapshot of the dataset for operators.
type Status struct {
	Table string
	Facts int64
	Kinds []store.KindStatus
	Runs  []store.IngestRun
}

// Status reports the dataset and its last runs ingest runs; runs <= 0
// lists none.
func (m *SchemaManager) Status(ctx context.Context, runs int) (Status, error) {
	if _, err := m.Ensure(ctx); err != nil {
		return Status{}, err
	}
	facts, err := m.store.CountFacts(ctx)
	if err != nil {
		return Status{}, err
	}
	kinds, err := m.store.KindStatuses(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Table: m.layout.Table, Facts: facts, Kinds: kinds}
	if runs > 0 {
		if st.Runs, err = m.store.RecentRuns(ctx, runs); err != nil {
			return Status{}, err
		}
	}
	return st, nil
}

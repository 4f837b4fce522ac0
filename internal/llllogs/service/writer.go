package service

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/hasher"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

const DefaultBatchSize = 500

// WriterConfig holds the parameters for NewWriter.
type WriterConfig struct {
	// BatchSize is how many records go into one transaction. A crash loses
	// at most one batch. Defaults to DefaultBatchSize.
	BatchSize int

	// Hasher defaults to hasher.SHA3.
	Hasher hasher.Hasher

	// OnReject is called for every skipped record, after it is logged.
	OnReject func(*RecordRejectedError)
}

// RunSummary is the outcome of one Ingest call.
type RunSummary struct {
	RunID      string
	State      types.RunState
	Read       int64
	Accepted   int64
	Duplicates int64
	Rejected   int64
}

// Writer drains parsed records into the store. One Writer serves one
// dataset and runs one ingestion at a time.
type Writer struct {
	store    store.Store
	schema   *SchemaManager
	layout   types.Layout
	hasher   hasher.Hasher
	batch    int
	onReject func(*RecordRejectedError)
	logger   logrus.FieldLogger

	mu      sync.Mutex
	state   types.RunState
	running bool
}

func NewWriter(st store.Store, schema *SchemaManager, cfg WriterConfig, logger logrus.FieldLogger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Hasher == nil {
		cfg.Hasher = hasher.SHA3{}
	}
	return &Writer{
		store:    st,
		schema:   schema,
		layout:   schema.Layout(),
		hasher:   cfg.Hasher,
		batch:    cfg.BatchSize,
		onReject: cfg.OnReject,
		logger:   logger,
		state:    types.RunIdle,
	}
}

func (w *Writer) State() types.RunState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Writer) setState(s types.RunState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// begin claims the writer for a run; end releases it. A Failed writer may
// start over.
func (w *Writer) begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrWriterBusy
	}
	w.running = true
	w.state = types.RunIdle
	return nil
}

func (w *Writer) end() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Ingest ensures the schema and writes every record of records. Records
// that fail validation or hashing, or collide with an existing identity,
// are skipped and reported; ingestion goes on. A parser or store error ends
// the run in Failed and is returned; batches committed before it stay.
func (w *Writer) Ingest(ctx context.Context, records iter.Seq2[types.LogRecord, error]) (RunSummary, error) {
	if err := w.begin(); err != nil {
		return RunSummary{State: w.State()}, err
	}
	defer w.end()

	sum := RunSummary{RunID: uuid.NewString()}
	log := w.logger.WithField("run_id", sum.RunID)

	identified, err := w.ensure(ctx)
	if err != nil {
		w.setState(types.RunFailed)
		sum.State = types.RunFailed
		log.WithError(err).Error("ingest aborted before any writes")
		return sum, err
	}
	w.setState(types.RunSchemaEnsured)

	started := time.Now().UTC()
	if err := w.store.StartRun(ctx, store.IngestRun{RunID: sum.RunID, StartedAt: started, State: types.RunIngesting}); err != nil {
		w.setState(types.RunFailed)
		sum.State = types.RunFailed
		return sum, fmt.Errorf("record run start: %w", err)
	}
	w.setState(types.RunIngesting)
	log.WithField("batch_size", w.batch).Info("ingest started")

	runErr := w.drain(ctx, records, identified, &sum, log)

	sum.State = types.RunIdle
	if runErr != nil {
		sum.State = types.RunFailed
	}
	w.setState(sum.State)

	run := store.IngestRun{
		RunID:      sum.RunID,
		State:      sum.State,
		Read:       sum.Read,
		Accepted:   sum.Accepted,
		Duplicates: sum.Duplicates,
		Rejected:   sum.Rejected,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// Record the outcome even when ctx was what ended the run.
	if err := w.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).Warn("could not record run outcome")
	}

	fields := logrus.Fields{
		"read":       sum.Read,
		"accepted":   sum.Accepted,
		"duplicates": sum.Duplicates,
		"rejected":   sum.Rejected,
		"elapsed":    time.Since(started).Round(time.Millisecond),
	}
	if runErr != nil {
		log.WithFields(fields).WithError(runErr).Error("ingest failed")
		return sum, runErr
	}
	log.WithFields(fields).Info("ingest finished")
	return sum, nil
}

// ensure runs the schema check and returns the kinds whose identity tables
// are still live. Kinds that are anonymized or half reduced block the run:
// new tokens would sit next to surrogates in the same column.
func (w *Writer) ensure(ctx context.Context) (map[string]bool, error) {
	states, err := w.schema.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	identified := make(map[string]bool, len(w.layout.Kinds))
	for _, k := range w.layout.Kinds {
		st := states[k.Name]
		if st == types.KindAnonymized || st.InProgress() {
			return nil, fmt.Errorf("kind %s is %s: %w", k.Name, st, ErrPrivacyReduced)
		}
		identified[k.Name] = st.HasIdentities()
	}
	return identified, nil
}

type recordRef struct {
	source string
	line   int
}

func (w *Writer) drain(
	ctx context.Context,
	records iter.Seq2[types.LogRecord, error],
	identified map[string]bool,
	sum *RunSummary,
	log logrus.FieldLogger,
) error {
	batch := make([]store.Entry, 0, w.batch)
	refs := make(map[int]recordRef, w.batch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := w.store.AppendEntries(ctx, batch)
		if err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		sum.Accepted += int64(res.Appended)
		sum.Duplicates += int64(res.Duplicates)
		for _, rej := range res.Rejected {
			ref := refs[rej.Ref]
			w.reject(sum, log, &RecordRejectedError{
				Source: ref.source,
				Line:   ref.line,
				Reason: "identity conflict",
				Err:    rej.Err,
			})
		}
		log.WithFields(logrus.Fields{"entries": len(batch), "appended": res.Appended}).Debug("batch committed")
		batch = batch[:0]
		clear(refs)
		return nil
	}

	for rec, err := range records {
		if err != nil {
			return fmt.Errorf("read records: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Read++

		entry, rej := w.entry(rec, identified)
		if rej != nil {
			w.reject(sum, log, rej)
			continue
		}
		entry.Ref = int(sum.Read)
		refs[entry.Ref] = recordRef{source: rec.Source, line: rec.Line}
		batch = append(batch, entry)

		if len(batch) >= w.batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (w *Writer) reject(sum *RunSummary, log logrus.FieldLogger, rej *RecordRejectedError) {
	sum.Rejected++
	log.WithFields(logrus.Fields{"source": rej.Source, "line": rej.Line}).
		WithError(rej).Warn("record rejected")
	if w.onReject != nil {
		w.onReject(rej)
	}
}

// entry validates rec against the layout and turns it into a store entry.
func (w *Writer) entry(rec types.LogRecord, identified map[string]bool) (store.Entry, *RecordRejectedError) {
	rejected := func(reason string, err error) (store.Entry, *RecordRejectedError) {
		return store.Entry{}, &RecordRejectedError{Source: rec.Source, Line: rec.Line, Reason: reason, Err: err}
	}

	for _, name := range slices.Sorted(maps.Keys(rec.Behavioral)) {
		if _, ok := w.layout.Column(name); !ok {
			return rejected("unknown column "+name, nil)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(rec.Identifying)) {
		if !w.layout.HasKind(name) {
			return rejected("unknown identifying kind "+name, nil)
		}
	}

	values := make([]any, len(w.layout.Columns))
	for i, c := range w.layout.Columns {
		v, err := columnValue(c, rec.Behavioral[c.Name])
		if err != nil {
			return rejected("column "+c.Name, err)
		}
		values[i] = v
	}

	e := store.Entry{Fact: store.FactRow{Values: values, Tokens: make(map[string]string, len(w.layout.Kinds))}}
	for _, k := range w.layout.Kinds {
		raw, ok := rec.Identifying[k.Name]
		if !ok {
			return rejected("missing identifying field "+k.Name, nil)
		}
		tok, err := w.hasher.Hash(k.Name, raw)
		if err != nil {
			return rejected("unhashable "+k.Name, err)
		}
		e.Fact.Tokens[k.Name] = tok

		if identified[k.Name] {
			s, err := hasher.Raw(k.Name, raw)
			if err != nil {
				return rejected("unhashable "+k.Name, err)
			}
			e.Identities = append(e.Identities, store.IdentityRecord{Kind: k.Name, Token: tok, Raw: s})
		}
	}
	return e, nil
}

package types

// LogRecord is one parsed log entry on its way from a parser to the writer.
// Behavioral values are stored verbatim; identifying values only ever leave
// the writer as hash tokens.
type LogRecord struct {
	Source string // file name or other origin, for reporting
	Line   int    // 1-based line within Source; 0 if unknown

	Behavioral  map[string]any // column name -> value
	Identifying map[string]any // kind name -> raw value
}

// RunState is the ingestion state machine:
// Idle -> SchemaEnsured -> Ingesting -> (Idle | Failed).
type RunState string

const (
	RunIdle          RunState = "idle"
	RunSchemaEnsured RunState = "schema_ensured"
	RunIngesting     RunState = "ingesting"
	RunFailed        RunState = "failed"
)

// KindState tracks how far an identifying kind has been reduced.
type KindState string

const (
	KindIdentified     KindState = "identified"
	KindPseudonymizing KindState = "pseudonymizing"
	KindPseudonymized  KindState = "pseudonymized"
	KindAnonymizing    KindState = "anonymizing"
	KindAnonymized     KindState = "anonymized"
)

// InProgress reports whether a privacy operation started but never
// recorded completion.
func (s KindState) InProgress() bool {
	return s == KindPseudonymizing || s == KindAnonymizing
}

// HasIdentities reports whether the kind's identity table should exist.
func (s KindState) HasIdentities() bool {
	return s == KindIdentified
}

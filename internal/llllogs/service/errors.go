package service

import (
	"errors"
	"fmt"
)

var (
	ErrRecordRejected = errors.New("record rejected")
	// ErrPrivacyReduced is returned when ingesting into a dataset where a
	// kind is anonymized or a privacy operation is half done.
	ErrPrivacyReduced = errors.New("privacy reduction in progress or complete")
	ErrWriterBusy     = errors.New("writer is already ingesting")
)

// RecordRejectedError reports one record skipped during ingestion. Reason
// and Err never contain raw identifying values.
type RecordRejectedError struct {
	Source string
	Line   int
	Reason string
	Err    error
}

func (e *RecordRejectedError) Error() string {
	where := e.Source
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("record rejected at %s: %s: %v", where, e.Reason, e.Err)
	}
	return fmt.Sprintf("record rejected at %s: %s", where, e.Reason)
}

func (e *RecordRejectedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRecordRejected}
	}
	return []error{ErrRecordRejected, e.Err}
}

package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrHashCollision  = errors.New("hash collision")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrUnknownKind    = errors.New("unknown identifying kind")
)

// HashCollisionError reports a token already mapped to a different raw
// value. Neither raw value is included.
type HashCollisionError struct {
	Kind  string
	Token string
}

func (e *HashCollisionError) Error() string {
	return fmt.Sprintf("%s token %s already maps to a different value", e.Kind, e.Token)
}

func (e *HashCollisionError) Unwrap() error { return ErrHashCollision }

// SchemaMismatchError reports an existing table that does not match the
// layout.
type SchemaMismatchError struct {
	Table    string
	Problems []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %s: %s", e.Table, strings.Join(e.Problems, "; "))
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

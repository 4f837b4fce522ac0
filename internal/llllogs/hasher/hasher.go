// Package hasher turns raw identifying values into opaque hash tokens.
//
// Tokens are SHA3-224 digests of the value's bytes, hex encoded. The
// kind is not mixed into the digest: every kind has its own identity table,
// so equal values under different kinds never meet in one hash space.
package hasher

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"

	"golang.org/x/crypto/sha3"
)

// TokenLen is the length of a hex-encoded token.
const TokenLen = 2 * 28

var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a value that cannot be hashed. It never carries
// the value itself.
type InvalidInputError struct {
	Kind   string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s value: %s", e.Kind, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// Hasher maps a raw value of the given kind to a token.
type Hasher interface {
	Hash(kind string, raw any) (string, error)
}

// SHA3 is the production Hasher.
type SHA3 struct{}

func (SHA3) Hash(kind string, raw any) (string, error) {
	b, err := bytesOf(kind, raw)
	if err != nil {
		return "", err
	}
	return Token(b), nil
}

// Token hashes b.
func Token(b []byte) string {
	sum := sha3.Sum224(b)
	return hex.EncodeToString(sum[:])
}

func bytesOf(kind string, raw any) ([]byte, error) {
	var b []byte
	switch v := raw.(type) {
	case nil:
		return nil, &InvalidInputError{Kind: kind, Reason: "missing value"}
	case string:
		b = []byte(v)
	case []byte:
		if v == nil {
			return nil, &InvalidInputError{Kind: kind, Reason: "missing value"}
		}
		b = v
	case *string:
		if v == nil {
			return nil, &InvalidInputError{Kind: kind, Reason: "missing value"}
		}
		b = []byte(*v)
	case fmt.Stringer:
		if isNil(v) {
			return nil, &InvalidInputError{Kind: kind, Reason: "missing value"}
		}
		b = []byte(v.String())
	default:
		return nil, &InvalidInputError{Kind: kind, Reason: fmt.Sprintf("unsupported type %T", raw)}
	}
	return b, nil
}

// isNil catches typed nils such as a nil *url.URL inside an interface.
func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Raw returns the string form of raw as it is stored in an identity table.
// It fails exactly when Hash fails. Bytes are kept as they are, valid UTF-8
// or not, so Apache \xhh escapes survive the round trip.
func Raw(kind string, raw any) (string, error) {
	b, err := bytesOf(kind, raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

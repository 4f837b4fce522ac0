package service

import (
	"fmt"
	"math"
	"time"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// columnValue converts a behavioral value to what its column stores. nil
// is stored as NULL. Errors name types, never values.
func columnValue(c types.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case types.ColumnText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case types.ColumnInteger:
		if n, ok := asInt64(v); ok {
			return n, nil
		}
	case types.ColumnReal:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
		if n, ok := asInt64(v); ok {
			return float64(n), nil
		}
	case types.ColumnTime:
		switch x := v.(type) {
		case time.Time:
			if x.IsZero() {
				return nil, nil
			}
			return x.UTC().UnixMilli(), nil
		case *time.Time:
			if x == nil || x.IsZero() {
				return nil, nil
			}
			return x.UTC().UnixMilli(), nil
		}
		if n, ok := asInt64(v); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("want %s, got %T", c.Type, v)
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	}
	return 0, false
}

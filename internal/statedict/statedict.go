// Package statedict provides typed accessors for the flat map[string]any
// checkpoint states exchanged by meters, histories, and handlers. States
// may have round-tripped through JSON, so numeric values are accepted in
// any numeric representation.
package statedict

import (
	"github.com/gradkit/gradkit/pkg/errors"
)

// Float64 extracts a float64 value from a state mapping
func Float64(state map[string]any, key string) (float64, error) {
	raw, ok := state[key]
	if !ok {
		return 0, errors.ValidationErrorf("state is missing key %q", key)
	}
	v, ok := toFloat64(raw)
	if !ok {
		return 0, errors.ValidationErrorf("state key %q is not a number (received: %T)", key, raw)
	}
	return v, nil
}

// Int extracts an int value from a state mapping
func Int(state map[string]any, key string) (int, error) {
	v, err := Float64(state, key)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// Float64Slice extracts a []float64 value from a state mapping
func Float64Slice(state map[string]any, key string) ([]float64, error) {
	raw, ok := state[key]
	if !ok {
		return nil, errors.ValidationErrorf("state is missing key %q", key)
	}
	switch vs := raw.(type) {
	case []float64:
		out := make([]float64, len(vs))
		copy(out, vs)
		return out, nil
	case []any:
		out := make([]float64, len(vs))
		for i, item := range vs {
			v, ok := toFloat64(item)
			if !ok {
				return nil, errors.ValidationErrorf("state key %q element %d is not a number (received: %T)", key, i, item)
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, errors.ValidationErrorf("state key %q is not a numeric slice (received: %T)", key, raw)
	}
}

func toFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

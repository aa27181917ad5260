package message

import (
	"encoding/json"
	"fmt"
)

// Generic converts a typed Go value (usually a struct pointer) into the
// serializer-neutral shape every codec can carry: map[string]any, []any,
// string, float64, bool or nil.
func Generic(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("message: generic: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("message: generic: %w", err)
	}
	return out, nil
}

// Bind fills out (a pointer) from a value produced by a codec.
// Maps keyed by any, as Hessian2 produces them, are accepted.
func Bind(v any, out any) error {
	data, err := json.Marshal(normalize(v))
	if err != nil {
		return fmt.Errorf("message: bind: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("message: bind: %w", err)
	}
	return nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = normalize(val)
		}
		return s
	default:
		return v
	}
}

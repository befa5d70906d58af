package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func joinPath(parts []string) string {
	return strings.Join(parts, "/")
}

// related reports whether a change at one path can affect the other
func related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lookup(v any, parts []string) (any, bool) {
	for _, p := range parts {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[p]; !ok {
			return nil, false
		}
	}
	return v, v != nil
}

// normalize turns any JSON-encodable value into a plain tree, resolving
// server values and dropping nulls and empty objects
func normalize(value any, now func() int64) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return resolve(tree, now), nil
}

func resolve(v any, now func() int64) any {
	switch t := v.(type) {
	case map[string]any:
		if sv, ok := t[ServerValueKey]; ok && len(t) == 1 {
			if sv == "timestamp" {
				return float64(now())
			}
			return nil
		}
		for k, child := range t {
			if r := resolve(child, now); r != nil {
				t[k] = r
			} else {
				delete(t, k)
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = resolve(child, now)
		}
		return t
	}
	return v
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = clone(child)
		}
		return out
	}
	return v
}

// set stores value at parts below root, creating intermediate objects and
// pruning ancestors left empty by a removal
func set(root map[string]any, parts []string, value any) map[string]any {
	if len(parts) == 0 {
		if m, ok := value.(map[string]any); ok {
			return m
		}
		return map[string]any{}
	}

	key, rest := parts[0], parts[1:]
	if len(rest) == 0 {
		if value == nil {
			delete(root, key)
		} else {
			root[key] = value
		}
		return root
	}

	child, _ := root[key].(map[string]any)
	if child == nil {
		if value == nil {
			return root
		}
		child = make(map[string]any)
	}
	child = set(child, rest, value)
	if len(child) == 0 {
		delete(root, key)
	} else {
		root[key] = child
	}
	return root
}

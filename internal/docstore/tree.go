package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// normalize turns any JSON-encodable value into the generic tree form and prunes empty nodes.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	var tree any
	if err = json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return prune(tree), nil
}

func prune(node any) any {
	m, ok := node.(map[string]any)
	if !ok {
		return node
	}

	for key, child := range m {
		if pruned := prune(child); pruned == nil {
			delete(m, key)
		} else {
			m[key] = pruned
		}
	}

	if len(m) == 0 {
		return nil
	}

	return m
}

func clone(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = clone(child)
		}
		return out
	default:
		return v
	}
}

func lookup(node any, segments []string) any {
	for _, segment := range segments {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}

		node = m[segment]
	}

	return node
}

// put writes value at segments below node and returns the new node, nil when it became empty.
// A leaf on the way is replaced by an object.
func put(node any, segments []string, value any) any {
	if len(segments) == 0 {
		return value
	}

	m, ok := node.(map[string]any)
	if !ok {
		if value == nil {
			return node
		}
		m = map[string]any{}
	}

	child := put(m[segments[0]], segments[1:], value)
	if child == nil {
		delete(m, segments[0])
	} else {
		m[segments[0]] = child
	}

	if len(m) == 0 {
		return nil
	}

	return m
}

type change struct {
	segments []string
	value    any
}

// expand turns an Update call into absolute changes, ordered by key.
func expand(base []string, fields map[string]any) ([]change, error) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changes := make([]change, 0, len(keys))
	for _, key := range keys {
		rel := Split(key)
		if len(rel) == 0 {
			return nil, fmt.Errorf("%w: empty update key", ErrInvalidPath)
		}

		value, err := normalize(fields[key])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}

		segments := make([]string, 0, len(base)+len(rel))
		segments = append(segments, base...)
		segments = append(segments, rel...)

		changes = append(changes, change{segments: segments, value: value})
	}

	return changes, nil
}

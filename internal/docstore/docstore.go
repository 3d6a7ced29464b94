// Package docstore is the shared real-time document tree the coordinators talk through.
//
// Paths are "/"-separated ("rooms/101/players"). Values are JSON-shaped: objects are nodes,
// everything else is a leaf. Writing nil or an empty object removes the node, and parents left
// empty by a removal vanish with it. Writes are last-write-wins.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrInvalidPath = errors.New("invalid document path")

// Unsubscribe detaches a subscription. It never blocks on delivery and is safe to call
// more than once, including from inside the subscription callback.
type Unsubscribe func()

type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, value any) error
	// Update merges fields into the node at path. Keys may be nested paths, nil values remove.
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	// Subscribe delivers the current value and then every change, in order, on its own goroutine.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error)
}

// Snapshot is the value of a node at the time it was read. Value is nil when the node is absent.
type Snapshot struct {
	Path  string
	Value any
}

func (that Snapshot) Exists() bool {
	return that.Value != nil
}

// Key is the last path segment.
func (that Snapshot) Key() string {
	segments := Split(that.Path)
	if len(segments) == 0 {
		return ""
	}

	return segments[len(segments)-1]
}

// Decode unmarshals the value into v. Absent nodes leave v untouched.
func (that Snapshot) Decode(v any) error {
	if !that.Exists() {
		return nil
	}

	raw, err := json.Marshal(that.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", that.Path, err)
	}

	if err = json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", that.Path, err)
	}

	return nil
}

// Children returns the child nodes ordered by key. Leaves have no children.
func (that Snapshot) Children() []Snapshot {
	node, ok := that.Value.(map[string]any)
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(node))
	for key := range node {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	children := make([]Snapshot, 0, len(keys))
	for _, key := range keys {
		children = append(children, Snapshot{Path: Join(that.Path, key), Value: node[key]})
	}

	return children
}

func (that Snapshot) equal(other Snapshot) bool {
	a, errA := json.Marshal(that.Value)
	b, errB := json.Marshal(other.Value)

	return errA == nil && errB == nil && string(a) == string(b)
}

// Split breaks a path into its non-empty segments.
func Split(path string) []string {
	parts := strings.Split(path, "/")

	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}

	return segments
}

func Join(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		segments = append(segments, Split(part)...)
	}

	return strings.Join(segments, "/")
}

// related reports whether a write to one path can change the value seen at the other.
func related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

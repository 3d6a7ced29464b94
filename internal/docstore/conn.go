package docstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Conn is one client's handle on a Store. Paths registered with RemoveOnDisconnect are
// removed when the client disconnects.
type Conn struct {
	Store

	mu           sync.Mutex
	onDisconnect []string
}

func NewConn(store Store) *Conn {
	return &Conn{Store: store}
}

func (that *Conn) RemoveOnDisconnect(path string) {
	path = Join(path)

	that.mu.Lock()
	defer that.mu.Unlock()

	if !slices.Contains(that.onDisconnect, path) {
		that.onDisconnect = append(that.onDisconnect, path)
	}
}

// Disconnect runs the registered removals once. Later calls are no-ops.
func (that *Conn) Disconnect(ctx context.Context) error {
	that.mu.Lock()
	paths := that.onDisconnect
	that.onDisconnect = nil
	that.mu.Unlock()

	var errs []error
	for _, path := range paths {
		if err := that.Remove(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s on disconnect: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

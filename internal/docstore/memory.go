package docstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store. Every client of one Memory sees the same tree.
type Memory struct {
	mu     sync.Mutex
	root   any
	subs   map[uint64]*subscription
	nextID uint64
}

func NewMemory() *Memory {
	return &Memory{
		subs: make(map[uint64]*subscription),
	}
}

func (that *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	segments := Split(path)

	that.mu.Lock()
	defer that.mu.Unlock()

	return Snapshot{Path: Join(path), Value: clone(lookup(that.root, segments))}, nil
}

func (that *Memory) Set(ctx context.Context, path string, value any) error {
	segments := Split(path)
	if len(segments) == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}

	return that.apply(ctx, []change{{segments: segments, value: normalized}})
}

func (that *Memory) Update(ctx context.Context, path string, fields map[string]any) error {
	changes, err := expand(Split(path), fields)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}

	return that.apply(ctx, changes)
}

func (that *Memory) Remove(ctx context.Context, path string) error {
	return that.Set(ctx, path, nil)
}

func (that *Memory) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription(Join(path), fn)

	that.mu.Lock()
	id := that.nextID
	that.nextID++
	that.subs[id] = sub
	sub.offer(Snapshot{Path: sub.path, Value: clone(lookup(that.root, Split(path)))})
	that.mu.Unlock()

	go sub.run()

	unsubscribe := func() {
		sub.stop()

		that.mu.Lock()
		delete(that.subs, id)
		that.mu.Unlock()
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()

	return unsubscribe, nil
}

func (that *Memory) apply(ctx context.Context, changes []change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	for _, c := range changes {
		that.root = put(that.root, c.segments, clone(c.value))
	}

	for _, sub := range that.subs {
		segments := Split(sub.path)
		for _, c := range changes {
			if related(segments, c.segments) {
				sub.offer(Snapshot{Path: sub.path, Value: clone(lookup(that.root, segments))})
				break
			}
		}
	}

	return nil
}

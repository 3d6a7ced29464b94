package docstore

import "sync"

// subscription queues snapshots for one listener and delivers them in order on its own goroutine.
// Consecutive equal snapshots are delivered once.
type subscription struct {
	path string
	fn   func(Snapshot)

	mu     sync.Mutex
	queue  []Snapshot
	last   *Snapshot
	signal chan struct{}

	done chan struct{}
	once sync.Once
}

func newSubscription(path string, fn func(Snapshot)) *subscription {
	return &subscription{
		path:   path,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (that *subscription) offer(snapshot Snapshot) {
	that.mu.Lock()
	if that.last != nil && that.last.equal(snapshot) {
		that.mu.Unlock()
		return
	}
	that.last = &snapshot
	that.queue = append(that.queue, snapshot)
	that.mu.Unlock()

	select {
	case that.signal <- struct{}{}:
	default:
	}
}

func (that *subscription) run() {
	for {
		select {
		case <-that.done:
			return
		case <-that.signal:
		}

		for {
			next, ok := that.next()
			if !ok {
				break
			}

			select {
			case <-that.done:
				return
			default:
			}

			that.fn(next)
		}
	}
}

func (that *subscription) next() (Snapshot, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if len(that.queue) == 0 {
		return Snapshot{}, false
	}

	next := that.queue[0]
	that.queue = that.queue[1:]

	return next, true
}

func (that *subscription) stop() {
	that.once.Do(func() {
		close(that.done)
	})
}

// Package timeout schedules per-key deadlines on a single goroutine.
//
// Deadlines are kept in a btree ordered by expiry so the scheduler only ever
// waits on the earliest one. Expired entries are removed before the callback
// runs; the callback is invoked outside the internal lock and may call back
// into the Map.
package timeout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/btree"
)

var (
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("timeout: already started")
)

type entry[K comparable, V comparable] struct {
	key      K
	value    V
	deadline time.Time
	seq      uint64
}

func less[K comparable, V comparable](a, b entry[K, V]) bool {
	if a.deadline.Equal(b.deadline) {
		return a.seq < b.seq
	}
	return a.deadline.Before(b.deadline)
}

// Map tracks one deadline per key and calls OnExpire when it passes.
type Map[K comparable, V comparable] struct {
	onExpire func(K, V)

	mu      sync.Mutex
	index   *btree.BTreeG[entry[K, V]]
	entries map[K]entry[K, V]
	seq     uint64
	now     func() time.Time

	wake    chan struct{}
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Map that calls onExpire for every expired entry.
func New[K comparable, V comparable](onExpire func(K, V)) *Map[K, V] {
	return &Map[K, V]{
		onExpire: onExpire,
		index:    btree.NewG(2, less[K, V]),
		entries:  make(map[K]entry[K, V]),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Put sets the deadline for key to now+d, replacing any previous entry.
func (m *Map[K, V]) Put(key K, value V, d time.Duration) time.Time {
	m.mu.Lock()
	if old, ok := m.entries[key]; ok {
		m.index.Delete(old)
	}
	m.seq++
	e := entry[K, V]{key: key, value: value, deadline: m.now().Add(d), seq: m.seq}
	m.entries[key] = e
	m.index.ReplaceOrInsert(e)
	earliest := m.isEarliest(e)
	m.mu.Unlock()

	if earliest {
		m.notify()
	}
	return e.deadline
}

// Remove deletes the entry for key. It reports whether an entry existed.
func (m *Map[K, V]) Remove(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	m.delete(e)
	return true
}

// RemoveValue deletes the entry for key only if it holds value.
func (m *Map[K, V]) RemoveValue(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.value != value {
		return false
	}
	m.delete(e)
	return true
}

// Deadline returns the deadline for key.
func (m *Map[K, V]) Deadline(key K) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e.deadline, ok
}

// Len returns the number of pending entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Start runs the scheduler until ctx is canceled or Stop is called.
func (m *Map[K, V]) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Stop halts the scheduler and waits for it to exit. Pending entries are kept.
func (m *Map[K, V]) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-m.done
}

func (m *Map[K, V]) run(ctx context.Context) {
	defer close(m.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		for _, e := range m.expired() {
			m.onExpire(e.key, e.value)
		}

		wait, ok := m.next()
		if !ok {
			wait = time.Hour
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// expired pops every entry whose deadline has passed.
func (m *Map[K, V]) expired() []entry[K, V] {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []entry[K, V]
	for {
		e, ok := m.index.Min()
		if !ok || e.deadline.After(now) {
			return out
		}
		m.delete(e)
		out = append(out, e)
	}
}

func (m *Map[K, V]) next() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.index.Min()
	if !ok {
		return 0, false
	}
	return max(e.deadline.Sub(m.now()), 0), true
}

func (m *Map[K, V]) isEarliest(e entry[K, V]) bool {
	first, _ := m.index.Min()
	return first.key == e.key && first.seq == e.seq
}

func (m *Map[K, V]) delete(e entry[K, V]) {
	m.index.Delete(e)
	delete(m.entries, e.key)
}

func (m *Map[K, V]) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

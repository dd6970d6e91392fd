package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. It backs single-box deployments
// where kiosk and doctor legs share one daemon, and every test in this
// repo. Change delivery is synchronous with the triggering write, which
// keeps test scenarios deterministic.
type MemoryStore struct {
	mu        sync.Mutex
	values    map[string][]byte
	nextID    int
	valueSubs map[string]map[int]func(data []byte)
	childSubs map[string]map[int]*childWatch
}

// childWatch fires once per child key: the first write creates the child,
// later writes to it are value changes, not child-added events.
type childWatch struct {
	fn   func(key string, data []byte)
	seen map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:    make(map[string][]byte),
		valueSubs: make(map[string]map[int]func(data []byte)),
		childSubs: make(map[string]map[int]*childWatch),
	}
}

func (s *MemoryStore) Write(ctx context.Context, path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", path, err)
	}

	s.mu.Lock()
	s.values[path] = data
	callbacks := s.collectCallbacks(path, data)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, path string, out interface{}) (bool, error) {
	s.mu.Lock()
	data, ok := s.values[path]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse value at %s: %w", path, err)
	}
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	var callbacks []func()
	for p := range s.values {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(s.values, p)
			callbacks = append(callbacks, s.collectCallbacks(p, nil)...)

			// A re-created child counts as a fresh child-added event.
			if idx := strings.LastIndex(p, "/"); idx > 0 {
				for _, watch := range s.childSubs[p[:idx]] {
					delete(watch.seen, p[idx+1:])
				}
			}
		}
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return nil
}

// collectCallbacks gathers the value and child-added callbacks a change at
// path should fire. Called with the lock held; the callbacks run after it
// is released so a subscriber may re-enter the store.
func (s *MemoryStore) collectCallbacks(path string, data []byte) []func() {
	var callbacks []func()

	for _, fn := range s.valueSubs[path] {
		fn := fn
		callbacks = append(callbacks, func() { fn(data) })
	}

	if data == nil {
		return callbacks // deletes are not child-added events
	}
	if idx := strings.LastIndex(path, "/"); idx > 0 {
		parent, child := path[:idx], path[idx+1:]
		for _, watch := range s.childSubs[parent] {
			if watch.seen[child] {
				continue
			}
			watch.seen[child] = true
			fn := watch.fn
			callbacks = append(callbacks, func() { fn(child, data) })
		}
	}
	return callbacks
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, fn func(data []byte)) (Subscription, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++

	guarded := &guardedFunc{}
	wrapped := func(data []byte) { guarded.run(func() { fn(data) }) }

	if s.valueSubs[path] == nil {
		s.valueSubs[path] = make(map[int]func(data []byte))
	}
	s.valueSubs[path][id] = wrapped
	current := s.values[path]
	s.mu.Unlock()

	// Replay the current value (nil when absent) before live delivery.
	wrapped(current)

	return &memorySubscription{
		guarded: guarded,
		remove: func() {
			s.mu.Lock()
			delete(s.valueSubs[path], id)
			s.mu.Unlock()
		},
	}, nil
}

func (s *MemoryStore) SubscribeChildren(ctx context.Context, path string, fn func(key string, data []byte)) (Subscription, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++

	guarded := &guardedFunc{}
	wrapped := func(key string, data []byte) { guarded.run(func() { fn(key, data) }) }

	if s.childSubs[path] == nil {
		s.childSubs[path] = make(map[int]*childWatch)
	}
	watch := &childWatch{fn: wrapped, seen: make(map[string]bool)}
	s.childSubs[path][id] = watch

	var existing []string
	for p := range s.values {
		if rest, ok := strings.CutPrefix(p, path+"/"); ok && !strings.Contains(rest, "/") {
			existing = append(existing, rest)
		}
	}
	sort.Strings(existing)
	replay := make(map[string][]byte, len(existing))
	for _, key := range existing {
		watch.seen[key] = true
		replay[key] = s.values[path+"/"+key]
	}
	s.mu.Unlock()

	for _, key := range existing {
		wrapped(key, replay[key])
	}

	return &memorySubscription{
		guarded: guarded,
		remove: func() {
			s.mu.Lock()
			delete(s.childSubs[path], id)
			s.mu.Unlock()
		},
	}, nil
}

// guardedFunc stops callback delivery the moment its subscription closes.
type guardedFunc struct {
	mu     sync.Mutex
	closed bool
}

// run executes fn unless closed. The check happens outside the critical
// section so a callback may close its own subscription without
// deadlocking.
func (g *guardedFunc) run(fn func()) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}
	fn()
}

func (g *guardedFunc) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

type memorySubscription struct {
	guarded *guardedFunc
	remove  func()
	once    sync.Once
}

func (s *memorySubscription) Close() {
	s.once.Do(func() {
		s.guarded.close()
		s.remove()
	})
}

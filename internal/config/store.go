package config

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Change describes a snapshot swap.
type Change struct {
	Old *Config
	New *Config
	// Source identifies where the change came from ("file", "cli").
	Source string
}

// Observer is called after a snapshot swap.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id    uint64
	store *Store
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.store != nil {
		s.store.unsubscribe(s.id)
	}
}

// Store holds the current Config snapshot. Readers never block; writers
// replace the snapshot wholesale.
type Store struct {
	current atomic.Pointer[Config]

	mu        sync.RWMutex
	observers map[uint64]Observer
	nextID    uint64
	version   atomic.Uint64
}

// NewStore creates a store publishing initial.
func NewStore(initial *Config) *Store {
	if initial == nil {
		initial = Default()
	}
	s := &Store{observers: make(map[uint64]Observer)}
	s.current.Store(initial)
	return s
}

// Current returns the published snapshot. Callers must not modify it.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Version counts swaps since creation.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Swap publishes cfg, notifies observers synchronously in subscription
// order, and returns the previous snapshot.
func (s *Store) Swap(cfg *Config, source string) *Config {
	old := s.current.Swap(cfg)
	s.version.Add(1)

	change := Change{Old: old, New: cfg, Source: source}
	for _, o := range s.snapshotObservers() {
		o(change)
	}
	return old
}

// Subscribe registers an observer for future swaps.
func (s *Store) Subscribe(o Observer) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.observers[s.nextID] = o
	return &Subscription{id: s.nextID, store: s}
}

func (s *Store) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
}

func (s *Store) snapshotObservers() []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = s.observers[id]
	}
	return out
}

// Package cache is a small in-process key/value store with optional expiry.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type Store[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
	now   func() time.Time
}

func NewStore[V any]() *Store[V] {
	return &Store[V]{items: map[string]entry[V]{}, now: time.Now}
}

func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	if s == nil {
		return zero, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return zero, false
	}
	if item.expired(s.now()) {
		delete(s.items, key)
		return zero, false
	}
	return item.value, true
}

// Set stores value under key. A ttl of zero or less never expires.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	if s == nil || key == "" {
		return
	}
	s.mu.Lock()
	s.items[key] = entry[V]{value: value, expiresAt: s.expiry(ttl)}
	s.mu.Unlock()
}

// Add stores value only if key is absent or expired and reports whether it did.
func (s *Store[V]) Add(key string, value V, ttl time.Duration) bool {
	if s == nil || key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[key]; ok && !item.expired(s.now()) {
		return false
	}
	s.items[key] = entry[V]{value: value, expiresAt: s.expiry(ttl)}
	return true
}

func (s *Store[V]) Delete(key string) {
	if s == nil || key == "" {
		return
	}
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Prune drops expired entries.
func (s *Store[V]) Prune() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, item := range s.items {
		if item.expired(now) {
			delete(s.items, key)
		}
	}
}

func (s *Store[V]) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store[V]) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

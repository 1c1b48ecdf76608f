// pkg/memcache/idempotency.go
package mem

import (
	"sync"
	"time"
)

// IdempotencyStore remembers recent results keyed by the caller-supplied
// idempotency key, so an immediate network retry gets the original answer
// without re-running the settlement. The ledger's unique idempotency-key
// column remains the durable backstop; this cache is never a source of
// truth.
type IdempotencyStore interface {
	Put(key string, value interface{}, ttl time.Duration)
	Get(key string) (interface{}, bool)
}

type idemEntry struct {
	value     interface{}
	expiresAt time.Time
}

type IdempotencyCache struct {
	mu   sync.RWMutex
	data map[string]idemEntry
}

func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{
		data: make(map[string]idemEntry),
	}
}

func (s *IdempotencyCache) Put(key string, value interface{}, ttl time.Duration) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = idemEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

func (s *IdempotencyCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.data, key) // cleanup expired
		return nil, false
	}
	return e.value, true
}

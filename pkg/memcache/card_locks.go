// pkg/memcache/card_locks.go
package mem

import (
	"sync"

	"github.com/google/uuid"
)

// CardLocks serializes in-process mutations per card. The database row lock
// is still the cross-process authority; this keeps concurrent handlers on
// the same card from piling up on the DB.
type CardLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*cardLock
}

type cardLock struct {
	mu   sync.Mutex
	refs int
}

func NewCardLocks() *CardLocks {
	return &CardLocks{
		locks: make(map[uuid.UUID]*cardLock),
	}
}

// Lock blocks until the per-card lock is held. Every Lock must be paired
// with Unlock; entries are dropped once the last holder releases.
func (c *CardLocks) Lock(cardID uuid.UUID) {
	c.mu.Lock()
	l, ok := c.locks[cardID]
	if !ok {
		l = &cardLock{}
		c.locks[cardID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
}

func (c *CardLocks) Unlock(cardID uuid.UUID) {
	c.mu.Lock()
	l, ok := c.locks[cardID]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(c.locks, cardID)
		}
	}
	c.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}

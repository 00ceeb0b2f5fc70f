package cache

import (
	"sync"

	cachekey "github.com/always-cache/querycache/pkg/cache-key"
)

// Subscription delivers snapshots of one entry whenever its state changes.
// Only the latest snapshot is buffered; slow readers skip intermediate states.
type Subscription struct {
	c       *Cache
	key     cachekey.Key
	id      int
	updates chan Entry
	once    sync.Once
}

// Subscribe registers interest in key. The subscriber count of an entry
// decides whether an unobserved fetch may be abandoned.
func (c *Cache) Subscribe(key cachekey.Key) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	s := &Subscription{
		c:       c,
		key:     key,
		id:      c.nextSubID,
		updates: make(chan Entry, 1),
	}
	k := key.String()
	if c.subscribers[k] == nil {
		c.subscribers[k] = make(map[int]*Subscription)
	}
	c.subscribers[k][s.id] = s
	c.log.Trace().Str("key", k).Int("subscribers", len(c.subscribers[k])).Msg("Subscribed")
	return s
}

func (s *Subscription) Key() cachekey.Key {
	return s.key
}

// Updates returns the channel of entry snapshots.
// It is closed when the subscription is closed.
func (s *Subscription) Updates() <-chan Entry {
	return s.updates
}

// Close removes the subscription. If it was the last one for an entry with a
// fetch in flight and the cache abandons unobserved fetches, the fetch is cancelled.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.c
		c.mu.Lock()
		defer c.mu.Unlock()
		k := s.key.String()
		delete(c.subscribers[k], s.id)
		close(s.updates)
		if len(c.subscribers[k]) > 0 {
			return
		}
		delete(c.subscribers, k)
		if e, ok := c.entries[k]; ok && e.inflight && c.abandon && e.cancel != nil {
			c.log.Debug().Str("key", k).Msg("Last subscriber gone, abandoning fetch")
			e.abandoned = true
			e.cancel()
		}
	})
}

// push replaces any unread snapshot with e. Must be called with c.mu held,
// which also guarantees the channel is not closed concurrently.
func (s *Subscription) push(e Entry) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- e:
	default:
	}
}

// notify sends a snapshot of e to all its subscribers. Must be called with c.mu held.
func (c *Cache) notify(e *entry) {
	subs := c.subscribers[e.key.String()]
	if len(subs) == 0 {
		return
	}
	snap := e.snapshot(len(subs))
	for _, s := range subs {
		s.push(snap)
	}
}

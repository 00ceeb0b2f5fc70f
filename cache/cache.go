package cache

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	cachekey "github.com/always-cache/querycache/pkg/cache-key"
	"github.com/always-cache/querycache/pkg/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for a cache entry.
type FetchFunc func(ctx context.Context) (any, error)

type Config struct {
	// Logger to use. A console logger is used if nil.
	Logger  *zerolog.Logger
	Metrics metrics.Metrics
	// Clock used for freshness timestamps. Defaults to time.Now.
	Clock func() time.Time
	// Upper bound for a single fetch. Zero means no limit.
	FetchTimeout time.Duration
	// Cancel a fetch when its last subscriber goes away mid-flight.
	// Only subscriptions count: callers waiting on the channel returned by
	// Fetch do not keep a fetch alive once a subscriber has come and gone.
	AbandonUnobserved bool
}

// Cache maps cache keys to entries and runs at most one fetch per key at a time.
// It is safe for concurrent use; every state transition happens under one lock.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*entry
	subscribers map[string]map[int]*Subscription
	flights     singleflight.Group
	// generations are unique across the cache, so flight names never repeat
	// even after an entry is removed and created again
	generation uint64
	nextSubID  int

	log          zerolog.Logger
	metrics      metrics.Metrics
	now          func() time.Time
	fetchTimeout time.Duration
	abandon      bool
}

func New(config Config) *Cache {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	c := &Cache{
		entries:      make(map[string]*entry),
		subscribers:  make(map[string]map[int]*Subscription),
		log:          logger.With().Str("component", "cache").Logger(),
		metrics:      config.Metrics,
		now:          config.Clock,
		fetchTimeout: config.FetchTimeout,
		abandon:      config.AbandonUnobserved,
	}
	if c.metrics == nil {
		c.metrics = metrics.Noop{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Now returns the current time of the cache clock.
func (c *Cache) Now() time.Time {
	return c.now()
}

// Get returns a snapshot of the entry for key. If there is no entry,
// a placeholder in fetching state is returned along with false.
func (c *Cache) Get(key cachekey.Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.String()]; ok {
		return e.snapshot(c.subscriberCount(key)), true
	}
	return Entry{Key: key, Status: StatusFetching, Subscribers: c.subscriberCount(key)}, false
}

// Lookup is like Get, but also reports whether the entry is stale
// under maxAge. Fresh entries count as cache hits.
func (c *Cache) Lookup(key cachekey.Key, maxAge time.Duration) (e Entry, found bool, stale bool) {
	e, found = c.Get(key)
	stale = !found || IsStale(e, maxAge, c.now())
	if !stale {
		c.metrics.Hit(key.Resource())
	}
	return
}

// Fetch runs fn for key in the background and returns a channel that
// receives the resolved entry.
// If a fetch for key is already in flight, the caller is attached to it and
// fn is not called, unless force is set: then a new fetch supersedes the
// running one, whose response will be discarded.
// A nil fn reuses the function of the previous fetch for key.
func (c *Cache) Fetch(key cachekey.Key, fn FetchFunc, force bool) <-chan Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = newEntry(key)
		c.entries[k] = e
	}
	if fn != nil {
		e.fn = fn
	}
	if e.fn == nil {
		c.log.Warn().Str("key", k).Msg("No fetch function for entry")
		return resolved(e.snapshot(c.subscriberCount(key)))
	}

	// an abandoned flight is about to resolve with a cancellation, do not join it
	if e.inflight && !force && !e.abandoned {
		c.log.Trace().Str("key", k).Uint64("generation", e.generation).Msg("Joining fetch in flight")
		c.metrics.Join(key.Resource())
		return c.join(e)
	}
	return c.start(e)
}

// Refetch runs the previous fetch function for key again,
// superseding a fetch in flight.
func (c *Cache) Refetch(key cachekey.Key) <-chan Entry {
	return c.Fetch(key, nil, true)
}

// start begins a new flight for e. Must be called with c.mu held.
func (c *Cache) start(e *entry) <-chan Entry {
	c.generation++
	gen := c.generation
	e.generation = gen
	e.inflight = true
	e.abandoned = false
	e.invalidated = false
	if e.hasValue {
		e.status = StatusRefreshing
	} else {
		e.status = StatusFetching
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if c.fetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.fetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	e.cancel = cancel

	c.log.Trace().Str("key", e.key.String()).Uint64("generation", gen).Str("status", e.status.String()).Msg("Starting fetch")
	c.metrics.Miss(e.key.Resource())
	c.notify(e)

	fn := e.fn
	// DoChan runs the function in its own goroutine, so holding c.mu here is fine
	return await(c.flights.DoChan(flightName(e.key, gen), func() (interface{}, error) {
		defer cancel()
		return c.run(ctx, e, gen, fn), nil
	}))
}

// join attaches to the flight in progress for e. Must be called with c.mu held.
// The flight is still registered: it only completes after it cleared
// e.inflight, which requires c.mu.
func (c *Cache) join(e *entry) <-chan Entry {
	snap := e.snapshot(c.subscriberCount(e.key))
	return await(c.flights.DoChan(flightName(e.key, e.generation), func() (interface{}, error) {
		return snap, nil
	}))
}

func (c *Cache) run(ctx context.Context, e *entry, gen uint64, fn FetchFunc) Entry {
	started := c.now()
	value, err := call(ctx, fn)

	c.mu.Lock()
	if e.generation != gen {
		c.log.Debug().Str("key", e.key.String()).Uint64("generation", gen).Uint64("current", e.generation).
			Msg("Discarding superseded response")
		c.metrics.Discard(e.key.Resource())
		// hand waiters over to the flight that superseded this one
		if e.inflight {
			ch := c.join(e)
			c.mu.Unlock()
			return <-ch
		}
		snap := e.snapshot(c.subscriberCount(e.key))
		c.mu.Unlock()
		return snap
	}
	defer c.mu.Unlock()
	return c.resolve(e, value, err, c.now().Sub(started))
}

// resolve applies the outcome of the current flight of e.
// Must be called with c.mu held.
func (c *Cache) resolve(e *entry, value any, err error, took time.Duration) Entry {
	log := c.log.With().Str("key", e.key.String()).Uint64("generation", e.generation).Logger()
	outcome := metrics.OutcomeSuccess

	e.inflight = false
	e.cancel = nil
	invalidated := e.invalidated
	e.invalidated = false
	switch {
	case err == nil:
		if !e.setValue(value) {
			log.Trace().Msg("Fetched value unchanged, keeping held value")
		}
		e.status = StatusFresh
		if invalidated {
			log.Debug().Msg("Entry invalidated during fetch, storing as stale")
			e.status = StatusStale
		}
		e.lastFetchedAt = c.now()
		e.err = nil
		e.errorAt = time.Time{}
	case e.abandoned && errors.Is(err, context.Canceled):
		log.Debug().Msg("Fetch abandoned")
		outcome = metrics.OutcomeAbandoned
		e.abandoned = false
		e.status = StatusStale
	default:
		log.Warn().Err(err).Bool("hasValue", e.hasValue).Msg("Fetch failed")
		outcome = metrics.OutcomeError
		e.status = StatusErrored
		e.err = err
		e.errorAt = c.now()
	}
	c.metrics.Fetch(e.key.Resource(), outcome, took)
	// removed entries still answer their waiters, but subscribers only see stored state
	if c.entries[e.key.String()] == e {
		c.notify(e)
	}
	return e.snapshot(c.subscriberCount(e.key))
}

// Invalidate marks all entries whose key starts with prefix as stale.
// A fetch in flight may have read the old state already, so its result
// will be stored as stale too.
// It returns the keys of invalidated entries that have subscribers.
func (c *Cache) Invalidate(prefix cachekey.Key) []cachekey.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	observed := make([]cachekey.Key, 0)
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		if e.inflight {
			e.invalidated = true
			c.log.Trace().Str("key", e.key.String()).Uint64("generation", e.generation).Msg("Invalidated during fetch")
		} else {
			e.status = StatusStale
			c.log.Trace().Str("key", e.key.String()).Msg("Invalidated")
			c.notify(e)
		}
		if c.subscriberCount(e.key) > 0 {
			observed = append(observed, e.key)
		}
	}
	return observed
}

// StaleObserved returns the keys of subscribed entries that are stale
// under maxAge and have no fetch in flight.
func (c *Cache) StaleObserved(maxAge time.Duration) []cachekey.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	keys := make([]cachekey.Key, 0)
	for k, e := range c.entries {
		if e.inflight || e.fn == nil || len(c.subscribers[k]) == 0 {
			continue
		}
		if IsStale(e.snapshot(0), maxAge, now) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Keys returns the keys of all entries.
func (c *Cache) Keys() []cachekey.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]cachekey.Key, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// Remove evicts the entry for key. A fetch in flight still completes
// and delivers its result to waiting callers, but is not stored.
func (c *Cache) Remove(key cachekey.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
}

// Clear evicts all entries. Subscriptions stay active.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.log.Debug().Msg("Cache cleared")
}

func (c *Cache) subscriberCount(key cachekey.Key) int {
	return len(c.subscribers[key.String()])
}

// call runs fn, turning a panic into a *PanicError.
func call(ctx context.Context, fn FetchFunc) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

func flightName(key cachekey.Key, generation uint64) string {
	return key.String() + "\n" + strconv.FormatUint(generation, 10)
}

func await(results <-chan singleflight.Result) <-chan Entry {
	out := make(chan Entry, 1)
	go func() {
		res := <-results
		out <- res.Val.(Entry)
	}()
	return out
}

func resolved(e Entry) <-chan Entry {
	out := make(chan Entry, 1)
	out <- e
	return out
}

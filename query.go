package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/always-cache/querycache/cache"
	cachekey "github.com/always-cache/querycache/pkg/cache-key"
	fetcher "github.com/always-cache/querycache/pkg/resource-fetcher"

	"github.com/avast/retry-go"
)

// ErrTypeMismatch is reported when the cached value for a key is not of
// the type the query asks for, i.e. two queries share a key but not a type.
var ErrTypeMismatch = errors.New("Cached value has unexpected type")

// QueryFunc fetches the data of a query.
type QueryFunc[T any] func(ctx context.Context) (T, error)

// Use returns the current state of the query for key without blocking.
// If there is no entry or it is stale, fn is run in the background and
// the result carries whatever data is held meanwhile.
func Use[T any](c *Client, key cachekey.Key, fn QueryFunc[T], opts Options) Result[T] {
	e, found, stale := c.cache.Lookup(key, c.maxAgeFor(opts))
	if opts.Disabled {
		if !found {
			return Result[T]{Key: key, Status: StatusIdle}
		}
		return resultOf[T](e)
	}
	if stale {
		c.cache.Fetch(key, wrap(c, key, fn, opts), false)
		e, _ = c.cache.Get(key)
	}
	return resultOf[T](e)
}

// Query returns the data for key, waiting for a fetch if nothing usable
// is cached. Held data is returned right away, even if it is being
// refreshed. While waiting, the caller counts as a subscriber of the entry.
func Query[T any](ctx context.Context, c *Client, key cachekey.Key, fn QueryFunc[T], opts Options) (T, error) {
	e, found, stale := c.cache.Lookup(key, c.maxAgeFor(opts))
	if found {
		r := resultOf[T](e)
		if !stale {
			return r.Data, r.Err
		}
		// a disabled query still reports held data, with the last error if any
		if opts.Disabled && (r.HasData || r.Err != nil) {
			return r.Data, r.Err
		}
		if r.Status == StatusSuccess && !opts.Disabled {
			c.cache.Fetch(key, wrap(c, key, fn, opts), false)
			return r.Data, nil
		}
	}
	if opts.Disabled {
		var zero T
		return zero, fmt.Errorf("Query %s is disabled and has no data", key)
	}

	sub := c.cache.Subscribe(key)
	defer sub.Close()
	select {
	case e = <-c.cache.Fetch(key, wrap(c, key, fn, opts), false):
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	r := resultOf[T](e)
	switch r.Status {
	case StatusSuccess:
		return r.Data, nil
	case StatusError:
		return r.Data, r.Err
	}
	return r.Data, fmt.Errorf("Query %s did not settle, entry is %s", key, e.Status)
}

// Observer receives the results of a watched query.
type Observer[T any] struct {
	sub     *cache.Subscription
	results chan Result[T]
	once    sync.Once
}

// Watch runs the query like Use and keeps delivering its results until
// the observer is closed. Only the latest result is buffered.
func Watch[T any](c *Client, key cachekey.Key, fn QueryFunc[T], opts Options) *Observer[T] {
	o := &Observer[T]{
		sub:     c.cache.Subscribe(key),
		results: make(chan Result[T], 1),
	}
	o.results <- Use(c, key, fn, opts)
	go o.forward()
	return o
}

// Results returns the channel of query results.
// It is closed after Close.
func (o *Observer[T]) Results() <-chan Result[T] {
	return o.results
}

// Close stops the observer. The cache entry stays for other consumers.
func (o *Observer[T]) Close() {
	o.once.Do(o.sub.Close)
}

func (o *Observer[T]) forward() {
	defer close(o.results)
	for e := range o.sub.Updates() {
		// forward is the only sender, so after draining the send cannot block
		select {
		case <-o.results:
		default:
		}
		o.results <- resultOf[T](e)
	}
}

// resultOf converts an entry snapshot to a query result.
func resultOf[T any](e cache.Entry) Result[T] {
	r := Result[T]{Key: e.Key, UpdatedAt: e.LastFetchedAt}
	if e.HasValue {
		data, ok := e.Value.(T)
		if !ok {
			r.Status = StatusError
			r.Err = fmt.Errorf("%w: %s holds %T, not %T", ErrTypeMismatch, e.Key, e.Value, data)
			return r
		}
		r.Data, r.HasData = data, true
	}
	switch e.Status {
	case cache.StatusFetching:
		r.Status = StatusLoading
	case cache.StatusRefreshing:
		r.Status = StatusSuccess
		r.Refreshing = true
	case cache.StatusFresh:
		r.Status = StatusSuccess
	case cache.StatusErrored:
		r.Status = StatusError
		r.Err = e.Err
	case cache.StatusStale:
		// invalidated or abandoned, held data is still served
		if r.HasData {
			r.Status = StatusSuccess
		} else {
			r.Status = StatusIdle
		}
	}
	return r
}

// wrap adapts fn to the cache, retrying retryable failures as configured.
func wrap[T any](c *Client, key cachekey.Key, fn QueryFunc[T], opts Options) cache.FetchFunc {
	retries, delay := c.retryFor(opts)
	log := c.log.With().Str("key", key.String()).Logger()
	return func(ctx context.Context) (any, error) {
		var value T
		err := retry.Do(
			func() error {
				var err error
				value, err = fn(ctx)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(uint(retries+1)),
			retry.Delay(delay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(fetcher.Retryable),
			retry.OnRetry(func(n uint, err error) {
				log.Debug().Err(err).Uint("attempt", n+1).Msg("Fetch failed, retrying")
			}),
		)
		if err != nil {
			return nil, err
		}
		return value, nil
	}
}

func isTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

package querycache

import (
	"sync"
	"time"

	"github.com/always-cache/querycache/cache"
	cachekey "github.com/always-cache/querycache/pkg/cache-key"
	"github.com/always-cache/querycache/pkg/metrics"

	"github.com/rs/zerolog"
)

type Config struct {
	// Query cache shared by all queries of the client.
	// A new cache is created if nil.
	Cache *cache.Cache
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Metrics for a cache created by the client. Ignored if Cache is set.
	Metrics metrics.Metrics
	// Default max age of fetched data. Zero means data stays fresh
	// until it is invalidated.
	MaxAge time.Duration
	// Interval for refreshing observed entries that went stale.
	// Zero disables background updates.
	UpdateInterval time.Duration
	// Default number of retries of a failed fetch, for retryable errors only.
	Retry int
	// Default pause between retries.
	RetryDelay time.Duration
}

// Options tune a single query. Zero values fall back to the client defaults,
// negative ones switch the max age policy or retries off.
type Options struct {
	MaxAge     time.Duration
	Retry      int
	RetryDelay time.Duration
	// Do not fetch. The query reports cached data or stays idle.
	Disabled bool
}

type Client struct {
	cache          *cache.Cache
	log            zerolog.Logger
	maxAge         time.Duration
	retry          int
	retryDelay     time.Duration
	updateInterval time.Duration

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// CreateClient initializes the query client.
// It starts the background update loop if an update interval is configured.
func CreateClient(config Config) *Client {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	c := &Client{
		cache:          config.Cache,
		log:            logger.With().Str("component", "query").Logger(),
		maxAge:         config.MaxAge,
		retry:          config.Retry,
		retryDelay:     config.RetryDelay,
		updateInterval: config.UpdateInterval,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	if c.cache == nil {
		c.cache = cache.New(cache.Config{Logger: &logger, Metrics: config.Metrics})
	}

	// start a goroutine to refresh stale entries
	if c.updateInterval > 0 {
		go c.updateCache()
	} else {
		close(c.done)
	}
	return c
}

// Cache returns the query cache of the client.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// Invalidate marks all entries under prefix as stale.
// Entries that are currently observed are refetched right away,
// the others on their next query. It returns the refetched keys.
func (c *Client) Invalidate(prefix cachekey.Key) []cachekey.Key {
	observed := c.cache.Invalidate(prefix)
	c.log.Debug().Str("prefix", prefix.String()).Int("observed", len(observed)).Msg("Invalidating")
	for _, key := range observed {
		c.cache.Refetch(key)
	}
	return observed
}

// Close stops the background update loop. Fetches in flight are not affected.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

func (c *Client) maxAgeFor(opts Options) time.Duration {
	if opts.MaxAge != 0 {
		return opts.MaxAge
	}
	return c.maxAge
}

func (c *Client) retryFor(opts Options) (int, time.Duration) {
	retries, delay := c.retry, c.retryDelay
	if opts.Retry != 0 {
		retries = opts.Retry
	}
	if opts.RetryDelay != 0 {
		delay = opts.RetryDelay
	}
	if retries < 0 {
		retries = 0
	}
	return retries, delay
}

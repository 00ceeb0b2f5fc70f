package querycache

import (
	"time"
)

// updateCache runs a loop to refresh the cache.
// Every update interval it asks the cache for observed entries that are
// stale under the client max age and refetches them with the function of
// their last fetch. Entries nobody observes are refreshed on their next query.
func (c *Client) updateCache() {
	defer close(c.done)
	c.log.Info().Msgf("Starting cache update loop with interval %s", c.updateInterval)
	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			c.log.Debug().Msg("Stopping cache update loop")
			return
		case <-ticker.C:
		}
		c.updateStale()
	}
}

// updateStale starts a refetch for every observed stale entry
// and returns how many were started.
func (c *Client) updateStale() int {
	keys := c.cache.StaleObserved(c.maxAge)
	if len(keys) == 0 {
		c.log.Trace().Msg("No stale entries, pausing update")
		return 0
	}
	for _, key := range keys {
		c.log.Trace().Str("key", key.String()).Msg("Updating cache entry")
		c.cache.Refetch(key)
	}
	return len(keys)
}

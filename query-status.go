package querycache

import (
	"fmt"
	"time"

	cachekey "github.com/always-cache/querycache/pkg/cache-key"
	fetcher "github.com/always-cache/querycache/pkg/resource-fetcher"
)

// Status is the state of a query as seen by its consumer.
type Status string

const (
	// Nothing fetched and no fetch running, e.g. a disabled query.
	StatusIdle Status = "idle"

	// First fetch in flight, no data yet.
	StatusLoading Status = "loading"

	// Data is available. It may be refreshed in the background,
	// see Result.Refreshing.
	StatusSuccess Status = "success"

	// The last fetch failed. Data from an earlier fetch may still be set.
	StatusError Status = "error"
)

// Result is what a query hands to its consumer.
type Result[T any] struct {
	Key     cachekey.Key
	Data    T
	HasData bool
	Status  Status
	// Set while a background refetch of displayed data is in flight.
	Refreshing bool
	Err        error
	// Time of the fetch that produced Data.
	UpdatedAt time.Time
}

// Fresh reports whether the result is successful and not being refreshed.
func (r Result[T]) Fresh() bool {
	return r.Status == StatusSuccess && !r.Refreshing
}

// CacheStatus renders the result in the manner of a Cache-Status header,
// e.g. "QueryCache; success; refreshing" or "QueryCache; error; detail=validation".
func (r Result[T]) CacheStatus() string {
	status := fmt.Sprintf("QueryCache; %s", r.Status)
	if r.Refreshing {
		status = status + "; refreshing"
	}
	if r.Err != nil {
		status = fmt.Sprintf("%s; detail=%s", status, detailOf(r.Err))
	}
	return status
}

func detailOf(err error) string {
	if kind := fetcher.KindOf(err); kind != fetcher.KindUnknown {
		return string(kind)
	}
	if isTypeMismatch(err) {
		return "type-mismatch"
	}
	return string(fetcher.KindUnknown)
}

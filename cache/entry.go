package cache

import (
	"fmt"
	"time"

	cachekey "github.com/always-cache/querycache/pkg/cache-key"

	"github.com/mitchellh/hashstructure/v2"
)

type Status int

const (
	// First load, no value held yet.
	StatusFetching Status = iota
	// Background refetch while the previous value is still served.
	StatusRefreshing
	StatusFresh
	// Invalidated, or a fetch was abandoned. Refetched on next access.
	StatusStale
	// Last fetch failed. A previous value, if any, is kept.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusFetching:
		return "fetching"
	case StatusRefreshing:
		return "refreshing"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusErrored:
		return "errored"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Entry is a snapshot of a cache entry.
// Changing it has no effect on the cache.
type Entry struct {
	Key      cachekey.Key
	Value    any
	HasValue bool
	Status   Status
	// Time of the last successful fetch.
	LastFetchedAt time.Time
	// Error of the last failed fetch, cleared on success.
	Err     error
	ErrorAt time.Time
	// Generation of the latest fetch started for the entry.
	Generation  uint64
	Subscribers int
}

// IsStale reports whether the entry needs to be refetched.
// Without a maxAge policy (maxAge <= 0) only entries that are not fresh are stale.
// With a policy, fresh entries older than maxAge are stale as well.
func IsStale(e Entry, maxAge time.Duration, now time.Time) bool {
	if e.Status != StatusFresh {
		return true
	}
	return maxAge > 0 && now.Sub(e.LastFetchedAt) > maxAge
}

// PanicError is returned for fetch functions that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("Fetch panicked: %v", e.Value)
}

type entry struct {
	key           cachekey.Key
	value         any
	hasValue      bool
	fingerprint   uint64
	hashed        bool
	status        Status
	lastFetchedAt time.Time
	err           error
	errorAt       time.Time

	fn          FetchFunc
	generation  uint64
	inflight    bool
	abandoned   bool
	invalidated bool
	cancel      func()
}

func newEntry(key cachekey.Key) *entry {
	return &entry{key: key, status: StatusStale}
}

// setValue stores a fetched value. If the value is structurally equal to
// the held one, the held one is kept and false is returned.
func (e *entry) setValue(value any) bool {
	fp, err := hashstructure.Hash(value, hashstructure.FormatV2, nil)
	if err == nil && e.hashed && e.hasValue && fp == e.fingerprint {
		return false
	}
	e.value = value
	e.hasValue = true
	e.fingerprint = fp
	e.hashed = err == nil
	return true
}

func (e *entry) snapshot(subscribers int) Entry {
	return Entry{
		Key:           e.key,
		Value:         e.value,
		HasValue:      e.hasValue,
		Status:        e.status,
		LastFetchedAt: e.lastFetchedAt,
		Err:           e.err,
		ErrorAt:       e.errorAt,
		Generation:    e.generation,
		Subscribers:   subscribers,
	}
}

// Package cache holds the per-source TTL cache that sits between the
// pipeline and external data providers. Staleness is evaluated lazily by
// the caller at read time; the cache itself never evicts, so a failed
// refresh can always fall back to the previous snapshot.
package cache

import (
	"context"
	"time"
)

// Entry is one cached source snapshot.
type Entry struct {
	Source    string        `json:"source"`
	Value     any           `json:"value"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// Fresh reports whether the entry is still within its TTL at now. The zero
// Entry is never fresh.
func (e Entry) Fresh(now time.Time) bool {
	if e.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(e.FetchedAt) <= e.TTL
}

// Age returns how long ago the entry was fetched, zero for the zero Entry.
func (e Entry) Age(now time.Time) time.Duration {
	if e.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(e.FetchedAt)
}

// Store is the cache backend. Get returns the entry as-is even when it is
// past its TTL; callers decide what staleness means for them. Put replaces
// the whole entry atomically and is only called after a successful fetch.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, source string) (Entry, bool)
	Put(ctx context.Context, source string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, source string) error
	Entries(ctx context.Context) []Entry
}

package escalate

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// cooldownRetention bounds how long a cooldown record is kept. Any sane
// cooldown window is far shorter.
const cooldownRetention = 48 * time.Hour

// CooldownStore remembers when each market was last analyzed so consecutive
// runs do not re-spend budget on the same market inside the cooldown window.
// All implementations persist across runs; the redis and SQL-backed ones
// persist across restarts too.
type CooldownStore interface {
	// LastAnalyzed returns the most recent analysis time for the market key.
	LastAnalyzed(ctx context.Context, marketKey string) (time.Time, bool)

	// Mark records an analysis of the market at the given time.
	Mark(ctx context.Context, marketKey string, at time.Time) error

	// Count returns the number of markets currently tracked.
	Count(ctx context.Context) int
}

// MemoryCooldowns is an in-process CooldownStore.
type MemoryCooldowns struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewMemoryCooldowns creates an empty in-memory store.
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{last: make(map[string]time.Time)}
}

func (m *MemoryCooldowns) LastAnalyzed(_ context.Context, marketKey string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.last[marketKey]
	return t, ok
}

func (m *MemoryCooldowns) Mark(_ context.Context, marketKey string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Drop expired records while we hold the lock; the map otherwise grows
	// with every market ever analyzed.
	for k, t := range m.last {
		if at.Sub(t) > cooldownRetention {
			delete(m.last, k)
		}
	}
	m.last[marketKey] = at
	return nil
}

func (m *MemoryCooldowns) Count(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.last)
}

// RedisCooldowns is a CooldownStore on a shared redis instance, so cooldowns
// survive restarts and apply across scanner processes.
type RedisCooldowns struct {
	client *redis.Client
	prefix string
}

// NewRedisCooldowns wraps an existing client. Keys live under
// "<prefix>:cooldown:".
func NewRedisCooldowns(client *redis.Client, prefix string) *RedisCooldowns {
	return &RedisCooldowns{client: client, prefix: prefix}
}

func (r *RedisCooldowns) key(marketKey string) string {
	return r.prefix + ":cooldown:" + marketKey
}

func (r *RedisCooldowns) LastAnalyzed(ctx context.Context, marketKey string) (time.Time, bool) {
	val, err := r.client.Get(ctx, r.key(marketKey)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("escalate: cooldown get failed", zap.String("market", marketKey), zap.Error(err))
		}
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		zap.L().Warn("escalate: corrupt cooldown record", zap.String("market", marketKey), zap.Error(err))
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}

func (r *RedisCooldowns) Mark(ctx context.Context, marketKey string, at time.Time) error {
	val := strconv.FormatInt(at.Unix(), 10)
	if err := r.client.Set(ctx, r.key(marketKey), val, cooldownRetention).Err(); err != nil {
		return eris.Wrapf(err, "escalate: mark cooldown %s", marketKey)
	}
	return nil
}

func (r *RedisCooldowns) Count(ctx context.Context) int {
	n := 0
	iter := r.client.Scan(ctx, 0, r.key("*"), 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		zap.L().Warn("escalate: cooldown scan failed", zap.Error(err))
	}
	return n
}

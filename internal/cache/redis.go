package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/model"
)

// redisRetention keeps snapshots in redis well past their TTL so a failed
// refresh can still fall back to the previous value.
const redisRetention = 24 * time.Hour

func init() {
	// Concrete types that cross the gob boundary. Third-party sources with
	// their own value types must register them before using the redis store.
	gob.Register([]model.Market{})
	gob.Register([]model.NewsItem{})
	gob.Register(model.Table{})
	gob.Register(map[string]any{})
	gob.Register([]map[string]any{})
	gob.Register([]any{})
}

// Redis is a Store backed by a shared redis instance, letting several
// scanner processes reuse each other's fetches.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. Keys live under "<prefix>:cache:".
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(source string) string {
	return r.prefix + ":cache:" + source
}

func (r *Redis) Get(ctx context.Context, source string) (Entry, bool) {
	data, err := r.client.Get(ctx, r.key(source)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache: redis get failed", zap.String("source", source), zap.Error(err))
		}
		return Entry{}, false
	}
	e, err := decodeEntry(data)
	if err != nil {
		zap.L().Warn("cache: corrupt redis entry", zap.String("source", source), zap.Error(err))
		return Entry{}, false
	}
	return e, true
}

func (r *Redis) Put(ctx context.Context, source string, value any, ttl time.Duration) error {
	e := Entry{Source: source, Value: value, FetchedAt: time.Now().UTC(), TTL: ttl}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return eris.Wrapf(err, "cache: encode %s", source)
	}
	exp := redisRetention
	if ttl > exp {
		exp = ttl
	}
	if err := r.client.Set(ctx, r.key(source), buf.Bytes(), exp).Err(); err != nil {
		return eris.Wrapf(err, "cache: put %s", source)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, source string) error {
	if err := r.client.Del(ctx, r.key(source)).Err(); err != nil {
		return eris.Wrapf(err, "cache: invalidate %s", source)
	}
	return nil
}

func (r *Redis) Entries(ctx context.Context) []Entry {
	var out []Entry
	iter := r.client.Scan(ctx, 0, r.key("*"), 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		e, err := decodeEntry(data)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := iter.Err(); err != nil {
		zap.L().Warn("cache: redis scan failed", zap.Error(err))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

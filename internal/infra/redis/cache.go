package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"participation-tracker/internal/app"
	"participation-tracker/internal/domain"
	"participation-tracker/internal/pkg/logger"
)

// CachedStore caches table reads from a backing store in Redis.
// Writes go to the backing store first and then drop every cached read for
// the table, so a cache entry never outlives a write it has not seen.
// Cached reads are stored as:
//
//	{prefix}:cache:{table}:all                  JSON []domain.Record
//	{prefix}:cache:{table}:idx:{field}:{value}  JSON []domain.Record
//	{prefix}:cache:{table}:keys                 set of the keys above
type CachedStore struct {
	client  *redis.Client
	backing app.Store
	prefix  string
	ttl     time.Duration
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCachedStore(client *redis.Client, backing app.Store, prefix string, ttl time.Duration) *CachedStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &CachedStore{
		client:  client,
		backing: backing,
		prefix:  prefix,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedStore) Put(ctx context.Context, rec domain.Record) error {
	if err := c.backing.Put(ctx, rec); err != nil {
		return err
	}
	c.invalidate(ctx, rec.Table)
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, table, id string) error {
	if err := c.backing.Delete(ctx, table, id); err != nil {
		return err
	}
	c.invalidate(ctx, table)
	return nil
}

func (c *CachedStore) DeleteByIndex(ctx context.Context, table, field, value string) error {
	if err := c.backing.DeleteByIndex(ctx, table, field, value); err != nil {
		return err
	}
	c.invalidate(ctx, table)
	return nil
}

func (c *CachedStore) QueryByIndex(ctx context.Context, table, field, value string) ([]domain.Record, error) {
	key := c.prefix + ":cache:" + table + ":idx:" + field + ":" + value
	return c.read(ctx, table, key, func() ([]domain.Record, error) {
		return c.backing.QueryByIndex(ctx, table, field, value)
	})
}

func (c *CachedStore) All(ctx context.Context, table string) ([]domain.Record, error) {
	key := c.prefix + ":cache:" + table + ":all"
	return c.read(ctx, table, key, func() ([]domain.Record, error) {
		return c.backing.All(ctx, table)
	})
}

func (c *CachedStore) read(ctx context.Context, table, key string, load func() ([]domain.Record, error)) ([]domain.Record, error) {
	if recs, ok := c.cached(ctx, key); ok {
		return recs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// another caller may have filled it while we waited
		if recs, ok := c.cached(ctx, key); ok {
			return recs, nil
		}
		recs, err := load()
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(recs)
		if err != nil {
			return nil, err
		}
		pipe := c.client.Pipeline()
		pipe.Set(ctx, key, payload, c.ttlWithJitter())
		pipe.SAdd(ctx, c.keysKey(table), key)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn().Err(err).Str("table", table).Msg("cache fill failed")
		}
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Record), nil
}

func (c *CachedStore) cached(ctx context.Context, key string) ([]domain.Record, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var recs []domain.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, false
	}
	return recs, true
}

func (c *CachedStore) invalidate(ctx context.Context, table string) {
	keysKey := c.keysKey(table)
	keys, err := c.client.SMembers(ctx, keysKey).Result()
	if err != nil {
		logger.Warn().Err(err).Str("table", table).Msg("cache invalidation failed")
		return
	}
	if err := c.client.Del(ctx, append(keys, keysKey)...).Err(); err != nil {
		logger.Warn().Err(err).Str("table", table).Msg("cache invalidation failed")
	}
}

func (c *CachedStore) keysKey(table string) string {
	return c.prefix + ":cache:" + table + ":keys"
}

func (c *CachedStore) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// Redis stores records as msgpack blobs under a shared key prefix, so several
// processes can share one cache server. Expiry is enforced by the cache layer
// through Record.ExpireAt; no redis-side TTL is set.
type Redis struct {
	client *redis.Client
	ctx    context.Context
	prefix string
}

// NewRedis connects to the redis server at addr (host:port). An empty addr
// defaults to localhost:6379.
func NewRedis(addr string) (*Redis, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: connecting to redis at %v: %v", common.ErrCache, addr, err)
	}
	return &Redis{client: client, ctx: ctx, prefix: "stockquotes:cache:"}, nil
}

func (r *Redis) GetRaw(key string) (Record, bool, error) {
	raw, err := r.client.Get(r.ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: reading %v from redis: %v", common.ErrCache, key, err)
	}
	var rec Record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("%w: decoding %v from redis: %v", common.ErrCache, key, err)
	}
	return rec, true, nil
}

func (r *Redis) Put(rec Record) error {
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding %v for redis: %v", common.ErrCache, rec.Key, err)
	}
	if err := r.client.Set(r.ctx, r.prefix+rec.Key, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: writing %v to redis: %v", common.ErrCache, rec.Key, err)
	}
	return nil
}

func (r *Redis) Delete(key string) error {
	if err := r.client.Del(r.ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: deleting %v from redis: %v", common.ErrCache, key, err)
	}
	return nil
}

// Clear removes every key under the prefix, leaving unrelated keys on the
// server untouched.
func (r *Redis) Clear() error {
	iter := r.client.Scan(r.ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: deleting %v from redis: %v", common.ErrCache, iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scanning redis keys: %v", common.ErrCache, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

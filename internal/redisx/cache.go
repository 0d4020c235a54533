package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Cache groups the Redis-backed helpers of the order service. Redis is
// never the source of truth; every read has a Postgres fallback.
type Cache struct{ rdb redis.UniversalClient }

func NewCache(rdb redis.UniversalClient) *Cache { return &Cache{rdb: rdb} }

func (c *Cache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// PublicOrder returns the cached public view, or ok=false on a miss.
func (c *Cache) PublicOrder(ctx context.Context, orderID string) ([]byte, bool, error) {
	return c.get(ctx, fmt.Sprintf(KeyOrderPublic, orderID))
}

func (c *Cache) SetPublicOrder(ctx context.Context, orderID string, body []byte) error {
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderPublic, orderID), body, TTLPublicCache).Err()
}

func (c *Cache) InvalidateOrder(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrderPublic, orderID)).Err()
}

// ReserveSubmission claims key for a submit that is about to run. When the
// key is already held it returns the stored response, or pending=true while
// the first request has not finished yet.
func (c *Cache) ReserveSubmission(ctx context.Context, key string) (body []byte, reserved, pending bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderSubmit, key)
	ok, err := c.rdb.SetNX(ctx, k, submissionPending, TTLIdempotencyPending).Result()
	if err != nil || ok {
		return nil, ok, false, err
	}
	b, found, err := c.get(ctx, k)
	if err != nil {
		return nil, false, false, err
	}
	if !found {
		// The reservation expired between the two calls.
		return nil, false, true, nil
	}
	body, pending = submissionState(b)
	return body, false, pending, nil
}

// CompleteSubmission replaces the reservation with the response body.
func (c *Cache) CompleteSubmission(ctx context.Context, key string, body []byte) error {
	return c.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderSubmit, key), body, TTLIdempotency).Err()
}

// ReleaseSubmission drops a reservation whose submit failed so the client
// can retry with the same key.
func (c *Cache) ReleaseSubmission(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderSubmit, key)).Err()
}

// MarkProcessed records eventID for service and reports whether this call
// was the first to do so.
func (c *Cache) MarkProcessed(ctx context.Context, service, eventID string) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup).Result()
}

// ForgetProcessed undoes MarkProcessed so a failed event can be retried.
func (c *Cache) ForgetProcessed(ctx context.Context, service, eventID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}

// BumpStats adds deltas to the counters of day (YYYY-MM-DD) in one round trip.
func (c *Cache) BumpStats(ctx context.Context, day string, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	key := fmt.Sprintf(KeyStats, day)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for field, d := range deltas {
			p.HIncrBy(ctx, key, field, d)
		}
		p.Expire(ctx, key, TTLStats)
		return nil
	})
	return err
}

func (c *Cache) DailyStats(ctx context.Context, day string) (map[string]int64, error) {
	raw, err := c.rdb.HGetAll(ctx, fmt.Sprintf(KeyStats, day)).Result()
	if err != nil {
		return nil, err
	}
	return parseCounters(raw)
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func submissionState(b []byte) ([]byte, bool) {
	if string(b) == submissionPending {
		return nil, true
	}
	return b, false
}

func parseCounters(raw map[string]string) (map[string]int64, error) {
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats field %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletcore/internal/apperr"
)

const (
	redisPrefix = "otp:v1:"
	// retention keeps a challenge readable past expiry so late verifications
	// report expired instead of not found.
	retention = 15 * time.Minute
)

// RedisStore keeps challenges in Redis. Consumption is a SETNX on a marker
// key, so it stays linearizable across API replicas.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

func challengeKey(id string) string { return redisPrefix + "challenge:" + id }
func consumedKey(id string) string  { return redisPrefix + "consumed:" + id }
func attemptsKey(id string) string  { return redisPrefix + "attempts:" + id }
func activeRedisKey(ownerID string, purpose Purpose) string {
	return redisPrefix + "active:" + activeKey(ownerID, purpose)
}

func (s *RedisStore) ttl(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(s.now()) + retention
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (s *RedisStore) Save(ctx context.Context, c Challenge) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	ttl := s.ttl(c.ExpiresAt)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, challengeKey(c.ID), raw, ttl)
		p.Set(ctx, activeRedisKey(c.OwnerID, c.Payload.Purpose), c.ID, ttl)
		return nil
	})
	return wrap(err)
}

func (s *RedisStore) Get(ctx context.Context, id string) (Challenge, error) {
	var (
		raw      *redis.StringCmd
		consumed *redis.IntCmd
		attempts *redis.StringCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		raw = p.Get(ctx, challengeKey(id))
		consumed = p.Exists(ctx, consumedKey(id))
		attempts = p.Get(ctx, attemptsKey(id))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Challenge{}, wrap(err)
	}

	body, err := raw.Bytes()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	if err != nil {
		return Challenge{}, wrap(err)
	}
	var c Challenge
	if err := json.Unmarshal(body, &c); err != nil {
		return Challenge{}, fmt.Errorf("decode challenge %s: %w", id, err)
	}
	c.Consumed = consumed.Val() > 0
	if n, err := attempts.Int(); err == nil {
		c.Attempts = n
	}
	return c, nil
}

func (s *RedisStore) Active(ctx context.Context, ownerID string, purpose Purpose) (string, error) {
	id, err := s.client.Get(ctx, activeRedisKey(ownerID, purpose)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, wrap(err)
}

// consumeScript marks a challenge used unless it is exhausted or already
// consumed, and clears the active pointer if it still names the challenge.
// KEYS: consumed, attempts, active. ARGV: max attempts, marker ttl ms, id.
var consumeScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[2]) or "0")
if n > tonumber(ARGV[1]) then
	return -1
end
if not redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[2]) then
	return 0
end
if redis.call("GET", KEYS[3]) == ARGV[3] then
	redis.call("DEL", KEYS[3])
end
return 1
`)

// discardScript drops a challenge and, if it is still active, points the
// owner back at the previous one for as long as that one lives.
// KEYS: challenge, active, previous challenge. ARGV: id, previous id.
var discardScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) ~= ARGV[1] then
	return 0
end
local ttl = redis.call("PTTL", KEYS[3])
if ARGV[2] ~= "" and ttl > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ttl)
else
	redis.call("DEL", KEYS[2])
end
return 1
`)

func (s *RedisStore) RecordAttempt(ctx context.Context, id string) (int, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	var incr *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, attemptsKey(id))
		p.Expire(ctx, attemptsKey(id), s.ttl(c.ExpiresAt))
		return nil
	})
	if err != nil {
		return 0, wrap(err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Consume(ctx context.Context, id string, maxAttempts int) (bool, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	keys := []string{consumedKey(id), attemptsKey(id), activeRedisKey(c.OwnerID, c.Payload.Purpose)}
	res, err := consumeScript.Run(ctx, s.client, keys, maxAttempts, s.ttl(c.ExpiresAt).Milliseconds(), id).Int()
	if err != nil {
		return false, wrap(err)
	}
	switch res {
	case -1:
		return false, errAttemptsExhausted
	case 0:
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) Discard(ctx context.Context, c Challenge, previous string) error {
	keys := []string{challengeKey(c.ID), activeRedisKey(c.OwnerID, c.Payload.Purpose), challengeKey(previous)}
	return wrap(discardScript.Run(ctx, s.client, keys, c.ID, previous).Err())
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Transient(err)
}

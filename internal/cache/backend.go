package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss key does not exist
var ErrCacheMiss = errors.New("cache miss")

// ScoredMember sorted-set entry
type ScoredMember struct {
	Member string
	Score  float64
}

// Tx collects write commands applied atomically by Backend.Atomic
type Tx interface {
	Set(key, value string, ttl time.Duration)
	Del(keys ...string)
	ZAdd(key string, members ...ScoredMember)
	ZAddNX(key string, members ...ScoredMember)
	ZRem(key string, members ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	Expire(key string, ttl time.Duration)
}

// Backend key-value store used by the cache (replaceable in tests)
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	ZRange(ctx context.Context, key string) ([]string, error)
	ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	// ZRangeByScore members with min <= score <= max
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error)

	SMembers(ctx context.Context, key string) ([]string, error)
	SUnion(ctx context.Context, keys ...string) ([]string, error)
	// SRemUnlessExists removes member from every set in setKeys only while
	// guardKey does not exist, checked and applied atomically. Reports
	// whether the removal ran.
	SRemUnlessExists(ctx context.Context, guardKey, member string, setKeys ...string) (bool, error)

	// Atomic runs fn's commands in one MULTI/EXEC
	Atomic(ctx context.Context, fn func(tx Tx)) error
}

// RedisBackend go-redis implementation
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisBackend) ZRange(ctx context.Context, key string) ([]string, error) {
	return r.client.ZRange(ctx, key, 0, -1).Result()
}

func (r *RedisBackend) ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error) {
	return r.client.ZIncrBy(ctx, key, incr, member).Result()
}

func (r *RedisBackend) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	zs, err := r.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return fromZ(zs), nil
}

func (r *RedisBackend) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error) {
	zs, err := r.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, err
	}
	return fromZ(zs), nil
}

func (r *RedisBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

func (r *RedisBackend) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return r.client.SUnion(ctx, keys...).Result()
}

// KEYS[1] guard, KEYS[2..] sets, ARGV[1] member
var sremUnlessExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
for i = 2, #KEYS do
	redis.call("SREM", KEYS[i], ARGV[1])
end
return 1
`)

func (r *RedisBackend) SRemUnlessExists(ctx context.Context, guardKey, member string, setKeys ...string) (bool, error) {
	if len(setKeys) == 0 {
		return false, nil
	}
	keys := append([]string{guardKey}, setKeys...)
	n, err := sremUnlessExists.Run(ctx, r.client, keys, member).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisBackend) Atomic(ctx context.Context, fn func(tx Tx)) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(&redisTx{ctx: ctx, pipe: pipe})
		return nil
	})
	return err
}

type redisTx struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (t *redisTx) Set(key, value string, ttl time.Duration) {
	t.pipe.Set(t.ctx, key, value, ttl)
}

func (t *redisTx) Del(keys ...string) {
	if len(keys) > 0 {
		t.pipe.Del(t.ctx, keys...)
	}
}

func (t *redisTx) ZAdd(key string, members ...ScoredMember) {
	if len(members) > 0 {
		t.pipe.ZAdd(t.ctx, key, toZ(members)...)
	}
}

func (t *redisTx) ZAddNX(key string, members ...ScoredMember) {
	if len(members) > 0 {
		t.pipe.ZAddNX(t.ctx, key, toZ(members)...)
	}
}

func (t *redisTx) ZRem(key string, members ...string) {
	if len(members) > 0 {
		t.pipe.ZRem(t.ctx, key, toArgs(members)...)
	}
}

func (t *redisTx) SAdd(key string, members ...string) {
	if len(members) > 0 {
		t.pipe.SAdd(t.ctx, key, toArgs(members)...)
	}
}

func (t *redisTx) SRem(key string, members ...string) {
	if len(members) > 0 {
		t.pipe.SRem(t.ctx, key, toArgs(members)...)
	}
}

func (t *redisTx) Expire(key string, ttl time.Duration) {
	t.pipe.Expire(t.ctx, key, ttl)
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}

func toZ(members []ScoredMember) []*redis.Z {
	zs := make([]*redis.Z, len(members))
	for i, m := range members {
		zs[i] = &redis.Z{Score: m.Score, Member: m.Member}
	}
	return zs
}

func fromZ(zs []redis.Z) []ScoredMember {
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out
}

package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implementa domain.Backend sobre Redis.
//
// Layout das chaves (prefixo padrão "queue:default"):
//
//	<prefix>:waiting        ZSET  member=id score=chegada (UnixMicro)
//	<prefix>:waitttl:<id>   STRING "ok" com EX = TTL de espera
//	<prefix>:active         ZSET  member=id score=deadline (UnixMilli)
//
// Vagas ativas usam um ZSET com deadline no score em vez de uma chave com TTL
// por cliente: assim Count não precisa de KEYS/SCAN. Membros vencidos são
// removidos de forma preguiçosa em Count e ListActive.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

type RedisBackendOption func(*RedisBackend)

// WithQueuePrefix troca o prefixo das chaves (ex: "queue:checkout").
func WithQueuePrefix(prefix string) RedisBackendOption {
	return func(b *RedisBackend) { b.prefix = strings.Trim(prefix, ":") }
}

// WithRedisClock troca o relógio usado para os deadlines das vagas ativas.
func WithRedisClock(now func() time.Time) RedisBackendOption {
	return func(b *RedisBackend) { b.now = now }
}

func NewRedisBackend(rdb *redis.Client, opts ...RedisBackendOption) *RedisBackend {
	b := &RedisBackend{
		rdb:    rdb,
		prefix: "queue:default",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ domain.Backend = (*RedisBackend)(nil)

// touchActiveScript só estende o deadline de uma vaga ainda viva.
// Um ZADD XX simples ressuscitaria uma vaga vencida que ainda não foi podada.
var touchActiveScript = redis.NewScript(`
local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not s or tonumber(s) <= tonumber(ARGV[2]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

func (b *RedisBackend) waitingKey() string { return b.prefix + ":waiting" }
func (b *RedisBackend) activeKey() string  { return b.prefix + ":active" }

func (b *RedisBackend) waitTTLKey(id domain.ClientID) string {
	return b.prefix + ":waitttl:" + string(id)
}

func (b *RedisBackend) nowMillis() int64 { return b.now().UnixMilli() }

// Ping verifica a conexão (usado no healthcheck).
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBackend) Enqueue(ctx context.Context, id domain.ClientID, arrival float64) (bool, error) {
	n, err := b.rdb.ZAddNX(ctx, b.waitingKey(), redis.Z{Score: arrival, Member: string(id)}).Result()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", id, err)
	}
	return n == 1, nil
}

func (b *RedisBackend) RankOf(ctx context.Context, id domain.ClientID) (int64, bool, error) {
	rank, err := b.rdb.ZRank(ctx, b.waitingKey(), string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return -1, false, nil
	}
	if err != nil {
		return -1, false, fmt.Errorf("rank %s: %w", id, err)
	}
	return rank, true, nil
}

// PopLowest usa ZPOPMIN, que é atômico no servidor: dois ciclos concorrentes
// nunca recebem o mesmo id.
func (b *RedisBackend) PopLowest(ctx context.Context, n int) ([]domain.ClientID, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := b.rdb.ZPopMin(ctx, b.waitingKey(), int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("pop lowest %d: %w", n, err)
	}
	out := make([]domain.ClientID, 0, len(zs))
	for _, z := range zs {
		out = append(out, domain.ClientID(memberString(z.Member)))
	}
	return out, nil
}

func (b *RedisBackend) Remove(ctx context.Context, id domain.ClientID) (bool, error) {
	n, err := b.rdb.ZRem(ctx, b.waitingKey(), string(id)).Result()
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", id, err)
	}
	return n > 0, nil
}

func (b *RedisBackend) ListRange(ctx context.Context, start, end int64) ([]domain.ClientID, error) {
	members, err := b.rdb.ZRange(ctx, b.waitingKey(), start, end).Result()
	if err != nil {
		return nil, fmt.Errorf("list waiting [%d,%d]: %w", start, end, err)
	}
	return toClientIDs(members), nil
}

func (b *RedisBackend) TouchWaiting(ctx context.Context, id domain.ClientID, ttl time.Duration) error {
	if err := b.rdb.Set(ctx, b.waitTTLKey(id), "ok", ttl).Err(); err != nil {
		return fmt.Errorf("touch waiting %s: %w", id, err)
	}
	return nil
}

func (b *RedisBackend) IsAliveWaiting(ctx context.Context, id domain.ClientID) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.waitTTLKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("waiting liveness %s: %w", id, err)
	}
	return n == 1, nil
}

func (b *RedisBackend) DropWaiting(ctx context.Context, id domain.ClientID) error {
	if err := b.rdb.Del(ctx, b.waitTTLKey(id)).Err(); err != nil {
		return fmt.Errorf("drop waiting %s: %w", id, err)
	}
	return nil
}

func (b *RedisBackend) TouchActive(ctx context.Context, id domain.ClientID, ttl time.Duration) (bool, error) {
	now := b.now()
	n, err := touchActiveScript.Run(ctx, b.rdb,
		[]string{b.activeKey()},
		string(id), now.UnixMilli(), now.Add(ttl).UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("touch active %s: %w", id, err)
	}
	return n == 1, nil
}

func (b *RedisBackend) IsAliveActive(ctx context.Context, id domain.ClientID) (bool, error) {
	score, err := b.rdb.ZScore(ctx, b.activeKey(), string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("active liveness %s: %w", id, err)
	}
	return int64(score) > b.nowMillis(), nil
}

func (b *RedisBackend) DropActive(ctx context.Context, id domain.ClientID) error {
	_, err := b.Release(ctx, id)
	return err
}

// Count poda os deadlines vencidos e conta o restante numa transação MULTI.
func (b *RedisBackend) Count(ctx context.Context) (int, error) {
	var card *redis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, b.activeKey(), "-inf", strconv.FormatInt(b.nowMillis(), 10))
		card = pipe.ZCard(ctx, b.activeKey())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return int(card.Val()), nil
}

func (b *RedisBackend) Admit(ctx context.Context, id domain.ClientID, ttl time.Duration) error {
	deadline := b.now().Add(ttl).UnixMilli()
	if err := b.rdb.ZAdd(ctx, b.activeKey(), redis.Z{Score: float64(deadline), Member: string(id)}).Err(); err != nil {
		return fmt.Errorf("admit %s: %w", id, err)
	}
	return nil
}

func (b *RedisBackend) Release(ctx context.Context, id domain.ClientID) (bool, error) {
	n, err := b.rdb.ZRem(ctx, b.activeKey(), string(id)).Result()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", id, err)
	}
	return n > 0, nil
}

func (b *RedisBackend) ListActive(ctx context.Context) ([]domain.ClientID, error) {
	var members *redis.StringSliceCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, b.activeKey(), "-inf", strconv.FormatInt(b.nowMillis(), 10))
		members = pipe.ZRange(ctx, b.activeKey(), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	return toClientIDs(members.Val()), nil
}

func memberString(m any) string {
	switch v := m.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func toClientIDs(members []string) []domain.ClientID {
	out := make([]domain.ClientID, 0, len(members))
	for _, m := range members {
		out = append(out, domain.ClientID(m))
	}
	return out
}

package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"keyrelay/internal/domain"
)

// DefaultRedisKey is the list that holds encoded events, newest at the head.
const DefaultRedisKey = "keyrelay:quarantine"

// RedisLedger keeps events in a capped Redis list so several relays can share one ledger.
type RedisLedger struct {
	rdb    *redis.Client
	key    string
	maxLen int
}

// NewRedisLedger wraps an existing client. maxLen <= 0 uses DefaultMaxLen.
func NewRedisLedger(rdb *redis.Client, maxLen int) *RedisLedger {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisLedger{rdb: rdb, key: DefaultRedisKey, maxLen: maxLen}
}

// OpenRedis parses a redis:// URL, pings the server and returns a ledger on it.
func OpenRedis(ctx context.Context, url string, maxLen int) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ledger redis: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ledger redis ping: %w", err)
	}
	return NewRedisLedger(rdb, maxLen), nil
}

func (l *RedisLedger) Record(ctx context.Context, ev domain.QuarantineEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ledger redis encode: %w", err)
	}
	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, l.key, data)
	pipe.LTrim(ctx, l.key, 0, int64(l.maxLen-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledger redis record: %w", err)
	}
	return nil
}

// List returns up to limit events, newest first. limit <= 0 returns all.
func (l *RedisLedger) List(ctx context.Context, limit int) ([]domain.QuarantineEvent, error) {
	stop := int64(limit - 1)
	if limit <= 0 {
		stop = -1
	}
	raw, err := l.rdb.LRange(ctx, l.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger redis list: %w", err)
	}
	out := make([]domain.QuarantineEvent, 0, len(raw))
	for _, s := range raw {
		var ev domain.QuarantineEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			return nil, fmt.Errorf("ledger redis decode: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (l *RedisLedger) Close() error { return l.rdb.Close() }

var _ domain.QuarantineLedger = (*RedisLedger)(nil)

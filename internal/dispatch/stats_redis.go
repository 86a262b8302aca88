package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore writes counters to Redis hashes so several bot instances
// can share one view of upstream throttling.
//
// Keys:
//
//	<prefix>:total                 field = outcome
//	<prefix>:minute:<yyyymmddhhmm> field = outcome, expires after ttl
//	<prefix>:dispatcher:<name>     field = outcome
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl applies to the per-minute buckets only.
	ttl time.Duration
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "stevenson:dispatch",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Prefix() string { return s.prefix }

func (s *RedisStatsStore) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if name := strings.TrimSpace(ev.Dispatcher); name != "" {
		pipe.HIncrBy(ctx, s.prefix+":dispatcher:"+name, field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

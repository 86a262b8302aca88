package dispatch

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHook records pipelined commands and answers them without a server.
type captureHook struct {
	mu   sync.Mutex
	cmds [][]string
	err  error
}

func (h *captureHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("dial %s: not allowed in tests", addr)
	}
}

func (h *captureHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return h.capture(cmd)
	}
}

func (h *captureHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if err := h.capture(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func (h *captureHook) capture(cmd redis.Cmder) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	args := make([]string, len(cmd.Args()))
	for i, a := range cmd.Args() {
		args[i] = fmt.Sprint(a)
	}
	h.cmds = append(h.cmds, args)
	if h.err != nil {
		cmd.SetErr(h.err)
	}
	return h.err
}

func createTestRedis(t *testing.T) (*redis.Client, *captureHook) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })
	hook := &captureHook{}
	rdb.AddHook(hook)
	return rdb, hook
}

func TestRedisStatsStore_Record(t *testing.T) {
	rdb, hook := createTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("rel:stats"), WithStatsTTL(2*time.Hour))

	at := time.Date(2026, 10, 15, 12, 34, 56, 0, time.FixedZone("CEST", 2*60*60))
	err := s.Record(context.Background(), StatsEvent{Dispatcher: "jira", Outcome: OutcomeRejected, Attempt: 2, At: at})
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"hincrby", "rel:stats:total", "rejected", "1"},
		{"hincrby", "rel:stats:minute:202610151034", "rejected", "1"},
		{"expire", "rel:stats:minute:202610151034", "7200"},
		{"hincrby", "rel:stats:dispatcher:jira", "rejected", "1"},
	}, hook.cmds)
}

func TestRedisStatsStore_RecordWithoutTTLOrDispatcher(t *testing.T) {
	rdb, hook := createTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsTTL(0))

	at := time.Date(2026, 10, 15, 9, 5, 0, 0, time.UTC)
	require.NoError(t, s.Record(context.Background(), StatsEvent{Outcome: OutcomeAccepted, At: at}))

	assert.Equal(t, [][]string{
		{"hincrby", "stevenson:dispatch:total", "accepted", "1"},
		{"hincrby", "stevenson:dispatch:minute:202610150905", "accepted", "1"},
	}, hook.cmds)
}

func TestRedisStatsStore_RecordError(t *testing.T) {
	rdb, hook := createTestRedis(t)
	hook.err = fmt.Errorf("READONLY replica")
	s := NewRedisStatsStore(rdb)

	err := s.Record(context.Background(), StatsEvent{Outcome: OutcomeFailed, At: time.Now()})
	assert.ErrorContains(t, err, "READONLY")
}

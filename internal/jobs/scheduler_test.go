package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/config"
)

type purger struct {
	calls  atomic.Int32
	cutoff atomic.Value
}

func (p *purger) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls.Add(1)
	p.cutoff.Store(cutoff)
	return 2, nil
}

func TestTrimStreamCapsLength(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "events", Values: map[string]any{"i": i}}).Err())
	}

	s := NewScheduler(config.JobsConfig{}, config.RealtimeConfig{Stream: "events", StreamMaxLen: 3}, nil, client, zerolog.Nop())
	require.NoError(t, s.TrimStream(ctx))

	n, err := client.XLen(ctx, "events").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestPurgeSessionsUsesCurrentTime(t *testing.T) {
	p := &purger{}
	s := NewScheduler(config.JobsConfig{}, config.RealtimeConfig{}, p, nil, zerolog.Nop())

	before := time.Now().UTC()
	require.NoError(t, s.PurgeSessions(context.Background()))
	assert.EqualValues(t, 1, p.calls.Load())
	assert.False(t, p.cutoff.Load().(time.Time).Before(before))
}

func TestStartRunsScheduledJobs(t *testing.T) {
	p := &purger{}
	s := NewScheduler(config.JobsConfig{SessionPurge: "* * * * * *", StreamTrim: "* * * * * *"}, config.RealtimeConfig{}, p, nil, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return p.calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(config.JobsConfig{SessionPurge: "every tuesday"}, config.RealtimeConfig{}, &purger{}, nil, zerolog.Nop())
	assert.Error(t, s.Start())
}

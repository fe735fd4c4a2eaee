// Package jobs runs periodic housekeeping on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fitcoach/internal/config"
	"fitcoach/internal/observability"
)

const jobTimeout = time.Minute

type SessionPurger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	sessions SessionPurger
	streams  *redis.Client
	specs    config.JobsConfig
	stream   string
	maxLen   int64
	log      zerolog.Logger
}

// NewScheduler wires the housekeeping jobs. streams may be nil, in which case
// the stream trim job is not scheduled.
func NewScheduler(specs config.JobsConfig, rt config.RealtimeConfig, sessions SessionPurger, streams *redis.Client, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		streams:  streams,
		specs:    specs,
		stream:   rt.Stream,
		maxLen:   rt.StreamMaxLen,
		log:      log.With().Str("component", "jobs").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.specs.SessionPurge != "" && s.sessions != nil {
		if _, err := s.cron.AddFunc(s.specs.SessionPurge, s.run("session_purge", s.PurgeSessions)); err != nil {
			return fmt.Errorf("schedule session purge: %w", err)
		}
	}
	if s.specs.StreamTrim != "" && s.streams != nil && s.maxLen > 0 {
		if _, err := s.cron.AddFunc(s.specs.StreamTrim, s.run("stream_trim", s.TrimStream)); err != nil {
			return fmt.Errorf("schedule stream trim: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling; the returned context is done once running jobs end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run(name string, job func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		err := job(ctx)
		observability.RecordJobRun(name, err, time.Now())
		if err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("job failed")
		}
	}
}

// PurgeSessions deletes device sessions whose refresh token has expired.
func (s *Scheduler) PurgeSessions(ctx context.Context) error {
	removed, err := s.sessions.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("expired sessions purged")
	}
	return nil
}

// TrimStream caps the event stream; XADD trims approximately, this makes it
// exact on a slower cadence.
func (s *Scheduler) TrimStream(ctx context.Context) error {
	removed, err := s.streams.XTrimMaxLen(ctx, s.stream, s.maxLen).Result()
	if err != nil {
		return fmt.Errorf("xtrim %s: %w", s.stream, err)
	}
	if removed > 0 {
		s.log.Debug().Int64("removed", removed).Str("stream", s.stream).Msg("event stream trimmed")
	}
	return nil
}

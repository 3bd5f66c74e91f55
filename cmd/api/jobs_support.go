package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourusername/userauth/internal/auth"
	"github.com/yourusername/userauth/internal/config"
	"github.com/yourusername/userauth/internal/jobs"
)

// lazyScheduler は auth.Manager と jobs.Manager の相互依存を解くためのスケジューラーです。
// set はサーバー起動前にのみ呼び出します。
type lazyScheduler struct {
	next auth.Scheduler
}

func (s *lazyScheduler) set(next auth.Scheduler) {
	s.next = next
}

func (s *lazyScheduler) ScheduleExpiry(ctx context.Context, userID, token string, at time.Time) error {
	if s.next == nil {
		return jobs.NoopScheduler{}.ScheduleExpiry(ctx, userID, token, at)
	}
	return s.next.ScheduleExpiry(ctx, userID, token, at)
}

// setupJobs は QUEUE_REDIS_URL が設定されている場合にセッション失効ジョブを構成します。
func setupJobs(cfg *config.Config, expirer jobs.Expirer, logger *slog.Logger) (*jobs.Manager, error) {
	if cfg.QueueRedisURL == "" {
		logger.Info("session expiry jobs disabled (QUEUE_REDIS_URL not set)")
		return nil, nil
	}
	return jobs.NewManager(cfg.QueueRedisURL, expirer, logger.With("component", "jobs"))
}

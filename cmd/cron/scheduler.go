package main

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

const defaultCheckInterval = time.Minute

// scheduler fires job once per UTC day at hour:minute. Runs never overlap.
type scheduler struct {
	hour, minute int
	interval     time.Duration
	job          func(ctx context.Context) error
	now          func() time.Time
}

// nextRun is the first hour:minute UTC strictly after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *scheduler) run(ctx context.Context, immediate bool) {
	interval := s.interval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if immediate {
		s.fire(ctx)
	}
	next := nextRun(s.now(), s.hour, s.minute)
	logx.Infof("cron: next run at %s", next.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			logx.Info("cron: stopping scheduler")
			return
		case <-ticker.C:
			next = s.tick(ctx, next)
		}
	}
}

// tick runs the job when next is due and returns the following due time.
func (s *scheduler) tick(ctx context.Context, next time.Time) time.Time {
	now := s.now()
	if now.Before(next) {
		return next
	}
	s.fire(ctx)
	next = nextRun(s.now(), s.hour, s.minute)
	logx.Infof("cron: next run at %s", next.Format(time.RFC3339))
	return next
}

func (s *scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := s.now()
	if err := s.job(ctx); err != nil {
		logx.WithContext(ctx).Errorf("cron: daily update failed: took=%s err=%v", s.now().Sub(start), err)
		return
	}
	logx.WithContext(ctx).Infof("cron: daily update done: took=%s", s.now().Sub(start))
}

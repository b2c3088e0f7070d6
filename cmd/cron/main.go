package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/internal/cli"
	"eod-collector/internal/config"
	"eod-collector/internal/svc"
)

const shutdownTimeout = 10 * time.Second // Grace period for shutdown

var (
	configFile = flag.String("f", config.DefaultPath, "the config file")
	runNow     = flag.Bool("now", false, "run one update immediately on startup")
)

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	logx.MustSetup(cfg.Log)
	logx.DisableStat()
	defer logx.Close()
	cli.LogConfigSummary(cfg)

	hour, minute, err := config.ParseDailyAt(cfg.Schedule.DailyAt)
	if err != nil {
		logx.Errorf("cron: %v", err)
		return
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx, err := svc.NewServiceContext(ctx, *cfg)
	if err != nil {
		logx.Errorf("cron: %v", err)
		return
	}

	s := &scheduler{
		hour:     hour,
		minute:   minute,
		interval: cfg.Schedule.CheckInterval,
		job:      func(ctx context.Context) error { return dailyUpdate(ctx, svcCtx) },
		now:      time.Now,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx, *runNow)
	}()

	logx.Infof("cron: scheduler started, daily update at %02d:%02d UTC", hour, minute)

	<-ctx.Done()
	logx.Info("cron: shutdown signal received, waiting for the current run")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("cron: stopped cleanly")
	case <-time.After(shutdownTimeout):
		logx.Error("cron: shutdown timeout exceeded, forcing exit")
	}
}

func dailyUpdate(ctx context.Context, svcCtx *svc.ServiceContext) error {
	c, err := svcCtx.NewCollector(svc.RunOptions{})
	if err != nil {
		return err
	}
	report, err := c.RunDaily(ctx)
	if report != nil {
		t := report.Tally()
		logx.WithContext(ctx).Infof("cron: daily update persisted=%d failed=%d skipped=%d", t.Persisted, t.Failed, t.Skipped)
	}
	return err
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/unclebandit/leadflow-backend/internal/app"
	"github.com/unclebandit/leadflow-backend/internal/config"
	"github.com/unclebandit/leadflow-backend/internal/logger"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/service"
	"github.com/unclebandit/leadflow-backend/internal/workflow"
)

func main() {
	config.LoadEnv()

	cmd := &cli.Command{
		Name:   "leadflow-worker",
		Usage:  "Consume lead workflow jobs and run the periodic ticks",
		Flags:  config.Flags(),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		zap.L().Fatal("worker exited", zap.Error(err))
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := queue.StartLeadWorkflowSubscriber(a.Queue, a.Worker, log); err != nil {
		return fmt.Errorf("subscribe to lead jobs: %w", err)
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	if err := scheduleTicks(ctx, c, cfg, a.Ticks, log); err != nil {
		return err
	}
	c.Start()

	log.Info("worker running, waiting for jobs")
	<-ctx.Done()

	log.Info("shutting down")
	<-c.Stop().Done()
	return nil
}

type ticker interface {
	ResumeDelays(ctx context.Context) (workflow.ResumeSummary, error)
	ProcessSlots(ctx context.Context) (service.SlotTickSummary, error)
}

// scheduleTicks registers the delay resume and slot ticks on c.
func scheduleTicks(ctx context.Context, c *cron.Cron, cfg *config.Config, ticks ticker, log *zap.Logger) error {
	if _, err := c.AddFunc(cfg.DelayResumeCron, func() {
		if _, err := ticks.ResumeDelays(ctx); err != nil {
			log.Error("delay resume tick failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid delay resume schedule %q: %w", cfg.DelayResumeCron, err)
	}

	if _, err := c.AddFunc(cfg.SlotTickCron, func() {
		if _, err := ticks.ProcessSlots(ctx); err != nil {
			log.Error("slot tick failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid slot tick schedule %q: %w", cfg.SlotTickCron, err)
	}
	return nil
}

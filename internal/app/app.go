// Package app assembles the repositories, engine, processor and services from
// a Config. Both the API server and the worker build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/leadflow-backend/internal/cache"
	"github.com/unclebandit/leadflow-backend/internal/channel"
	"github.com/unclebandit/leadflow-backend/internal/config"
	"github.com/unclebandit/leadflow-backend/internal/db"
	"github.com/unclebandit/leadflow-backend/internal/lock"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/outreach"
	"github.com/unclebandit/leadflow-backend/internal/provider/mock"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/repository"
	"github.com/unclebandit/leadflow-backend/internal/service"
	"github.com/unclebandit/leadflow-backend/internal/workflow"
)

type App struct {
	DB     *sql.DB
	Redis  *redis.Client
	Queue  queue.Queue
	Locker lock.Locker

	Engine    *workflow.Engine
	Processor *outreach.Processor
	Campaigns *service.CampaignService
	Worker    *service.LeadWorker
	Ticks     *service.TickService

	logger *zap.Logger
}

// New connects to Postgres, Redis and RabbitMQ as configured. Redis and
// RabbitMQ are optional; without them locks and jobs stay in-process.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	database, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	a := &App{DB: database, logger: logger}

	if cfg.RedisURL != "" {
		client, err := lock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.Locker = lock.NewRedisLocker(client, logger)
	} else {
		logger.Warn("REDIS_URL not set, using in-process locks")
		a.Locker = lock.NewLocalLocker()
	}

	if cfg.AMQPURL != "" {
		q, err := queue.DialAMQP(cfg.AMQPURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
	} else {
		logger.Warn("AMQP_URL not set, using in-memory queue")
		a.Queue = queue.NewInMemoryQueue(logger)
	}

	a.wire(cfg)
	return a, nil
}

func (a *App) wire(cfg *config.Config) {
	campaigns := &repository.CampaignRepository{DB: a.DB}
	leads := &repository.LeadRepository{DB: a.DB}
	activities := &repository.ActivityRepository{DB: a.DB}
	sequences := &repository.SequenceRepository{DB: a.DB}

	provider := mock.NewClient(cfg.MockSuccessRate, nil, a.logger)
	seed := time.Now().UnixNano()

	// The engine owns the definition cache; the LinkedIn dispatcher resolves the
	// sending account through it as well.
	executor := workflow.NewExecutor(leads, activities, nil, provider, a.logger)
	a.Engine = workflow.NewEngine(campaigns, leads, executor, a.Locker, a.logger)
	a.Engine.MaxSteps = cfg.MaxWorkflowSteps
	a.Engine.Concurrency = cfg.LeadConcurrency
	a.Engine.Definitions = cache.NewDefinitionCache(campaigns, cfg.DefinitionCacheTTL)

	accountFor := func(ctx context.Context, lead *model.Lead) (string, error) {
		c, err := a.Engine.Definitions.Campaign(ctx, lead.CampaignID)
		if err != nil {
			return "", fmt.Errorf("resolve sending account: %w", err)
		}
		return c.AccountID, nil
	}

	registry := channel.NewRegistry()
	registry.Register(channel.WithRetry(channel.NewLinkedInDispatcher(provider, accountFor), cfg.ProviderTimeout, a.logger),
		model.StepLinkedInConnect, model.StepLinkedInMessage, model.StepLinkedInVisit, model.StepLinkedInFollow)
	registry.Register(channel.WithRetry(channel.NewEmailDispatcher(provider), cfg.ProviderTimeout, a.logger),
		model.StepEmailSend, model.StepEmailFollowup)
	registry.Register(channel.WithRetry(channel.NewVoiceDispatcher(provider), cfg.ProviderTimeout, a.logger),
		model.StepVoiceAgentCall)
	executor.Dispatcher = registry

	a.Processor = outreach.NewProcessor(sequences, leads, activities, provider, a.Locker, rand.New(rand.NewSource(seed)), a.logger)
	a.Processor.Timeout = cfg.ProviderTimeout

	scheduler := outreach.NewScheduler(sequences, rand.New(rand.NewSource(seed+1)), a.logger)
	a.Campaigns = service.NewCampaignService(campaigns, leads, sequences, scheduler, a.Queue, a.Engine, a.logger)
	a.Worker = service.NewLeadWorker(leads, a.Engine.Definitions, a.Engine, a.logger)
	a.Ticks = service.NewTickService(a.Engine, a.Processor, sequences, cfg.LeadConcurrency, a.logger)
}

// StartLocalConsumer subscribes the lead worker when jobs never leave the
// process. It is a no-op for a broker-backed queue.
func (a *App) StartLocalConsumer() error {
	if _, ok := a.Queue.(*queue.InMemoryQueue); !ok {
		return nil
	}
	return queue.StartLeadWorkflowSubscriber(a.Queue, a.Worker, a.logger)
}

func (a *App) Close() {
	if c, ok := a.Queue.(*queue.AMQPQueue); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("failed to close amqp connection", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

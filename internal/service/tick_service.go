package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/leadflow-backend/internal/outreach"
	"github.com/unclebandit/leadflow-backend/internal/repository"
	"github.com/unclebandit/leadflow-backend/internal/workflow"
)

type DelayResumer interface {
	ResumeDueDelays(ctx context.Context) (workflow.ResumeSummary, error)
}

type SlotProcessor interface {
	ProcessPendingSlots(ctx context.Context, accountID, tenantID string) (outreach.ProcessResult, error)
}

type SlotTickSummary struct {
	Accounts  int `json:"accounts"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// TickService runs the periodic passes. Both ticks are safe to run repeatedly
// and concurrently with themselves.
type TickService struct {
	Delays       DelayResumer
	Slots        SlotProcessor
	SequenceRepo repository.SequenceRepositoryInterface
	Concurrency  int

	logger *zap.Logger
}

func NewTickService(delays DelayResumer, slots SlotProcessor, sequences repository.SequenceRepositoryInterface, concurrency int, logger *zap.Logger) *TickService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickService{
		Delays:       delays,
		Slots:        slots,
		SequenceRepo: sequences,
		Concurrency:  concurrency,
		logger:       logger.With(zap.String("module", "tick_service")),
	}
}

func (t *TickService) ResumeDelays(ctx context.Context) (workflow.ResumeSummary, error) {
	return t.Delays.ResumeDueDelays(ctx)
}

// ProcessSlots runs the slot processor for every account with an active
// sequence. Accounts are processed in parallel.
func (t *TickService) ProcessSlots(ctx context.Context) (SlotTickSummary, error) {
	var summary SlotTickSummary

	accounts, err := t.SequenceRepo.ListActiveAccounts(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active accounts: %w", err)
	}
	summary.Accounts = len(accounts)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(t.Concurrency, 1))

	for _, acc := range accounts {
		g.Go(func() error {
			res, err := t.Slots.ProcessPendingSlots(gctx, acc.AccountID, acc.TenantID)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed += res.Processed
			summary.Failed += res.Failed
			if err != nil {
				summary.Errors++
				t.logger.Warn("slot tick failed for account",
					zap.String("account_id", acc.AccountID),
					zap.String("tenant_id", acc.TenantID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	t.logger.Info("slot tick finished",
		zap.Int("accounts", summary.Accounts),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("errors", summary.Errors))
	return summary, ctx.Err()
}

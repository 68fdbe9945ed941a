package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/leadflow-backend/internal/cache"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/lock"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

const (
	DefaultMaxSteps    = 100
	DefaultConcurrency = 8
	DefaultLockTTL     = 5 * time.Minute
)

// Result describes where a workflow pass for one lead stopped.
type Result struct {
	OK         bool
	HaltReason appErrors.HaltReason
	StepID     string
	Steps      int
	Err        error
}

// ResumeSummary aggregates one delay-resume tick.
type ResumeSummary struct {
	Due       int `json:"due"`
	Completed int `json:"completed"`
	Waiting   int `json:"waiting"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Engine drives leads through a campaign graph until the next suspension point.
type Engine struct {
	Campaigns   repository.CampaignRepositoryInterface
	Leads       repository.LeadRepositoryInterface
	Executor    *Executor
	Evaluator   *Evaluator
	Locker      lock.Locker
	Definitions *cache.DefinitionCache

	MaxSteps    int
	Concurrency int
	LockTTL     time.Duration
	Now         func() time.Time

	logger *zap.Logger
}

func NewEngine(
	campaigns repository.CampaignRepositoryInterface,
	leads repository.LeadRepositoryInterface,
	executor *Executor,
	locker lock.Locker,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Engine{
		Campaigns:   campaigns,
		Leads:       leads,
		Executor:    executor,
		Evaluator:   NewEvaluator(executor.Now),
		Locker:      locker,
		Definitions: cache.NewDefinitionCache(campaigns, cache.DefaultTTL),
		MaxSteps:    DefaultMaxSteps,
		Concurrency: DefaultConcurrency,
		LockTTL:     DefaultLockTTL,
		Now:         time.Now,
		logger:      logger.With(zap.String("module", "workflow_engine")),
	}
}

// ProcessLeadWorkflow advances lead from its current step, or from the start step
// when it has none, until a delay, the end of the graph, or a failure. A failed
// step leaves the lead at that step so the next pass retries it.
func (e *Engine) ProcessLeadWorkflow(ctx context.Context, campaignID string, lead *model.Lead, def *model.CampaignDefinition) *Result {
	log := e.logger.With(zap.String("campaign_id", campaignID), zap.String("lead_id", lead.ID))

	release, err := e.Locker.Acquire(ctx, lock.LeadKey(lead.ID), e.lockTTL())
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			log.Debug("lead is being processed elsewhere")
			return &Result{HaltReason: appErrors.HaltLeadBusy, StepID: lead.CurrentStepID}
		}
		return &Result{HaltReason: appErrors.HaltStepFailed, StepID: lead.CurrentStepID, Err: fmt.Errorf("acquire lead lock: %w", err)}
	}
	defer release()

	// The caller's copy may predate another pass that finished under this lock.
	fresh, err := e.Leads.GetByID(ctx, lead.ID)
	if err != nil {
		return &Result{HaltReason: appErrors.HaltStepFailed, StepID: lead.CurrentStepID, Err: fmt.Errorf("reload lead: %w", err)}
	}
	*lead = *fresh
	switch lead.Status {
	case model.LeadCompleted:
		return &Result{OK: true, HaltReason: appErrors.HaltCompleted, StepID: lead.CurrentStepID}
	case model.LeadFailed:
		return &Result{HaltReason: appErrors.HaltLeadFailed, StepID: lead.CurrentStepID}
	}

	res := &Result{StepID: lead.CurrentStepID}

	if res.StepID == "" {
		start, err := startStep(def)
		if err != nil {
			return e.fail(ctx, log, lead, res, appErrors.HaltNoStartStep, err)
		}
		if err := e.Leads.UpdateCurrentStep(ctx, lead.ID, start.ID); err != nil {
			return e.halt(res, appErrors.HaltStepFailed, fmt.Errorf("set start step: %w", err))
		}
		lead.CurrentStepID = start.ID
		lead.Status = model.LeadInProgress
		res.StepID = start.ID
	}

	var prior map[string]any
	for i := 0; i < e.maxSteps(); i++ {
		if err := ctx.Err(); err != nil {
			return e.halt(res, appErrors.HaltStepFailed, err)
		}
		status, err := e.Campaigns.GetStatus(ctx, campaignID)
		if err != nil {
			return e.halt(res, appErrors.HaltStepFailed, fmt.Errorf("read campaign status: %w", err))
		}
		if status != model.CampaignActive {
			log.Info("campaign not active, stopping pass", zap.String("status", string(status)))
			return e.halt(res, appErrors.HaltCampaignInactive, nil)
		}

		step, ok := def.Step(res.StepID)
		if !ok {
			return e.fail(ctx, log, lead, res, appErrors.HaltDanglingStep,
				appErrors.NewConfigurationError(res.StepID, appErrors.ErrDanglingStep, "lead points at a missing step"))
		}

		out := e.Executor.ExecuteStep(ctx, campaignID, lead, step)
		if out.Err != nil {
			if appErrors.IsConfiguration(out.Err) {
				return e.fail(ctx, log, lead, res, appErrors.HaltInvalidConfig, out.Err)
			}
			return e.halt(res, appErrors.HaltStepFailed, out.Err)
		}
		res.Steps++

		if out.DelayPending {
			log.Debug("lead waiting on delay", zap.String("step_id", step.ID), zap.Timep("until", out.DelayUntil))
			return e.halt(res, appErrors.HaltDelayPending, nil)
		}
		if step.Type == model.StepEnd {
			lead.Status = model.LeadCompleted
			res.OK = true
			return e.halt(res, appErrors.HaltCompleted, nil)
		}
		if step.Type.IsChannelAction() {
			prior = out.Data
		}

		branch := false
		if step.Type == model.StepCondition {
			cfg, ok := model.NormalizeConfig(step.Config).(model.ConditionConfig)
			if !ok {
				return e.fail(ctx, log, lead, res, appErrors.HaltInvalidConfig,
					appErrors.NewConfigurationError(step.ID, appErrors.ErrInvalidStepConfig, "condition step without condition config"))
			}
			if !KnownCondition(cfg.ConditionType) {
				log.Warn("unknown condition type, taking the no branch",
					zap.String("step_id", step.ID), zap.String("condition_type", string(cfg.ConditionType)))
			}
			branch = e.Evaluator.Evaluate(step, lead, prior)
		}

		next, err := nextStepID(def, step, branch)
		if err != nil {
			return e.fail(ctx, log, lead, res, appErrors.HaltDanglingStep, err)
		}
		if next == "" {
			if err := e.Leads.UpdateStatus(ctx, lead.ID, model.LeadCompleted); err != nil {
				return e.halt(res, appErrors.HaltStepFailed, fmt.Errorf("complete lead: %w", err))
			}
			lead.Status = model.LeadCompleted
			res.OK = true
			return e.halt(res, appErrors.HaltCompleted, nil)
		}
		if _, ok := def.Step(next); !ok {
			return e.fail(ctx, log, lead, res, appErrors.HaltDanglingStep,
				appErrors.NewConfigurationError(step.ID, appErrors.ErrDanglingStep, "edge targets missing step "+next))
		}
		if err := e.Leads.UpdateCurrentStep(ctx, lead.ID, next); err != nil {
			return e.halt(res, appErrors.HaltStepFailed, fmt.Errorf("advance lead: %w", err))
		}
		lead.CurrentStepID = next
		res.StepID = next
	}

	return e.fail(ctx, log, lead, res, appErrors.HaltRunawayWorkflow, &appErrors.RunawayWorkflowError{
		LeadID:     lead.ID,
		LastStepID: res.StepID,
		Iterations: e.maxSteps(),
	})
}

func (e *Engine) halt(res *Result, reason appErrors.HaltReason, err error) *Result {
	res.HaltReason = reason
	res.Err = err
	return res
}

// fail halts the pass for a reason no retry can fix and marks the lead failed.
func (e *Engine) fail(ctx context.Context, log *zap.Logger, lead *model.Lead, res *Result, reason appErrors.HaltReason, err error) *Result {
	log.Error("lead workflow halted", zap.String("reason", string(reason)), zap.String("step_id", res.StepID), zap.Error(err))
	if uerr := e.Leads.UpdateStatus(ctx, lead.ID, model.LeadFailed); uerr != nil {
		log.Error("failed to mark lead failed", zap.Error(uerr))
	} else {
		lead.Status = model.LeadFailed
	}
	return e.halt(res, reason, err)
}

// ResumeDueDelays re-enters every lead whose delay has come due. Leads run in
// parallel up to Concurrency; a failure on one lead does not stop the others.
func (e *Engine) ResumeDueDelays(ctx context.Context) (ResumeSummary, error) {
	var summary ResumeSummary

	leads, err := e.Leads.GetDueDelayedLeads(ctx, e.now())
	if err != nil {
		return summary, fmt.Errorf("list due delayed leads: %w", err)
	}
	summary.Due = len(leads)
	if len(leads) == 0 {
		return summary, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())

	for _, lead := range leads {
		g.Go(func() error {
			res := e.resumeLead(gctx, lead)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.HaltReason == appErrors.HaltCompleted:
				summary.Completed++
			case res.HaltReason == appErrors.HaltDelayPending:
				summary.Waiting++
			case res.HaltReason == appErrors.HaltLeadBusy, res.HaltReason == appErrors.HaltCampaignInactive:
				summary.Skipped++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("delay resume pass finished",
		zap.Int("due", summary.Due),
		zap.Int("completed", summary.Completed),
		zap.Int("waiting", summary.Waiting),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, ctx.Err()
}

func (e *Engine) resumeLead(ctx context.Context, lead *model.Lead) *Result {
	campaign, err := e.Definitions.Campaign(ctx, lead.CampaignID)
	if err != nil {
		e.logger.Warn("cannot load campaign for due lead",
			zap.String("campaign_id", lead.CampaignID), zap.String("lead_id", lead.ID), zap.Error(err))
		return &Result{HaltReason: appErrors.HaltStepFailed, StepID: lead.CurrentStepID, Err: err}
	}
	return e.ProcessLeadWorkflow(ctx, campaign.ID, lead, &campaign.Definition)
}

// InvalidateDefinition drops a cached campaign after it was edited.
func (e *Engine) InvalidateDefinition(campaignID string) {
	e.Definitions.Invalidate(campaignID)
}

func (e *Engine) maxSteps() int {
	if e.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return e.MaxSteps
}

func (e *Engine) concurrency() int {
	if e.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return e.Concurrency
}

func (e *Engine) lockTTL() time.Duration {
	if e.LockTTL <= 0 {
		return DefaultLockTTL
	}
	return e.LockTTL
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadflow-backend/internal/channel"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

// LeadSource produces candidate leads for a lead_generation step.
type LeadSource interface {
	Search(ctx context.Context, filters map[string]any, limit int) ([]*model.Lead, error)
}

// StepOutcome is the result of executing one step for one lead.
type StepOutcome struct {
	Success        bool
	DelayPending   bool
	DelayUntil     *time.Time
	LeadsGenerated int
	Data           map[string]any
	ActivityID     string
	Err            error
}

// Executor runs a single step. Every attempt leaves an Activity row: it is
// created pending before any side effect and finished with the outcome.
type Executor struct {
	Leads      repository.LeadRepositoryInterface
	Activities repository.ActivityRepositoryInterface
	Dispatcher channel.Dispatcher
	LeadSource LeadSource
	Now        func() time.Time

	logger *zap.Logger
}

func NewExecutor(
	leads repository.LeadRepositoryInterface,
	activities repository.ActivityRepositoryInterface,
	dispatcher channel.Dispatcher,
	source LeadSource,
	logger *zap.Logger,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Leads:      leads,
		Activities: activities,
		Dispatcher: dispatcher,
		LeadSource: source,
		Now:        time.Now,
		logger:     logger.With(zap.String("module", "step_executor")),
	}
}

func (x *Executor) ExecuteStep(ctx context.Context, campaignID string, lead *model.Lead, step *model.Step) *StepOutcome {
	st := *step
	log := x.logger.With(
		zap.String("campaign_id", campaignID),
		zap.String("lead_id", lead.ID),
		zap.String("step_id", st.ID),
		zap.String("step_type", string(st.Type)),
	)

	pending, err := x.Activities.FindPending(ctx, lead.ID, st.ID)
	if err != nil {
		return &StepOutcome{Err: fmt.Errorf("find pending activity: %w", err)}
	}

	if err := st.Validate(); err != nil {
		log.Error("step config rejected", zap.Error(err))
		x.recordFailure(ctx, campaignID, lead, &st, pending, err)
		return &StepOutcome{Err: err}
	}

	if st.Type == model.StepDelay {
		return x.executeDelay(ctx, campaignID, lead, &st, pending)
	}

	act := pending
	if act == nil {
		act = &model.Activity{
			CampaignID: campaignID,
			LeadID:     lead.ID,
			StepID:     st.ID,
			StepType:   st.Type,
			Status:     model.ActivityPending,
		}
		if err := x.Activities.Create(ctx, act); err != nil {
			return &StepOutcome{Err: fmt.Errorf("create activity: %w", err)}
		}
	}
	out := &StepOutcome{ActivityID: act.ID}

	switch {
	case st.Type == model.StepStart, st.Type == model.StepCondition:
	case st.Type == model.StepEnd:
		if err := x.Leads.UpdateStatus(ctx, lead.ID, model.LeadCompleted); err != nil {
			out.Err = fmt.Errorf("complete lead: %w", err)
		}
	case st.Type == model.StepLeadGeneration:
		cfg, _ := st.Config.(model.LeadGenerationConfig)
		out.LeadsGenerated, out.Data = x.generateLeads(ctx, campaignID, lead, cfg, log)
	case st.Type.IsChannelAction():
		out.Data, out.Err = x.dispatch(ctx, lead, &st)
	default:
		out.Err = appErrors.NewConfigurationError(st.ID, appErrors.ErrUnknownStepType, string(st.Type))
	}

	if out.Err != nil {
		log.Warn("step failed", zap.Error(out.Err))
		if err := x.Activities.UpdateStatus(ctx, act.ID, model.ActivityError, out.Err.Error(), out.Data); err != nil {
			log.Error("failed to mark activity error", zap.String("activity_id", act.ID), zap.Error(err))
		}
		return out
	}
	if err := x.Activities.UpdateStatus(ctx, act.ID, model.ActivityCompleted, "", out.Data); err != nil {
		out.Err = fmt.Errorf("complete activity: %w", err)
		return out
	}
	out.Success = true

	if st.Type.IsChannelAction() {
		now := x.Now()
		if err := x.Leads.TouchLastActivity(ctx, lead.ID, now); err != nil {
			log.Warn("failed to touch lead activity time", zap.Error(err))
		} else {
			lead.LastActivityAt = &now
		}
	}
	return out
}

// executeDelay parks the lead until the delay's scheduledAt. A pending delay
// activity that has come due is completed and the lead moves on.
func (x *Executor) executeDelay(ctx context.Context, campaignID string, lead *model.Lead, st *model.Step, pending *model.Activity) *StepOutcome {
	now := x.Now()

	if pending != nil {
		if pending.ScheduledAt != nil && pending.ScheduledAt.After(now) {
			return &StepOutcome{DelayPending: true, DelayUntil: pending.ScheduledAt, ActivityID: pending.ID}
		}
		if err := x.Activities.UpdateStatus(ctx, pending.ID, model.ActivityCompleted, "", nil); err != nil {
			return &StepOutcome{Err: fmt.Errorf("complete delay: %w", err)}
		}
		return &StepOutcome{Success: true, ActivityID: pending.ID}
	}

	cfg, ok := st.Config.(model.DelayConfig)
	if !ok {
		return &StepOutcome{Err: appErrors.NewConfigurationError(st.ID, appErrors.ErrInvalidStepConfig, "delay step without delay config")}
	}
	d := cfg.Duration()
	until := now.Add(d)
	act := &model.Activity{
		CampaignID:  campaignID,
		LeadID:      lead.ID,
		StepID:      st.ID,
		StepType:    st.Type,
		Status:      model.ActivityPending,
		ScheduledAt: &until,
	}
	if d == 0 {
		act.Status = model.ActivityCompleted
	}
	if err := x.Activities.Create(ctx, act); err != nil {
		return &StepOutcome{Err: fmt.Errorf("create delay activity: %w", err)}
	}
	if d == 0 {
		return &StepOutcome{Success: true, ActivityID: act.ID}
	}
	return &StepOutcome{DelayPending: true, DelayUntil: &until, ActivityID: act.ID}
}

func (x *Executor) dispatch(ctx context.Context, lead *model.Lead, st *model.Step) (map[string]any, error) {
	if x.Dispatcher == nil {
		return nil, fmt.Errorf("%w: %s", channel.ErrNoDispatcher, st.Type)
	}
	res, err := x.Dispatcher.Execute(ctx, st.Type, lead, st.Config)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("provider returned no result")
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "provider reported failure"
		}
		return res.Data, errors.New(msg)
	}
	return res.Data, nil
}

// generateLeads is best effort: provider and insert failures are logged and the
// step still succeeds.
func (x *Executor) generateLeads(ctx context.Context, campaignID string, lead *model.Lead, cfg model.LeadGenerationConfig, log *zap.Logger) (int, map[string]any) {
	if x.LeadSource == nil {
		log.Warn("lead generation skipped, no lead source configured")
		return 0, map[string]any{"leadsGenerated": 0, "warning": "no lead source configured"}
	}
	found, err := x.LeadSource.Search(ctx, cfg.Filters, cfg.Limit)
	if err != nil {
		log.Warn("lead generation failed", zap.Error(err))
		return 0, map[string]any{"leadsGenerated": 0, "warning": err.Error()}
	}
	inserted, err := x.Leads.CreateLeads(ctx, campaignID, lead.TenantID, found)
	if err != nil {
		log.Warn("failed to attach generated leads", zap.Int("found", len(found)), zap.Error(err))
		return 0, map[string]any{"leadsGenerated": 0, "found": len(found), "warning": err.Error()}
	}
	log.Info("leads generated", zap.Int("found", len(found)), zap.Int("inserted", inserted))
	return inserted, map[string]any{"leadsGenerated": inserted, "found": len(found)}
}

// recordFailure leaves an error activity for a step that could not run at all.
func (x *Executor) recordFailure(ctx context.Context, campaignID string, lead *model.Lead, st *model.Step, pending *model.Activity, cause error) {
	var err error
	if pending != nil {
		err = x.Activities.UpdateStatus(ctx, pending.ID, model.ActivityError, cause.Error(), nil)
	} else {
		err = x.Activities.Create(ctx, &model.Activity{
			CampaignID:   campaignID,
			LeadID:       lead.ID,
			StepID:       st.ID,
			StepType:     st.Type,
			Status:       model.ActivityError,
			ErrorMessage: cause.Error(),
		})
	}
	if err != nil {
		x.logger.Error("failed to record step failure", zap.String("lead_id", lead.ID), zap.String("step_id", st.ID), zap.Error(err))
	}
}

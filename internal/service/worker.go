package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/repository"
	"github.com/unclebandit/leadflow-backend/internal/workflow"
)

// WorkflowRunner is the part of the workflow engine the worker drives.
type WorkflowRunner interface {
	ProcessLeadWorkflow(ctx context.Context, campaignID string, lead *model.Lead, def *model.CampaignDefinition) *workflow.Result
}

// CampaignSource resolves a campaign and its definition, usually from a cache.
type CampaignSource interface {
	Campaign(ctx context.Context, campaignID string) (*model.Campaign, error)
}

// LeadWorker runs queued lead workflow jobs
type LeadWorker struct {
	LeadRepo  repository.LeadRepositoryInterface
	Campaigns CampaignSource
	Engine    WorkflowRunner

	logger *zap.Logger
}

func NewLeadWorker(leads repository.LeadRepositoryInterface, campaigns CampaignSource, engine WorkflowRunner, logger *zap.Logger) *LeadWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadWorker{
		LeadRepo:  leads,
		Campaigns: campaigns,
		Engine:    engine,
		logger:    logger.With(zap.String("module", "lead_worker")),
	}
}

// ProcessLead runs one workflow pass. Only failures a later attempt may fix are
// returned, so the queue redelivers those and drops the rest.
func (w *LeadWorker) ProcessLead(ctx context.Context, campaignID, leadID string) error {
	log := w.logger.With(zap.String("campaign_id", campaignID), zap.String("lead_id", leadID))

	lead, err := w.LeadRepo.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			log.Warn("dropping job for unknown lead")
			return nil
		}
		return err
	}
	if lead.CampaignID != campaignID {
		log.Warn("dropping job, lead belongs to another campaign", zap.String("lead_campaign_id", lead.CampaignID))
		return nil
	}
	if lead.Status == model.LeadCompleted {
		return nil
	}

	campaign, err := w.Campaigns.Campaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			log.Warn("dropping job for unknown campaign")
			return nil
		}
		return err
	}

	res := w.Engine.ProcessLeadWorkflow(ctx, campaign.ID, lead, &campaign.Definition)
	switch {
	case res.OK, res.HaltReason == appErrors.HaltDelayPending:
		log.Debug("lead pass finished", zap.String("reason", string(res.HaltReason)), zap.Int("steps", res.Steps))
		return nil
	case res.HaltReason == appErrors.HaltLeadBusy, res.HaltReason == appErrors.HaltCampaignInactive:
		log.Debug("lead pass skipped", zap.String("reason", string(res.HaltReason)))
		return nil
	case res.HaltReason.Terminal():
		log.Warn("lead pass halted", zap.String("reason", string(res.HaltReason)), zap.String("step_id", res.StepID), zap.Error(res.Err))
		return nil
	}
	if res.Err == nil {
		return errors.New("lead workflow halted: " + string(res.HaltReason))
	}
	return res.Err
}

var _ queue.LeadProcessor = (*LeadWorker)(nil)

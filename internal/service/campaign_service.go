// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/outreach"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/repository"
	"github.com/unclebandit/leadflow-backend/internal/workflow"
)

// ErrInvalidTransition is returned when a lifecycle change is not allowed from
// the campaign's current status.
var ErrInvalidTransition = errors.New("invalid campaign status transition")

// ErrStepInUse is returned when a definition edit removes or retypes a step
// that in-progress leads are sitting on.
var ErrStepInUse = errors.New("step is in use by in-progress leads")

// DefinitionInvalidator drops cached campaign definitions after an edit.
type DefinitionInvalidator interface {
	InvalidateDefinition(campaignID string)
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	LeadRepo     repository.LeadRepositoryInterface
	SequenceRepo repository.SequenceRepositoryInterface
	Scheduler    *outreach.Scheduler
	Queue        queue.Queue
	Definitions  DefinitionInvalidator

	logger *zap.Logger
}

func NewCampaignService(
	campaigns repository.CampaignRepositoryInterface,
	leads repository.LeadRepositoryInterface,
	sequences repository.SequenceRepositoryInterface,
	scheduler *outreach.Scheduler,
	q queue.Queue,
	definitions DefinitionInvalidator,
	logger *zap.Logger,
) *CampaignService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignService{
		CampaignRepo: campaigns,
		LeadRepo:     leads,
		SequenceRepo: sequences,
		Scheduler:    scheduler,
		Queue:        q,
		Definitions:  definitions,
		logger:       logger.With(zap.String("module", "campaign_service")),
	}
}

// StartCampaignResult is returned by StartCampaign
type StartCampaignResult struct {
	CampaignID  string               `json:"campaign_id"`
	Status      model.CampaignStatus `json:"status"`
	LeadsQueued int                  `json:"leads_queued"`
	LeadIDs     []string             `json:"lead_ids"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats      map[string]int `json:"stats"`
	LeadCounts map[string]int `json:"lead_counts"`
}

type SequenceDetails struct {
	Sequence *model.OutreachSequence `json:"sequence"`
	Slots    []*model.SendingSlot    `json:"slots"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, tenantID, accountID, name string, def model.CampaignDefinition, scheduledAt *time.Time) (*model.Campaign, error) {
	if err := workflow.ValidateDefinition(&def); err != nil {
		return nil, err
	}
	c := &model.Campaign{
		TenantID:    tenantID,
		AccountID:   accountID,
		Name:        name,
		Status:      model.CampaignDraft,
		Definition:  def,
		ScheduledAt: scheduledAt,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("campaign created", zap.String("campaign_id", c.ID), zap.String("tenant_id", tenantID), zap.Int("steps", len(def.Steps)))
	return c, nil
}

// GetCampaign fetches a campaign visible to the tenant. Campaigns of other
// tenants are reported as not found.
func (s *CampaignService) GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	return c, nil
}

func (s *CampaignService) UpdateDefinition(ctx context.Context, tenantID, campaignID string, def model.CampaignDefinition) error {
	current, err := s.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return err
	}
	if err := workflow.ValidateDefinition(&def); err != nil {
		return err
	}
	if err := s.checkLeadPositions(ctx, current, &def); err != nil {
		return err
	}
	if err := s.CampaignRepo.UpdateDefinition(ctx, campaignID, def); err != nil {
		return err
	}
	s.invalidate(campaignID)
	return nil
}

// checkLeadPositions rejects a definition in which the current step of an
// in-progress lead is missing or has a different type.
func (s *CampaignService) checkLeadPositions(ctx context.Context, current *model.Campaign, def *model.CampaignDefinition) error {
	leads, err := s.LeadRepo.ListByCampaign(ctx, current.ID)
	if err != nil {
		return fmt.Errorf("list leads: %w", err)
	}
	for _, l := range leads {
		if l.Status != model.LeadInProgress || l.CurrentStepID == "" {
			continue
		}
		prev, _ := current.Definition.Step(l.CurrentStepID)
		next, ok := def.Step(l.CurrentStepID)
		if !ok {
			return fmt.Errorf("%w: step %s removed while lead %s is on it", ErrStepInUse, l.CurrentStepID, l.ID)
		}
		if prev != nil && prev.Type != next.Type {
			return fmt.Errorf("%w: step %s changed from %s to %s while lead %s is on it", ErrStepInUse, l.CurrentStepID, prev.Type, next.Type, l.ID)
		}
	}
	return nil
}

// AttachLeads adds leads to a campaign. They start with no current step.
func (s *CampaignService) AttachLeads(ctx context.Context, tenantID, campaignID string, leads []*model.Lead) (int, error) {
	c, err := s.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return 0, err
	}
	n, err := s.LeadRepo.CreateLeads(ctx, c.ID, tenantID, leads)
	if err != nil {
		return 0, fmt.Errorf("attach leads: %w", err)
	}
	s.logger.Info("leads attached", zap.String("campaign_id", c.ID), zap.Int("requested", len(leads)), zap.Int("inserted", n))
	return n, nil
}

// StartCampaign activates the campaign and queues a workflow pass for every
// lead that has not completed.
func (s *CampaignService) StartCampaign(ctx context.Context, tenantID, campaignID string) (*StartCampaignResult, error) {
	c, err := s.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case model.CampaignDraft, model.CampaignPaused, model.CampaignActive:
	default:
		return nil, fmt.Errorf("%w: cannot start campaign in status %s", ErrInvalidTransition, c.Status)
	}
	if err := workflow.ValidateDefinition(&c.Definition); err != nil {
		return nil, err
	}

	if c.Status != model.CampaignActive {
		if err := s.CampaignRepo.UpdateStatus(ctx, c.ID, model.CampaignActive); err != nil {
			return nil, err
		}
		s.invalidate(c.ID)
	}

	leads, err := s.LeadRepo.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	result := &StartCampaignResult{
		CampaignID: c.ID,
		Status:     model.CampaignActive,
		LeadIDs:    []string{},
	}
	for _, lead := range leads {
		if lead.Status == model.LeadCompleted {
			continue
		}
		job := queue.LeadJob{CampaignID: c.ID, LeadID: lead.ID}
		if err := s.Queue.Publish(ctx, queue.TopicLeadWorkflow, job); err != nil {
			s.logger.Warn("failed to enqueue lead", zap.String("campaign_id", c.ID), zap.String("lead_id", lead.ID), zap.Error(err))
			continue
		}
		result.LeadIDs = append(result.LeadIDs, lead.ID)
		result.LeadsQueued++
	}

	s.logger.Info("campaign started", zap.String("campaign_id", c.ID), zap.Int("leads_queued", result.LeadsQueued))
	return result, nil
}

func (s *CampaignService) PauseCampaign(ctx context.Context, tenantID, campaignID string) error {
	return s.transition(ctx, tenantID, campaignID, model.CampaignPaused, model.CampaignActive)
}

func (s *CampaignService) StopCampaign(ctx context.Context, tenantID, campaignID string) error {
	return s.transition(ctx, tenantID, campaignID, model.CampaignStopped,
		model.CampaignDraft, model.CampaignActive, model.CampaignPaused)
}

func (s *CampaignService) transition(ctx context.Context, tenantID, campaignID string, to model.CampaignStatus, from ...model.CampaignStatus) error {
	c, err := s.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return err
	}
	if c.Status == to {
		return nil
	}
	allowed := false
	for _, st := range from {
		if c.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, c.ID, to); err != nil {
		return err
	}
	s.invalidate(c.ID)
	s.logger.Info("campaign status changed", zap.String("campaign_id", c.ID), zap.String("from", string(c.Status)), zap.String("to", string(to)))
	return nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, tenantID string, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, tenantID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, tenantID, campaignID string) (*CampaignDetails, error) {
	c, err := s.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.CampaignRepo.GetCampaignStats(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	stats["total"] = total

	leadCounts, err := s.LeadRepo.CountByStatus(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("lead counts: %w", err)
	}
	return &CampaignDetails{Campaign: c, Stats: stats, LeadCounts: leadCounts}, nil
}

// CreateSequence schedules a LinkedIn outreach sequence for the campaign's
// sending account unless the request names another one.
func (s *CampaignService) CreateSequence(ctx context.Context, tenantID, campaignID string, req outreach.CreateSequenceRequest) (*outreach.SequencePlan, error) {
	c, err := s.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	req.TenantID = tenantID
	req.CampaignID = c.ID
	if req.AccountID == "" {
		req.AccountID = c.AccountID
	}
	return s.Scheduler.CreateSequence(ctx, req)
}

func (s *CampaignService) GetSequence(ctx context.Context, tenantID, sequenceID string) (*SequenceDetails, error) {
	seq, err := s.SequenceRepo.GetByID(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	if seq.TenantID != tenantID {
		return nil, appErrors.NewSequenceNotFound(sequenceID)
	}
	slots, err := s.SequenceRepo.ListSlots(ctx, seq.ID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return &SequenceDetails{Sequence: seq, Slots: slots}, nil
}

func (s *CampaignService) invalidate(campaignID string) {
	if s.Definitions != nil {
		s.Definitions.InvalidateDefinition(campaignID)
	}
}

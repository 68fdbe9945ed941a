package service_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/outreach"
	"github.com/unclebandit/leadflow-backend/internal/service"
)

type serviceFixture struct {
	campaigns   *MockCampaignRepo
	leads       *MockLeadRepo
	sequences   *MockSequenceRepo
	queue       *recordingQueue
	invalidator *recordingInvalidator
	svc         *service.CampaignService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		campaigns:   NewMockCampaignRepo(),
		leads:       NewMockLeadRepo(),
		sequences:   NewMockSequenceRepo(),
		queue:       &recordingQueue{},
		invalidator: &recordingInvalidator{},
	}
	scheduler := outreach.NewScheduler(f.sequences, rand.New(rand.NewSource(7)), nil)
	f.svc = service.NewCampaignService(f.campaigns, f.leads, f.sequences, scheduler, f.queue, f.invalidator, nil)
	return f
}

func validDefinition() model.CampaignDefinition {
	return model.CampaignDefinition{
		ID: "def",
		Steps: []model.Step{
			{ID: "start", Type: model.StepStart, Config: model.StartConfig{}},
			{ID: "mail", Type: model.StepEmailSend, Config: model.EmailSendConfig{Subject: "Hi {first_name}", Body: "Hello"}},
			{ID: "end", Type: model.StepEnd, Config: model.EndConfig{}},
		},
		Edges: []model.Edge{
			{Source: "start", Target: "mail"},
			{Source: "mail", Target: "end"},
		},
	}
}

func TestCreateCampaign(t *testing.T) {
	f := newServiceFixture()

	c, err := f.svc.CreateCampaign(context.Background(), "t1", "acc-1", "Q3 outreach", validDefinition(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, model.CampaignDraft, c.Status)

	stored, err := f.campaigns.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "t1", stored.TenantID)
	assert.Len(t, stored.Definition.Steps, 3)
}

func TestCreateCampaign_RejectsInvalidGraph(t *testing.T) {
	f := newServiceFixture()
	def := validDefinition()
	def.Edges = def.Edges[:1] // end unreachable

	_, err := f.svc.CreateCampaign(context.Background(), "t1", "acc-1", "broken", def, nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsConfiguration(err))
	assert.ErrorIs(t, err, appErrors.ErrUnreachableStep)
}

func TestGetCampaign_OtherTenantIsNotFound(t *testing.T) {
	f := newServiceFixture()
	c, err := f.svc.CreateCampaign(context.Background(), "t1", "acc-1", "mine", validDefinition(), nil)
	require.NoError(t, err)

	_, err = f.svc.GetCampaign(context.Background(), "t2", c.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUpdateDefinition_InvalidatesCache(t *testing.T) {
	f := newServiceFixture()
	c, err := f.svc.CreateCampaign(context.Background(), "t1", "acc-1", "edit me", validDefinition(), nil)
	require.NoError(t, err)

	def := validDefinition()
	def.Steps[1].Config = model.EmailSendConfig{Subject: "New subject", Body: "Hello again"}
	require.NoError(t, f.svc.UpdateDefinition(context.Background(), "t1", c.ID, def))

	stored, _ := f.campaigns.GetByID(context.Background(), c.ID)
	assert.Equal(t, "New subject", stored.Definition.Steps[1].Config.(model.EmailSendConfig).Subject)
	assert.Equal(t, []string{c.ID}, f.invalidator.ids)

	bad := validDefinition()
	bad.Steps = append(bad.Steps, model.Step{ID: "start-2", Type: model.StepStart, Config: model.StartConfig{}})
	err = f.svc.UpdateDefinition(context.Background(), "t1", c.ID, bad)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateStartStep)
}

func TestUpdateDefinition_KeepsStepsOfInProgressLeads(t *testing.T) {
	f := newServiceFixture()
	c, err := f.svc.CreateCampaign(context.Background(), "t1", "acc-1", "busy", validDefinition(), nil)
	require.NoError(t, err)
	f.leads.add(&model.Lead{ID: "l1", CampaignID: c.ID, CurrentStepID: "mail", Status: model.LeadInProgress})
	f.leads.add(&model.Lead{ID: "l2", CampaignID: c.ID, Status: model.LeadPending})

	removed := model.CampaignDefinition{
		ID:    "def",
		Steps: []model.Step{validDefinition().Steps[0], validDefinition().Steps[2]},
		Edges: []model.Edge{{Source: "start", Target: "end"}},
	}
	err = f.svc.UpdateDefinition(context.Background(), "t1", c.ID, removed)
	assert.ErrorIs(t, err, service.ErrStepInUse)

	retyped := validDefinition()
	retyped.Steps[1] = model.Step{ID: "mail", Type: model.StepLinkedInMessage, Config: model.LinkedInMessageConfig{Message: "Hi"}}
	err = f.svc.UpdateDefinition(context.Background(), "t1", c.ID, retyped)
	assert.ErrorIs(t, err, service.ErrStepInUse)
	assert.Empty(t, f.invalidator.ids)

	stored, _ := f.campaigns.GetByID(context.Background(), c.ID)
	assert.Equal(t, model.StepEmailSend, stored.Definition.Steps[1].Type)

	reworded := validDefinition()
	reworded.Steps[1].Config = model.EmailSendConfig{Subject: "Still email", Body: "Hello"}
	require.NoError(t, f.svc.UpdateDefinition(context.Background(), "t1", c.ID, reworded))
	assert.Equal(t, []string{c.ID}, f.invalidator.ids)
}

func TestAttachLeads(t *testing.T) {
	f := newServiceFixture()
	c, _ := f.svc.CreateCampaign(context.Background(), "t1", "acc-1", "leads", validDefinition(), nil)

	n, err := f.svc.AttachLeads(context.Background(), "t1", c.ID, []*model.Lead{
		{FirstName: "Ada", Email: "ada@example.com", CurrentStepID: "mail"},
		{FirstName: "Alan", Email: "alan@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	leads, _ := f.leads.ListByCampaign(context.Background(), c.ID)
	require.Len(t, leads, 2)
	for _, l := range leads {
		assert.Empty(t, l.CurrentStepID)
		assert.Equal(t, model.LeadPending, l.Status)
		assert.Equal(t, "t1", l.TenantID)
	}
}

func TestStartCampaign_QueuesUnfinishedLeads(t *testing.T) {
	f := newServiceFixture()
	c, _ := f.svc.CreateCampaign(context.Background(), "t1", "acc-1", "go", validDefinition(), nil)
	f.leads.add(&model.Lead{ID: "l1", CampaignID: c.ID, Status: model.LeadPending})
	f.leads.add(&model.Lead{ID: "l2", CampaignID: c.ID, Status: model.LeadCompleted})
	f.leads.add(&model.Lead{ID: "l3", CampaignID: c.ID, Status: model.LeadInProgress})
	f.leads.add(&model.Lead{ID: "l4", CampaignID: c.ID, Status: model.LeadPending})
	f.queue.fail = map[string]bool{"l4": true}

	res, err := f.svc.StartCampaign(context.Background(), "t1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignActive, res.Status)
	assert.Equal(t, 2, res.LeadsQueued)
	assert.Equal(t, []string{"l1", "l3"}, res.LeadIDs)

	status, _ := f.campaigns.GetStatus(context.Background(), c.ID)
	assert.Equal(t, model.CampaignActive, status)
	assert.Contains(t, f.invalidator.ids, c.ID)
}

func TestCampaignLifecycleTransitions(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	c, _ := f.svc.CreateCampaign(ctx, "t1", "acc-1", "life", validDefinition(), nil)

	err := f.svc.PauseCampaign(ctx, "t1", c.ID)
	assert.True(t, errors.Is(err, service.ErrInvalidTransition), "draft cannot be paused")

	_, err = f.svc.StartCampaign(ctx, "t1", c.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.PauseCampaign(ctx, "t1", c.ID))
	require.NoError(t, f.svc.PauseCampaign(ctx, "t1", c.ID), "pausing twice is a no-op")

	_, err = f.svc.StartCampaign(ctx, "t1", c.ID)
	require.NoError(t, err, "paused campaigns resume")

	require.NoError(t, f.svc.StopCampaign(ctx, "t1", c.ID))
	_, err = f.svc.StartCampaign(ctx, "t1", c.ID)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestPagination(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	for _, name := range []string{"C1", "C2", "C3", "C4", "C5"} {
		_, err := f.svc.CreateCampaign(ctx, "t1", "acc-1", name, validDefinition(), nil)
		require.NoError(t, err)
	}
	_, _ = f.svc.CreateCampaign(ctx, "t2", "acc-9", "other tenant", validDefinition(), nil)

	page1, pagination, err := f.svc.ListCampaigns(ctx, "t1", 1, 2, "")
	require.NoError(t, err)
	page3, _, _ := f.svc.ListCampaigns(ctx, "t1", 3, 2, "")

	assert.Equal(t, 5, pagination["total_count"])
	assert.Equal(t, 3, pagination["total_pages"])
	require.Len(t, page1, 2)
	assert.Equal(t, "C5", page1[0].Name)
	assert.Equal(t, "C4", page1[1].Name)
	require.Len(t, page3, 1)
	assert.Equal(t, "C1", page3[0].Name)

	_, pagination, _ = f.svc.ListCampaigns(ctx, "t1", 0, 1000, "")
	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 100, pagination["page_size"])
}

func TestGetCampaignDetailsWithStats(t *testing.T) {
	f := newServiceFixture()
	c, _ := f.svc.CreateCampaign(context.Background(), "t1", "acc-1", "stats", validDefinition(), nil)
	f.campaigns.stats = map[string]int{"completed": 3, "error": 1}
	f.leads.add(&model.Lead{ID: "l1", CampaignID: c.ID, Status: model.LeadCompleted})
	f.leads.add(&model.Lead{ID: "l2", CampaignID: c.ID, Status: model.LeadInProgress})

	details, err := f.svc.GetCampaignDetailsWithStats(context.Background(), "t1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, details.Stats["total"])
	assert.Equal(t, 0, details.Stats["pending"])
	assert.Equal(t, 1, details.LeadCounts["completed"])
	assert.Equal(t, 1, details.LeadCounts["in_progress"])
}

func TestCreateSequence_UsesCampaignAccount(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	c, _ := f.svc.CreateCampaign(ctx, "t1", "acc-1", "seq", validDefinition(), nil)

	plan, err := f.svc.CreateSequence(ctx, "t1", c.ID, outreach.CreateSequenceRequest{
		ProfileIDs: []string{"p1", "p2", "p3"},
		DailyLimit: 2,
		StartDate:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", plan.Sequence.AccountID)
	assert.Equal(t, c.ID, plan.Sequence.CampaignID)
	assert.Equal(t, 2, plan.Sequence.EstimatedDays)
	assert.Len(t, plan.Slots, 3)

	details, err := f.svc.GetSequence(ctx, "t1", plan.Sequence.ID)
	require.NoError(t, err)
	assert.Len(t, details.Slots, 3)

	_, err = f.svc.GetSequence(ctx, "t2", plan.Sequence.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

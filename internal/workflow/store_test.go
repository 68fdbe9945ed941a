package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/leadflow-backend/internal/channel"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

// memStore backs the in-memory repositories used by the workflow tests.
type memStore struct {
	mu         sync.Mutex
	campaigns  map[string]*model.Campaign
	leads      map[string]*model.Lead
	activities []*model.Activity
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[string]*model.Campaign),
		leads:     make(map[string]*model.Lead),
	}
}

func (s *memStore) addCampaign(c *model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

func (s *memStore) addLead(l *model.Lead) *model.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.leads[l.ID] = &cp
	return l
}

func (s *memStore) lead(id string) model.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.leads[id]
}

func (s *memStore) activitiesFor(leadID string) []model.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Activity
	for _, a := range s.activities {
		if a.LeadID == leadID {
			out = append(out, *a)
		}
	}
	return out
}

// ----------------- campaigns -----------------

type memCampaigns struct{ *memStore }

func (r memCampaigns) Create(ctx context.Context, c *model.Campaign) error {
	r.addCampaign(c)
	return nil
}

func (r memCampaigns) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r memCampaigns) GetStatus(ctx context.Context, id string) (model.CampaignStatus, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

func (r memCampaigns) ListCampaigns(ctx context.Context, tenantID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	return nil, 0, nil
}

func (r memCampaigns) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (r memCampaigns) UpdateDefinition(ctx context.Context, id string, def model.CampaignDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Definition = def
	return nil
}

func (r memCampaigns) GetCampaignStats(ctx context.Context, id string) (map[string]int, error) {
	return map[string]int{}, nil
}

// ----------------- leads -----------------

type memLeads struct{ *memStore }

func (r memLeads) GetByID(ctx context.Context, id string) (*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil, appErrors.NewLeadNotFound(id)
	}
	cp := *l
	return &cp, nil
}

func (r memLeads) ListByCampaign(ctx context.Context, campaignID string) ([]*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Lead
	for _, l := range r.leads {
		if l.CampaignID == campaignID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memLeads) CreateLeads(ctx context.Context, campaignID, tenantID string, leads []*model.Lead) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range leads {
		dup := false
		for _, existing := range r.leads {
			if existing.CampaignID == campaignID && l.ProfileID != "" && existing.ProfileID == l.ProfileID {
				dup = true
			}
		}
		if dup {
			continue
		}
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.CampaignID = campaignID
		l.TenantID = tenantID
		l.Status = model.LeadPending
		cp := *l
		r.leads[l.ID] = &cp
		n++
	}
	return n, nil
}

func (r memLeads) UpdateCurrentStep(ctx context.Context, leadID, stepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[leadID]
	if !ok {
		return appErrors.NewLeadNotFound(leadID)
	}
	l.CurrentStepID = stepID
	l.Status = model.LeadInProgress
	return nil
}

func (r memLeads) UpdateStatus(ctx context.Context, leadID string, status model.LeadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[leadID]
	if !ok {
		return appErrors.NewLeadNotFound(leadID)
	}
	l.Status = status
	return nil
}

func (r memLeads) GetDueDelayedLeads(ctx context.Context, now time.Time) ([]*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Lead
	for _, l := range r.leads {
		c, ok := r.campaigns[l.CampaignID]
		if !ok || c.Status != model.CampaignActive || l.Status != model.LeadInProgress {
			continue
		}
		for _, a := range r.activities {
			if a.LeadID == l.ID && a.StepID == l.CurrentStepID && a.StepType == model.StepDelay &&
				a.Status == model.ActivityPending && a.ScheduledAt != nil && !a.ScheduledAt.After(now) {
				cp := *l
				out = append(out, &cp)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memLeads) FindByProfile(ctx context.Context, campaignID, profileID string) (*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.ProfileID == profileID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memLeads) TouchLastActivity(ctx context.Context, leadID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.leads[leadID]; ok {
		l.LastActivityAt = &at
	}
	return nil
}

func (r memLeads) CountByStatus(ctx context.Context, campaignID string) (map[string]int, error) {
	return map[string]int{}, nil
}

// ----------------- activities -----------------

type memActivities struct{ *memStore }

// Create rejects a second pending activity for the same lead and step, like the
// partial unique index in the schema.
func (r memActivities) Create(ctx context.Context, a *model.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status == model.ActivityPending {
		for _, existing := range r.activities {
			if existing.LeadID == a.LeadID && existing.StepID == a.StepID && existing.Status == model.ActivityPending {
				return fmt.Errorf("%w: lead %s step %s", appErrors.ErrDuplicatePending, a.LeadID, a.StepID)
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	r.activities = append(r.activities, &cp)
	return nil
}

func (r memActivities) FindPending(ctx context.Context, leadID, stepID string) (*model.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.activities {
		if a.LeadID == leadID && a.StepID == stepID && a.Status == model.ActivityPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memActivities) UpdateStatus(ctx context.Context, id string, status model.ActivityStatus, errMsg string, meta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.activities {
		if a.ID == id {
			a.Status = status
			a.ErrorMessage = errMsg
			if len(meta) > 0 {
				if a.Metadata == nil {
					a.Metadata = map[string]any{}
				}
				for k, v := range meta {
					a.Metadata[k] = v
				}
			}
			return nil
		}
	}
	return appErrors.NewActivityNotFound(id)
}

// ----------------- dispatcher and lead source -----------------

type stubDispatcher struct {
	mu    sync.Mutex
	calls []model.StepType
	err   error
	data  map[string]any
}

func (d *stubDispatcher) Execute(ctx context.Context, stepType model.StepType, lead *model.Lead, cfg model.StepConfig) (*channel.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, stepType)
	if d.err != nil {
		return nil, d.err
	}
	return &channel.Result{Success: true, Data: d.data}, nil
}

func (d *stubDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type stubSource struct {
	leads []*model.Lead
	err   error
}

func (s *stubSource) Search(ctx context.Context, filters map[string]any, limit int) ([]*model.Lead, error) {
	return s.leads, s.err
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

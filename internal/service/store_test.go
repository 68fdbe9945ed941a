package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

// MockCampaignRepo keeps campaigns in memory
type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	stats     map[string]int
	seq       int
}

func NewMockCampaignRepo() *MockCampaignRepo {
	return &MockCampaignRepo{campaigns: map[string]*model.Campaign{}}
}

func (m *MockCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if c.ID == "" {
		c.ID = fmt.Sprintf("camp-%d", m.seq)
	}
	c.CreatedAt = time.Date(2025, 1, 1, 0, 0, m.seq, 0, time.UTC)
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) GetStatus(ctx context.Context, id string) (model.CampaignStatus, error) {
	c, err := m.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

// ListCampaigns returns newest first, like the SQL implementation
func (m *MockCampaignRepo) ListCampaigns(ctx context.Context, tenantID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range m.campaigns {
		if c.TenantID != tenantID || (status != "" && string(c.Status) != status) {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (m *MockCampaignRepo) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (m *MockCampaignRepo) UpdateDefinition(ctx context.Context, id string, def model.CampaignDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Definition = def
	return nil
}

func (m *MockCampaignRepo) GetCampaignStats(ctx context.Context, id string) (map[string]int, error) {
	out := map[string]int{"pending": 0, "completed": 0, "error": 0}
	for k, v := range m.stats {
		out[k] = v
	}
	return out, nil
}

// MockLeadRepo keeps leads in memory
type MockLeadRepo struct {
	repository.LeadRepositoryInterface

	mu    sync.Mutex
	leads map[string]*model.Lead
	order []string
}

func NewMockLeadRepo() *MockLeadRepo {
	return &MockLeadRepo{leads: map[string]*model.Lead{}}
}

func (m *MockLeadRepo) add(l *model.Lead) *model.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.ID] = l
	m.order = append(m.order, l.ID)
	return l
}

func (m *MockLeadRepo) GetByID(ctx context.Context, id string) (*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, appErrors.NewLeadNotFound(id)
	}
	cp := *l
	return &cp, nil
}

func (m *MockLeadRepo) ListByCampaign(ctx context.Context, campaignID string) ([]*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Lead{}
	for _, id := range m.order {
		if l := m.leads[id]; l.CampaignID == campaignID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockLeadRepo) CreateLeads(ctx context.Context, campaignID, tenantID string, leads []*model.Lead) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range leads {
		dup := false
		for _, existing := range m.leads {
			if existing.CampaignID == campaignID && l.Email != "" && existing.Email == l.Email {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if l.ID == "" {
			l.ID = fmt.Sprintf("lead-%d", len(m.order)+1)
		}
		l.CampaignID = campaignID
		l.TenantID = tenantID
		l.Status = model.LeadPending
		l.CurrentStepID = ""
		cp := *l
		m.leads[l.ID] = &cp
		m.order = append(m.order, l.ID)
		n++
	}
	return n, nil
}

func (m *MockLeadRepo) CountByStatus(ctx context.Context, campaignID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, l := range m.leads {
		if l.CampaignID == campaignID {
			out[string(l.Status)]++
		}
	}
	return out, nil
}

// MockSequenceRepo keeps sequences and slots in memory
type MockSequenceRepo struct {
	repository.SequenceRepositoryInterface

	mu        sync.Mutex
	sequences map[string]*model.OutreachSequence
	slots     map[string][]*model.SendingSlot
	accounts  []model.Account
}

func NewMockSequenceRepo() *MockSequenceRepo {
	return &MockSequenceRepo{
		sequences: map[string]*model.OutreachSequence{},
		slots:     map[string][]*model.SendingSlot{},
	}
}

func (m *MockSequenceRepo) CreateSequence(ctx context.Context, seq *model.OutreachSequence, slots []*model.SendingSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq.ID == "" {
		seq.ID = fmt.Sprintf("seq-%d", len(m.sequences)+1)
	}
	cp := *seq
	m.sequences[seq.ID] = &cp
	for i, s := range slots {
		s.ID = fmt.Sprintf("%s-slot-%d", seq.ID, i)
		s.SequenceID = seq.ID
		s.Status = model.SlotPending
	}
	m.slots[seq.ID] = slots
	return nil
}

func (m *MockSequenceRepo) GetByID(ctx context.Context, id string) (*model.OutreachSequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sequences[id]
	if !ok {
		return nil, appErrors.NewSequenceNotFound(id)
	}
	cp := *s
	return &cp, nil
}

func (m *MockSequenceRepo) ListSlots(ctx context.Context, sequenceID string) ([]*model.SendingSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.SendingSlot{}, m.slots[sequenceID]...), nil
}

func (m *MockSequenceRepo) ListActiveAccounts(ctx context.Context) ([]model.Account, error) {
	return m.accounts, nil
}

// recordingQueue captures published jobs
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.LeadJob
	fail map[string]bool
}

func (q *recordingQueue) Publish(ctx context.Context, topic string, job queue.LeadJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail[job.LeadID] {
		return fmt.Errorf("broker unavailable")
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Subscribe(topic string, handler queue.Handler) error {
	return nil
}

type recordingInvalidator struct {
	ids []string
}

func (r *recordingInvalidator) InvalidateDefinition(campaignID string) {
	r.ids = append(r.ids, campaignID)
}

package outreach

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

type memSequences struct {
	mu          sync.Mutex
	sequences   map[string]*model.OutreachSequence
	slots       []*model.SendingSlot
	createCalls int
	updateErr   error
}

func newMemSequences() *memSequences {
	return &memSequences{sequences: map[string]*model.OutreachSequence{}}
}

func (r *memSequences) CreateSequence(ctx context.Context, seq *model.OutreachSequence, slots []*model.SendingSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if seq.ID == "" {
		seq.ID = uuid.NewString()
	}
	r.sequences[seq.ID] = seq
	for _, s := range slots {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.SequenceID = seq.ID
		cp := *s
		r.slots = append(r.slots, &cp)
	}
	return nil
}

func (r *memSequences) CreateSlots(ctx context.Context, sequenceID string, slots []*model.SendingSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range slots {
		s.SequenceID = sequenceID
		cp := *s
		r.slots = append(r.slots, &cp)
	}
	return nil
}

func (r *memSequences) GetByID(ctx context.Context, id string) (*model.OutreachSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sequences[id]
	if !ok {
		return nil, appErrors.NewSequenceNotFound(id)
	}
	cp := *s
	return &cp, nil
}

func (r *memSequences) ListSlots(ctx context.Context, sequenceID string) ([]*model.SendingSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SendingSlot
	for _, s := range r.slots {
		if s.SequenceID == sequenceID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSequences) GetDueSlots(ctx context.Context, accountID, tenantID string, now time.Time) ([]*model.SendingSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var out []*model.SendingSlot
	for _, s := range r.slots {
		seq := r.sequences[s.SequenceID]
		if seq.AccountID != accountID || seq.TenantID != tenantID || seq.Status != model.SequenceActive {
			continue
		}
		if s.Status != model.SlotPending || s.ScheduledTime.Before(dayStart) || s.ScheduledTime.After(now) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (r *memSequences) UpdateSlotStatus(ctx context.Context, slotID string, status model.SlotStatus, meta map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return false, r.updateErr
	}
	for _, s := range r.slots {
		if s.ID == slotID {
			if s.Status != model.SlotPending {
				return false, nil
			}
			s.Status = status
			s.Metadata = meta
			return true, nil
		}
	}
	return false, nil
}

func (r *memSequences) CountPendingSlots(ctx context.Context, sequenceID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.slots {
		if s.SequenceID == sequenceID && s.Status == model.SlotPending {
			n++
		}
	}
	return n, nil
}

func (r *memSequences) UpdateStatus(ctx context.Context, sequenceID string, status model.SequenceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sequences[sequenceID]
	if !ok {
		return appErrors.NewSequenceNotFound(sequenceID)
	}
	s.Status = status
	return nil
}

func (r *memSequences) ListActiveAccounts(ctx context.Context) ([]model.Account, error) {
	return nil, nil
}

func (r *memSequences) slot(id string) model.SendingSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.ID == id {
			return *s
		}
	}
	return model.SendingSlot{}
}

// memLeads only implements what the processor reads.
type memLeads struct {
	repository.LeadRepositoryInterface

	mu      sync.Mutex
	leads   []*model.Lead
	touched map[string]time.Time
}

func (r *memLeads) FindByProfile(ctx context.Context, campaignID, profileID string) (*model.Lead, error) {
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

func (r *memLeads) TouchLastActivity(ctx context.Context, leadID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touched == nil {
		r.touched = map[string]time.Time{}
	}
	r.touched[leadID] = at
	return nil
}

type memActivities struct {
	mu      sync.Mutex
	created []model.Activity
}

func (r *memActivities) Create(ctx context.Context, a *model.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *a)
	return nil
}

func (r *memActivities) FindPending(ctx context.Context, leadID, stepID string) (*model.Activity, error) {
	return nil, nil
}

func (r *memActivities) UpdateStatus(ctx context.Context, id string, status model.ActivityStatus, errMsg string, meta map[string]any) error {
	return nil
}

package outreach

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadflow-backend/internal/channel"
	"github.com/unclebandit/leadflow-backend/internal/lock"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

// Pause between two sends of the same tick.
const (
	MinPacing = 2 * time.Second
	MaxPacing = 5 * time.Second
)

var errNoMessage = errors.New("sequence has no message for an existing connection")

type ProcessResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Processor sends the slots that have come due for one account.
type Processor struct {
	Sequences  repository.SequenceRepositoryInterface
	Leads      repository.LeadRepositoryInterface
	Activities repository.ActivityRepositoryInterface
	LinkedIn   channel.LinkedInClient
	Locker     lock.Locker

	Now           func() time.Time
	Sleep         func(ctx context.Context, d time.Duration) error
	Timeout       time.Duration
	RetryInterval time.Duration
	LockTTL       time.Duration

	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

func NewProcessor(
	sequences repository.SequenceRepositoryInterface,
	leads repository.LeadRepositoryInterface,
	activities repository.ActivityRepositoryInterface,
	linkedIn channel.LinkedInClient,
	locker lock.Locker,
	rng *rand.Rand,
	logger *zap.Logger,
) *Processor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Processor{
		Sequences:     sequences,
		Leads:         leads,
		Activities:    activities,
		LinkedIn:      linkedIn,
		Locker:        locker,
		Now:           time.Now,
		Sleep:         sleepCtx,
		Timeout:       channel.DefaultTimeout,
		RetryInterval: channel.DefaultRetryInterval,
		LockTTL:       15 * time.Minute,
		rng:           rng,
		logger:        logger.With(zap.String("module", "slot_processor")),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pacing returns a uniform duration in [MinPacing, MaxPacing).
func (p *Processor) pacing() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return MinPacing + time.Duration(p.rng.Int63n(int64(MaxPacing-MinPacing)))
}

// ProcessPendingSlots sends today's due slots of the account. A failing slot is
// marked failed and the batch moves on.
func (p *Processor) ProcessPendingSlots(ctx context.Context, accountID, tenantID string) (ProcessResult, error) {
	var result ProcessResult
	log := p.logger.With(zap.String("account_id", accountID), zap.String("tenant_id", tenantID))

	slots, err := p.Sequences.GetDueSlots(ctx, accountID, tenantID, p.Now())
	if err != nil {
		return result, fmt.Errorf("load due slots: %w", err)
	}
	if len(slots) == 0 {
		return result, nil
	}

	var order []string
	bySequence := map[string][]*model.SendingSlot{}
	for _, s := range slots {
		if _, seen := bySequence[s.SequenceID]; !seen {
			order = append(order, s.SequenceID)
		}
		bySequence[s.SequenceID] = append(bySequence[s.SequenceID], s)
	}

	first := true
	for _, seqID := range order {
		if err := p.processSequence(ctx, log, seqID, bySequence[seqID], &first, &result); err != nil {
			return result, err
		}
	}

	log.Info("slot tick finished", zap.Int("processed", result.Processed), zap.Int("failed", result.Failed))
	return result, nil
}

// processSequence returns an error only when the context ends.
func (p *Processor) processSequence(ctx context.Context, log *zap.Logger, seqID string, slots []*model.SendingSlot, first *bool, result *ProcessResult) error {
	log = log.With(zap.String("sequence_id", seqID))

	release, err := p.Locker.Acquire(ctx, lock.SequenceKey(seqID), p.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			log.Info("sequence is being processed elsewhere, skipping")
			return nil
		}
		return err
	}
	defer release()

	seq, err := p.Sequences.GetByID(ctx, seqID)
	if err != nil {
		log.Error("failed to load sequence", zap.Error(err))
		return nil
	}
	if seq.Status != model.SequenceActive {
		return nil
	}

	for _, slot := range slots {
		if !*first {
			if err := p.Sleep(ctx, p.pacing()); err != nil {
				return err
			}
		}
		*first = false

		lead := p.findLead(ctx, seq, slot)
		action, meta, sendErr := p.sendSlot(ctx, seq, slot, lead)
		status := model.SlotSent
		if sendErr != nil {
			status = model.SlotFailed
			meta["error"] = sendErr.Error()
			log.Warn("slot failed", zap.String("slot_id", slot.ID), zap.String("profile_id", slot.ProfileID), zap.Error(sendErr))
		}

		// A slot left pending is sent again on the next tick, so it is neither
		// counted nor recorded on the lead here.
		updated, err := p.Sequences.UpdateSlotStatus(ctx, slot.ID, status, meta)
		if err != nil {
			log.Error("failed to update slot", zap.String("slot_id", slot.ID), zap.Error(err))
			continue
		}
		if !updated {
			log.Warn("slot was already finalized", zap.String("slot_id", slot.ID))
			continue
		}

		if sendErr != nil {
			result.Failed++
		} else {
			result.Processed++
		}
		if lead != nil {
			p.recordLeadActivity(ctx, log, seq, slot, lead, action, meta, sendErr)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	remaining, err := p.Sequences.CountPendingSlots(ctx, seq.ID)
	if err != nil {
		log.Error("failed to count pending slots", zap.Error(err))
		return nil
	}
	if remaining == 0 {
		if err := p.Sequences.UpdateStatus(ctx, seq.ID, model.SequenceCompleted); err != nil {
			log.Error("failed to complete sequence", zap.Error(err))
		} else {
			log.Info("sequence completed")
		}
	}
	return nil
}

// sendSlot picks the action from the current relationship: invite a stranger,
// message an existing or outgoing connection, accept an incoming request and
// then message.
func (p *Processor) sendSlot(ctx context.Context, seq *model.OutreachSequence, slot *model.SendingSlot, lead *model.Lead) (model.StepType, map[string]any, error) {
	meta := map[string]any{"sequence_id": seq.ID}

	var profile *channel.Profile
	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		profile, err = p.LinkedIn.LookupProfile(ctx, seq.AccountID, slot.ProfileID)
		return err
	})
	if err != nil {
		return model.StepLinkedInConnect, meta, fmt.Errorf("lookup profile: %w", err)
	}
	meta["relationship_status"] = string(profile.RelationshipStatus)

	message := seq.Message
	if lead != nil {
		message = channel.RenderTemplate(message, lead.Vars())
	}

	send := func(ctx context.Context) error {
		if message == "" {
			return errNoMessage
		}
		data, err := p.LinkedIn.SendMessage(ctx, seq.AccountID, profile.PrivateID, message)
		meta["response"] = data
		return err
	}

	switch profile.RelationshipStatus {
	case model.NotConnected:
		meta["action"] = "invite"
		err = p.call(ctx, func(ctx context.Context) error {
			data, err := p.LinkedIn.SendInvite(ctx, seq.AccountID, profile.PrivateID, message)
			meta["response"] = data
			return err
		})
		return model.StepLinkedInConnect, meta, err
	case model.Connected, model.PendingOutgoing:
		meta["action"] = "message"
		return model.StepLinkedInMessage, meta, p.call(ctx, send)
	case model.PendingIncoming:
		meta["action"] = "accept_and_message"
		err = p.call(ctx, func(ctx context.Context) error {
			_, err := p.LinkedIn.AcceptInvite(ctx, seq.AccountID, profile.PrivateID)
			return err
		})
		if err != nil {
			return model.StepLinkedInMessage, meta, fmt.Errorf("accept invite: %w", err)
		}
		return model.StepLinkedInMessage, meta, p.call(ctx, send)
	}
	return model.StepLinkedInConnect, meta, fmt.Errorf("unknown relationship status %q", profile.RelationshipStatus)
}

func (p *Processor) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return channel.Retry(ctx, p.Timeout, p.RetryInterval, fn)
}

func (p *Processor) findLead(ctx context.Context, seq *model.OutreachSequence, slot *model.SendingSlot) *model.Lead {
	if p.Leads == nil {
		return nil
	}
	lead, err := p.Leads.FindByProfile(ctx, seq.CampaignID, slot.ProfileID)
	if err != nil {
		p.logger.Warn("lead lookup failed", zap.String("profile_id", slot.ProfileID), zap.Error(err))
		return nil
	}
	return lead
}

// recordLeadActivity mirrors a slot outcome onto the campaign lead with the same profile.
func (p *Processor) recordLeadActivity(ctx context.Context, log *zap.Logger, seq *model.OutreachSequence, slot *model.SendingSlot, lead *model.Lead, action model.StepType, meta map[string]any, sendErr error) {
	now := p.Now()

	act := &model.Activity{
		CampaignID: seq.CampaignID,
		LeadID:     lead.ID,
		StepID:     "sequence:" + seq.ID,
		StepType:   action,
		Status:     model.ActivityCompleted,
		Metadata:   map[string]any{"slot_id": slot.ID, "action": meta["action"]},
	}
	if sendErr != nil {
		act.Status = model.ActivityError
		act.ErrorMessage = sendErr.Error()
	}
	if p.Activities != nil {
		if err := p.Activities.Create(ctx, act); err != nil {
			log.Warn("failed to record slot activity", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}
	if sendErr == nil {
		if err := p.Leads.TouchLastActivity(ctx, lead.ID, now); err != nil {
			log.Warn("failed to touch lead", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}
}

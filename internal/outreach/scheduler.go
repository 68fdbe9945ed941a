package outreach

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

// Platform limits per sending account.
const (
	PlatformDailyCap  = 80
	PlatformWeeklyCap = 200
	WorkingDays       = 5
)

// Working window for slot times, local to the start date's location.
const (
	WorkdayStartHour = 9
	WorkdayEndHour   = 18
	JitterMinutes    = 15
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type CreateSequenceRequest struct {
	TenantID   string    `json:"tenant_id" validate:"required"`
	CampaignID string    `json:"campaign_id" validate:"required"`
	AccountID  string    `json:"account_id" validate:"required"`
	ProfileIDs []string  `json:"profile_ids" validate:"required,min=1,dive,required"`
	Message    string    `json:"message"`
	DailyLimit int       `json:"daily_limit" validate:"gte=0"`
	StartDate  time.Time `json:"start_date"`
}

type SequencePlan struct {
	Sequence *model.OutreachSequence `json:"sequence"`
	Slots    []*model.SendingSlot    `json:"slots"`
}

// Scheduler turns a list of target profiles into a persisted, quota-respecting
// sending schedule.
type Scheduler struct {
	Sequences repository.SequenceRepositoryInterface
	Now       func() time.Time

	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

func NewScheduler(sequences repository.SequenceRepositoryInterface, rng *rand.Rand, logger *zap.Logger) *Scheduler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Sequences: sequences,
		Now:       time.Now,
		rng:       rng,
		logger:    logger.With(zap.String("module", "outreach_scheduler")),
	}
}

// EffectiveDailyLimit clamps a requested limit to the platform cap. Zero or
// negative means "as many as allowed".
func EffectiveDailyLimit(requested int) int {
	if requested <= 0 || requested > PlatformDailyCap {
		return PlatformDailyCap
	}
	return requested
}

// WeeklyRequests is the number of requests a week can carry at the given daily limit.
func WeeklyRequests(dailyLimit int) int {
	return min(dailyLimit*WorkingDays, PlatformWeeklyCap)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func (s *Scheduler) CreateSequence(ctx context.Context, req CreateSequenceRequest) (*SequencePlan, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid sequence request: %w", err)
	}

	daily := EffectiveDailyLimit(req.DailyLimit)
	if daily != req.DailyLimit {
		s.logger.Info("daily limit clamped",
			zap.String("account_id", req.AccountID),
			zap.Int("requested", req.DailyLimit),
			zap.Int("effective", daily))
	}
	start := req.StartDate
	if start.IsZero() {
		start = s.Now()
	}

	n := len(req.ProfileIDs)
	seq := &model.OutreachSequence{
		TenantID:       req.TenantID,
		CampaignID:     req.CampaignID,
		AccountID:      req.AccountID,
		TotalProfiles:  n,
		DailyLimit:     daily,
		EstimatedDays:  ceilDiv(n, daily),
		EstimatedWeeks: ceilDiv(n, WeeklyRequests(daily)),
		StartDate:      start,
		Message:        req.Message,
		Status:         model.SequenceActive,
	}
	slots := s.GenerateSendingSlots(req.ProfileIDs, daily, start)

	if err := s.Sequences.CreateSequence(ctx, seq, slots); err != nil {
		return nil, fmt.Errorf("persist sequence: %w", err)
	}
	s.logger.Info("sequence scheduled",
		zap.String("sequence_id", seq.ID),
		zap.String("campaign_id", seq.CampaignID),
		zap.String("account_id", seq.AccountID),
		zap.Int("profiles", n),
		zap.Int("daily_limit", daily),
		zap.Int("estimated_days", seq.EstimatedDays))
	return &SequencePlan{Sequence: seq, Slots: slots}, nil
}

// GenerateSendingSlots walks weekdays from start, placing up to dailyLimit
// profiles per day. No day is given a count that would push the trailing
// seven-day total past the weekly cap.
func (s *Scheduler) GenerateSendingSlots(profileIDs []string, dailyLimit int, start time.Time) []*model.SendingSlot {
	daily := EffectiveDailyLimit(dailyLimit)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	perDay := map[string]int{}
	slots := make([]*model.SendingSlot, 0, len(profileIDs))
	remaining := profileIDs

	for len(remaining) > 0 {
		if isWeekend(day) {
			day = day.AddDate(0, 0, 1)
			continue
		}
		used := 0
		for back := 1; back < 7; back++ {
			used += perDay[dayKey(day.AddDate(0, 0, -back))]
		}
		take := min(daily, PlatformWeeklyCap-used, len(remaining))
		if take <= 0 {
			day = day.AddDate(0, 0, 1)
			continue
		}

		for i, at := range s.GenerateDaySlots(day, take) {
			slots = append(slots, &model.SendingSlot{
				ProfileID:     remaining[i],
				ScheduledTime: at,
				Status:        model.SlotPending,
			})
		}
		perDay[dayKey(day)] = take
		remaining = remaining[take:]
		day = day.AddDate(0, 0, 1)
	}
	return slots
}

// GenerateDaySlots spreads count send times evenly across the working window of
// day, shifts each by a random offset in [-15, 15) minutes and keeps them strictly
// inside the window. The result is sorted.
func (s *Scheduler) GenerateDaySlots(day time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	windowStart := time.Date(day.Year(), day.Month(), day.Day(), WorkdayStartHour, 0, 0, 0, day.Location())
	windowMinutes := (WorkdayEndHour - WorkdayStartHour) * 60
	interval := windowMinutes / (count + 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	times := make([]time.Time, 0, count)
	for i := 1; i <= count; i++ {
		offset := i*interval + s.rng.Intn(2*JitterMinutes) - JitterMinutes
		offset = max(1, min(offset, windowMinutes-1))
		times = append(times, windowStart.Add(time.Duration(offset)*time.Minute))
	}
	sort.Slice(times, func(a, b int) bool { return times[a].Before(times[b]) })
	return times
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

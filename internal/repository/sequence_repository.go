package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

type SequenceRepositoryInterface interface {
	// CreateSequence persists the sequence together with all of its slots.
	CreateSequence(ctx context.Context, seq *model.OutreachSequence, slots []*model.SendingSlot) error
	CreateSlots(ctx context.Context, sequenceID string, slots []*model.SendingSlot) error
	GetByID(ctx context.Context, id string) (*model.OutreachSequence, error)
	ListSlots(ctx context.Context, sequenceID string) ([]*model.SendingSlot, error)
	GetDueSlots(ctx context.Context, accountID, tenantID string, now time.Time) ([]*model.SendingSlot, error)
	// UpdateSlotStatus moves a pending slot to a final status. It reports false when
	// the slot was no longer pending.
	UpdateSlotStatus(ctx context.Context, slotID string, status model.SlotStatus, meta map[string]any) (bool, error)
	CountPendingSlots(ctx context.Context, sequenceID string) (int, error)
	UpdateStatus(ctx context.Context, sequenceID string, status model.SequenceStatus) error
	ListActiveAccounts(ctx context.Context) ([]model.Account, error)
}

type SequenceRepository struct {
	DB *sql.DB
}

const sequenceColumns = `id, tenant_id, campaign_id, account_id, total_profiles, daily_limit, estimated_days,
    estimated_weeks, start_date, message, status, created_at`

func (r *SequenceRepository) CreateSequence(ctx context.Context, seq *model.OutreachSequence, slots []*model.SendingSlot) error {
	if seq.ID == "" {
		seq.ID = uuid.NewString()
	}
	if seq.Status == "" {
		seq.Status = model.SequenceActive
	}
	seq.CreatedAt = time.Now()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
        INSERT INTO outreach_sequences (id, tenant_id, campaign_id, account_id, total_profiles, daily_limit,
            estimated_days, estimated_weeks, start_date, message, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	if _, err := tx.ExecContext(ctx, query, seq.ID, seq.TenantID, seq.CampaignID, seq.AccountID, seq.TotalProfiles,
		seq.DailyLimit, seq.EstimatedDays, seq.EstimatedWeeks, seq.StartDate, seq.Message, seq.Status, seq.CreatedAt); err != nil {
		return fmt.Errorf("insert sequence: %w", err)
	}
	if err := insertSlots(ctx, tx, seq.ID, slots); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SequenceRepository) CreateSlots(ctx context.Context, sequenceID string, slots []*model.SendingSlot) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertSlots(ctx, tx, sequenceID, slots); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSlots(ctx context.Context, tx *sql.Tx, sequenceID string, slots []*model.SendingSlot) error {
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO sending_slots (id, sequence_id, profile_id, scheduled_time, status, metadata)
        VALUES ($1, $2, $3, $4, $5, '{}'::jsonb)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range slots {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.SequenceID = sequenceID
		if s.Status == "" {
			s.Status = model.SlotPending
		}
		if _, err := stmt.ExecContext(ctx, s.ID, sequenceID, s.ProfileID, s.ScheduledTime, s.Status); err != nil {
			return fmt.Errorf("insert slot for profile %s: %w", s.ProfileID, err)
		}
	}
	return nil
}

func (r *SequenceRepository) GetByID(ctx context.Context, id string) (*model.OutreachSequence, error) {
	var s model.OutreachSequence
	err := r.DB.QueryRowContext(ctx, `SELECT `+sequenceColumns+` FROM outreach_sequences WHERE id=$1`, id).Scan(
		&s.ID, &s.TenantID, &s.CampaignID, &s.AccountID, &s.TotalProfiles, &s.DailyLimit, &s.EstimatedDays,
		&s.EstimatedWeeks, &s.StartDate, &s.Message, &s.Status, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSequenceNotFound(id)
		}
		return nil, err
	}
	return &s, nil
}

func (r *SequenceRepository) ListSlots(ctx context.Context, sequenceID string) ([]*model.SendingSlot, error) {
	query := `
        SELECT id, sequence_id, profile_id, scheduled_time, status, metadata, sent_at
        FROM sending_slots WHERE sequence_id=$1 ORDER BY scheduled_time
    `
	return r.querySlots(ctx, query, sequenceID)
}

// GetDueSlots returns today's pending slots of the account's active sequences whose time has come.
func (r *SequenceRepository) GetDueSlots(ctx context.Context, accountID, tenantID string, now time.Time) ([]*model.SendingSlot, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	query := `
        SELECT s.id, s.sequence_id, s.profile_id, s.scheduled_time, s.status, s.metadata, s.sent_at
        FROM sending_slots s
        JOIN outreach_sequences q ON q.id = s.sequence_id
        WHERE q.account_id = $1
          AND q.tenant_id = $2
          AND q.status = 'active'
          AND s.status = 'pending'
          AND s.scheduled_time >= $3
          AND s.scheduled_time <= $4
        ORDER BY s.scheduled_time
    `
	return r.querySlots(ctx, query, accountID, tenantID, dayStart, now)
}

func (r *SequenceRepository) UpdateSlotStatus(ctx context.Context, slotID string, status model.SlotStatus, meta map[string]any) (bool, error) {
	raw, err := json.Marshal(nonNilMap(meta))
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	var sentAt *time.Time
	if status == model.SlotSent {
		now := time.Now()
		sentAt = &now
	}
	query := `
        UPDATE sending_slots
        SET status=$1, metadata=$2::jsonb, sent_at=$3
        WHERE id=$4 AND status='pending'
    `
	res, err := r.DB.ExecContext(ctx, query, status, string(raw), sentAt, slotID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SequenceRepository) CountPendingSlots(ctx context.Context, sequenceID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sending_slots WHERE sequence_id=$1 AND status='pending'`, sequenceID).Scan(&n)
	return n, err
}

func (r *SequenceRepository) UpdateStatus(ctx context.Context, sequenceID string, status model.SequenceStatus) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE outreach_sequences SET status=$1 WHERE id=$2`, status, sequenceID)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewSequenceNotFound(sequenceID))
}

func (r *SequenceRepository) ListActiveAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT account_id, tenant_id FROM outreach_sequences WHERE status='active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.AccountID, &a.TenantID); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *SequenceRepository) querySlots(ctx context.Context, query string, args ...any) ([]*model.SendingSlot, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := []*model.SendingSlot{}
	for rows.Next() {
		var s model.SendingSlot
		var meta []byte
		if err := rows.Scan(&s.ID, &s.SequenceID, &s.ProfileID, &s.ScheduledTime, &s.Status, &meta, &s.SentAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &s.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of slot %s: %w", s.ID, err)
			}
		}
		slots = append(slots, &s)
	}
	return slots, rows.Err()
}

var _ SequenceRepositoryInterface = (*SequenceRepository)(nil)

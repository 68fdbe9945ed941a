package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

type ActivityRepositoryInterface interface {
	Create(ctx context.Context, a *model.Activity) error
	FindPending(ctx context.Context, leadID, stepID string) (*model.Activity, error)
	UpdateStatus(ctx context.Context, id string, status model.ActivityStatus, errMsg string, meta map[string]any) error
}

const uniqueViolation = "23505"

type ActivityRepository struct {
	DB *sql.DB
}

// Create inserts a new activity row and fills its ID and timestamps.
func (r *ActivityRepository) Create(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	meta, err := json.Marshal(nonNilMap(a.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
        INSERT INTO activities
        (id, campaign_id, lead_id, step_id, step_type, status, scheduled_at, error_message, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err = r.DB.ExecContext(ctx, query,
		a.ID,
		a.CampaignID,
		a.LeadID,
		a.StepID,
		a.StepType,
		a.Status,
		a.ScheduledAt,
		a.ErrorMessage,
		string(meta),
		a.CreatedAt,
		a.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "uq_activities_pending" {
		return fmt.Errorf("%w: lead %s step %s", appErrors.ErrDuplicatePending, a.LeadID, a.StepID)
	}
	return err
}

// FindPending returns the pending activity of a lead at a step, or nil when there is none.
func (r *ActivityRepository) FindPending(ctx context.Context, leadID, stepID string) (*model.Activity, error) {
	query := `
        SELECT id, campaign_id, lead_id, step_id, step_type, status, scheduled_at, error_message, metadata, created_at, updated_at
        FROM activities
        WHERE lead_id=$1 AND step_id=$2 AND status='pending'
    `
	var a model.Activity
	var meta []byte
	err := r.DB.QueryRowContext(ctx, query, leadID, stepID).Scan(
		&a.ID,
		&a.CampaignID,
		&a.LeadID,
		&a.StepID,
		&a.StepType,
		&a.Status,
		&a.ScheduledAt,
		&a.ErrorMessage,
		&meta,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of activity %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

// UpdateStatus sets status, error and metadata in one statement.
func (r *ActivityRepository) UpdateStatus(ctx context.Context, id string, status model.ActivityStatus, errMsg string, meta map[string]any) error {
	raw, err := json.Marshal(nonNilMap(meta))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `
        UPDATE activities
        SET status=$1, error_message=$2, metadata=metadata || $3::jsonb, updated_at=NOW()
        WHERE id=$4
    `
	res, err := r.DB.ExecContext(ctx, query, status, errMsg, string(raw), id)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewActivityNotFound(id))
}

var _ ActivityRepositoryInterface = (*ActivityRepository)(nil)

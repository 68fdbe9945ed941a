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

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	GetStatus(ctx context.Context, id string) (model.CampaignStatus, error)
	ListCampaigns(ctx context.Context, tenantID string, offset, limit int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error
	UpdateDefinition(ctx context.Context, campaignID string, def model.CampaignDefinition) error

	// Activity counts by status
	GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, tenant_id, account_id, name, status, definition, scheduled_at, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	def, err := json.Marshal(c.Definition)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	query := `
        INSERT INTO campaigns (id, tenant_id, account_id, name, status, definition, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err = r.DB.ExecContext(ctx, query, c.ID, c.TenantID, c.AccountID, c.Name, c.Status, string(def), c.ScheduledAt, c.CreatedAt)
	return err
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	res, err := r.DB.ExecContext(ctx, query, status, time.Now(), campaignID)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewCampaignNotFound(campaignID))
}

func (r *CampaignRepository) UpdateDefinition(ctx context.Context, campaignID string, def model.CampaignDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	query := `UPDATE campaigns SET definition=$1, updated_at=NOW() WHERE id=$2`
	res, err := r.DB.ExecContext(ctx, query, string(raw), campaignID)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewCampaignNotFound(campaignID))
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) GetStatus(ctx context.Context, id string) (model.CampaignStatus, error) {
	var status model.CampaignStatus
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", appErrors.NewCampaignNotFound(id)
	}
	return status, err
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, tenantID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE tenant_id=$1`
	args := []interface{}{tenantID}
	argPos := 2

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Count total
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM activities WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		string(model.ActivityPending):   0,
		string(model.ActivityCompleted): 0,
		string(model.ActivityError):     0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var def []byte
	if err := row.Scan(&c.ID, &c.TenantID, &c.AccountID, &c.Name, &c.Status, &def, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(def) > 0 {
		if err := json.Unmarshal(def, &c.Definition); err != nil {
			return nil, fmt.Errorf("decode definition of campaign %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)

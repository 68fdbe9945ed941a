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

// LeadRepositoryInterface defines methods used by the workflow engine and services
type LeadRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Lead, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.Lead, error)
	CreateLeads(ctx context.Context, campaignID, tenantID string, leads []*model.Lead) (int, error)
	UpdateCurrentStep(ctx context.Context, leadID, stepID string) error
	UpdateStatus(ctx context.Context, leadID string, status model.LeadStatus) error
	GetDueDelayedLeads(ctx context.Context, now time.Time) ([]*model.Lead, error)
	FindByProfile(ctx context.Context, campaignID, profileID string) (*model.Lead, error)
	TouchLastActivity(ctx context.Context, leadID string, at time.Time) error
	CountByStatus(ctx context.Context, campaignID string) (map[string]int, error)
}

// LeadRepository is the concrete implementation
type LeadRepository struct {
	DB *sql.DB
}

const leadColumns = `l.id, l.tenant_id, l.campaign_id, l.profile_id, l.email, l.phone, l.first_name, l.last_name,
    l.company, l.title, l.headline, l.seniority, l.industry, l.engagement_score, l.custom_fields,
    l.current_step_id, l.status, l.last_activity_at, l.created_at`

// GetByID fetches a lead by ID
func (r *LeadRepository) GetByID(ctx context.Context, id string) (*model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads l WHERE l.id = $1`
	lead, err := scanLead(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewLeadNotFound(id)
		}
		return nil, err
	}
	return lead, nil
}

// ListByCampaign fetches all leads attached to a campaign
func (r *LeadRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads l WHERE l.campaign_id = $1 ORDER BY l.created_at`
	return r.queryLeads(ctx, query, campaignID)
}

// CreateLeads inserts leads with no current step. Leads whose profile id or email
// already exists in the campaign are skipped.
func (r *LeadRepository) CreateLeads(ctx context.Context, campaignID, tenantID string, leads []*model.Lead) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
        INSERT INTO leads (id, tenant_id, campaign_id, profile_id, email, phone, first_name, last_name,
            company, title, headline, seniority, industry, engagement_score, custom_fields, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        ON CONFLICT DO NOTHING
    `
	inserted := 0
	for _, l := range leads {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.CampaignID = campaignID
		l.TenantID = tenantID
		l.Status = model.LeadPending
		l.CurrentStepID = ""
		l.CreatedAt = time.Now()

		fields, err := json.Marshal(nonNilMap(l.CustomFields))
		if err != nil {
			return 0, fmt.Errorf("encode custom fields: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, l.ID, tenantID, campaignID, l.ProfileID, l.Email, l.Phone,
			l.FirstName, l.LastName, l.Company, l.Title, l.Headline, l.Seniority, l.Industry,
			l.EngagementScore, string(fields), l.Status, l.CreatedAt)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *LeadRepository) UpdateCurrentStep(ctx context.Context, leadID, stepID string) error {
	query := `UPDATE leads SET current_step_id=$1, status=$2 WHERE id=$3`
	res, err := r.DB.ExecContext(ctx, query, stepID, model.LeadInProgress, leadID)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewLeadNotFound(leadID))
}

func (r *LeadRepository) UpdateStatus(ctx context.Context, leadID string, status model.LeadStatus) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE leads SET status=$1 WHERE id=$2`, status, leadID)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewLeadNotFound(leadID))
}

// GetDueDelayedLeads returns leads of active campaigns sitting on a delay whose
// pending activity is due.
func (r *LeadRepository) GetDueDelayedLeads(ctx context.Context, now time.Time) ([]*model.Lead, error) {
	query := `
        SELECT DISTINCT ON (l.id) ` + leadColumns + `
        FROM leads l
        JOIN activities a ON a.lead_id = l.id AND a.step_id = l.current_step_id
        JOIN campaigns c ON c.id = l.campaign_id
        WHERE a.status = 'pending'
          AND a.step_type = 'delay'
          AND a.scheduled_at <= $1
          AND c.status = 'active'
          AND l.status = 'in_progress'
        ORDER BY l.id, a.scheduled_at DESC
    `
	return r.queryLeads(ctx, query, now)
}

// FindByProfile returns nil when the campaign has no lead with that profile.
func (r *LeadRepository) FindByProfile(ctx context.Context, campaignID, profileID string) (*model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads l WHERE l.campaign_id = $1 AND l.profile_id = $2`
	lead, err := scanLead(r.DB.QueryRowContext(ctx, query, campaignID, profileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, err
	}
	return lead, nil
}

func (r *LeadRepository) TouchLastActivity(ctx context.Context, leadID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE leads SET last_activity_at=$1 WHERE id=$2`, at, leadID)
	return err
}

func (r *LeadRepository) CountByStatus(ctx context.Context, campaignID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM leads WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *LeadRepository) queryLeads(ctx context.Context, query string, args ...any) ([]*model.Lead, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []*model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func scanLead(row rowScanner) (*model.Lead, error) {
	var l model.Lead
	var fields []byte
	var currentStep sql.NullString
	err := row.Scan(&l.ID, &l.TenantID, &l.CampaignID, &l.ProfileID, &l.Email, &l.Phone, &l.FirstName, &l.LastName,
		&l.Company, &l.Title, &l.Headline, &l.Seniority, &l.Industry, &l.EngagementScore, &fields,
		&currentStep, &l.Status, &l.LastActivityAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.CurrentStepID = currentStep.String
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &l.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields of lead %s: %w", l.ID, err)
		}
	}
	return &l, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)

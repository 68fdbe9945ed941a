// internal/model/lead.go
package model

import "time"

type LeadStatus string

const (
	LeadPending    LeadStatus = "pending"
	LeadInProgress LeadStatus = "in_progress"
	LeadCompleted  LeadStatus = "completed"
	LeadFailed     LeadStatus = "failed"
)

type Lead struct {
	ID              string         `db:"id" json:"id"`
	TenantID        string         `db:"tenant_id" json:"tenant_id"`
	CampaignID      string         `db:"campaign_id" json:"campaign_id"`
	ProfileID       string         `db:"profile_id" json:"profile_id,omitempty"`
	Email           string         `db:"email" json:"email,omitempty"`
	Phone           string         `db:"phone" json:"phone,omitempty"`
	FirstName       string         `db:"first_name" json:"first_name"`
	LastName        string         `db:"last_name" json:"last_name"`
	Company         string         `db:"company" json:"company,omitempty"`
	Title           string         `db:"title" json:"title,omitempty"`
	Headline        string         `db:"headline" json:"headline,omitempty"`
	Seniority       string         `db:"seniority" json:"seniority,omitempty"`
	Industry        string         `db:"industry" json:"industry,omitempty"`
	EngagementScore float64        `db:"engagement_score" json:"engagement_score"`
	CustomFields    map[string]any `db:"custom_fields" json:"custom_fields,omitempty"`
	CurrentStepID   string         `db:"current_step_id" json:"current_step_id,omitempty"`
	Status          LeadStatus     `db:"status" json:"status"`
	LastActivityAt  *time.Time     `db:"last_activity_at" json:"last_activity_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Vars returns the values message templates may reference.
func (l *Lead) Vars() map[string]string {
	return map[string]string{
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"company":    l.Company,
		"title":      l.Title,
	}
}

// internal/model/activity.go
package model

import "time"

type ActivityStatus string

const (
	ActivityPending   ActivityStatus = "pending"
	ActivityCompleted ActivityStatus = "completed"
	ActivityError     ActivityStatus = "error"
)

// Activity records one execution attempt of a step for a lead.
type Activity struct {
	ID           string         `db:"id" json:"id"`
	CampaignID   string         `db:"campaign_id" json:"campaign_id"`
	LeadID       string         `db:"lead_id" json:"lead_id"`
	StepID       string         `db:"step_id" json:"step_id"`
	StepType     StepType       `db:"step_type" json:"step_type"`
	Status       ActivityStatus `db:"status" json:"status"` // pending, completed, error
	ScheduledAt  *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	Metadata     map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// internal/model/sequence.go
package model

import "time"

type SequenceStatus string

const (
	SequenceActive    SequenceStatus = "active"
	SequencePaused    SequenceStatus = "paused"
	SequenceCompleted SequenceStatus = "completed"
)

type SlotStatus string

const (
	SlotPending SlotStatus = "pending"
	SlotSent    SlotStatus = "sent"
	SlotFailed  SlotStatus = "failed"
)

type OutreachSequence struct {
	ID             string         `db:"id" json:"id"`
	TenantID       string         `db:"tenant_id" json:"tenant_id"`
	CampaignID     string         `db:"campaign_id" json:"campaign_id"`
	AccountID      string         `db:"account_id" json:"account_id"`
	TotalProfiles  int            `db:"total_profiles" json:"total_profiles"`
	DailyLimit     int            `db:"daily_limit" json:"daily_limit"`
	EstimatedDays  int            `db:"estimated_days" json:"estimated_days"`
	EstimatedWeeks int            `db:"estimated_weeks" json:"estimated_weeks"`
	StartDate      time.Time      `db:"start_date" json:"start_date"`
	Message        string         `db:"message" json:"message,omitempty"`
	Status         SequenceStatus `db:"status" json:"status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

type SendingSlot struct {
	ID            string         `db:"id" json:"id"`
	SequenceID    string         `db:"sequence_id" json:"sequence_id"`
	ProfileID     string         `db:"profile_id" json:"profile_id"`
	ScheduledTime time.Time      `db:"scheduled_time" json:"scheduled_time"`
	Status        SlotStatus     `db:"status" json:"status"` // pending, sent, failed
	Metadata      map[string]any `db:"metadata" json:"metadata,omitempty"`
	SentAt        *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
}

// Account identifies a sending account within a tenant.
type Account struct {
	AccountID string `db:"account_id" json:"account_id"`
	TenantID  string `db:"tenant_id" json:"tenant_id"`
}

// RelationshipStatus is the connection state between the sending account and a profile.
type RelationshipStatus string

const (
	NotConnected    RelationshipStatus = "not_connected"
	PendingOutgoing RelationshipStatus = "pending_outgoing"
	PendingIncoming RelationshipStatus = "pending_incoming"
	Connected       RelationshipStatus = "connected"
)

// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignStopped   CampaignStatus = "stopped"
	CampaignCompleted CampaignStatus = "completed"
)

type Campaign struct {
	ID          string             `db:"id" json:"id"`
	TenantID    string             `db:"tenant_id" json:"tenant_id"`
	AccountID   string             `db:"account_id" json:"account_id,omitempty"`
	Name        string             `db:"name" json:"name"`
	Status      CampaignStatus     `db:"status" json:"status"`
	Definition  CampaignDefinition `db:"definition" json:"definition"`
	ScheduledAt *time.Time         `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time         `db:"updated_at" json:"updated_at,omitempty"`
}

// Runnable reports whether leads of the campaign may advance.
func (c *Campaign) Runnable() bool {
	return c.Status == CampaignActive
}

// CampaignDefinition is the workflow graph a lead traverses.
type CampaignDefinition struct {
	ID    string `json:"id"`
	Steps []Step `json:"steps"`
	Edges []Edge `json:"edges"`
}

type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

const (
	HandleYes = "yes"
	HandleNo  = "no"
)

// Step returns the step with the given id.
func (d *CampaignDefinition) Step(id string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// StartSteps returns every step of type start.
func (d *CampaignDefinition) StartSteps() []*Step {
	var starts []*Step
	for i := range d.Steps {
		if d.Steps[i].Type == StepStart {
			starts = append(starts, &d.Steps[i])
		}
	}
	return starts
}

// Outgoing returns the edges leaving stepID in declaration order.
func (d *CampaignDefinition) Outgoing(stepID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Source == stepID {
			out = append(out, e)
		}
	}
	return out
}

// internal/errors/errors.go
package appErrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")

	ErrNoStartStep        = errors.New("campaign has no start step")
	ErrDuplicateStartStep = errors.New("campaign has more than one start step")
	ErrDanglingStep       = errors.New("step or edge references an unknown step")
	ErrUnreachableStep    = errors.New("step is not reachable from start")
	ErrInvalidStepConfig  = errors.New("invalid step config")
	ErrUnknownStepType    = errors.New("unknown step type")

	// ErrDuplicatePending is returned when a lead already has a pending activity at a step.
	ErrDuplicatePending = errors.New("pending activity already exists")
)

// NotFoundError is returned by repositories when a row does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewCampaignNotFound(id string) error {
	return &NotFoundError{Entity: "campaign", ID: id}
}

func NewLeadNotFound(id string) error {
	return &NotFoundError{Entity: "lead", ID: id}
}

func NewSequenceNotFound(id string) error {
	return &NotFoundError{Entity: "sequence", ID: id}
}

func NewActivityNotFound(id string) error {
	return &NotFoundError{Entity: "activity", ID: id}
}

// ConfigurationError is a defect in an authored campaign. It is never retried.
type ConfigurationError struct {
	StepID string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.StepID != "" {
		fmt.Fprintf(&b, " at step %s", e.StepID)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (%v)", e.Err)
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func NewConfigurationError(stepID string, err error, reason string) error {
	return &ConfigurationError{StepID: stepID, Reason: reason, Err: err}
}

func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// TransientProviderError wraps a network or timeout failure of an external provider.
type TransientProviderError struct {
	Provider string
	Err      error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient %s error: %v", e.Provider, e.Err)
}

func (e *TransientProviderError) Unwrap() error {
	return e.Err
}

func MarkTransient(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientProviderError{Provider: provider, Err: err}
}

// IsTransient reports whether a retry of the same call may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var tErr *TransientProviderError
	if errors.As(err, &tErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HaltReason explains why a workflow pass stopped.
type HaltReason string

const (
	HaltNone             HaltReason = ""
	HaltCompleted        HaltReason = "completed"
	HaltDelayPending     HaltReason = "delay_pending"
	HaltStepFailed       HaltReason = "step_failed"
	HaltNoStartStep      HaltReason = "no_start_step"
	HaltDanglingStep     HaltReason = "dangling_step"
	HaltRunawayWorkflow  HaltReason = "runaway_workflow"
	HaltInvalidConfig    HaltReason = "invalid_config"
	HaltCampaignInactive HaltReason = "campaign_inactive"
	HaltLeadBusy         HaltReason = "lead_busy"
	HaltLeadFailed       HaltReason = "lead_failed"
)

// Terminal reports whether the lead can never advance without an edit to the campaign.
func (r HaltReason) Terminal() bool {
	switch r {
	case HaltCompleted, HaltNoStartStep, HaltDanglingStep, HaltRunawayWorkflow, HaltInvalidConfig, HaltLeadFailed:
		return true
	}
	return false
}

// RunawayWorkflowError is reported when a pass exceeds its iteration ceiling.
type RunawayWorkflowError struct {
	LeadID     string
	LastStepID string
	Iterations int
}

func (e *RunawayWorkflowError) Error() string {
	return fmt.Sprintf("lead %s exceeded %d workflow iterations, last step %s", e.LeadID, e.Iterations, e.LastStepID)
}

// internal/model/step.go
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
)

type StepType string

const (
	StepStart           StepType = "start"
	StepEnd             StepType = "end"
	StepDelay           StepType = "delay"
	StepCondition       StepType = "condition"
	StepLeadGeneration  StepType = "lead_generation"
	StepLinkedInConnect StepType = "linkedin_connect"
	StepLinkedInMessage StepType = "linkedin_message"
	StepLinkedInVisit   StepType = "linkedin_visit"
	StepLinkedInFollow  StepType = "linkedin_follow"
	StepVoiceAgentCall  StepType = "voice_agent_call"
	StepEmailSend       StepType = "email_send"
	StepEmailFollowup   StepType = "email_followup"
)

// IsChannelAction reports whether the step performs an outbound action through a dispatcher.
func (t StepType) IsChannelAction() bool {
	switch t {
	case StepLinkedInConnect, StepLinkedInMessage, StepLinkedInVisit, StepLinkedInFollow,
		StepVoiceAgentCall, StepEmailSend, StepEmailFollowup:
		return true
	}
	return false
}

// StepConfig is the typed configuration of one step variant.
type StepConfig interface {
	StepType() StepType
}

type StartConfig struct{}

type EndConfig struct{}

// DelayConfig needs at least one component set. All-zero is a valid zero-length pause.
type DelayConfig struct {
	Days    *int `json:"days,omitempty" validate:"omitempty,gte=0"`
	Hours   *int `json:"hours,omitempty" validate:"omitempty,gte=0"`
	Minutes *int `json:"minutes,omitempty" validate:"omitempty,gte=0"`
}

func (c DelayConfig) Duration() time.Duration {
	deref := func(v *int) time.Duration {
		if v == nil {
			return 0
		}
		return time.Duration(*v)
	}
	return deref(c.Days)*24*time.Hour + deref(c.Hours)*time.Hour + deref(c.Minutes)*time.Minute
}

type ConditionKind string

const (
	ConditionResponseReceived ConditionKind = "response_received"
	ConditionProfileMatches   ConditionKind = "profile_matches"
	ConditionEngagementLevel  ConditionKind = "engagement_level"
	ConditionTimeElapsed      ConditionKind = "time_elapsed"
	ConditionCustomField      ConditionKind = "custom_field"
)

type ConditionConfig struct {
	ConditionType ConditionKind `json:"conditionType" validate:"required"`

	// profile_matches
	Title     string `json:"title,omitempty"`
	Seniority string `json:"seniority,omitempty"`
	Industry  string `json:"industry,omitempty"`

	// engagement_level
	MinEngagementScore float64 `json:"minEngagementScore,omitempty"`

	// time_elapsed
	DaysElapsed float64 `json:"daysElapsed,omitempty"`

	// custom_field
	FieldName     string `json:"fieldName,omitempty"`
	Operator      string `json:"operator,omitempty"`
	ExpectedValue any    `json:"expectedValue,omitempty"`
}

type LeadGenerationConfig struct {
	Filters map[string]any `json:"filters,omitempty"`
	Limit   int            `json:"limit,omitempty" validate:"gte=0"`
}

type LinkedInConnectConfig struct {
	Message string `json:"message,omitempty" validate:"max=300"`
}

type LinkedInMessageConfig struct {
	Message string `json:"message" validate:"required"`
}

type LinkedInVisitConfig struct{}

type LinkedInFollowConfig struct{}

type EmailSendConfig struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
	From    string `json:"from,omitempty" validate:"omitempty,email"`
}

type EmailFollowupConfig struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body" validate:"required"`
}

type VoiceAgentCallConfig struct {
	VoiceAgentID string `json:"voiceAgentId" validate:"required"`
	VoiceContext string `json:"voiceContext" validate:"required"`
}

func (StartConfig) StepType() StepType           { return StepStart }
func (EndConfig) StepType() StepType             { return StepEnd }
func (DelayConfig) StepType() StepType           { return StepDelay }
func (ConditionConfig) StepType() StepType       { return StepCondition }
func (LeadGenerationConfig) StepType() StepType  { return StepLeadGeneration }
func (LinkedInConnectConfig) StepType() StepType { return StepLinkedInConnect }
func (LinkedInMessageConfig) StepType() StepType { return StepLinkedInMessage }
func (LinkedInVisitConfig) StepType() StepType   { return StepLinkedInVisit }
func (LinkedInFollowConfig) StepType() StepType  { return StepLinkedInFollow }
func (EmailSendConfig) StepType() StepType       { return StepEmailSend }
func (EmailFollowupConfig) StepType() StepType   { return StepEmailFollowup }
func (VoiceAgentCallConfig) StepType() StepType  { return StepVoiceAgentCall }

var validate = validator.New(validator.WithRequiredStructEnabled())

// newConfig returns a pointer to an empty config for the step type.
func newConfig(t StepType) (StepConfig, error) {
	switch t {
	case StepStart:
		return &StartConfig{}, nil
	case StepEnd:
		return &EndConfig{}, nil
	case StepDelay:
		return &DelayConfig{}, nil
	case StepCondition:
		return &ConditionConfig{}, nil
	case StepLeadGeneration:
		return &LeadGenerationConfig{}, nil
	case StepLinkedInConnect:
		return &LinkedInConnectConfig{}, nil
	case StepLinkedInMessage:
		return &LinkedInMessageConfig{}, nil
	case StepLinkedInVisit:
		return &LinkedInVisitConfig{}, nil
	case StepLinkedInFollow:
		return &LinkedInFollowConfig{}, nil
	case StepEmailSend:
		return &EmailSendConfig{}, nil
	case StepEmailFollowup:
		return &EmailFollowupConfig{}, nil
	case StepVoiceAgentCall:
		return &VoiceAgentCallConfig{}, nil
	}
	return nil, fmt.Errorf("%w: %q", appErrors.ErrUnknownStepType, t)
}

// DecodeStepConfig decodes raw JSON into the typed config for t.
func DecodeStepConfig(t StepType, raw json.RawMessage) (StepConfig, error) {
	ptr, err := newConfig(t)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, ptr); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", t, err)
		}
	}
	return NormalizeConfig(ptr), nil
}

// NormalizeConfig turns a pointer config into the value variant stored on steps.
// A nil pointer yields nil.
func NormalizeConfig(c StepConfig) StepConfig {
	switch v := c.(type) {
	case *StartConfig:
		return valueOf(v)
	case *EndConfig:
		return valueOf(v)
	case *DelayConfig:
		return valueOf(v)
	case *ConditionConfig:
		return valueOf(v)
	case *LeadGenerationConfig:
		return valueOf(v)
	case *LinkedInConnectConfig:
		return valueOf(v)
	case *LinkedInMessageConfig:
		return valueOf(v)
	case *LinkedInVisitConfig:
		return valueOf(v)
	case *LinkedInFollowConfig:
		return valueOf(v)
	case *EmailSendConfig:
		return valueOf(v)
	case *EmailFollowupConfig:
		return valueOf(v)
	case *VoiceAgentCallConfig:
		return valueOf(v)
	}
	return c
}

func valueOf[T StepConfig](p *T) StepConfig {
	if p == nil {
		return nil
	}
	return *p
}

// Step is one node in a campaign graph. Config always holds the variant matching Type.
type Step struct {
	ID     string     `json:"id"`
	Type   StepType   `json:"type"`
	Config StepConfig `json:"config,omitempty"`
}

func (s *Step) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID     string          `json:"id"`
		Type   StepType        `json:"type"`
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	cfg, err := DecodeStepConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("step %s: %w", raw.ID, err)
	}
	s.ID = raw.ID
	s.Type = raw.Type
	s.Config = cfg
	return nil
}

// Validate checks the step's config against the required fields of its type.
func (s *Step) Validate() error {
	s.Config = NormalizeConfig(s.Config)
	if s.Config == nil {
		cfg, err := DecodeStepConfig(s.Type, nil)
		if err != nil {
			return appErrors.NewConfigurationError(s.ID, err, "")
		}
		s.Config = cfg
	}
	if s.Config.StepType() != s.Type {
		return appErrors.NewConfigurationError(s.ID, appErrors.ErrInvalidStepConfig,
			fmt.Sprintf("config of type %s attached to %s step", s.Config.StepType(), s.Type))
	}
	if err := validate.Struct(s.Config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return appErrors.NewConfigurationError(s.ID, appErrors.ErrInvalidStepConfig,
				"invalid fields: "+strings.Join(fields, ", "))
		}
		return appErrors.NewConfigurationError(s.ID, appErrors.ErrInvalidStepConfig, err.Error())
	}
	if d, ok := s.Config.(DelayConfig); ok && d.Days == nil && d.Hours == nil && d.Minutes == nil {
		return appErrors.NewConfigurationError(s.ID, appErrors.ErrInvalidStepConfig,
			"delay needs at least one of days, hours, minutes")
	}
	return nil
}

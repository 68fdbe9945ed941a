package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

func condStep(cfg model.ConditionConfig) *model.Step {
	return &model.Step{ID: "c", Type: model.StepCondition, Config: cfg}
}

func TestEvaluator_Evaluate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	fiveDaysAgo := now.Add(-5 * 24 * time.Hour)

	lead := func() *model.Lead {
		return &model.Lead{
			ID:              "l1",
			Title:           "VP Engineering",
			Headline:        "Building payments infra",
			Seniority:       "vp",
			Industry:        "Financial Services",
			EngagementScore: 42,
			CustomFields:    map[string]any{"plan": "enterprise", "seats": float64(120)},
			LastActivityAt:  &fiveDaysAgo,
			CreatedAt:       now.Add(-30 * 24 * time.Hour),
		}
	}

	tests := []struct {
		name  string
		cfg   model.ConditionConfig
		prior map[string]any
		lead  func() *model.Lead
		want  bool
	}{
		{"response received true", model.ConditionConfig{ConditionType: model.ConditionResponseReceived}, map[string]any{"responseReceived": true}, lead, true},
		{"response received missing", model.ConditionConfig{ConditionType: model.ConditionResponseReceived}, nil, lead, false},
		{"response received empty string", model.ConditionConfig{ConditionType: model.ConditionResponseReceived}, map[string]any{"responseReceived": ""}, lead, false},
		{"response received message text", model.ConditionConfig{ConditionType: model.ConditionResponseReceived}, map[string]any{"responseReceived": "thanks!"}, lead, true},

		{"profile title case-insensitive", model.ConditionConfig{ConditionType: model.ConditionProfileMatches, Title: "engineering"}, nil, lead, true},
		{"profile title against headline", model.ConditionConfig{ConditionType: model.ConditionProfileMatches, Title: "PAYMENTS"}, nil, lead, true},
		{"profile all criteria", model.ConditionConfig{ConditionType: model.ConditionProfileMatches, Title: "vp", Seniority: "vp", Industry: "financial"}, nil, lead, true},
		{"profile seniority exact", model.ConditionConfig{ConditionType: model.ConditionProfileMatches, Seniority: "VP"}, nil, lead, false},
		{"profile industry mismatch", model.ConditionConfig{ConditionType: model.ConditionProfileMatches, Industry: "retail"}, nil, lead, false},
		{"profile no criteria", model.ConditionConfig{ConditionType: model.ConditionProfileMatches}, nil, lead, true},

		{"engagement above", model.ConditionConfig{ConditionType: model.ConditionEngagementLevel, MinEngagementScore: 40}, nil, lead, true},
		{"engagement equal", model.ConditionConfig{ConditionType: model.ConditionEngagementLevel, MinEngagementScore: 42}, nil, lead, true},
		{"engagement below", model.ConditionConfig{ConditionType: model.ConditionEngagementLevel, MinEngagementScore: 50}, nil, lead, false},

		{"elapsed since last activity", model.ConditionConfig{ConditionType: model.ConditionTimeElapsed, DaysElapsed: 5}, nil, lead, true},
		{"not elapsed", model.ConditionConfig{ConditionType: model.ConditionTimeElapsed, DaysElapsed: 6}, nil, lead, false},
		{"elapsed falls back to created at", model.ConditionConfig{ConditionType: model.ConditionTimeElapsed, DaysElapsed: 20}, nil, func() *model.Lead {
			l := lead()
			l.LastActivityAt = nil
			return l
		}, true},
		{"elapsed without reference time", model.ConditionConfig{ConditionType: model.ConditionTimeElapsed}, nil, func() *model.Lead {
			return &model.Lead{ID: "bare"}
		}, false},

		{"custom equals", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "plan", Operator: OpEquals, ExpectedValue: "enterprise"}, nil, lead, true},
		{"custom equals number across types", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "seats", Operator: OpEquals, ExpectedValue: 120}, nil, lead, true},
		{"custom not equals", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "plan", Operator: OpNotEquals, ExpectedValue: "free"}, nil, lead, true},
		{"custom not equals missing field", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "region", Operator: OpNotEquals, ExpectedValue: "eu"}, nil, lead, true},
		{"custom equals missing field", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "region", Operator: OpEquals, ExpectedValue: "eu"}, nil, lead, false},
		{"custom contains", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "plan", Operator: OpContains, ExpectedValue: "prise"}, nil, lead, true},
		{"custom contains on number", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "seats", Operator: OpContains, ExpectedValue: "12"}, nil, lead, false},
		{"custom greater than", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "seats", Operator: OpGreaterThan, ExpectedValue: 100}, nil, lead, true},
		{"custom less than", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "seats", Operator: OpLessThan, ExpectedValue: 100}, nil, lead, false},
		{"custom greater than non numeric", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "plan", Operator: OpGreaterThan, ExpectedValue: 1}, nil, lead, false},
		{"custom unknown operator", model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "plan", Operator: "matches", ExpectedValue: "enterprise"}, nil, lead, false},

		{"unknown kind", model.ConditionConfig{ConditionType: "sentiment"}, nil, lead, false},
	}

	e := NewEvaluator(func() time.Time { return now })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(condStep(tt.cfg), tt.lead(), tt.prior))
		})
	}
}

func TestEvaluator_IsPure(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-72 * time.Hour)
	lead := &model.Lead{
		ID:              "l1",
		Title:           "Head of Sales",
		EngagementScore: 7,
		CustomFields:    map[string]any{"tier": "gold"},
		LastActivityAt:  &last,
	}
	before := *lead
	beforeFields := map[string]any{"tier": "gold"}
	prior := map[string]any{"responseReceived": 1}

	e := NewEvaluator(func() time.Time { return now })
	steps := []*model.Step{
		condStep(model.ConditionConfig{ConditionType: model.ConditionResponseReceived}),
		condStep(model.ConditionConfig{ConditionType: model.ConditionProfileMatches, Title: "sales"}),
		condStep(model.ConditionConfig{ConditionType: model.ConditionTimeElapsed, DaysElapsed: 2}),
		condStep(model.ConditionConfig{ConditionType: model.ConditionCustomField, FieldName: "tier", Operator: OpEquals, ExpectedValue: "gold"}),
	}
	for _, s := range steps {
		first := e.Evaluate(s, lead, prior)
		second := e.Evaluate(s, lead, prior)
		assert.Equal(t, first, second)
		assert.True(t, first)
	}

	assert.Equal(t, before.ID, lead.ID)
	assert.Equal(t, before.EngagementScore, lead.EngagementScore)
	assert.Equal(t, &last, lead.LastActivityAt)
	assert.Equal(t, last, *lead.LastActivityAt)
	assert.Equal(t, beforeFields, lead.CustomFields)
	assert.Equal(t, map[string]any{"responseReceived": 1}, prior)
}

func TestEvaluator_NonConditionStepIsFalse(t *testing.T) {
	e := NewEvaluator(nil)
	step := &model.Step{ID: "s", Type: model.StepStart, Config: model.StartConfig{}}
	assert.False(t, e.Evaluate(step, &model.Lead{}, nil))
}

package workflow

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// Evaluator decides the branch of a condition step. It reads the lead and the
// data returned by the last channel action and never writes either.
type Evaluator struct {
	Now func() time.Time
}

func NewEvaluator(now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{Now: now}
}

// KnownCondition reports whether Evaluate understands the kind.
func KnownCondition(kind model.ConditionKind) bool {
	switch kind {
	case model.ConditionResponseReceived, model.ConditionProfileMatches, model.ConditionEngagementLevel,
		model.ConditionTimeElapsed, model.ConditionCustomField:
		return true
	}
	return false
}

// Evaluate returns false for unknown condition kinds and for steps that carry no condition config.
func (e *Evaluator) Evaluate(step *model.Step, lead *model.Lead, prior map[string]any) bool {
	cfg, ok := model.NormalizeConfig(step.Config).(model.ConditionConfig)
	if !ok || lead == nil {
		return false
	}

	switch cfg.ConditionType {
	case model.ConditionResponseReceived:
		return truthy(prior["responseReceived"])
	case model.ConditionProfileMatches:
		return profileMatches(cfg, lead)
	case model.ConditionEngagementLevel:
		return lead.EngagementScore >= cfg.MinEngagementScore
	case model.ConditionTimeElapsed:
		ref := lead.CreatedAt
		if lead.LastActivityAt != nil {
			ref = *lead.LastActivityAt
		}
		if ref.IsZero() {
			return false
		}
		days := e.Now().Sub(ref).Hours() / 24
		return days >= cfg.DaysElapsed
	case model.ConditionCustomField:
		value, present := lead.CustomFields[cfg.FieldName]
		return compareField(value, present, cfg.Operator, cfg.ExpectedValue)
	}
	return false
}

func profileMatches(cfg model.ConditionConfig, lead *model.Lead) bool {
	if cfg.Title != "" {
		want := strings.ToLower(cfg.Title)
		if !strings.Contains(strings.ToLower(lead.Title), want) &&
			!strings.Contains(strings.ToLower(lead.Headline), want) {
			return false
		}
	}
	if cfg.Seniority != "" && lead.Seniority != cfg.Seniority {
		return false
	}
	if cfg.Industry != "" && !strings.Contains(strings.ToLower(lead.Industry), strings.ToLower(cfg.Industry)) {
		return false
	}
	return true
}

func compareField(value any, present bool, op string, expected any) bool {
	switch op {
	case OpEquals:
		return present && looseEqual(value, expected)
	case OpNotEquals:
		return !present || !looseEqual(value, expected)
	case OpContains:
		s, ok1 := value.(string)
		sub, ok2 := expected.(string)
		return present && ok1 && ok2 && strings.Contains(s, sub)
	case OpGreaterThan, OpLessThan:
		a, ok1 := toFloat(value)
		b, ok2 := toFloat(expected)
		if !present || !ok1 || !ok2 {
			return false
		}
		if op == OpGreaterThan {
			return a > b
		}
		return a < b
	}
	return false
}

// looseEqual compares numbers by value regardless of their Go type and
// everything else by deep equality.
func looseEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		f, err := strconv.ParseFloat(fmt.Sprint(n), 64)
		return f, err == nil
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if isNumber(v) {
		f, _ := toFloat(v)
		return f != 0
	}
	return true
}

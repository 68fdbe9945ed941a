package workflow

import (
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

// ValidateDefinition checks a campaign graph before it is saved: one start step,
// unique step ids, valid step configs, edges between known steps, yes/no handles
// on condition steps only, and every step reachable from start. All problems are
// reported together.
func ValidateDefinition(def *model.CampaignDefinition) error {
	var problems []error

	ids := make(map[string]*model.Step, len(def.Steps))
	for i := range def.Steps {
		s := &def.Steps[i]
		if s.ID == "" {
			problems = append(problems, fmt.Errorf("step #%d has no id", i))
			continue
		}
		if _, dup := ids[s.ID]; dup {
			problems = append(problems, fmt.Errorf("duplicate step id %s", s.ID))
			continue
		}
		ids[s.ID] = s
		if err := s.Validate(); err != nil {
			problems = append(problems, err)
		}
	}

	start, err := startStep(def)
	if err != nil {
		problems = append(problems, err)
	}

	for _, e := range def.Edges {
		src, ok := ids[e.Source]
		if !ok {
			problems = append(problems, fmt.Errorf("%w: edge source %s", appErrors.ErrDanglingStep, e.Source))
			continue
		}
		if _, ok := ids[e.Target]; !ok {
			problems = append(problems, fmt.Errorf("%w: edge %s -> %s", appErrors.ErrDanglingStep, e.Source, e.Target))
		}
		switch {
		case src.Type == model.StepCondition && e.SourceHandle != model.HandleYes && e.SourceHandle != model.HandleNo:
			problems = append(problems, fmt.Errorf("condition step %s has edge with handle %q, want yes or no", src.ID, e.SourceHandle))
		case src.Type != model.StepCondition && e.SourceHandle != "":
			problems = append(problems, fmt.Errorf("step %s is not a condition but has edge handle %q", src.ID, e.SourceHandle))
		case src.Type == model.StepEnd:
			problems = append(problems, fmt.Errorf("end step %s has an outgoing edge", src.ID))
		}
	}

	if start != nil {
		seen := reachable(def, start.ID)
		for _, s := range def.Steps {
			if s.ID != "" && !seen[s.ID] {
				problems = append(problems, fmt.Errorf("%w: %s", appErrors.ErrUnreachableStep, s.ID))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return appErrors.NewConfigurationError("", errors.Join(problems...),
		fmt.Sprintf("campaign definition has %d problem(s)", len(problems)))
}

func reachable(def *model.CampaignDefinition, from string) map[string]bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range def.Outgoing(id) {
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return seen
}

// startStep returns the single start step of def.
func startStep(def *model.CampaignDefinition) (*model.Step, error) {
	starts := def.StartSteps()
	switch len(starts) {
	case 0:
		return nil, appErrors.NewConfigurationError("", appErrors.ErrNoStartStep, "")
	case 1:
		return starts[0], nil
	}
	return nil, appErrors.NewConfigurationError("", appErrors.ErrDuplicateStartStep,
		fmt.Sprintf("found %d start steps", len(starts)))
}

// nextStepID resolves the edge taken after step. Condition steps follow the edge
// whose handle matches branch; other steps follow their first edge without a handle.
// An empty id with a nil error means the step has no outgoing edge.
func nextStepID(def *model.CampaignDefinition, step *model.Step, branch bool) (string, error) {
	edges := def.Outgoing(step.ID)
	if len(edges) == 0 {
		return "", nil
	}

	want := ""
	if step.Type == model.StepCondition {
		want = model.HandleNo
		if branch {
			want = model.HandleYes
		}
	}
	for _, e := range edges {
		if e.SourceHandle == want {
			return e.Target, nil
		}
	}
	return "", appErrors.NewConfigurationError(step.ID, appErrors.ErrDanglingStep,
		fmt.Sprintf("no outgoing edge for handle %q", want))
}

package channel

import (
	"context"
	"fmt"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

type VoiceCaller interface {
	Call(ctx context.Context, agentID, phone, callContext string) (map[string]any, error)
}

type VoiceDispatcher struct {
	Caller VoiceCaller
}

func NewVoiceDispatcher(caller VoiceCaller) *VoiceDispatcher {
	return &VoiceDispatcher{Caller: caller}
}

func (d *VoiceDispatcher) Execute(ctx context.Context, stepType model.StepType, lead *model.Lead, cfg model.StepConfig) (*Result, error) {
	c, ok := cfg.(model.VoiceAgentCallConfig)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDispatcher, stepType)
	}
	if lead.Phone == "" {
		return nil, fmt.Errorf("lead %s has no phone number", lead.ID)
	}
	data, err := d.Caller.Call(ctx, c.VoiceAgentID, lead.Phone, personalize(c.VoiceContext, lead))
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, Data: data}, nil
}

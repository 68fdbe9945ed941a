package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

// ErrNoDispatcher is returned for a step type no dispatcher was registered for.
var ErrNoDispatcher = errors.New("no dispatcher registered for step type")

// Result is what a provider reports for one outbound action.
type Result struct {
	Success bool
	Error   string
	Data    map[string]any
}

// Dispatcher performs one channel action for one lead.
type Dispatcher interface {
	Execute(ctx context.Context, stepType model.StepType, lead *model.Lead, cfg model.StepConfig) (*Result, error)
}

// Registry routes a step type to the dispatcher that handles it.
type Registry struct {
	mu          sync.RWMutex
	dispatchers map[model.StepType]Dispatcher
}

func NewRegistry() *Registry {
	return &Registry{dispatchers: make(map[model.StepType]Dispatcher)}
}

func (r *Registry) Register(d Dispatcher, types ...model.StepType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		r.dispatchers[t] = d
	}
}

func (r *Registry) Lookup(t model.StepType) (Dispatcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dispatchers[t]
	return d, ok
}

func (r *Registry) Execute(ctx context.Context, stepType model.StepType, lead *model.Lead, cfg model.StepConfig) (*Result, error) {
	d, ok := r.Lookup(stepType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDispatcher, stepType)
	}
	return d.Execute(ctx, stepType, lead, cfg)
}

// AccountResolver returns the sending account used for a lead's campaign.
type AccountResolver func(ctx context.Context, lead *model.Lead) (string, error)

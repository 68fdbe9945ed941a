package channel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryInterval = time.Second
)

// Retry runs fn with a per-attempt timeout and retries once when the failure is transient.
func Retry(ctx context.Context, timeout, interval time.Duration, fn func(ctx context.Context) error) error {
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if appErrors.IsTransient(err) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), 1), ctx)
	return backoff.Retry(op, b)
}

// RetryingDispatcher bounds every call with a timeout and retries transient failures once.
type RetryingDispatcher struct {
	next     Dispatcher
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

func WithRetry(next Dispatcher, timeout time.Duration, logger *zap.Logger) *RetryingDispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingDispatcher{
		next:     next,
		timeout:  timeout,
		interval: DefaultRetryInterval,
		logger:   logger.With(zap.String("module", "channel_retry")),
	}
}

func (r *RetryingDispatcher) Execute(ctx context.Context, stepType model.StepType, lead *model.Lead, cfg model.StepConfig) (*Result, error) {
	var res *Result
	attempt := 0
	err := Retry(ctx, r.timeout, r.interval, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.logger.Info("retrying provider call",
				zap.String("step_type", string(stepType)),
				zap.String("lead_id", lead.ID))
		}
		out, err := r.next.Execute(ctx, stepType, lead, cfg)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

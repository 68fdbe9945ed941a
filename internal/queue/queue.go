package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const TopicLeadWorkflow = "lead_workflow"

// LeadJob asks a worker to run one workflow pass for a lead.
type LeadJob struct {
	CampaignID string `json:"campaign_id"`
	LeadID     string `json:"lead_id"`
}

type Handler func(ctx context.Context, job LeadJob) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, job LeadJob) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers jobs to subscribers in-process with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup

	MaxRetries int
	Backoff    func(attempt int) time.Duration
	logger     *zap.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*500) * time.Millisecond
		},
		logger: logger.With(zap.String("module", "memory_queue")),
	}
}

// jobAttempt wraps a job with retry info
type jobAttempt struct {
	Job        LeadJob
	RetryCount int
	MaxRetries int
}

// Publish sends a job to all subscribers of the topic
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, job LeadJob) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(context.WithoutCancel(ctx), handler, jobAttempt{Job: job, MaxRetries: q.MaxRetries})
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, job jobAttempt) {
	defer q.wg.Done()
	log := q.logger.With(zap.String("campaign_id", job.Job.CampaignID), zap.String("lead_id", job.Job.LeadID))

	for job.RetryCount <= job.MaxRetries {
		err := handler(ctx, job.Job)
		if err == nil {
			log.Debug("job processed")
			return
		}

		job.RetryCount++
		log.Warn("job failed", zap.Int("attempt", job.RetryCount), zap.Int("max_retries", job.MaxRetries), zap.Error(err))

		if job.RetryCount > job.MaxRetries {
			log.Error("job permanently failed", zap.Int("attempts", job.RetryCount))
			return
		}
		time.Sleep(q.Backoff(job.RetryCount))
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

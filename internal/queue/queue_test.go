package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastQueue() *InMemoryQueue {
	q := NewInMemoryQueue(nil)
	q.Backoff = func(int) time.Duration { return time.Millisecond }
	return q
}

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := fastQueue()
	err := q.Publish(context.Background(), TopicLeadWorkflow, LeadJob{CampaignID: "c", LeadID: "l"})
	assert.Error(t, err)
}

func TestInMemoryQueue_RetriesUntilSuccess(t *testing.T) {
	q := fastQueue()
	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.Subscribe(TopicLeadWorkflow, func(ctx context.Context, job LeadJob) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("database is restarting")
		}
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), TopicLeadWorkflow, LeadJob{CampaignID: "c", LeadID: "l"}))
	q.Wait()
	assert.Equal(t, 3, attempts)
}

func TestInMemoryQueue_GivesUpAfterMaxRetries(t *testing.T) {
	q := fastQueue()
	q.MaxRetries = 2
	attempts := 0
	require.NoError(t, q.Subscribe(TopicLeadWorkflow, func(ctx context.Context, job LeadJob) error {
		attempts++
		return errors.New("still broken")
	}))

	require.NoError(t, q.Publish(context.Background(), TopicLeadWorkflow, LeadJob{CampaignID: "c", LeadID: "l"}))
	q.Wait()
	assert.Equal(t, 3, attempts)
}

type recordingProcessor struct {
	mu   sync.Mutex
	jobs []LeadJob
}

func (p *recordingProcessor) ProcessLead(ctx context.Context, campaignID, leadID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, LeadJob{CampaignID: campaignID, LeadID: leadID})
	return nil
}

func TestStartLeadWorkflowSubscriber(t *testing.T) {
	q := fastQueue()
	proc := &recordingProcessor{}
	require.NoError(t, StartLeadWorkflowSubscriber(q, proc, nil))

	require.NoError(t, q.Publish(context.Background(), TopicLeadWorkflow, LeadJob{CampaignID: "c1", LeadID: "l1"}))
	require.NoError(t, q.Publish(context.Background(), TopicLeadWorkflow, LeadJob{CampaignID: "c1"}))
	q.Wait()

	assert.Equal(t, []LeadJob{{CampaignID: "c1", LeadID: "l1"}}, proc.jobs)
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 2, retryCount(map[string]interface{}{retryHeader: int32(2)}))
	assert.Equal(t, 5, retryCount(map[string]interface{}{retryHeader: int64(5)}))
}

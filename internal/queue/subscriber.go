package queue

import (
	"context"

	"go.uber.org/zap"
)

// LeadProcessor runs one workflow pass for a queued lead.
type LeadProcessor interface {
	ProcessLead(ctx context.Context, campaignID, leadID string) error
}

// StartLeadWorkflowSubscriber wires lead workflow jobs to the processor. A
// returned error makes the queue retry the job.
func StartLeadWorkflowSubscriber(q Queue, processor LeadProcessor, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return q.Subscribe(TopicLeadWorkflow, func(ctx context.Context, job LeadJob) error {
		if job.LeadID == "" || job.CampaignID == "" {
			logger.Warn("invalid lead job payload", zap.Any("job", job))
			return nil
		}
		return processor.ProcessLead(ctx, job.CampaignID, job.LeadID)
	})
}

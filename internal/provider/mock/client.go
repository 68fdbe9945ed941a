// Package mock simulates the outreach providers for local runs. Every action
// succeeds with probability SuccessRate; failures look like transport errors.
package mock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/leadflow-backend/internal/channel"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

const DefaultSuccessRate = 0.9

var ErrMockSendFailed = errors.New("mock sending failed")

type Client struct {
	SuccessRate float64

	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

func NewClient(successRate float64, rng *rand.Rand, logger *zap.Logger) *Client {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		SuccessRate: successRate,
		rng:         rng,
		logger:      logger.With(zap.String("module", "mock_provider")),
	}
}

// attempt simulates one provider call.
func (c *Client) attempt(ctx context.Context, action string, fields map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	r := c.rng.Float64()
	c.mu.Unlock()

	if r >= c.SuccessRate {
		c.logger.Debug("mock action failed", zap.String("action", action))
		return nil, appErrors.MarkTransient("mock", fmt.Errorf("%s: %w", action, ErrMockSendFailed))
	}
	data := map[string]any{"id": uuid.NewString(), "action": action, "status": "ok"}
	for k, v := range fields {
		data[k] = v
	}
	return data, nil
}

// LookupProfile derives a stable relationship status from the profile id so
// repeated lookups agree.
func (c *Client) LookupProfile(ctx context.Context, accountID, profileID string) (*channel.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID + "/" + profileID))

	status := model.NotConnected
	switch h.Sum32() % 10 {
	case 6:
		status = model.PendingOutgoing
	case 7:
		status = model.PendingIncoming
	case 8, 9:
		status = model.Connected
	}
	return &channel.Profile{
		PrivateID:          "priv-" + profileID,
		RelationshipStatus: status,
		Data:               map[string]any{"profileId": profileID},
	}, nil
}

func (c *Client) SendInvite(ctx context.Context, accountID, privateID, message string) (map[string]any, error) {
	return c.attempt(ctx, "send_invite", map[string]any{"privateId": privateID, "withMessage": message != ""})
}

func (c *Client) SendMessage(ctx context.Context, accountID, privateID, message string) (map[string]any, error) {
	return c.attempt(ctx, "send_message", map[string]any{"privateId": privateID})
}

func (c *Client) AcceptInvite(ctx context.Context, accountID, privateID string) (map[string]any, error) {
	return c.attempt(ctx, "accept_invite", map[string]any{"privateId": privateID})
}

func (c *Client) VisitProfile(ctx context.Context, accountID, privateID string) (map[string]any, error) {
	return c.attempt(ctx, "visit_profile", map[string]any{"privateId": privateID})
}

func (c *Client) FollowProfile(ctx context.Context, accountID, privateID string) (map[string]any, error) {
	return c.attempt(ctx, "follow_profile", map[string]any{"privateId": privateID})
}

func (c *Client) Send(ctx context.Context, email channel.Email) (map[string]any, error) {
	return c.attempt(ctx, "email_send", map[string]any{"to": email.To, "subject": email.Subject})
}

func (c *Client) Call(ctx context.Context, agentID, phone, callContext string) (map[string]any, error) {
	return c.attempt(ctx, "voice_call", map[string]any{"agentId": agentID, "phone": phone})
}

var sampleNames = []struct{ first, last, company, title string }{
	{"Ada", "Lovelace", "Analytical Engines", "Head of Engineering"},
	{"Grace", "Hopper", "Compilers Inc", "VP Engineering"},
	{"Alan", "Turing", "Bletchley Labs", "Chief Scientist"},
	{"Katherine", "Johnson", "Orbital Systems", "Director of Analytics"},
	{"Edsger", "Dijkstra", "Structured Co", "Principal Engineer"},
}

// Search returns limit synthetic leads, 10 when limit is zero.
func (c *Client) Search(ctx context.Context, filters map[string]any, limit int) ([]*model.Lead, error) {
	if _, err := c.attempt(ctx, "lead_search", nil); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	industry, _ := filters["industry"].(string)

	leads := make([]*model.Lead, 0, limit)
	for i := 0; i < limit; i++ {
		n := sampleNames[i%len(sampleNames)]
		id := uuid.NewString()
		leads = append(leads, &model.Lead{
			ProfileID: "li-" + id[:8],
			Email:     fmt.Sprintf("%s.%s+%s@example.com", n.first, n.last, id[:8]),
			FirstName: n.first,
			LastName:  n.last,
			Company:   n.company,
			Title:     n.title,
			Industry:  industry,
		})
	}
	return leads, nil
}

var (
	_ channel.LinkedInClient = (*Client)(nil)
	_ channel.Mailer         = (*Client)(nil)
	_ channel.VoiceCaller    = (*Client)(nil)
)

package channel

import (
	"context"
	"fmt"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

// Profile is what a LinkedIn lookup returns for a public profile id.
type Profile struct {
	PrivateID          string
	RelationshipStatus model.RelationshipStatus
	Data               map[string]any
}

// LinkedInClient is the provider surface used by step dispatch and the slot processor.
type LinkedInClient interface {
	LookupProfile(ctx context.Context, accountID, profileID string) (*Profile, error)
	SendInvite(ctx context.Context, accountID, privateID, message string) (map[string]any, error)
	SendMessage(ctx context.Context, accountID, privateID, message string) (map[string]any, error)
	AcceptInvite(ctx context.Context, accountID, privateID string) (map[string]any, error)
	VisitProfile(ctx context.Context, accountID, privateID string) (map[string]any, error)
	FollowProfile(ctx context.Context, accountID, privateID string) (map[string]any, error)
}

type LinkedInDispatcher struct {
	Client     LinkedInClient
	AccountFor AccountResolver
}

func NewLinkedInDispatcher(client LinkedInClient, accountFor AccountResolver) *LinkedInDispatcher {
	return &LinkedInDispatcher{Client: client, AccountFor: accountFor}
}

func (d *LinkedInDispatcher) Execute(ctx context.Context, stepType model.StepType, lead *model.Lead, cfg model.StepConfig) (*Result, error) {
	if lead.ProfileID == "" {
		return nil, fmt.Errorf("lead %s has no linkedin profile", lead.ID)
	}
	accountID, err := d.AccountFor(ctx, lead)
	if err != nil {
		return nil, fmt.Errorf("resolve sending account: %w", err)
	}
	profile, err := d.Client.LookupProfile(ctx, accountID, lead.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("lookup profile %s: %w", lead.ProfileID, err)
	}

	var data map[string]any
	switch c := cfg.(type) {
	case model.LinkedInConnectConfig:
		// An existing relationship makes a new invitation pointless.
		if profile.RelationshipStatus != model.NotConnected {
			return &Result{Success: true, Data: map[string]any{
				"skipped":            true,
				"relationshipStatus": string(profile.RelationshipStatus),
			}}, nil
		}
		data, err = d.Client.SendInvite(ctx, accountID, profile.PrivateID, personalize(c.Message, lead))
	case model.LinkedInMessageConfig:
		data, err = d.Client.SendMessage(ctx, accountID, profile.PrivateID, personalize(c.Message, lead))
	case model.LinkedInVisitConfig:
		data, err = d.Client.VisitProfile(ctx, accountID, profile.PrivateID)
	case model.LinkedInFollowConfig:
		data, err = d.Client.FollowProfile(ctx, accountID, profile.PrivateID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoDispatcher, stepType)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, Data: data}, nil
}

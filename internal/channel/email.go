package channel

import (
	"context"
	"fmt"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

type Email struct {
	To      string
	From    string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) (map[string]any, error)
}

type EmailDispatcher struct {
	Mailer Mailer
}

func NewEmailDispatcher(mailer Mailer) *EmailDispatcher {
	return &EmailDispatcher{Mailer: mailer}
}

func (d *EmailDispatcher) Execute(ctx context.Context, stepType model.StepType, lead *model.Lead, cfg model.StepConfig) (*Result, error) {
	if lead.Email == "" {
		return nil, fmt.Errorf("lead %s has no email address", lead.ID)
	}

	var email Email
	switch c := cfg.(type) {
	case model.EmailSendConfig:
		email = Email{To: lead.Email, From: c.From, Subject: c.Subject, Body: c.Body}
	case model.EmailFollowupConfig:
		email = Email{To: lead.Email, Subject: c.Subject, Body: c.Body}
		if email.Subject == "" {
			email.Subject = "Following up"
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoDispatcher, stepType)
	}
	email.Subject = personalize(email.Subject, lead)
	email.Body = personalize(email.Body, lead)

	data, err := d.Mailer.Send(ctx, email)
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, Data: data}, nil
}

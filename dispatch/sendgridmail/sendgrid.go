package sendgridmail

import (
	"context"
	"net/http"

	"github.com/auroilion/roilion/dispatch"
	"github.com/auroilion/roilion/pipeline"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var _ dispatch.Dispatcher = &SendgridMail{}

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridMail sends contact emails through the sendgrid v3 api
type SendgridMail struct {
	client sender
	r      *dispatch.Renderer
}

// NewSendgridDispatcher creates a new sendgrid Dispatcher
func NewSendgridDispatcher(key string, r *dispatch.Renderer) (*SendgridMail, error) {
	if key == "" {
		return nil, errors.Wrap(dispatch.ErrNotConfigured, "sendgrid api key is required")
	}

	return &SendgridMail{client: sendgrid.NewSendClient(key), r: r}, nil
}

// Send implements Dispatcher
func (s *SendgridMail) Send(ctx context.Context, e pipeline.Envelope) (string, error) {
	m, err := s.r.Render(e)
	if err != nil {
		return "", err
	}

	sg := mail.NewSingleEmail(
		mail.NewEmail(m.FromName, m.From),
		m.Subject,
		mail.NewEmail("", m.To),
		m.Text,
		m.HTML,
	)
	sg.SetReplyTo(mail.NewEmail(e.FromName, m.ReplyTo))
	sg.SetHeader("X-Roilion-Submission", m.ID)

	resp, err := s.client.SendWithContext(ctx, sg)
	if err != nil {
		return "", errors.Wrap(err, "Sendgrid: failed to send message")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", errors.Errorf("Sendgrid: unexpected status %v: %v", resp.StatusCode, resp.Body)
	}

	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}

	return m.ID, nil
}

package mailgunmail

import (
	"context"
	"fmt"

	"github.com/auroilion/roilion/dispatch"
	"github.com/auroilion/roilion/pipeline"
	"github.com/pkg/errors"
	mailgun "gopkg.in/mailgun/mailgun-go.v1"
)

var _ dispatch.Dispatcher = &MailgunMail{}

// sender is the part of the mailgun client used here
type sender interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(m *mailgun.Message) (string, string, error)
}

// MailgunMail sends contact emails through the mailgun api
type MailgunMail struct {
	mg sender
	r  *dispatch.Renderer
}

// NewMailgunDispatcher creates a new mailgun Dispatcher
func NewMailgunDispatcher(domain string, key string, r *dispatch.Renderer) (*MailgunMail, error) {
	if domain == "" || key == "" {
		return nil, errors.Wrap(dispatch.ErrNotConfigured, "mailgun domain and key are required")
	}

	return &MailgunMail{
		mg: mailgun.NewMailgun(domain, key, ""),
		r:  r,
	}, nil
}

// Send implements Dispatcher. The mailgun client has no context support so ctx is only
// checked before sending.
func (m *MailgunMail) Send(ctx context.Context, e pipeline.Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg, err := m.r.Render(e)
	if err != nil {
		return "", err
	}

	from := fmt.Sprintf("%v <%v>", msg.FromName, msg.From)

	mm := m.mg.NewMessage(from, msg.Subject, msg.Text, msg.To)
	mm.SetHtml(msg.HTML)
	mm.AddHeader("Reply-To", msg.ReplyTo)
	mm.AddHeader("X-Roilion-Submission", msg.ID)

	_, id, err := m.mg.Send(mm)
	if err != nil {
		return "", errors.Wrap(err, "Mailgun: failed to send message")
	}

	return id, nil
}

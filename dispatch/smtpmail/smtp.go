package smtpmail

import (
	"context"
	"time"

	"github.com/auroilion/roilion/dispatch"
	"github.com/auroilion/roilion/pipeline"
	"github.com/pkg/errors"
	mail "github.com/wneessen/go-mail"
)

var _ dispatch.Dispatcher = &SMTPMail{}

// Defaults for the relay the site has always used
const (
	DefaultHost = "smtp-relay.brevo.com"
	DefaultPort = 587
)

// Config describes the SMTP relay
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMail sends contact emails through an SMTP relay, upgrading to TLS when offered
type SMTPMail struct {
	client sender
	r      *dispatch.Renderer
}

// NewSMTPDispatcher creates a new smtp Dispatcher
func NewSMTPDispatcher(cfg Config, r *dispatch.Renderer) (*SMTPMail, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.Wrap(dispatch.ErrNotConfigured, "smtp username and password are required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	c, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, errors.Wrap(err, "SMTPMail: failed to create client")
	}

	return &SMTPMail{client: c, r: r}, nil
}

// Send implements Dispatcher
func (s *SMTPMail) Send(ctx context.Context, e pipeline.Envelope) (string, error) {
	m, err := s.r.Render(e)
	if err != nil {
		return "", err
	}

	msg, err := buildMsg(m)
	if err != nil {
		return "", err
	}

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", errors.Wrap(err, "SMTPMail: failed to send message")
	}

	return m.ID, nil
}

func buildMsg(m dispatch.Message) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if err := msg.FromFormat(m.FromName, m.From); err != nil {
		return nil, errors.Wrap(err, "SMTPMail: invalid from address")
	}
	if err := msg.To(m.To); err != nil {
		return nil, errors.Wrap(err, "SMTPMail: invalid to address")
	}
	if err := msg.ReplyTo(m.ReplyTo); err != nil {
		return nil, errors.Wrap(err, "SMTPMail: invalid reply-to address")
	}

	msg.Subject(m.Subject)
	msg.SetMessageIDWithValue(m.ID + "@roilion")
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, m.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)

	return msg, nil
}

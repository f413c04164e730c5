package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/auroilion/roilion/validate"
)

// Form is the contact form as posted by the site
type Form struct {
	FromName     string `json:"from_name"`
	ReplyTo      string `json:"reply_to"`
	Message      string `json:"message"`
	Honeypot     string `json:"honeypot"`
	CaptchaToken string `json:"captcha_token"`
}

// Submission is a form together with the identity it is rate limited under. It cannot be
// changed once built.
type Submission struct {
	identity string
	form     Form
}

// NewSubmission builds a submission for identity, the bearer token or client address the
// caller is counted under
func NewSubmission(identity string, f Form) Submission {
	return Submission{identity: identity, form: f}
}

// Identity returns the rate limit identity
func (s Submission) Identity() string { return s.identity }

// FromName returns the sender name as submitted
func (s Submission) FromName() string { return s.form.FromName }

// ReplyTo returns the reply-to address as submitted
func (s Submission) ReplyTo() string { return s.form.ReplyTo }

// Message returns the message as submitted
func (s Submission) Message() string { return s.form.Message }

// Honeypot returns the hidden field's value
func (s Submission) Honeypot() string { return s.form.Honeypot }

// CaptchaToken returns the captcha widget token
func (s Submission) CaptchaToken() string { return s.form.CaptchaToken }

// Envelope is an accepted submission, trimmed and normalized, ready to be mailed
type Envelope struct {
	ID         string    `json:"id"`
	FromName   string    `json:"from_name"`
	ReplyTo    string    `json:"reply_to"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

func newEnvelope(id string, s Submission, now time.Time) Envelope {
	return Envelope{
		ID:         id,
		FromName:   strings.TrimSpace(s.FromName()),
		ReplyTo:    validate.NormalizeEmail(s.ReplyTo()),
		Message:    strings.TrimSpace(s.Message()),
		ReceivedAt: now,
	}
}

// Redact returns a short stable fingerprint of an identity that is safe to log
func Redact(identity string) string {
	if identity == "" {
		return "anonymous"
	}
	h := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(h[:4])
}

// Package pipeline runs a contact form submission through the abuse checks in order:
// honeypot, rate limit, validation, captcha and spam. The first failing stage decides.
package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/auroilion/roilion/captcha"
	"github.com/auroilion/roilion/metrics"
	"github.com/auroilion/roilion/ratelimit"
	"github.com/auroilion/roilion/spam"
	"github.com/auroilion/roilion/validate"
	"github.com/google/uuid"
)

// DefaultLimit is the number of submissions allowed per identity per window
const DefaultLimit = 5

// RateLimiter counts submissions per identity
type RateLimiter interface {
	Check(ctx context.Context, key string, limit int) error
}

// CaptchaVerifier checks captcha tokens
type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) (captcha.Result, error)
}

// SpamClassifier classifies message bodies
type SpamClassifier interface {
	Classify(message string) spam.Verdict
}

// Config holds the stages. A nil Captcha or Spam skips that stage.
type Config struct {
	Limiter RateLimiter
	Limit   int
	Captcha CaptchaVerifier
	Spam    SpamClassifier

	// Now defaults to time.Now
	Now func() time.Time
}

// Decision is the outcome of running a submission
type Decision struct {
	// State is Accepted or Rejected
	State State

	// Last is the last state passed before State. SpamChecked for accepted submissions.
	Last   State
	Reason Reason

	// Envelope is set when accepted
	Envelope Envelope

	// RetryAfter is set for RateLimited
	RetryAfter time.Duration

	// Err carries the infrastructure failure behind an InternalError
	Err error
}

// Accepted reports whether the submission passed every stage
func (d Decision) Accepted() bool {
	return d.State == Accepted
}

// Pipeline runs submissions. It is safe for concurrent use.
type Pipeline struct {
	cfg Config
}

// New returns a pipeline for cfg
func New(cfg Config) *Pipeline {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{cfg: cfg}
}

// Run walks s through every stage and returns the decision
func (p *Pipeline) Run(ctx context.Context, s Submission) Decision {
	d := p.run(ctx, s)

	if d.Accepted() {
		metrics.Submissions.WithLabelValues("accepted", None.String()).Inc()
		log.Printf("Pipeline: submission %v from %v accepted", d.Envelope.ID, Redact(s.Identity()))
	} else {
		metrics.Submissions.WithLabelValues("rejected", d.Reason.String()).Inc()
		if d.Err != nil {
			log.Printf("Pipeline: submission from %v rejected after %v: %v: %v", Redact(s.Identity()), d.Last, d.Reason, d.Err)
		} else {
			log.Printf("Pipeline: submission from %v rejected after %v: %v", Redact(s.Identity()), d.Last, d.Reason)
		}
	}

	return d
}

func (p *Pipeline) run(ctx context.Context, s Submission) Decision {
	state := Received

	if s.Honeypot() != "" {
		return reject(state, Honeypot)
	}
	state = HoneypotChecked

	if p.cfg.Limiter != nil {
		err := p.cfg.Limiter.Check(ctx, s.Identity(), p.cfg.Limit)
		if errors.Is(err, ratelimit.ErrRateLimited) {
			d := reject(state, RateLimited)

			var le *ratelimit.LimitError
			if errors.As(err, &le) {
				d.RetryAfter = le.RetryAfter(p.cfg.Now())
			}
			return d
		}
		if err != nil {
			log.Printf("Pipeline: rate limiter failed, allowing submission: %v", err)
		}
	}
	state = RateLimitChecked

	if reason := ValidationReason(validate.Fields(s.FromName(), s.ReplyTo(), s.Message())); reason != None {
		return reject(state, reason)
	}
	state = Validated

	if p.cfg.Captcha != nil {
		_, err := p.cfg.Captcha.Verify(ctx, s.CaptchaToken())
		if errors.Is(err, captcha.ErrCaptchaFailed) {
			return reject(state, CaptchaFailed)
		}
		if err != nil {
			d := reject(state, InternalError)
			d.Err = err
			return d
		}
	}
	state = CaptchaVerified

	if p.cfg.Spam != nil && p.cfg.Spam.Classify(s.Message()) == spam.Spam {
		return reject(state, SpamDetected)
	}
	state = SpamChecked

	return Decision{
		State:    Accepted,
		Last:     state,
		Envelope: newEnvelope(uuid.Must(uuid.NewRandom()).String(), s, p.cfg.Now()),
	}
}

func reject(last State, r Reason) Decision {
	return Decision{State: Rejected, Last: last, Reason: r}
}

// ValidationReason maps an error from validate.Fields to the rejection it is reported as
func ValidationReason(err error) Reason {
	switch {
	case err == nil:
		return None
	case errors.Is(err, validate.ErrMissingFields):
		return MissingFields
	case errors.Is(err, validate.ErrInvalidEmail):
		return InvalidEmail
	case errors.Is(err, validate.ErrInvalidName):
		return InvalidName
	case errors.Is(err, validate.ErrInvalidMessage):
		return InvalidMessage
	default:
		return InternalError
	}
}

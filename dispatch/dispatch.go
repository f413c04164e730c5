// Package dispatch forwards accepted contact submissions to the site owner by email.
package dispatch

import (
	"context"
	"log"

	"github.com/auroilion/roilion/metrics"
	"github.com/auroilion/roilion/pipeline"
	"github.com/pkg/errors"
)

// DefaultFromName is the display name contact emails are sent under
const DefaultFromName = "Le Roi Lion"

// ErrNotConfigured is returned when a provider is missing required settings
var ErrNotConfigured = errors.New("dispatch: provider not configured")

// Dispatcher sends an accepted submission and returns the provider's message id
type Dispatcher interface {
	Send(ctx context.Context, e pipeline.Envelope) (string, error)
}

// Instrument counts every send attempt of d under provider
func Instrument(provider string, d Dispatcher) Dispatcher {
	return instrumented{provider: provider, next: d}
}

type instrumented struct {
	provider string
	next     Dispatcher
}

func (i instrumented) Send(ctx context.Context, e pipeline.Envelope) (string, error) {
	id, err := i.next.Send(ctx, e)
	metrics.Dispatched.WithLabelValues(i.provider, metrics.Result(err)).Inc()
	return id, err
}

// LogDispatcher renders messages and logs them instead of sending. Used while developing.
type LogDispatcher struct {
	r *Renderer
}

// NewLogDispatcher returns a dispatcher that only logs
func NewLogDispatcher(r *Renderer) *LogDispatcher {
	return &LogDispatcher{r: r}
}

// Send implements Dispatcher
func (l *LogDispatcher) Send(_ context.Context, e pipeline.Envelope) (string, error) {
	m, err := l.r.Render(e)
	if err != nil {
		return "", err
	}

	log.Printf("LogDispatcher: would send %v to %v, reply to %v, subject %q:\n%v", m.ID, m.To, pipeline.Redact(m.ReplyTo), m.Subject, m.Text)
	return m.ID, nil
}

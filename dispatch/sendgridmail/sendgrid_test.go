package sendgridmail

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/auroilion/roilion/dispatch"
	"github.com/auroilion/roilion/pipeline"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	got  *mail.SGMailV3
	resp *rest.Response
	err  error
}

func (f *fakeClient) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.got = email
	return f.resp, f.err
}

var envelope = pipeline.Envelope{
	ID:         "8d5b4c0e-6a43-4c55-9d0a-5d1f3f1f6b11",
	FromName:   "Jean Dupont",
	ReplyTo:    "jean@example.com",
	Message:    "Bonjour,\nest-ce disponible ?",
	ReceivedAt: time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC),
}

func newRenderer(t *testing.T) *dispatch.Renderer {
	t.Helper()

	r, err := dispatch.NewRenderer(dispatch.Addresses{From: "contact@auroilion.fr", To: "owner@auroilion.fr"})
	require.NoError(t, err)
	return r
}

func TestSendgrid_Send(t *testing.T) {
	f := &fakeClient{resp: &rest.Response{
		StatusCode: http.StatusAccepted,
		Headers:    map[string][]string{"X-Message-Id": {"sg-123"}},
	}}
	s := &SendgridMail{client: f, r: newRenderer(t)}

	id, err := s.Send(context.Background(), envelope)
	require.NoError(t, err)
	assert.Equal(t, "sg-123", id)

	require.NotNil(t, f.got)
	assert.Equal(t, "Nouveau message de Jean Dupont", f.got.Subject)
	assert.Equal(t, "contact@auroilion.fr", f.got.From.Address)
	assert.Equal(t, "Le Roi Lion", f.got.From.Name)
	assert.Equal(t, "jean@example.com", f.got.ReplyTo.Address)
	require.Len(t, f.got.Personalizations, 1)
	assert.Equal(t, "owner@auroilion.fr", f.got.Personalizations[0].To[0].Address)
	require.Len(t, f.got.Content, 2)
	assert.Equal(t, "text/plain", f.got.Content[0].Type)
	assert.Equal(t, "text/html", f.got.Content[1].Type)
}

func TestSendgrid_Errors(t *testing.T) {
	tests := []struct {
		Resp *rest.Response
		Err  error
	}{
		{Err: errors.New("dial tcp: timeout")},
		{Resp: &rest.Response{StatusCode: http.StatusUnauthorized, Body: `{"errors":[]}`}},
	}

	for i, test := range tests {
		s := &SendgridMail{client: &fakeClient{resp: test.Resp, err: test.Err}, r: newRenderer(t)}
		_, err := s.Send(context.Background(), envelope)
		assert.Error(t, err, "test %v", i)
	}
}

func TestSendgrid_FallsBackToSubmissionID(t *testing.T) {
	f := &fakeClient{resp: &rest.Response{StatusCode: http.StatusAccepted}}
	s := &SendgridMail{client: f, r: newRenderer(t)}

	id, err := s.Send(context.Background(), envelope)
	require.NoError(t, err)
	assert.Equal(t, envelope.ID, id)
}

func TestNewSendgridDispatcher(t *testing.T) {
	_, err := NewSendgridDispatcher("", newRenderer(t))
	assert.True(t, errors.Is(err, dispatch.ErrNotConfigured))
}

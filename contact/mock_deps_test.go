package contact

import (
	"context"

	"github.com/auroilion/roilion/captcha"
	"github.com/auroilion/roilion/pipeline"
	mock "github.com/stretchr/testify/mock"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Send(ctx context.Context, e pipeline.Envelope) (string, error) {
	args := m.Called(ctx, e)
	return args.String(0), args.Error(1)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (captcha.Result, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(captcha.Result), args.Error(1)
}

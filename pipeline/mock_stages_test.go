package pipeline

import (
	"context"

	"github.com/auroilion/roilion/captcha"
	"github.com/auroilion/roilion/spam"
	mock "github.com/stretchr/testify/mock"
)

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Check(ctx context.Context, key string, limit int) error {
	args := m.Called(ctx, key, limit)
	return args.Error(0)
}

type MockCaptchaVerifier struct {
	mock.Mock
}

func (m *MockCaptchaVerifier) Verify(ctx context.Context, token string) (captcha.Result, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(captcha.Result), args.Error(1)
}

type MockSpamClassifier struct {
	mock.Mock
}

func (m *MockSpamClassifier) Classify(message string) spam.Verdict {
	args := m.Called(message)
	return args.Get(0).(spam.Verdict)
}

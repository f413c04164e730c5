package mailgunmail

import (
	mock "github.com/stretchr/testify/mock"
	mailgun "gopkg.in/mailgun/mailgun-go.v1"
)

type MockMailgun struct {
	mock.Mock
}

func (m *MockMailgun) NewMessage(from, subject, text string, to ...string) *mailgun.Message {
	m.Called(from, subject, text, to)
	return mailgun.NewMailgun("example.com", "key", "").NewMessage(from, subject, text, to...)
}

func (m *MockMailgun) Send(msg *mailgun.Message) (string, string, error) {
	args := m.Called(msg)
	return args.String(0), args.String(1), args.Error(2)
}

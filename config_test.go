package main

import (
	"context"
	"testing"
	"time"

	"github.com/auroilion/roilion/ratelimit"
	"github.com/stretchr/testify/assert"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv("KEY", "test-key")
	t.Setenv("DEVELOPING", "true")
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("MAIL_PROVIDER", "log")
	t.Setenv("SPAM_RULES_FILE", "")
	t.Setenv("RECAPTCHA_SECRET_KEY", "")
}

func TestParseMillisVarWithDefault(t *testing.T) {
	tests := []struct {
		Value    string
		Expected time.Duration
	}{
		{Value: "", Expected: time.Minute},
		{Value: "0", Expected: time.Minute},
		{Value: "-5", Expected: time.Minute},
		{Value: "1500", Expected: 1500 * time.Millisecond},
	}

	for _, test := range tests {
		t.Setenv("ROILION_TEST_MS", test.Value)

		if got := parseMillisVarWithDefault("ROILION_TEST_MS", time.Minute); got != test.Expected {
			t.Errorf("TestParseMillisVarWithDefault: %q expected %v, got %v", test.Value, test.Expected, got)
		}
	}
}

func TestMustParseApp_ZeroWindowUsesDefault(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("RATE_LIMIT_WINDOW_MS", "0")

	a := mustParseApp(context.Background())
	assert.Equal(t, ratelimit.DefaultWindow, a.window)

	// the sweep loop ticks every window
	assert.NotPanics(t, func() {
		time.NewTicker(a.window).Stop()
	})
}

func TestMustParseApp(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("RATE_LIMIT_WINDOW_MS", "30000")
	t.Setenv("ALLOWED_ORIGINS", "https://auroilion.fr, https://www.auroilion.fr")

	a := mustParseApp(context.Background())

	assert.Equal(t, 30*time.Second, a.window)
	assert.Equal(t, ":8080", a.listenAddr)
	assert.Equal(t, []string{"https://auroilion.fr", "https://www.auroilion.fr"}, a.server.AllowedOrigins)
	assert.True(t, a.server.Developing)
	assert.NotNil(t, a.sweep)
	assert.Nil(t, a.watcher)
}

package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const PARSE_RETURNED = "tk"

func TestTokenGenerator_Parse(t *testing.T) {
	start := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		ID          string
		Time        time.Duration
		ToParse     string
		ExpectedRes string
		ExpectedErr error
	}{
		{
			ID:          "dafd5606-8aa8-4724-a2c5-f66110aba536",
			Time:        1 * time.Hour,
			ToParse:     PARSE_RETURNED,
			ExpectedRes: "dafd5606-8aa8-4724-a2c5-f66110aba536",
			ExpectedErr: nil,
		},
		{
			ID:          "f0870b33-03de-4223-8418-f01f2fcacf04",
			Time:        1 * time.Second,
			ToParse:     PARSE_RETURNED,
			ExpectedRes: "",
			ExpectedErr: ErrTokenExpired,
		},
		{
			ID:          "dafd5606-8aa8-4724-a2c5-f66110aba536",
			Time:        time.Hour,
			ToParse:     "invalid-for-signature.1523080494.dxeP8ibFqKuCDDb28ourLgd88rJfw14JQt8vX0yL0dk",
			ExpectedRes: "",
			ExpectedErr: ErrInvalidToken,
		},
		{
			ID:          "dafd5606-8aa8-4724-a2c5-f66110aba536",
			Time:        time.Hour,
			ToParse:     "dafd5606-8aa8-4724-a2c5-f66110aba536.invalid-for-signature.dxeP8ibFqKuCDDb28ourLgd88rJfw14JQt8vX0yL0dk",
			ExpectedRes: "",
			ExpectedErr: ErrInvalidToken,
		},
		{
			ID:          "with.dots.in.it",
			Time:        time.Hour,
			ToParse:     PARSE_RETURNED,
			ExpectedRes: "with.dots.in.it",
			ExpectedErr: nil,
		},
	}

	for i, test := range tests {
		now := start
		tg := NewGenerator("test1234", test.Time).WithClock(func() time.Time { return now })

		tk := tg.NewToken(test.ID)

		now = now.Add(2 * time.Second)

		var p string
		var err error

		if test.ToParse == PARSE_RETURNED {
			p, err = tg.VerifyToken(tk)
		} else {
			p, err = tg.VerifyToken(test.ToParse)
		}

		assert.Equal(t, test.ExpectedRes, p, "%v - unexpected result", i)
		assert.Equal(t, test.ExpectedErr, err, "%v - unexpected error", i)
	}
}

func TestTokenGenerator_WrongKey(t *testing.T) {
	tk := NewGenerator("key-a", time.Hour).NewToken("visitor")

	_, err := NewGenerator("key-b", time.Hour).VerifyToken(tk)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestTokenGenerator_SignedPayloadWithoutExpiry(t *testing.T) {
	tg := NewGenerator("test1234", time.Hour)

	// a validly signed value that was never issued by NewToken
	forged := string(tg.s.Sign([]byte("no-expiry-here")))

	_, err := tg.VerifyToken(forged)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestTokenGenerator_Issue(t *testing.T) {
	now := time.Date(2024, 8, 1, 10, 0, 0, 500, time.UTC)
	tg := NewGenerator("test1234", 24*time.Hour).WithClock(func() time.Time { return now })

	tk, exp := tg.Issue("visitor")
	assert.Equal(t, time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC), exp)

	id, err := tg.VerifyToken(tk)
	require.NoError(t, err)
	assert.Equal(t, "visitor", id)
}

// Package token issues and verifies signed visitor tokens. The contact form sends one as a
// bearer token and it is the identity submissions are rate limited under.
package token

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/go-alone"
	"github.com/pkg/errors"
)

// ErrTokenExpired is returned when the given token's ttl in the past
var ErrTokenExpired = errors.New("token: token has expired")

// ErrInvalidToken is returned when the token has an invalid signature or is otherwise invalid
var ErrInvalidToken = errors.New("token: invalid token")

// Generator contains fields needed by NewToken and VerifyToken
type Generator struct {
	s      *goalone.Sword
	maxAge time.Duration
	now    func() time.Time
}

// NewGenerator takes a key and a max age for the token then returns a new token generator
func NewGenerator(k string, m time.Duration) *Generator {
	return &Generator{s: goalone.New([]byte(k)), maxAge: m, now: time.Now}
}

// WithClock returns a copy of the generator that reads time from now
func (tg *Generator) WithClock(now func() time.Time) *Generator {
	c := *tg
	c.now = now
	return &c
}

// NewToken returns a signed id using the TokenGenerators key and maxAge
func (tg *Generator) NewToken(id string) string {
	tk, _ := tg.Issue(id)
	return tk
}

// Issue returns a signed id and the time it stops being accepted
func (tg *Generator) Issue(id string) (string, time.Time) {
	exp := tg.now().Add(tg.maxAge).UTC().Truncate(time.Second)
	tk := id + "." + strconv.FormatInt(exp.Unix(), 10)

	return string(tg.s.Sign([]byte(tk))), exp
}

// VerifyToken returns an id from the given token or an error
func (tg *Generator) VerifyToken(t string) (string, error) {
	tByte, err := tg.s.Unsign([]byte(t))
	if err != nil {
		return "", ErrInvalidToken
	}

	payload := string(tByte)

	dot := strings.LastIndex(payload, ".")
	if dot <= 0 {
		return "", ErrInvalidToken
	}

	exp, err := strconv.ParseInt(payload[dot+1:], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}

	if !time.Unix(exp, 0).After(tg.now()) {
		return "", ErrTokenExpired
	}

	return payload[:dot], nil
}

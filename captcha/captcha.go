// Package captcha verifies reCAPTCHA v3 tokens against the siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auroilion/roilion/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// DefaultVerifyURL is Google's verification endpoint
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Defaults used when the matching Config field is zero
const (
	DefaultTimeout   = 3 * time.Second
	DefaultCacheSize = 500
	DefaultCacheTTL  = 5 * time.Minute
	DefaultRate      = 10
	DefaultBurst     = 20
)

// DefaultMinScore is the acceptance floor configuration falls back to
const DefaultMinScore = 0.5

var (
	// ErrCaptchaFailed is returned when the token was rejected or scored too low
	ErrCaptchaFailed = errors.New("captcha: verification failed")
	// ErrUnavailable is returned when the verification service could not be reached
	ErrUnavailable = errors.New("captcha: verification service unavailable")
)

// fallback is what a development server assumes when verification times out
var fallback = Result{Success: true, Score: 0.7, Action: "contact"}

// Result is the verification service's answer
type Result struct {
	Success     bool     `json:"success"`
	Score       float64  `json:"score"`
	Action      string   `json:"action"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// Config configures a Verifier
type Config struct {
	Secret    string
	VerifyURL string
	Timeout   time.Duration

	// MinScore is the lowest accepted score. Zero accepts any successful verification.
	MinScore float64

	// ExpectedAction, if set, must match the action the token was issued for
	ExpectedAction string

	// Developing allows a fallback result when the service cannot be reached. The fallback
	// still has to pass MinScore and ExpectedAction.
	Developing bool

	CacheSize int
	CacheTTL  time.Duration

	// RatePerSecond and Burst cap outbound verification calls
	RatePerSecond float64
	Burst         int

	Client *http.Client
}

// Verifier checks tokens. It is safe for concurrent use.
type Verifier struct {
	cfg     Config
	client  *http.Client
	cache   *expirable.LRU[string, Result]
	limiter *rate.Limiter
}

// New returns a verifier. A secret is required unless developing.
func New(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" && !cfg.Developing {
		return nil, errors.New("captcha: secret key is required")
	}

	if cfg.VerifyURL == "" {
		cfg.VerifyURL = DefaultVerifyURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinScore < 0 || cfg.MinScore > 1 {
		return nil, errors.Errorf("captcha: min score %v outside [0, 1]", cfg.MinScore)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Verifier{
		cfg:     cfg,
		client:  client,
		cache:   expirable.NewLRU[string, Result](cfg.CacheSize, nil, cfg.CacheTTL),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}, nil
}

type remoteIPKey struct{}

// WithRemoteIP attaches the visitor's address so it is passed on to the verification service
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPKey{}, ip)
}

// Verify checks token. It returns ErrCaptchaFailed for a rejected or low scoring token and
// ErrUnavailable when the service could not answer.
func (v *Verifier) Verify(ctx context.Context, token string) (Result, error) {
	if strings.TrimSpace(token) == "" {
		metrics.CaptchaVerifications.WithLabelValues("missing").Inc()
		return Result{}, errors.Wrap(ErrCaptchaFailed, "token is missing")
	}

	if r, ok := v.cache.Get(token); ok {
		metrics.CaptchaCacheHits.Inc()
		return r, nil
	}

	r, err := v.call(ctx, token)
	if err != nil {
		if v.cfg.Developing {
			log.Printf("Captcha: DEVELOPING - verification unavailable, using fallback result: %v", err)
			if err := v.check(fallback); err != nil {
				return fallback, err
			}

			metrics.CaptchaVerifications.WithLabelValues("fallback").Inc()
			return fallback, nil
		}

		metrics.CaptchaVerifications.WithLabelValues("unavailable").Inc()
		return Result{}, errors.Wrap(ErrUnavailable, err.Error())
	}

	if err := v.check(r); err != nil {
		return r, err
	}

	metrics.CaptchaVerifications.WithLabelValues("ok").Inc()
	v.cache.Add(token, r)

	return r, nil
}

func (v *Verifier) check(r Result) error {
	switch {
	case !r.Success:
		metrics.CaptchaVerifications.WithLabelValues("rejected").Inc()
		return errors.Wrapf(ErrCaptchaFailed, "rejected: %v", strings.Join(r.ErrorCodes, ","))
	case r.Score < v.cfg.MinScore:
		metrics.CaptchaVerifications.WithLabelValues("low_score").Inc()
		return errors.Wrapf(ErrCaptchaFailed, "score %v below %v", r.Score, v.cfg.MinScore)
	case v.cfg.ExpectedAction != "" && r.Action != v.cfg.ExpectedAction:
		metrics.CaptchaVerifications.WithLabelValues("action_mismatch").Inc()
		return errors.Wrapf(ErrCaptchaFailed, "action %q, expected %q", r.Action, v.cfg.ExpectedAction)
	}
	return nil
}

func (v *Verifier) call(ctx context.Context, token string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	if err := v.limiter.Wait(ctx); err != nil {
		return Result{}, errors.Wrap(err, "outbound rate limit")
	}

	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", token)
	if ip, ok := ctx.Value(remoteIPKey{}).(string); ok && ip != "" {
		form.Set("remoteip", ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, errors.Errorf("unexpected status %v", resp.StatusCode)
	}

	var r Result
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Result{}, errors.Wrap(err, "failed to decode response")
	}

	return r, nil
}

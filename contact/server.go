// Package contact serves the contact form api: visitor tokens, captcha checks and the
// submission endpoint that runs the abuse pipeline and dispatches accepted messages.
package contact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/auroilion/roilion/captcha"
	"github.com/auroilion/roilion/metrics"
	"github.com/auroilion/roilion/pipeline"
	"github.com/auroilion/roilion/token"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
)

// version number - this is overridden at build time to inject the commit hash
var version = "dev"

const (
	// DefaultTokenLimit is the number of visitor tokens an address may request per window
	DefaultTokenLimit = 10

	// DefaultTokenTTL is how long a visitor token stays valid
	DefaultTokenTTL = 24 * time.Hour

	// DefaultDispatchTimeout bounds how long sending a single email may take
	DefaultDispatchTimeout = 15 * time.Second

	maxBodyBytes = 64 << 10
)

// Runner decides what happens to a submission
type Runner interface {
	Run(ctx context.Context, s pipeline.Submission) pipeline.Decision
}

// Dispatcher delivers accepted submissions
type Dispatcher interface {
	Send(ctx context.Context, e pipeline.Envelope) (string, error)
}

// Limiter counts requests per key
type Limiter interface {
	Check(ctx context.Context, key string, limit int) error
}

// Verifier checks captcha tokens on their own, ahead of a submission
type Verifier interface {
	Verify(ctx context.Context, token string) (captcha.Result, error)
}

// Server bundles several data types together for dependency injection into http handlers
type Server struct {
	Router *mux.Router
	tg     *token.Generator

	cfg     Config
	started time.Time
	now     func() time.Time
}

// Config contains key configuration parameters to be passed to New()
type Config struct {
	Key            string
	Developing     bool
	UsingLambda    bool
	RestoreRealIP  bool
	AllowedOrigins []string

	TokenTTL        time.Duration
	TokenLimit      int
	DispatchTimeout time.Duration

	Pipeline   Runner
	Dispatcher Dispatcher

	// TokenLimiter and CaptchaLimiter are optional
	TokenLimiter   Limiter
	CaptchaLimiter Limiter

	// Captcha is optional. Without it the standalone verify route is not registered.
	Captcha Verifier

	// Now defaults to time.Now
	Now func() time.Time
}

// New returns a server with the given settings
func New(cfg Config) (*Server, error) {
	if cfg.Key == "" {
		return nil, errors.New("contact: a signing key is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("contact: a pipeline is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("contact: a dispatcher is required")
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultTokenLimit
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := Server{
		tg:      token.NewGenerator(cfg.Key, cfg.TokenTTL).WithClock(cfg.Now),
		cfg:     cfg,
		now:     cfg.Now,
		started: cfg.Now(),
	}

	s.Router = mux.NewRouter()
	s.Router.StrictSlash(true) // means router will match both "/path" and "/path/"

	api := alice.New(
		s.Recover,
		JSONContentType,
		NoStore,
		SetVersionHeader,
		s.SecurityHeaders,
		s.CheckOrigin,
	)

	s.Router.Handle("/api/v1/token",
		api.ThenFunc(s.NewToken),
	).Methods(http.MethodGet, http.MethodOptions)

	s.Router.Handle("/api/v1/contact",
		api.Append(
			s.RequireBearer,
		).ThenFunc(s.Contact),
	).Methods(http.MethodPost, http.MethodOptions)

	if cfg.Captcha != nil {
		s.Router.Handle("/api/v1/captcha/verify",
			api.ThenFunc(s.VerifyCaptcha),
		).Methods(http.MethodPost, http.MethodOptions)
	}

	health := alice.New(JSONContentType, NoStore, SetVersionHeader).ThenFunc(s.Health)
	s.Router.Handle("/health", health).Methods(http.MethodGet)
	s.Router.Handle("/api/health", health).Methods(http.MethodGet)

	s.Router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.Router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("PONG"))
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
		}
	}).Methods(http.MethodGet)

	s.Router.NotFoundHandler = alice.New(JSONContentType, SetVersionHeader).ThenFunc(notFound)

	if cfg.RestoreRealIP {
		s.Router.Use(RestoreRealIP)
	}

	return &s, nil
}

func notFound(w http.ResponseWriter, r *http.Request) {
	returnJSONError(w, r, http.StatusNotFound, "not_found", "Introuvable")
}

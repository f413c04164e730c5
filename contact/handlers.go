package contact

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/auroilion/roilion/captcha"
	"github.com/auroilion/roilion/pipeline"
	"github.com/auroilion/roilion/ratelimit"
	"github.com/auroilion/roilion/stringduration"
	"github.com/google/uuid"
)

const (
	msgSent          = "Email envoyé avec succès"
	msgDispatchFail  = "Échec de l'envoi de l'email"
	msgInvalidBody   = "Requête invalide"
	msgTooMany       = "Trop de requêtes, veuillez réessayer plus tard"
	msgInternalError = "Erreur interne"
)

// TokenResponse is returned by NewToken
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SentResponse is returned by Contact on success
type SentResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id,omitempty"`
}

// CaptchaRequest is the body accepted by VerifyCaptcha
type CaptchaRequest struct {
	Token string `json:"token"`
}

// CaptchaResponse is returned by VerifyCaptcha
type CaptchaResponse struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
	Action  string  `json:"action"`
}

// HealthResponse is returned by Health
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      float64   `json:"uptime"`
	UptimeHuman string    `json:"uptime_human"`
	Version     string    `json:"version"`
}

// NewToken issues a visitor token. Requests are limited per client address.
func (s *Server) NewToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TokenLimiter != nil {
		err := s.cfg.TokenLimiter.Check(r.Context(), clientIP(r), s.cfg.TokenLimit)
		if err != nil && s.tooMany(w, r, err) {
			return
		}
	}

	tk, exp := s.tg.Issue(uuid.New().String())

	returnJSON(w, r, http.StatusOK, Response{
		Success: true,
		Result:  TokenResponse{Token: tk, ExpiresAt: exp},
		Meta:    GetMeta(),
	})
}

// Contact runs a submission through the pipeline and sends it on if accepted
func (s *Server) Contact(w http.ResponseWriter, r *http.Request) {
	var f pipeline.Form

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decode(r.Body, &f); err != nil {
		log.Printf("Contact: failed to decode body: %v", err)
		returnJSONErrorDetail(w, r, http.StatusBadRequest, "invalid_request", msgInvalidBody, s.detail(err))
		return
	}

	ctx := captcha.WithRemoteIP(r.Context(), clientIP(r))
	d := s.cfg.Pipeline.Run(ctx, pipeline.NewSubmission(identity(r), f))

	if !d.Accepted() {
		if d.Reason == pipeline.RateLimited {
			setRetryAfter(w, d.RetryAfter)
		}
		returnJSONErrorDetail(w, r, d.Reason.Status(), d.Reason.String(), d.Reason.Message(), s.detail(d.Err))
		return
	}

	// dispatch outlives the request
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.DispatchTimeout)
	defer cancel()

	msgID, err := s.cfg.Dispatcher.Send(sendCtx, d.Envelope)
	if err != nil {
		log.Printf("Contact: failed to send submission %v: %v", d.Envelope.ID, err)
		returnJSONErrorDetail(w, r, http.StatusInternalServerError, "dispatch_failed", msgDispatchFail, s.detail(err))
		return
	}

	returnJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msgSent,
		Result:  SentResponse{ID: d.Envelope.ID, MessageID: msgID},
		Meta:    GetMeta(),
	})
}

// VerifyCaptcha checks a captcha token on its own so the form can warn a visitor early
func (s *Server) VerifyCaptcha(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CaptchaLimiter != nil {
		err := s.cfg.CaptchaLimiter.Check(r.Context(), clientIP(r), s.cfg.TokenLimit)
		if err != nil && s.tooMany(w, r, err) {
			return
		}
	}

	var req CaptchaRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decode(r.Body, &req); err != nil {
		returnJSONErrorDetail(w, r, http.StatusBadRequest, "invalid_request", msgInvalidBody, s.detail(err))
		return
	}

	if strings.TrimSpace(req.Token) == "" {
		returnJSONError(w, r, http.StatusBadRequest, pipeline.CaptchaFailed.String(), "Jeton reCAPTCHA manquant")
		return
	}

	ctx := captcha.WithRemoteIP(r.Context(), clientIP(r))
	res, err := s.cfg.Captcha.Verify(ctx, req.Token)

	switch {
	case err == nil:
	case errors.Is(err, captcha.ErrCaptchaFailed):
		returnJSONErrorDetail(w, r, http.StatusBadRequest, pipeline.CaptchaFailed.String(), pipeline.CaptchaFailed.Message(), s.detail(err))
		return
	default:
		log.Printf("VerifyCaptcha: failed to verify token: %v", err)
		returnJSONErrorDetail(w, r, http.StatusInternalServerError, pipeline.InternalError.String(), pipeline.InternalError.Message(), s.detail(err))
		return
	}

	returnJSON(w, r, http.StatusOK, Response{
		Success: true,
		Result:  CaptchaResponse{Success: res.Success, Score: res.Score, Action: res.Action},
		Meta:    GetMeta(),
	})
}

// Health reports that the process is up and for how long
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	up := now.Sub(s.started)

	returnJSON(w, r, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Timestamp:   now.UTC(),
		Uptime:      math.Round(up.Seconds()*1000) / 1000,
		UptimeHuman: stringduration.Uptime(up),
		Version:     version,
	})
}

// tooMany writes a 429 for rate limit errors and reports whether it did
func (s *Server) tooMany(w http.ResponseWriter, r *http.Request, err error) bool {
	var le *ratelimit.LimitError
	if !errors.As(err, &le) {
		return false
	}

	setRetryAfter(w, le.RetryAfter(s.now()))
	returnJSONError(w, r, http.StatusTooManyRequests, pipeline.RateLimited.String(), msgTooMany)
	return true
}

// detail exposes internal errors to the caller only while developing
func (s *Server) detail(err error) string {
	if err == nil || !s.cfg.Developing {
		return ""
	}
	return err.Error()
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

func decode(body io.Reader, v interface{}) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}

	if dec.More() {
		return errors.New("unexpected data after json body")
	}

	return nil
}

package pipeline

import "net/http"

// Reason is why a submission was rejected. The zero value means no rejection.
type Reason int

// Rejection reasons, in the order the stages can produce them
const (
	None Reason = iota
	Honeypot
	RateLimited
	MissingFields
	InvalidEmail
	InvalidName
	InvalidMessage
	CaptchaFailed
	SpamDetected
	InternalError
)

var reasonCodes = map[Reason]string{
	None:           "none",
	Honeypot:       "honeypot",
	RateLimited:    "rate_limited",
	MissingFields:  "missing_fields",
	InvalidEmail:   "invalid_email",
	InvalidName:    "invalid_name",
	InvalidMessage: "invalid_message",
	CaptchaFailed:  "captcha_failed",
	SpamDetected:   "spam_detected",
	InternalError:  "internal_error",
}

// messages shown to visitors; the site is French
var reasonMessages = map[Reason]string{
	None:           "Email envoyé avec succès",
	Honeypot:       "Honeypot détecté, soumission bloquée",
	RateLimited:    "Trop de requêtes",
	MissingFields:  "Champs requis manquants",
	InvalidEmail:   "Adresse email invalide",
	InvalidName:    "Nom invalide",
	InvalidMessage: "Message invalide",
	CaptchaFailed:  "La validation reCAPTCHA a échoué",
	SpamDetected:   "Le contenu est détecté comme spam",
	InternalError:  "Erreur interne",
}

// String returns the stable code used in logs, metrics and JSON responses
func (r Reason) String() string {
	if c, ok := reasonCodes[r]; ok {
		return c
	}
	return "unknown"
}

// Message returns the text shown to the visitor
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return reasonMessages[InternalError]
}

// Status returns the HTTP status a rejection is reported with
func (r Reason) Status() int {
	switch r {
	case None:
		return http.StatusOK
	case RateLimited:
		return http.StatusTooManyRequests
	case InternalError:
		return http.StatusInternalServerError
	case Honeypot, MissingFields, InvalidEmail, InvalidName, InvalidMessage, CaptchaFailed, SpamDetected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// State is a step of the pipeline
type State int

// Pipeline states. A submission only ever moves forward.
const (
	Received State = iota
	HoneypotChecked
	RateLimitChecked
	Validated
	CaptchaVerified
	SpamChecked
	Accepted
	Rejected
)

var stateNames = [...]string{
	"received",
	"honeypot_checked",
	"rate_limit_checked",
	"validated",
	"captcha_verified",
	"spam_checked",
	"accepted",
	"rejected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

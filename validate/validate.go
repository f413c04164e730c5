package validate

import (
	"errors"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Errors returned by Fields. They map one to one onto the contact form rejection reasons.
var (
	ErrMissingFields  = errors.New("validate: required fields missing")
	ErrInvalidEmail   = errors.New("validate: invalid email address")
	ErrInvalidName    = errors.New("validate: invalid name")
	ErrInvalidMessage = errors.New("validate: invalid message")
)

const (
	minNameLength    = 2
	maxNameLength    = 50
	maxEmailLength   = 254
	minMessageLength = 1
	maxMessageLength = 5000
)

var (
	// letters (latin incl. accented), combining marks, digits and a little punctuation
	namePattern = regexp.MustCompile(`^[\p{Latin}\p{M}0-9 '’.,-]+$`)

	// anything a visitor might reasonably type in a booking enquiry, including symbols such
	// as ° and emoji. Angle brackets, braces, backslashes and control characters stay out.
	messagePattern = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\p{So}\x{200D}\s.,;:!?'’"«»()\[\]/@#&%+=*€$£°…–—_-]+$`)

	localPartPattern = regexp.MustCompile("^[a-z0-9!#$%&'*+/=?^_`{|}~-]+(\\.[a-z0-9!#$%&'*+/=?^_`{|}~-]+)*$")
	domainPattern    = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	ipLiteralPattern = regexp.MustCompile(`^\[(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\]$`)
)

// NormalizeEmail trims and lower cases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Name reports whether the given sender name is acceptable
func Name(name string) bool {
	name = strings.TrimSpace(name)

	l := utf8.RuneCountInString(name)
	if l < minNameLength || l > maxNameLength {
		return false
	}

	return namePattern.MatchString(name)
}

// Email reports whether the given reply-to address is syntactically valid. The domain must
// either contain at least one dot with no empty labels or be a bracketed IPv4 literal.
func Email(email string) bool {
	email = NormalizeEmail(email)

	if email == "" || len(email) > maxEmailLength {
		return false
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}

	local, domain := email[:at], email[at+1:]
	if len(local) > 64 || !localPartPattern.MatchString(local) {
		return false
	}

	if m := ipLiteralPattern.FindStringSubmatch(domain); m != nil {
		ip := net.ParseIP(m[1])
		return ip != nil && ip.To4() != nil
	}

	return domainPattern.MatchString(domain)
}

// Message reports whether the free text message is acceptable
func Message(message string) bool {
	message = strings.TrimSpace(message)

	l := utf8.RuneCountInString(message)
	if l < minMessageLength || l > maxMessageLength {
		return false
	}

	return messagePattern.MatchString(message)
}

// Fields validates a whole contact submission. Checks run in the same order the contact
// endpoint has always reported them: presence, email, name, then message.
func Fields(name, email, message string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || strings.TrimSpace(message) == "" {
		return ErrMissingFields
	}

	if !Email(email) {
		return ErrInvalidEmail
	}

	if !Name(name) {
		return ErrInvalidName
	}

	if !Message(message) {
		return ErrInvalidMessage
	}

	return nil
}

package validate

import (
	"regexp"
	"strings"
)

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

var (
	scriptPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// Escape replaces the five HTML special characters with their entities. It is applied to
// every visitor supplied value before it reaches rendered output, valid or not.
func Escape(s string) string {
	return htmlReplacer.Replace(s)
}

// Sanitize removes script blocks and markup tags and trims the result. Used for plain text
// output such as logs and the text/plain email part.
func Sanitize(s string) string {
	s = scriptPattern.ReplaceAllString(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

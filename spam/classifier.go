// Package spam triages contact form messages with keyword lists, weighted regular
// expressions and a few structural heuristics. Verdicts are a cheap first pass and will be
// wrong now and then.
package spam

import (
	"log"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Verdict is the outcome of classifying a message
type Verdict int

const (
	// Ham is a message that looks legitimate
	Ham Verdict = iota
	// Spam is a message that should not be forwarded
	Spam
)

func (v Verdict) String() string {
	if v == Spam {
		return "spam"
	}
	return "ham"
}

// Match records how much a single rule contributed to a score
type Match struct {
	Rule   string `json:"rule"`
	Count  int    `json:"count"`
	Points int    `json:"points"`
}

// Score is the breakdown of a classification. Keyword is set when a keyword hit
// short-circuited scoring.
type Score struct {
	Total     int     `json:"total"`
	Threshold int     `json:"threshold"`
	Keyword   string  `json:"keyword,omitempty"`
	Matches   []Match `json:"matches,omitempty"`
}

// Verdict turns the score into a classification
func (s Score) Verdict() Verdict {
	if s.Keyword != "" || s.Total >= s.Threshold {
		return Spam
	}
	return Ham
}

// Classifier scores messages against a set of Rules. Rules can be swapped while the
// classifier is in use.
type Classifier struct {
	rules atomic.Pointer[compiledRules]
}

// New returns a classifier for the given rules
func New(r Rules) (*Classifier, error) {
	c := &Classifier{}

	if err := c.Reload(r); err != nil {
		return nil, err
	}

	return c, nil
}

// NewDefault returns a classifier using the bundled rules
func NewDefault() (*Classifier, error) {
	r, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	return New(r)
}

// Reload compiles r and makes it the active rule set. On error the previous rules stay active.
func (c *Classifier) Reload(r Rules) error {
	compiled, err := r.compile()
	if err != nil {
		return errors.Wrap(err, "spam: failed to reload rules")
	}

	c.rules.Store(compiled)
	return nil
}

// Rules returns the active rule set
func (c *Classifier) Rules() Rules {
	return c.rules.Load().source
}

// Threshold returns the active spam threshold
func (c *Classifier) Threshold() int {
	return c.rules.Load().source.Threshold
}

// Classify returns Spam or Ham for message
func (c *Classifier) Classify(message string) Verdict {
	s := c.Score(message)
	v := s.Verdict()

	if v == Spam {
		if s.Keyword != "" {
			log.Printf("Spam: keyword detected: %q", s.Keyword)
		} else {
			log.Printf("Spam: content classified as spam with score %v/%v", s.Total, s.Threshold)
		}
	}

	return v
}

// Score computes the full score breakdown for message
func (c *Classifier) Score(message string) Score {
	r := c.rules.Load()
	h := r.source.Heuristics

	s := Score{Threshold: r.source.Threshold}

	lower := strings.ToLower(message)
	for _, k := range r.keywords {
		if strings.Contains(lower, k) {
			s.Keyword = k
			return s
		}
	}

	for _, p := range r.patterns {
		n := len(p.re.FindAllStringIndex(message, -1))
		if n == 0 {
			continue
		}

		s.add(p.name, n, n*p.weight)
	}

	words := strings.Fields(message)
	if len(words) > 0 {
		avg := float64(utf8.RuneCountInString(message)) / float64(len(words))
		if h.AvgWordLengthPenalty > 0 && avg > h.MaxAvgWordLength {
			s.add("avg_word_length", 1, h.AvgWordLengthPenalty)
		}

		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}

		ratio := float64(len(unique)) / float64(len(words))
		if h.RepetitionPenalty > 0 && ratio < h.MinUniqueRatio && len(words) > h.MinWordsForRatio {
			s.add("repetition", 1, h.RepetitionPenalty)
		}
	}

	lines := strings.Split(message, "\n")
	short := 0
	for _, l := range lines {
		n := len(strings.Fields(l))
		if n > 0 && n <= h.ShortLineWords {
			short++
		}
	}

	if h.ShortLinePenalty > 0 && len(lines) > h.MinLines && float64(short)/float64(len(lines)) > h.MaxShortLineRatio {
		s.add("short_lines", short, h.ShortLinePenalty)
	}

	return s
}

func (s *Score) add(rule string, count, points int) {
	s.Total += points
	s.Matches = append(s.Matches, Match{Rule: rule, Count: count, Points: points})
}

package spam

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Packr box holding the rules shipped with the binary
var rulesBox = packr.NewBox("./rules")

const defaultRulesFile = "default.yaml"

// Rules is the tunable data behind the classifier
type Rules struct {
	Threshold  int        `yaml:"threshold"`
	Keywords   []string   `yaml:"keywords"`
	Patterns   []Pattern  `yaml:"patterns"`
	Heuristics Heuristics `yaml:"heuristics"`
}

// Pattern is a regular expression that adds Weight to the score for every match
type Pattern struct {
	Name   string `yaml:"name"`
	Expr   string `yaml:"expr"`
	Weight int    `yaml:"weight"`
}

// Heuristics are the structural penalties applied on top of pattern matches
type Heuristics struct {
	MaxAvgWordLength     float64 `yaml:"max_avg_word_length"`
	AvgWordLengthPenalty int     `yaml:"avg_word_length_penalty"`
	MinUniqueRatio       float64 `yaml:"min_unique_ratio"`
	MinWordsForRatio     int     `yaml:"min_words_for_ratio"`
	RepetitionPenalty    int     `yaml:"repetition_penalty"`
	MaxShortLineRatio    float64 `yaml:"max_short_line_ratio"`
	MinLines             int     `yaml:"min_lines"`
	ShortLineWords       int     `yaml:"short_line_words"`
	ShortLinePenalty     int     `yaml:"short_line_penalty"`
}

type compiledPattern struct {
	name   string
	re     *regexp.Regexp
	weight int
}

type compiledRules struct {
	source   Rules
	keywords []string
	patterns []compiledPattern
}

// DefaultRules returns the rules bundled with the binary
func DefaultRules() (Rules, error) {
	b, err := rulesBox.Find(defaultRulesFile)
	if err != nil {
		return Rules{}, errors.Wrap(err, "spam: failed to find default rules")
	}

	return LoadRules(bytes.NewReader(b))
}

// MustDefaultRules is DefaultRules but panics on error
func MustDefaultRules() Rules {
	r, err := DefaultRules()
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRules decodes YAML rules from r. Unknown keys are rejected so typos in a tuned
// file don't silently disable a heuristic.
func LoadRules(r io.Reader) (Rules, error) {
	var rules Rules

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&rules); err != nil {
		return Rules{}, errors.Wrap(err, "spam: failed to decode rules")
	}

	if _, err := rules.compile(); err != nil {
		return Rules{}, err
	}

	return rules, nil
}

// LoadRulesFile reads rules from the YAML file at path
func LoadRulesFile(path string) (Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return Rules{}, errors.Wrap(err, "spam: failed to open rules file")
	}
	defer f.Close()

	return LoadRules(f)
}

// Marshal encodes the rules back to YAML
func (r Rules) Marshal() ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(r); err != nil {
		return nil, errors.Wrap(err, "spam: failed to encode rules")
	}

	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "spam: failed to encode rules")
	}

	return buf.Bytes(), nil
}

func (r Rules) compile() (*compiledRules, error) {
	if r.Threshold <= 0 {
		return nil, errors.Errorf("spam: threshold must be positive, got %v", r.Threshold)
	}

	c := &compiledRules{source: r}

	for _, k := range r.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		c.keywords = append(c.keywords, k)
	}

	for _, p := range r.Patterns {
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, errors.Wrapf(err, "spam: pattern %q does not compile", p.Name)
		}

		if p.Weight < 0 {
			return nil, errors.Errorf("spam: pattern %q has negative weight", p.Name)
		}

		c.patterns = append(c.patterns, compiledPattern{name: p.Name, re: re, weight: p.Weight})
	}

	return c, nil
}

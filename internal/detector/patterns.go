package detector

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// PatternTarget names the invoice field a pattern is matched against.
type PatternTarget string

const (
	// TargetVendorName matches against the vendor name.
	TargetVendorName PatternTarget = "vendor_name"
	// TargetInvoiceNumber matches against the invoice number.
	TargetInvoiceNumber PatternTarget = "invoice_number"
)

// Pattern is a named suspicious-text rule.
type Pattern struct {
	Name     string        `mapstructure:"name" validate:"required"`
	Target   PatternTarget `mapstructure:"target" validate:"oneof=vendor_name invoice_number"`
	Regex    string        `mapstructure:"regex" validate:"required"`
	Priority int           `mapstructure:"priority"` // Higher priority patterns are checked first
}

type compiledPattern struct {
	compiledRegex *regexp.Regexp
	Pattern
}

// PatternMatcher matches text against a priority-ordered set of
// case-insensitive patterns. It is immutable and safe for concurrent use.
type PatternMatcher struct {
	patterns []compiledPattern
}

// NewPatternMatcher compiles patterns into a matcher.
func NewPatternMatcher(patterns []Pattern) (*PatternMatcher, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}
	return &PatternMatcher{patterns: compiled}, nil
}

// MustPatternMatcher is like NewPatternMatcher but panics on a bad pattern.
func MustPatternMatcher(patterns []Pattern) *PatternMatcher {
	pm, err := NewPatternMatcher(patterns)
	if err != nil {
		panic(err)
	}
	return pm
}

func compilePatterns(patterns []Pattern) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(patterns))

	for _, p := range patterns {
		regexStr := p.Regex
		if !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr
		}

		regex, err := regexp.Compile(regexStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", p.Name, err)
		}

		compiled = append(compiled, compiledPattern{
			Pattern:       p,
			compiledRegex: regex,
		})
	}

	slices.SortStableFunc(compiled, func(a, b compiledPattern) int {
		return b.Priority - a.Priority
	})

	return compiled, nil
}

// Match returns the name of the highest priority pattern for target that
// matches text.
func (pm *PatternMatcher) Match(target PatternTarget, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, p := range pm.patterns {
		if p.Target == target && p.compiledRegex.MatchString(text) {
			return p.Name, true
		}
	}
	return "", false
}

// PatternCount returns the number of loaded patterns.
func (pm *PatternMatcher) PatternCount() int {
	return len(pm.patterns)
}

// DefaultPatterns returns the built-in suspicious vendor and invoice patterns.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:     "numeric_only",
			Target:   TargetVendorName,
			Regex:    `^[\d\s\-\.#/]*\d[\d\s\-\.#/]*$`,
			Priority: 100,
		},
		{
			Name:     "cash",
			Target:   TargetVendorName,
			Regex:    `\b(cash|petty\s*cash)\b`,
			Priority: 90,
		},
		{
			Name:     "personal",
			Target:   TargetVendorName,
			Regex:    `\b(personal|friend|family)\b`,
			Priority: 80,
		},
		{
			Name:     "placeholder",
			Target:   TargetVendorName,
			Regex:    `\b(test|demo|sample|dummy|unknown|tbd|n/?a)\b`,
			Priority: 70,
		},
		{
			Name:     "generic",
			Target:   TargetVendorName,
			Regex:    `\b(misc|miscellaneous|sundry|sundries|various|general\s+supplies)\b`,
			Priority: 60,
		},
		{
			Name:     "sequential",
			Target:   TargetInvoiceNumber,
			Regex:    `INV-\d{4}-\d{4}`,
			Priority: 50,
		},
	}
}

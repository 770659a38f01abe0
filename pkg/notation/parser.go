// Package notation parses the NCCN UAT test-case shorthand, e.g.
//
//	POS: PHX: Prostate Cancer, Gleason 8 (aggressive) AND FDR: Breast Cancer, age 45
//
// into structured test cases. Parsing never fails: problems are accumulated
// on the result and surfaced by the Validator.
package notation

import (
	"fmt"
	"strings"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

// Parse error messages.
const (
	errEmptyNotation   = "Empty notation string"
	errNoConditions    = "No conditions found after outcome"
	errEntryFailFormat = "Failed to parse entry: %s"
)

// ParseOption supplies caller context that is passed through to the result
// unchanged. Omit the option to leave the field nil.
type ParseOption func(*domain.ParsedTestCase)

// WithTargetRule records the NCCN rule the test case exercises.
func WithTargetRule(rule string) ParseOption {
	return func(p *domain.ParsedTestCase) {
		p.TargetRule = &rule
	}
}

// WithPlatform records the platform (P4M, Px4M) the test case runs on.
func WithPlatform(platform string) ParseOption {
	return func(p *domain.ParsedTestCase) {
		p.Platform = &platform
	}
}

// Parser converts notation strings into ParsedTestCase values. It holds no
// mutable state and is safe for concurrent use.
type Parser struct{}

// NewParser creates a new notation parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses a notation string. The returned value is always non-nil; check
// Usable (not only ParseErrors) before acting on it.
func (p *Parser) Parse(notation string, opts ...ParseOption) *domain.ParsedTestCase {
	result := &domain.ParsedTestCase{
		ExpectedOutcome: domain.OutcomeUnknown,
		RawNotation:     notation,
		Entries:         []domain.RelativeEntry{},
		ParseErrors:     []string{},
	}
	for _, opt := range opts {
		opt(result)
	}

	trimmed := strings.TrimSpace(notation)
	if trimmed == "" {
		result.ParseErrors = append(result.ParseErrors, errEmptyNotation)
		return result
	}

	outcome, remainder := extractOutcome(trimmed)
	result.ExpectedOutcome = outcome
	if remainder == "" {
		result.ParseErrors = append(result.ParseErrors, errNoConditions)
		return result
	}

	for _, segment := range splitSegments(remainder) {
		entry, ok := parseEntry(segment)
		if !ok {
			result.ParseErrors = append(result.ParseErrors, fmt.Sprintf(errEntryFailFormat, segment))
			continue
		}
		result.Entries = append(result.Entries, entry)
	}

	return result
}

var defaultParser = NewParser()

// Parse parses notation with a shared Parser.
func Parse(notation string, opts ...ParseOption) *domain.ParsedTestCase {
	return defaultParser.Parse(notation, opts...)
}

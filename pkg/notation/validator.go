package notation

import (
	"fmt"
	"strings"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

// Validation messages.
const (
	msgEmptyNotation    = "Notation is empty"
	msgNoOutcome        = "No POS/NEG outcome prefix found"
	msgNoEntries        = "No conditions/entries found in notation"
	msgEntryNoCondition = "Entry %d has no conditions"
	msgUnknownCancer    = "Entry %d, condition %d: Unknown cancer type"
	msgUnbalancedParens = "Unbalanced parentheses in notation"
)

// Validator layers semantic checks over a parse without modifying it.
type Validator struct {
	parser *Parser
}

// NewValidator creates a new notation validator
func NewValidator() *Validator {
	return &Validator{parser: NewParser()}
}

// Validate parses notation and reports hard errors and warnings. The parsed
// record is attached whenever parsing ran, including invalid results.
func (v *Validator) Validate(notation string) *domain.ValidationReport {
	report := &domain.ValidationReport{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	if strings.TrimSpace(notation) == "" {
		report.Valid = false
		report.Errors = append(report.Errors, msgEmptyNotation)
		return report
	}

	parsed := v.parser.Parse(notation)
	report.Warnings = append(report.Warnings, parsed.ParseErrors...)

	if parsed.ExpectedOutcome == domain.OutcomeUnknown {
		report.Warnings = append(report.Warnings, msgNoOutcome)
	}
	if !balancedParens(notation) {
		report.Warnings = append(report.Warnings, msgUnbalancedParens)
	}

	if len(parsed.Entries) == 0 {
		report.Valid = false
		report.Errors = append(report.Errors, msgNoEntries)
	}

	for i, entry := range parsed.Entries {
		if len(entry.Conditions) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf(msgEntryNoCondition, i+1))
			continue
		}
		for j, cond := range entry.Conditions {
			if cond.CancerType == UnknownCancerType {
				report.Warnings = append(report.Warnings, fmt.Sprintf(msgUnknownCancer, i+1, j+1))
			}
		}
	}

	report.Parsed = Serialize(parsed)
	return report
}

// Validate validates notation with a shared Validator.
func Validate(notation string) *domain.ValidationReport {
	return defaultValidator.Validate(notation)
}

var defaultValidator = NewValidator()

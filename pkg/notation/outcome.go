package notation

import (
	"regexp"
	"strings"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

var outcomePattern = regexp.MustCompile(`(?i)^(POSITIVE|POS|NEGATIVE|NEG|DEPRECATED|DEP)\s*:\s*`)

// extractOutcome strips a leading outcome token and its separator. Without a
// recognized token the outcome is unknown and the input is returned unchanged.
func extractOutcome(notation string) (domain.Outcome, string) {
	loc := outcomePattern.FindStringSubmatchIndex(notation)
	if loc == nil {
		return domain.OutcomeUnknown, notation
	}

	outcome, ok := NormalizeOutcome(notation[loc[2]:loc[3]])
	if !ok {
		return domain.OutcomeUnknown, notation
	}
	return outcome, strings.TrimSpace(notation[loc[1]:])
}

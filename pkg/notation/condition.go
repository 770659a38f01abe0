package notation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

var (
	parentheticalPattern = regexp.MustCompile(`\(([^)]*)\)`)

	agePattern       = regexp.MustCompile(`(?i)\bage\s*:?\s*(\d+)`)
	ageRemovePattern = regexp.MustCompile(`(?i),?\s*\bage\s*:?\s*\d+`)

	severityPattern       = regexp.MustCompile(`(?i)\bgleason\s*:?\s*(?:score\s*:?\s*)?(\d+)`)
	severityRemovePattern = regexp.MustCompile(`(?i),?\s*\bgleason\s*:?\s*(?:score\s*:?\s*)?\d+`)
)

const (
	labelCutset = ",;:.- \t"

	// unparsedPrefix marks a note holding an attribute whose value was out of range.
	unparsedPrefix = "unparsed: "
)

// extractCondition turns one condition fragment into a CancerCondition. Each
// attribute is extracted independently; an attribute that cannot be found is
// left nil and never causes a failure.
func extractCondition(fragment string) domain.CancerCondition {
	cond := domain.CancerCondition{CancerType: UnknownCancerType}

	fragment = extractQualifiers(fragment, &cond)

	// A number too large for an int is kept as a note rather than dropped.
	if m := agePattern.FindStringSubmatch(fragment); m != nil {
		if cond.AgeDiagnosed = atoiPtr(m[1]); cond.AgeDiagnosed == nil {
			appendNote(&cond, unparsedPrefix+strings.TrimSpace(m[0]))
		}
	}

	if m := severityPattern.FindStringSubmatch(fragment); m != nil {
		cond.SeverityScore = atoiPtr(m[1])
		switch {
		case cond.SeverityScore == nil:
			appendNote(&cond, unparsedPrefix+strings.TrimSpace(m[0]))
		case cond.IsAggressive == nil && *cond.SeverityScore >= AggressiveSeverityThreshold:
			cond.IsAggressive = boolPtr(true)
		}
	}

	label := ageRemovePattern.ReplaceAllString(fragment, "")
	label = severityRemovePattern.ReplaceAllString(label, "")
	label = strings.Join(strings.Fields(label), " ")
	label = strings.Trim(label, labelCutset)

	cond.CancerType = NormalizeCancerType(label)
	return cond
}

// extractQualifiers records every parenthetical group as notes, interprets
// the aggressive and metastatic markers, and returns the fragment with the
// groups removed.
func extractQualifiers(fragment string, cond *domain.CancerCondition) string {
	groups := parentheticalPattern.FindAllStringSubmatch(fragment, -1)
	if len(groups) == 0 {
		return fragment
	}

	var notes []string
	for _, g := range groups {
		note := strings.TrimSpace(g[1])
		if note == "" {
			continue
		}
		notes = append(notes, note)

		lower := strings.ToLower(note)
		switch {
		case strings.Contains(lower, "non-aggressive"), strings.Contains(lower, "non aggressive"):
			cond.IsAggressive = boolPtr(false)
		case strings.Contains(lower, "aggressive"):
			cond.IsAggressive = boolPtr(true)
		}
		if strings.Contains(lower, "metastatic") {
			cond.IsMetastatic = boolPtr(true)
		}
	}
	if len(notes) > 0 {
		joined := strings.Join(notes, "; ")
		cond.AdditionalNotes = &joined
	}

	return parentheticalPattern.ReplaceAllString(fragment, " ")
}

func atoiPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func appendNote(cond *domain.CancerCondition, note string) {
	if cond.AdditionalNotes == nil || *cond.AdditionalNotes == "" {
		cond.AdditionalNotes = &note
		return
	}
	joined := *cond.AdditionalNotes + "; " + note
	cond.AdditionalNotes = &joined
}

func boolPtr(b bool) *bool {
	return &b
}

package notation

import (
	"regexp"
	"strings"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

var (
	sameRelativePattern = regexp.MustCompile(`(?i)^same(?:\s+|$)`)
	relationshipPattern = regexp.MustCompile(`(?i)^(PHX|FDR|SDR|TDR|PATIENT)\s*:\s*(.*)$`)
)

// parseEntry parses one person segment. ok is false only when nothing is left
// once the same-relative marker has been stripped. Line breaks and runs of
// whitespace inside the segment count as a single space.
func parseEntry(segment string) (entry domain.RelativeEntry, ok bool) {
	segment = strings.Join(strings.Fields(segment), " ")

	if loc := sameRelativePattern.FindStringIndex(segment); loc != nil {
		entry.IsSameRelative = true
		segment = strings.TrimSpace(segment[loc[1]:])
	}
	if segment == "" {
		return entry, false
	}

	m := relationshipPattern.FindStringSubmatch(segment)
	if m == nil {
		// No relationship token: the whole segment describes the patient.
		entry.RelationshipCode = CodePatientHistory
		entry.RelationshipType = domain.RelationshipPatient
		entry.Conditions = []domain.CancerCondition{extractCondition(segment)}
		return entry, true
	}

	entry.RelationshipCode = strings.ToUpper(m[1])
	entry.RelationshipType = NormalizeRelationship(entry.RelationshipCode)
	entry.Conditions = []domain.CancerCondition{extractCondition(m[2])}
	return entry, true
}

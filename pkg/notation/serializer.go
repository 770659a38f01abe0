package notation

import (
	"github.com/nccn-uat-mcp-server/internal/domain"
)

// Serialize converts a parse result into its storage record. Slices are never
// nil so that encoders emit [] rather than null. A nil input yields nil.
func Serialize(parsed *domain.ParsedTestCase) *domain.TestCaseRecord {
	if parsed == nil {
		return nil
	}

	rec := &domain.TestCaseRecord{
		ExpectedOutcome: string(parsed.ExpectedOutcome),
		TargetRule:      cloneString(parsed.TargetRule),
		Platform:        cloneString(parsed.Platform),
		RawNotation:     parsed.RawNotation,
		ParseErrors:     append([]string{}, parsed.ParseErrors...),
		Entries:         make([]domain.EntryRecord, 0, len(parsed.Entries)),
	}

	for _, e := range parsed.Entries {
		er := domain.EntryRecord{
			RelationshipCode: e.RelationshipCode,
			RelationshipType: string(e.RelationshipType),
			SpecificRelative: cloneString(e.SpecificRelative),
			IsSameRelative:   e.IsSameRelative,
			Conditions:       make([]domain.ConditionRecord, 0, len(e.Conditions)),
		}
		for _, c := range e.Conditions {
			er.Conditions = append(er.Conditions, domain.ConditionRecord{
				CancerType:      c.CancerType,
				AgeDiagnosed:    cloneInt(c.AgeDiagnosed),
				SeverityScore:   cloneInt(c.SeverityScore),
				IsAggressive:    cloneBool(c.IsAggressive),
				IsMetastatic:    cloneBool(c.IsMetastatic),
				AdditionalNotes: cloneString(c.AdditionalNotes),
			})
		}
		rec.Entries = append(rec.Entries, er)
	}

	return rec
}

// Deserialize rebuilds a parse result from its record. Unrecognized outcome
// or relationship values become unknown.
func Deserialize(rec *domain.TestCaseRecord) *domain.ParsedTestCase {
	if rec == nil {
		return nil
	}

	outcome, _ := domain.ParseOutcome(rec.ExpectedOutcome)
	parsed := &domain.ParsedTestCase{
		ExpectedOutcome: outcome,
		RawNotation:     rec.RawNotation,
		TargetRule:      cloneString(rec.TargetRule),
		Platform:        cloneString(rec.Platform),
		ParseErrors:     append([]string{}, rec.ParseErrors...),
		Entries:         make([]domain.RelativeEntry, 0, len(rec.Entries)),
	}

	for _, er := range rec.Entries {
		rel, _ := domain.ParseRelationshipType(er.RelationshipType)
		e := domain.RelativeEntry{
			RelationshipCode: er.RelationshipCode,
			RelationshipType: rel,
			SpecificRelative: cloneString(er.SpecificRelative),
			IsSameRelative:   er.IsSameRelative,
			Conditions:       make([]domain.CancerCondition, 0, len(er.Conditions)),
		}
		for _, c := range er.Conditions {
			e.Conditions = append(e.Conditions, domain.CancerCondition{
				CancerType:      c.CancerType,
				AgeDiagnosed:    cloneInt(c.AgeDiagnosed),
				SeverityScore:   cloneInt(c.SeverityScore),
				IsAggressive:    cloneBool(c.IsAggressive),
				IsMetastatic:    cloneBool(c.IsMetastatic),
				AdditionalNotes: cloneString(c.AdditionalNotes),
			})
		}
		parsed.Entries = append(parsed.Entries, e)
	}

	return parsed
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

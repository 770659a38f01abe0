package domain

import (
	"time"
)

// CancerCondition is one diagnosis attached to an entry.
// Optional attributes are nil when the notation did not state or imply them.
type CancerCondition struct {
	CancerType      string
	AgeDiagnosed    *int
	SeverityScore   *int // Gleason grading for prostate conditions
	IsAggressive    *bool
	IsMetastatic    *bool
	AdditionalNotes *string
}

// RelativeEntry is one person in a notation together with their conditions.
type RelativeEntry struct {
	RelationshipCode string
	RelationshipType RelationshipType
	SpecificRelative *string
	Conditions       []CancerCondition
	// IsSameRelative marks the entry as describing the same person as an
	// earlier entry. The link itself is not resolved.
	IsSameRelative bool
}

// ParsedTestCase is the full parse result for one notation string.
type ParsedTestCase struct {
	ExpectedOutcome Outcome
	Entries         []RelativeEntry
	RawNotation     string
	TargetRule      *string
	Platform        *string
	ParseErrors     []string
}

// Usable reports whether the parse produced at least one entry. A result with
// no entries must not be acted on downstream, whatever its outcome.
func (p *ParsedTestCase) Usable() bool {
	return p != nil && len(p.Entries) > 0
}

// ConditionCount returns the total number of conditions across all entries.
func (p *ParsedTestCase) ConditionCount() int {
	n := 0
	for _, e := range p.Entries {
		n += len(e.Conditions)
	}
	return n
}

// TestCaseRecord is the serialized form of a ParsedTestCase. It is the sole
// payload handed to storage and reporting, so every optional field is always
// present (null when unset) to keep the schema stable.
type TestCaseRecord struct {
	ExpectedOutcome string        `json:"expected_outcome" yaml:"expected_outcome"`
	TargetRule      *string       `json:"target_rule" yaml:"target_rule"`
	Platform        *string       `json:"platform" yaml:"platform"`
	RawNotation     string        `json:"raw_notation" yaml:"raw_notation"`
	ParseErrors     []string      `json:"parse_errors" yaml:"parse_errors"`
	Entries         []EntryRecord `json:"entries" yaml:"entries"`
}

// EntryRecord is the serialized form of a RelativeEntry.
type EntryRecord struct {
	RelationshipCode string            `json:"relationship_code" yaml:"relationship_code"`
	RelationshipType string            `json:"relationship_type" yaml:"relationship_type"`
	SpecificRelative *string           `json:"specific_relative" yaml:"specific_relative"`
	IsSameRelative   bool              `json:"is_same_relative" yaml:"is_same_relative"`
	Conditions       []ConditionRecord `json:"conditions" yaml:"conditions"`
}

// ConditionRecord is the serialized form of a CancerCondition.
type ConditionRecord struct {
	CancerType      string  `json:"cancer_type" yaml:"cancer_type"`
	AgeDiagnosed    *int    `json:"age_diagnosed" yaml:"age_diagnosed"`
	SeverityScore   *int    `json:"severity_score" yaml:"severity_score"`
	IsAggressive    *bool   `json:"is_aggressive" yaml:"is_aggressive"`
	IsMetastatic    *bool   `json:"is_metastatic" yaml:"is_metastatic"`
	AdditionalNotes *string `json:"additional_notes" yaml:"additional_notes"`
}

// ValidationReport layers semantic checks over a parse. Errors make the
// result unusable; warnings only lower confidence.
type ValidationReport struct {
	Valid    bool            `json:"valid" yaml:"valid"`
	Errors   []string        `json:"errors" yaml:"errors"`
	Warnings []string        `json:"warnings" yaml:"warnings"`
	Parsed   *TestCaseRecord `json:"parsed" yaml:"parsed"`
}

// Cycle groups test cases for one UAT release.
type Cycle struct {
	ID               string      `json:"cycle_id"`
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	UATType          string      `json:"uat_type"`
	ProgramPrefix    string      `json:"program_prefix,omitempty"`
	TargetLaunchDate *time.Time  `json:"target_launch_date,omitempty"`
	ClinicalPM       string      `json:"clinical_pm,omitempty"`
	ClinicalPMEmail  string      `json:"clinical_pm_email,omitempty"`
	Status           CycleStatus `json:"status"`
	CreatedBy        string      `json:"created_by"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// AuditEntry is one row of the shared audit trail.
type AuditEntry struct {
	ID         int64     `json:"id,omitempty"`
	RecordType string    `json:"record_type"`
	RecordID   string    `json:"record_id"`
	Action     string    `json:"action"`
	Field      string    `json:"field,omitempty"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	ChangedBy  string    `json:"changed_by"`
	Reason     string    `json:"reason,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

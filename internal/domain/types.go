// Package domain contains the core entities for NCCN UAT test-case notation:
// expected outcomes, the people described by a notation, and their cancer
// conditions, plus the validation report layered on top of a parse.
//
// A notation such as "POS: FDR: Breast Cancer, age 45 AND SDR: Ovarian Cancer"
// describes whether a clinical rule should fire (the outcome) and the patient
// or family history that drives it (the entries).
package domain

import (
	"errors"
	"fmt"
)

// Outcome is the expected result of running a test scenario against a rule.
type Outcome string

const (
	OutcomePositive   Outcome = "positive"
	OutcomeNegative   Outcome = "negative"
	OutcomeDeprecated Outcome = "deprecated"
	OutcomeUnknown    Outcome = "unknown"
)

// RelationshipType is the canonical family proximity of an entry to the patient.
type RelationshipType string

const (
	RelationshipPatient      RelationshipType = "patient"
	RelationshipFirstDegree  RelationshipType = "first_degree"
	RelationshipSecondDegree RelationshipType = "second_degree"
	RelationshipThirdDegree  RelationshipType = "third_degree"
	RelationshipUnknown      RelationshipType = "unknown"
)

// CycleStatus tracks a UAT cycle through its workflow.
type CycleStatus string

const (
	CycleStatusPlanning   CycleStatus = "planning"
	CycleStatusValidation CycleStatus = "validation"
	CycleStatusKickoff    CycleStatus = "kickoff"
	CycleStatusTesting    CycleStatus = "testing"
	CycleStatusReview     CycleStatus = "review"
	CycleStatusRetesting  CycleStatus = "retesting"
	CycleStatusDecision   CycleStatus = "decision"
	CycleStatusComplete   CycleStatus = "complete"
	CycleStatusCancelled  CycleStatus = "cancelled"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidOutcome      = errors.New("invalid expected outcome")
	ErrInvalidRelationship = errors.New("invalid relationship type")
	ErrInvalidCycleStatus  = errors.New("invalid cycle status")
)

// IsValid reports whether o is one of the closed set of outcomes.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomePositive, OutcomeNegative, OutcomeDeprecated, OutcomeUnknown:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	return string(o)
}

// ParseOutcome converts a stored string back into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if !o.IsValid() {
		return OutcomeUnknown, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
	return o, nil
}

// IsValid reports whether r is one of the closed set of relationship types.
func (r RelationshipType) IsValid() bool {
	switch r {
	case RelationshipPatient, RelationshipFirstDegree, RelationshipSecondDegree,
		RelationshipThirdDegree, RelationshipUnknown:
		return true
	default:
		return false
	}
}

func (r RelationshipType) String() string {
	return string(r)
}

// ParseRelationshipType converts a stored string back into a RelationshipType.
func ParseRelationshipType(s string) (RelationshipType, error) {
	r := RelationshipType(s)
	if !r.IsValid() {
		return RelationshipUnknown, fmt.Errorf("%w: %q", ErrInvalidRelationship, s)
	}
	return r, nil
}

// IsValid reports whether s is a known cycle status.
func (s CycleStatus) IsValid() bool {
	switch s {
	case CycleStatusPlanning, CycleStatusValidation, CycleStatusKickoff, CycleStatusTesting,
		CycleStatusReview, CycleStatusRetesting, CycleStatusDecision, CycleStatusComplete,
		CycleStatusCancelled:
		return true
	default:
		return false
	}
}

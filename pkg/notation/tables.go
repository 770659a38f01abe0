package notation

import (
	"sort"
	"strings"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

// Codes written in notations. Lookups are done on the upper-cased token.
const (
	CodePatientHistory = "PHX"
	CodePatient        = "PATIENT"
	CodeFirstDegree    = "FDR"
	CodeSecondDegree   = "SDR"
	CodeThirdDegree    = "TDR"

	// UnknownCancerType is assigned when a condition fragment has no label left.
	UnknownCancerType = "Unknown"

	// AggressiveSeverityThreshold is the lowest Gleason score that implies an
	// aggressive prostate cancer when no explicit marker is given.
	AggressiveSeverityThreshold = 7
)

var (
	outcomeTable = map[string]domain.Outcome{
		"POS":        domain.OutcomePositive,
		"POSITIVE":   domain.OutcomePositive,
		"NEG":        domain.OutcomeNegative,
		"NEGATIVE":   domain.OutcomeNegative,
		"DEP":        domain.OutcomeDeprecated,
		"DEPRECATED": domain.OutcomeDeprecated,
	}

	relationshipTable = map[string]domain.RelationshipType{
		CodePatientHistory: domain.RelationshipPatient,
		CodePatient:        domain.RelationshipPatient,
		CodeFirstDegree:    domain.RelationshipFirstDegree,
		CodeSecondDegree:   domain.RelationshipSecondDegree,
		CodeThirdDegree:    domain.RelationshipThirdDegree,
		"FIRST DEGREE":     domain.RelationshipFirstDegree,
		"SECOND DEGREE":    domain.RelationshipSecondDegree,
		"THIRD DEGREE":     domain.RelationshipThirdDegree,
	}

	// cancerTypeTable maps upper-cased label variants to canonical cancer types.
	cancerTypeTable = map[string]string{
		"PROSTATE":        "Prostate",
		"PROSTATE CANCER": "Prostate",

		"BREAST":             "Breast",
		"BREAST CANCER":      "Breast",
		"MALE BREAST":        "Male Breast",
		"MALE BREAST CANCER": "Male Breast",

		"COLON":             "Colorectal",
		"COLON CANCER":      "Colorectal",
		"COLORECTAL":        "Colorectal",
		"COLORECTAL CANCER": "Colorectal",
		"RECTAL":            "Colorectal",

		"OVARIAN":        "Ovarian",
		"OVARIAN CANCER": "Ovarian",
		"OVARY":          "Ovarian",

		"ENDOMETRIAL":        "Endometrial",
		"ENDOMETRIAL CANCER": "Endometrial",
		"UTERINE":            "Endometrial",

		"PANCREATIC":        "Pancreatic",
		"PANCREATIC CANCER": "Pancreatic",
		"PANCREAS":          "Pancreatic",

		"RENAL":         "Kidney",
		"RENAL CANCER":  "Kidney",
		"KIDNEY":        "Kidney",
		"KIDNEY CANCER": "Kidney",

		"MESOTHELIOMA":    "Mesothelioma",
		"UVEAL MELANOMA":  "Uveal Melanoma",
		"MELANOMA OF EYE": "Uveal Melanoma",
		"EYE MELANOMA":    "Uveal Melanoma",

		"GASTRIC":        "Gastric",
		"GASTRIC CANCER": "Gastric",
		"STOMACH":        "Gastric",
	}
)

// NormalizeOutcome maps an outcome code (POS, negative, ...) to its canonical
// value. ok is false for anything outside the outcome vocabulary.
func NormalizeOutcome(code string) (outcome domain.Outcome, ok bool) {
	outcome, ok = outcomeTable[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return domain.OutcomeUnknown, false
	}
	return outcome, true
}

// NormalizeRelationship maps a relationship code to its canonical type.
func NormalizeRelationship(code string) domain.RelationshipType {
	if rel, ok := relationshipTable[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return rel
	}
	return domain.RelationshipUnknown
}

// NormalizeCancerType returns the canonical cancer type for label, or the
// trimmed label itself when it is not a known variant.
func NormalizeCancerType(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return UnknownCancerType
	}
	key := strings.ToUpper(strings.Join(strings.Fields(label), " "))
	if canonical, ok := cancerTypeTable[key]; ok {
		return canonical
	}
	return label
}

// IsKnownCancerType reports whether name is one of the canonical cancer types.
func IsKnownCancerType(name string) bool {
	for _, canonical := range cancerTypeTable {
		if canonical == name {
			return true
		}
	}
	return false
}

// VocabularyInfo lists the recognized notation vocabulary for display.
type VocabularyInfo struct {
	Outcomes      map[string]string `json:"outcomes" yaml:"outcomes"`
	Relationships map[string]string `json:"relationships" yaml:"relationships"`
	CancerTypes   []string          `json:"cancer_types" yaml:"cancer_types"`
	Conjunction   string            `json:"conjunction" yaml:"conjunction"`
	SameMarker    string            `json:"same_marker" yaml:"same_marker"`
}

// Vocabulary returns a copy of the recognized vocabulary. Callers may modify
// the result freely.
func Vocabulary() VocabularyInfo {
	info := VocabularyInfo{
		Outcomes:      make(map[string]string, len(outcomeTable)),
		Relationships: make(map[string]string, 5),
		Conjunction:   "AND",
		SameMarker:    "same",
	}
	for code, outcome := range outcomeTable {
		info.Outcomes[code] = string(outcome)
	}
	for _, code := range []string{CodePatientHistory, CodePatient, CodeFirstDegree, CodeSecondDegree, CodeThirdDegree} {
		info.Relationships[code] = string(relationshipTable[code])
	}

	seen := make(map[string]bool)
	for _, canonical := range cancerTypeTable {
		if !seen[canonical] {
			seen[canonical] = true
			info.CancerTypes = append(info.CancerTypes, canonical)
		}
	}
	sort.Strings(info.CancerTypes)
	return info
}

package notation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func TestParse_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *domain.ParsedTestCase
	}{
		{
			name:  "Patient prostate with explicit aggressive marker",
			input: "POS: PHX: Prostate Cancer, Gleason 8 (aggressive)",
			expected: &domain.ParsedTestCase{
				ExpectedOutcome: domain.OutcomePositive,
				RawNotation:     "POS: PHX: Prostate Cancer, Gleason 8 (aggressive)",
				ParseErrors:     []string{},
				Entries: []domain.RelativeEntry{{
					RelationshipCode: "PHX",
					RelationshipType: domain.RelationshipPatient,
					Conditions: []domain.CancerCondition{{
						CancerType:      "Prostate",
						SeverityScore:   intPtr(8),
						IsAggressive:    boolPtr(true),
						AdditionalNotes: strPtr("aggressive"),
					}},
				}},
			},
		},
		{
			name:  "Third degree non-aggressive",
			input: "NEG: TDR: Prostate, Gleason 5 (non-aggressive)",
			expected: &domain.ParsedTestCase{
				ExpectedOutcome: domain.OutcomeNegative,
				RawNotation:     "NEG: TDR: Prostate, Gleason 5 (non-aggressive)",
				ParseErrors:     []string{},
				Entries: []domain.RelativeEntry{{
					RelationshipCode: "TDR",
					RelationshipType: domain.RelationshipThirdDegree,
					Conditions: []domain.CancerCondition{{
						CancerType:      "Prostate",
						SeverityScore:   intPtr(5),
						IsAggressive:    boolPtr(false),
						AdditionalNotes: strPtr("non-aggressive"),
					}},
				}},
			},
		},
		{
			name:  "Two relatives joined by AND",
			input: "POS: FDR: Breast Cancer, age 45 AND SDR: Ovarian Cancer",
			expected: &domain.ParsedTestCase{
				ExpectedOutcome: domain.OutcomePositive,
				RawNotation:     "POS: FDR: Breast Cancer, age 45 AND SDR: Ovarian Cancer",
				ParseErrors:     []string{},
				Entries: []domain.RelativeEntry{
					{
						RelationshipCode: "FDR",
						RelationshipType: domain.RelationshipFirstDegree,
						Conditions:       []domain.CancerCondition{{CancerType: "Breast", AgeDiagnosed: intPtr(45)}},
					},
					{
						RelationshipCode: "SDR",
						RelationshipType: domain.RelationshipSecondDegree,
						Conditions:       []domain.CancerCondition{{CancerType: "Ovarian"}},
					},
				},
			},
		},
		{
			name:  "Two patient conditions with note",
			input: "POS: PHX: Colon Cancer AND PHX: Endometrial Cancer (same patient)",
			expected: &domain.ParsedTestCase{
				ExpectedOutcome: domain.OutcomePositive,
				RawNotation:     "POS: PHX: Colon Cancer AND PHX: Endometrial Cancer (same patient)",
				ParseErrors:     []string{},
				Entries: []domain.RelativeEntry{
					{
						RelationshipCode: "PHX",
						RelationshipType: domain.RelationshipPatient,
						Conditions:       []domain.CancerCondition{{CancerType: "Colorectal"}},
					},
					{
						RelationshipCode: "PHX",
						RelationshipType: domain.RelationshipPatient,
						Conditions:       []domain.CancerCondition{{CancerType: "Endometrial", AdditionalNotes: strPtr("same patient")}},
					},
				},
			},
		},
		{
			name:  "Note without severity",
			input: "NEG: PHX: Prostate (no Gleason specified)",
			expected: &domain.ParsedTestCase{
				ExpectedOutcome: domain.OutcomeNegative,
				RawNotation:     "NEG: PHX: Prostate (no Gleason specified)",
				ParseErrors:     []string{},
				Entries: []domain.RelativeEntry{{
					RelationshipCode: "PHX",
					RelationshipType: domain.RelationshipPatient,
					Conditions:       []domain.CancerCondition{{CancerType: "Prostate", AdditionalNotes: strPtr("no Gleason specified")}},
				}},
			},
		},
		{
			name:  "Same relative marker",
			input: "POS: FDR: Renal Cancer AND same FDR: Mesothelioma",
			expected: &domain.ParsedTestCase{
				ExpectedOutcome: domain.OutcomePositive,
				RawNotation:     "POS: FDR: Renal Cancer AND same FDR: Mesothelioma",
				ParseErrors:     []string{},
				Entries: []domain.RelativeEntry{
					{
						RelationshipCode: "FDR",
						RelationshipType: domain.RelationshipFirstDegree,
						Conditions:       []domain.CancerCondition{{CancerType: "Kidney"}},
					},
					{
						RelationshipCode: "FDR",
						RelationshipType: domain.RelationshipFirstDegree,
						Conditions:       []domain.CancerCondition{{CancerType: "Mesothelioma"}},
						IsSameRelative:   true,
					},
				},
			},
		},
	}

	parser := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parser.Parse(tt.input)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParse_OutcomeCoverage(t *testing.T) {
	tests := []struct {
		prefix   string
		expected domain.Outcome
	}{
		{"POS", domain.OutcomePositive},
		{"POSITIVE", domain.OutcomePositive},
		{"NEG", domain.OutcomeNegative},
		{"NEGATIVE", domain.OutcomeNegative},
		{"DEP", domain.OutcomeDeprecated},
		{"DEPRECATED", domain.OutcomeDeprecated},
		{"pos", domain.OutcomePositive},
		{"Negative", domain.OutcomeNegative},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got := Parse(tt.prefix + ": PHX: Breast Cancer")
			assert.Equal(t, tt.expected, got.ExpectedOutcome)
			require.Len(t, got.Entries, 1)
			assert.Equal(t, "Breast", got.Entries[0].Conditions[0].CancerType)
			assert.Empty(t, got.ParseErrors)
		})
	}

	t.Run("Missing prefix", func(t *testing.T) {
		got := Parse("FDR: Pancreatic Cancer")
		assert.Equal(t, domain.OutcomeUnknown, got.ExpectedOutcome)
		require.Len(t, got.Entries, 1)
		assert.Equal(t, domain.RelationshipFirstDegree, got.Entries[0].RelationshipType)
		assert.Empty(t, got.ParseErrors)
	})

	t.Run("Prefix requires separator", func(t *testing.T) {
		got := Parse("POSITIVELY Breast")
		assert.Equal(t, domain.OutcomeUnknown, got.ExpectedOutcome)
	})
}

func TestParse_SegmentCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		segments int
	}{
		{"Single", "POS: PHX: Breast", 1},
		{"Two", "POS: PHX: Breast AND FDR: Ovarian", 2},
		{"Three lowercase", "NEG: PHX: Breast and FDR: Ovarian and SDR: Pancreas", 3},
		{"Substring is not a split", "POS: PHX: Breast, Handedness noted", 1},
		{"Conjunction inside note", "POS: FDR: Breast (left and right) AND SDR: Colon", 2},
		{"Unclosed parenthesis", "POS: FDR: Breast (aggressive AND SDR: Ovarian AND TDR: Colon", 3},
		{"Line breaks around conjunction", "POS: FDR: Breast\nAND\nSDR: Ovarian", 2},
		{"Trailing conjunction", "POS: PHX: Breast AND", 1},
		{"Repeated whitespace", "POS: PHX: Breast   AND   TDR: Gastric", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			assert.Len(t, got.Entries, tt.segments)
			assert.Len(t, splitSegments(mustRemainder(t, tt.input)), tt.segments)
		})
	}
}

func mustRemainder(t *testing.T, notation string) string {
	t.Helper()
	_, remainder := extractOutcome(notation)
	require.NotEmpty(t, remainder)
	return remainder
}

func TestParse_FailureModes(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		for _, input := range []string{"", "   ", "\t\n"} {
			got := Parse(input)
			assert.Equal(t, domain.OutcomeUnknown, got.ExpectedOutcome)
			assert.Empty(t, got.Entries)
			assert.Equal(t, []string{"Empty notation string"}, got.ParseErrors)
			assert.Equal(t, input, got.RawNotation)
			assert.False(t, got.Usable())
		}
	})

	t.Run("Outcome only", func(t *testing.T) {
		got := Parse("POS:   ")
		assert.Equal(t, domain.OutcomePositive, got.ExpectedOutcome)
		assert.Empty(t, got.Entries)
		assert.Equal(t, []string{"No conditions found after outcome"}, got.ParseErrors)
	})

	t.Run("Bare same marker keeps other entries", func(t *testing.T) {
		got := Parse("POS: FDR: Breast AND same")
		require.Len(t, got.Entries, 1)
		assert.Equal(t, "Breast", got.Entries[0].Conditions[0].CancerType)
		assert.Equal(t, []string{"Failed to parse entry: same"}, got.ParseErrors)
	})

	t.Run("Relationship without condition", func(t *testing.T) {
		got := Parse("NEG: SDR:")
		require.Len(t, got.Entries, 1)
		assert.Equal(t, domain.RelationshipSecondDegree, got.Entries[0].RelationshipType)
		assert.Equal(t, UnknownCancerType, got.Entries[0].Conditions[0].CancerType)
	})
}

func TestParse_EntryFallback(t *testing.T) {
	got := Parse("POS: Male Breast Cancer, age 60")
	require.Len(t, got.Entries, 1)

	entry := got.Entries[0]
	assert.Equal(t, CodePatientHistory, entry.RelationshipCode)
	assert.Equal(t, domain.RelationshipPatient, entry.RelationshipType)
	require.Len(t, entry.Conditions, 1)
	assert.Equal(t, "Male Breast", entry.Conditions[0].CancerType)
	assert.Equal(t, 60, *entry.Conditions[0].AgeDiagnosed)
	assert.Nil(t, entry.SpecificRelative)
}

func TestParse_RelationshipCodes(t *testing.T) {
	tests := []struct {
		input    string
		code     string
		expected domain.RelationshipType
	}{
		{"POS: phx: Breast", "PHX", domain.RelationshipPatient},
		{"POS: Patient: Breast", "PATIENT", domain.RelationshipPatient},
		{"POS: fdr : Breast", "FDR", domain.RelationshipFirstDegree},
		{"POS: SDR:Breast", "SDR", domain.RelationshipSecondDegree},
		{"POS: TDR: Breast", "TDR", domain.RelationshipThirdDegree},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Parse(tt.input)
			require.Len(t, got.Entries, 1)
			assert.Equal(t, tt.code, got.Entries[0].RelationshipCode)
			assert.Equal(t, tt.expected, got.Entries[0].RelationshipType)
			assert.Equal(t, "Breast", got.Entries[0].Conditions[0].CancerType)
		})
	}
}

func TestParse_PassThroughContext(t *testing.T) {
	got := Parse("POS: PHX: Breast", WithTargetRule("NCCN-BRCA-01"), WithPlatform("P4M"))
	require.NotNil(t, got.TargetRule)
	require.NotNil(t, got.Platform)
	assert.Equal(t, "NCCN-BRCA-01", *got.TargetRule)
	assert.Equal(t, "P4M", *got.Platform)

	empty := Parse("POS: PHX: Breast", WithTargetRule(""), WithPlatform(""))
	require.NotNil(t, empty.TargetRule)
	require.NotNil(t, empty.Platform)
	assert.Equal(t, "", *empty.TargetRule)
	assert.Equal(t, "", *empty.Platform)

	bare := Parse("POS: PHX: Breast")
	assert.Nil(t, bare.TargetRule)
	assert.Nil(t, bare.Platform)
}

func TestParse_UnclosedParenthesisKeepsEntries(t *testing.T) {
	got := Parse("POS: FDR: Breast (aggressive AND SDR: Ovarian AND TDR: Colon")
	require.Len(t, got.Entries, 3)
	assert.Equal(t, "FDR", got.Entries[0].RelationshipCode)
	assert.Equal(t, "SDR", got.Entries[1].RelationshipCode)
	assert.Equal(t, "Ovarian", got.Entries[1].Conditions[0].CancerType)
	assert.Equal(t, "TDR", got.Entries[2].RelationshipCode)
	assert.Equal(t, "Colorectal", got.Entries[2].Conditions[0].CancerType)
}

func TestParse_LineBreaksInSegment(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Inside label", "POS: FDR: Breast\nCancer"},
		{"After code", "POS: FDR:\n  Breast Cancer"},
		{"Carriage return", "POS: FDR: Breast\r\nCancer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			require.Len(t, got.Entries, 1)
			assert.Equal(t, "FDR", got.Entries[0].RelationshipCode)
			assert.Equal(t, domain.RelationshipFirstDegree, got.Entries[0].RelationshipType)
			assert.Equal(t, "Breast", got.Entries[0].Conditions[0].CancerType)
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	inputs := []string{
		"POS: PHX: Prostate Cancer, Gleason 8 (aggressive)",
		"POS: FDR: Breast Cancer, age 45 AND SDR: Ovarian Cancer",
		"FDR: Lung (metastatic), age: 70",
		"",
		"POS:",
	}

	parser := NewParser()
	for _, input := range inputs {
		first := parser.Parse(input)
		second := parser.Parse(input)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Parse(%q) not idempotent (-first +second):\n%s", input, diff)
		}
	}
}

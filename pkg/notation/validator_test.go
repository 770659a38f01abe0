package notation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		valid        bool
		errors       []string
		warnings     []string
		expectParsed bool
		entries      int
	}{
		{
			name:     "Empty string",
			input:    "",
			valid:    false,
			errors:   []string{"Notation is empty"},
			warnings: []string{},
		},
		{
			name:     "Whitespace only",
			input:    "   ",
			valid:    false,
			errors:   []string{"Notation is empty"},
			warnings: []string{},
		},
		{
			name:         "Known type with note",
			input:        "NEG: PHX: Prostate (no Gleason specified)",
			valid:        true,
			errors:       []string{},
			warnings:     []string{},
			expectParsed: true,
			entries:      1,
		},
		{
			name:         "Missing outcome is a warning",
			input:        "FDR: Breast Cancer",
			valid:        true,
			errors:       []string{},
			warnings:     []string{"No POS/NEG outcome prefix found"},
			expectParsed: true,
			entries:      1,
		},
		{
			name:         "Unknown cancer type warning names positions",
			input:        "POS: PHX: Breast AND FDR:",
			valid:        true,
			errors:       []string{},
			warnings:     []string{"Entry 2, condition 1: Unknown cancer type"},
			expectParsed: true,
			entries:      2,
		},
		{
			name:         "Outcome without entries",
			input:        "DEP:",
			valid:        false,
			errors:       []string{"No conditions/entries found in notation"},
			warnings:     []string{"No conditions found after outcome"},
			expectParsed: true,
		},
		{
			name:         "Failed segment surfaces as warning",
			input:        "POS: PHX: Breast AND same",
			valid:        true,
			errors:       []string{},
			warnings:     []string{"Failed to parse entry: same"},
			expectParsed: true,
			entries:      1,
		},
		{
			name:         "Unclosed parenthesis still splits and warns",
			input:        "POS: FDR: Breast (aggressive AND SDR: Ovarian AND TDR: Colon",
			valid:        true,
			errors:       []string{},
			warnings:     []string{"Unbalanced parentheses in notation"},
			expectParsed: true,
			entries:      3,
		},
		{
			name:         "Stray closing parenthesis warns",
			input:        "POS: PHX: Breast) AND FDR: Colon",
			valid:        true,
			errors:       []string{},
			warnings:     []string{"Unbalanced parentheses in notation"},
			expectParsed: true,
			entries:      2,
		},
	}

	validator := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := validator.Validate(tt.input)
			assert.Equal(t, tt.valid, report.Valid)
			assert.Equal(t, tt.errors, report.Errors)
			assert.Equal(t, tt.warnings, report.Warnings)

			if !tt.expectParsed {
				assert.Nil(t, report.Parsed)
				return
			}
			require.NotNil(t, report.Parsed)
			assert.Len(t, report.Parsed.Entries, tt.entries)
			assert.Equal(t, tt.input, report.Parsed.RawNotation)
		})
	}
}

func TestValidate_NeverMutatesParse(t *testing.T) {
	input := "POS: PHX: Unlisted Cancer"
	report := Validate(input)
	require.NotNil(t, report.Parsed)

	// warnings are layered on top; the serialized parse keeps its own errors
	assert.Empty(t, report.Parsed.ParseErrors)
	assert.Equal(t, "Unlisted Cancer", report.Parsed.Entries[0].Conditions[0].CancerType)
}

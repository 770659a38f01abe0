package notation

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

func TestSerialize_RoundTrip(t *testing.T) {
	inputs := []string{
		"POS: PHX: Prostate Cancer, Gleason 8 (aggressive)",
		"NEG: TDR: Prostate, Gleason 5 (non-aggressive)",
		"POS: FDR: Breast Cancer, age 45 AND SDR: Ovarian Cancer",
		"POS: PHX: Colon Cancer AND PHX: Endometrial Cancer (same patient)",
		"POS: FDR: Renal Cancer AND same FDR: Mesothelioma (metastatic), age 51",
		"DEP: PHX: Thyroid",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			parsed := Parse(input, WithTargetRule("R-1"), WithPlatform("Px4M"))
			rec := Serialize(parsed)

			data, err := json.Marshal(rec)
			require.NoError(t, err)

			var decoded domain.TestCaseRecord
			require.NoError(t, json.Unmarshal(data, &decoded))

			if diff := cmp.Diff(parsed, Deserialize(&decoded)); diff != "" {
				t.Errorf("round trip lost data (-parsed +restored):\n%s", diff)
			}
		})
	}
}

func TestSerialize_StableSchema(t *testing.T) {
	rec := Serialize(Parse("POS: SDR: Gastric"))

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &generic))

	for _, key := range []string{"expected_outcome", "target_rule", "platform", "raw_notation", "parse_errors", "entries"} {
		assert.Contains(t, generic, key)
	}
	assert.Nil(t, generic["target_rule"])
	assert.Equal(t, []interface{}{}, generic["parse_errors"])

	entries := generic["entries"].([]interface{})
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]interface{})
	assert.Equal(t, "second_degree", entry["relationship_type"])
	assert.Equal(t, "SDR", entry["relationship_code"])
	assert.Contains(t, entry, "specific_relative")
	assert.Equal(t, false, entry["is_same_relative"])

	cond := entry["conditions"].([]interface{})[0].(map[string]interface{})
	for _, key := range []string{"cancer_type", "age_diagnosed", "severity_score", "is_aggressive", "is_metastatic", "additional_notes"} {
		assert.Contains(t, cond, key)
	}
	assert.Equal(t, "Gastric", cond["cancer_type"])
	assert.Nil(t, cond["severity_score"])
}

func TestSerialize_CopiesOptionalValues(t *testing.T) {
	parsed := Parse("POS: PHX: Prostate, Gleason 9")
	rec := Serialize(parsed)

	*rec.Entries[0].Conditions[0].SeverityScore = 2
	assert.Equal(t, 9, *parsed.Entries[0].Conditions[0].SeverityScore)
}

func TestSerialize_Nil(t *testing.T) {
	assert.Nil(t, Serialize(nil))
	assert.Nil(t, Deserialize(nil))
}

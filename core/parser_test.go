package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertRecordShape(t *testing.T, record ModuleRecord) {
	t.Helper()
	assert.GreaterOrEqual(t, record.Score, 0)
	assert.LessOrEqual(t, record.Score, 100)
	assert.Equal(t, MedalForScore(record.Score), record.Medal)
	assert.NotNil(t, record.Strengths)
	assert.NotNil(t, record.Weaknesses)
	assert.NotNil(t, record.HiddenRisks)
	assert.NotNil(t, record.RemediationSteps)
}

// Parser totality: any input yields a well-shaped record, never a panic.
func TestParseModuleRecord_Totality(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not json at all",
		"{",
		`{"score":`,
		`[1, 2, 3]`,
		`"just a string"`,
		`{"score": "eighty"}`,
		strings.Repeat("{", 1000),
		"\x00\xff garbage \x7f",
		`{"score": 80, "medal": "Gold"` /* truncated */,
	}

	for _, input := range inputs {
		record := ParseModuleRecord(input)
		assertRecordShape(t, record)
	}
}

// Parser fidelity: well-formed records round-trip unchanged.
func TestParseModuleRecord_Fidelity(t *testing.T) {
	original := ModuleRecord{
		Score:            82,
		Medal:            MedalGold,
		Strengths:        []string{"clear module boundaries", "good naming"},
		Weaknesses:       []string{"sparse tests"},
		HiddenRisks:      []string{"single maintainer"},
		RealWorldImpact:  "Changes land safely.",
		FailureScenario:  "A bad release goes unnoticed.",
		RemediationSteps: []string{"add CI gate"},
		Vulnerabilities: []Vulnerability{
			{Issue: "token in logs", Severity: 7, Explanation: "tokens are printed", Mitigation: "redact"},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	parsed, ok := TryParseModuleRecord(string(data))
	require.True(t, ok)
	assert.Equal(t, original, parsed)
}

// Cleanup regexes must never rewrite the inside of string literals: a
// well-formed record with bracket or fence sequences in its text fields
// round-trips byte for byte.
func TestParseModuleRecord_FidelityWithCleanupLookalikes(t *testing.T) {
	original := ModuleRecord{
		Score:            80,
		Medal:            MedalGold,
		Strengths:        []string{"supports patterns like [a, ] in docs", "README shows ```go fenced examples```"},
		Weaknesses:       []string{"config sample ends with {key, }"},
		HiddenRisks:      []string{},
		RemediationSteps: []string{},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	parsed, ok := TryParseModuleRecord(string(data))
	require.True(t, ok)
	assert.Equal(t, original, parsed)
}

func TestParseModuleRecord_CodeFence(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"score\": 80, \"medal\": \"Gold\", \"strengths\": [\"a\"]}\n```\nHope that helps!"

	record, ok := TryParseModuleRecord(raw)
	require.True(t, ok)
	assert.Equal(t, 80, record.Score)
	assert.Equal(t, MedalGold, record.Medal)
	assert.Equal(t, []string{"a"}, record.Strengths)
}

func TestParseModuleRecord_TrailingComma(t *testing.T) {
	raw := `{"score": 75, "strengths": ["a", "b",]}`

	record, ok := TryParseModuleRecord(raw)
	require.True(t, ok)
	assert.Equal(t, 75, record.Score)
	assert.Equal(t, []string{"a", "b"}, record.Strengths)
}

func TestParseModuleRecord_ProseWrapped(t *testing.T) {
	raw := `Sure! Based on my review the assessment is {"score": 64, "weaknesses": ["deep nesting"]} and I can expand on any point.`

	record, ok := TryParseModuleRecord(raw)
	require.True(t, ok)
	assert.Equal(t, 64, record.Score)
	assert.Equal(t, MedalSilver, record.Medal)
}

// A complete leading object followed by a truncated second one is recovered
// by the brace-matching stage.
func TestParseModuleRecord_TruncatedStream(t *testing.T) {
	raw := `{"score": 91, "strengths": ["solid {braces} in strings", "escaped \" quote"]}{"score": 12, "hidden_risks": ["stray } in a string", "truncat`

	record, ok := TryParseModuleRecord(raw)
	require.True(t, ok)
	assert.Equal(t, 91, record.Score)
	assert.Equal(t, MedalPlatinum, record.Medal)
	assert.Len(t, record.Strengths, 2)
}

func TestParseModuleRecord_ScoreClamping(t *testing.T) {
	record, ok := TryParseModuleRecord(`{"score": 250}`)
	require.True(t, ok)
	assert.Equal(t, 100, record.Score)
	assert.Equal(t, MedalPlatinum, record.Medal)

	record, ok = TryParseModuleRecord(`{"score": -10}`)
	require.True(t, ok)
	assert.Equal(t, 0, record.Score)
	assert.Equal(t, MedalBronze, record.Medal)
}

func TestParseModuleRecord_MedalRecomputedFromScore(t *testing.T) {
	record, ok := TryParseModuleRecord(`{"score": 95, "medal": "Bronze"}`)
	require.True(t, ok)
	assert.Equal(t, MedalPlatinum, record.Medal)
}

func TestParseModuleRecord_SeverityClamping(t *testing.T) {
	raw := `{"score": 40, "vulnerabilities": [{"issue": "x", "severity": 99}, {"issue": "y", "severity": 0}]}`

	record, ok := TryParseModuleRecord(raw)
	require.True(t, ok)
	require.Len(t, record.Vulnerabilities, 2)
	assert.Equal(t, 10, record.Vulnerabilities[0].Severity)
	assert.Equal(t, 1, record.Vulnerabilities[1].Severity)
}

func TestDefaultModuleRecord(t *testing.T) {
	record := DefaultModuleRecord()
	assert.Equal(t, 50, record.Score)
	assert.Equal(t, MedalBronze, record.Medal)
	assertRecordShape(t, record)
	assert.NotEmpty(t, record.RealWorldImpact)
	assert.NotEmpty(t, record.FailureScenario)
}

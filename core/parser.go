package core

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model output is adversarial by accident: fenced, wrapped in prose,
// truncated mid-stream, sprinkled with trailing commas. ParseModuleRecord
// runs a fixed recovery ladder and never fails past this boundary.

var (
	fenceMarkerRe   = regexp.MustCompile("```[a-zA-Z]*")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseModuleRecord turns raw model text into a ModuleRecord. The stages:
// direct parse of the raw text, parse of the cleaned text, boundary
// extraction between the first '{' and last '}', incremental brace-matching
// recovery for truncated output, and finally a synthetic default record.
// Always returns a fully populated record.
func ParseModuleRecord(raw string) ModuleRecord {
	if record, ok := TryParseModuleRecord(raw); ok {
		return record
	}
	return DefaultModuleRecord()
}

// TryParseModuleRecord runs the recovery stages and additionally reports
// whether any of them succeeded. The dispatcher uses the flag to downgrade
// unrecoverable responses to failed tasks instead of counting a default
// record as a success.
func TryParseModuleRecord(raw string) (ModuleRecord, bool) {
	// Well-formed output parses verbatim. The regex cleanup below rewrites
	// fence markers and trailing commas anywhere in the text, string literals
	// included, so it must only ever touch text that failed to parse as-is.
	if record, ok := tryParseRecord(strings.TrimSpace(raw)); ok {
		return normalizeRecord(record), true
	}

	cleaned := cleanRawText(raw)

	if record, ok := tryParseRecord(cleaned); ok {
		return normalizeRecord(record), true
	}

	if extracted, ok := extractObjectBounds(cleaned); ok {
		if record, ok := tryParseRecord(extracted); ok {
			return normalizeRecord(record), true
		}
	}

	if recovered, ok := recoverLeadingObject(cleaned); ok {
		return normalizeRecord(recovered), true
	}

	return ModuleRecord{}, false
}

// DefaultModuleRecord is the stage-four fallback: a neutral record with
// placeholder text in every field so downstream consumers never see a
// missing shape.
func DefaultModuleRecord() ModuleRecord {
	return ModuleRecord{
		Score:            50,
		Medal:            MedalBronze,
		Strengths:        []string{"Analysis unavailable for this dimension"},
		Weaknesses:       []string{"The model response could not be interpreted"},
		HiddenRisks:      []string{"Unassessed areas may hide issues"},
		RealWorldImpact:  "No assessment was produced for this dimension.",
		FailureScenario:  "No assessment was produced for this dimension.",
		RemediationSteps: []string{"Re-run the analysis for this dimension"},
	}
}

func cleanRawText(raw string) string {
	cleaned := fenceMarkerRe.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = trailingCommaRe.ReplaceAllString(cleaned, "$1")
	return cleaned
}

func tryParseRecord(text string) (ModuleRecord, bool) {
	var record ModuleRecord
	if err := json.Unmarshal([]byte(text), &record); err != nil {
		return ModuleRecord{}, false
	}
	return record, true
}

// extractObjectBounds slices to the span between the first '{' and the last
// '}', which drops prose the model added around the JSON.
func extractObjectBounds(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// recoverLeadingObject scans character by character, tracking quoted strings
// (with escape sequences) and brace depth. Whenever depth returns to zero it
// attempts to parse the accumulated buffer as a complete object, extending
// on failure. This recovers a well-formed leading object from a response
// truncated mid-stream.
func recoverLeadingObject(text string) (ModuleRecord, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ModuleRecord{}, false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if record, ok := tryParseRecord(candidate); ok {
					return record, true
				}
				// Keep extending: a later balanced span may parse.
			}
		}
	}

	return ModuleRecord{}, false
}

// normalizeRecord enforces the record invariants: score clamped to 0-100,
// medal derived from score via the fixed thresholds, no nil slice fields,
// vulnerability severity clamped to 1-10.
func normalizeRecord(record ModuleRecord) ModuleRecord {
	if record.Score < 0 {
		record.Score = 0
	}
	if record.Score > 100 {
		record.Score = 100
	}
	record.Medal = MedalForScore(record.Score)

	if record.Strengths == nil {
		record.Strengths = []string{}
	}
	if record.Weaknesses == nil {
		record.Weaknesses = []string{}
	}
	if record.HiddenRisks == nil {
		record.HiddenRisks = []string{}
	}
	if record.RemediationSteps == nil {
		record.RemediationSteps = []string{}
	}

	for i := range record.Vulnerabilities {
		if record.Vulnerabilities[i].Severity < 1 {
			record.Vulnerabilities[i].Severity = 1
		}
		if record.Vulnerabilities[i].Severity > 10 {
			record.Vulnerabilities[i].Severity = 10
		}
	}

	return record
}

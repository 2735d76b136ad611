package core

import (
	"fmt"
	"time"

	"github.com/sabbir-lite-0/repolens/core/github"
)

// Analysis dimension keys. The order here is the order prompts are built in,
// which also fixes the round-robin primary key assignment.
const (
	DimCodeQuality     = "code_quality"
	DimStructure       = "structure"
	DimSecurity        = "security"
	DimPerformance     = "performance"
	DimScalability     = "scalability"
	DimTesting         = "testing"
	DimDocumentation   = "documentation"
	DimDependencies    = "dependencies"
	DimCICD            = "cicd"
	DimMaintainability = "maintainability"

	// DimHolistic is the eleventh prompt: an executive summary across all
	// dimensions. It never counts toward the success threshold.
	DimHolistic = "holistic"
)

// CoreDimensions are the ten scored dimensions of a composite report.
var CoreDimensions = []string{
	DimCodeQuality,
	DimStructure,
	DimSecurity,
	DimPerformance,
	DimScalability,
	DimTesting,
	DimDocumentation,
	DimDependencies,
	DimCICD,
	DimMaintainability,
}

// Medal tiers per dimension score.
const (
	MedalBronze   = "Bronze"
	MedalSilver   = "Silver"
	MedalGold     = "Gold"
	MedalPlatinum = "Platinum"
)

// Maturity levels per overall score.
const (
	MaturityBeginner     = "Beginner"
	MaturityIntermediate = "Intermediate"
	MaturityAdvanced     = "Advanced"
)

// MedalForScore maps a 0-100 score onto its medal tier.
func MedalForScore(score int) string {
	switch {
	case score >= 90:
		return MedalPlatinum
	case score >= 75:
		return MedalGold
	case score >= 50:
		return MedalSilver
	default:
		return MedalBronze
	}
}

// MaturityForScore maps the overall score onto a maturity level.
func MaturityForScore(score int) string {
	switch {
	case score >= 80:
		return MaturityAdvanced
	case score >= 60:
		return MaturityIntermediate
	default:
		return MaturityBeginner
	}
}

// Vulnerability is one finding in the security dimension.
type Vulnerability struct {
	Issue       string `json:"issue"`
	Severity    int    `json:"severity"`
	Explanation string `json:"explanation"`
	Mitigation  string `json:"mitigation"`
}

// ModuleRecord is the structured result of one analysis dimension.
// Vulnerabilities is only populated for the security dimension; Summary only
// for the holistic assessment.
type ModuleRecord struct {
	Score            int             `json:"score"`
	Medal            string          `json:"medal"`
	Strengths        []string        `json:"strengths"`
	Weaknesses       []string        `json:"weaknesses"`
	HiddenRisks      []string        `json:"hidden_risks"`
	RealWorldImpact  string          `json:"real_world_impact"`
	FailureScenario  string          `json:"failure_scenario"`
	RemediationSteps []string        `json:"remediation_steps"`
	Vulnerabilities  []Vulnerability `json:"vulnerabilities,omitempty"`
	Summary          string          `json:"summary,omitempty"`
}

// PartialResults maps dimension keys to parsed records. Absent keys are
// dimensions whose task or parse failed; the aggregator fills them in.
type PartialResults map[string]ModuleRecord

// RoadmapItem is one entry of the improvement roadmap.
type RoadmapItem struct {
	Dimension string `json:"dimension"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
}

// CriticalFlags are derived booleans combining GitHub metadata with
// dimension scores.
type CriticalFlags struct {
	SecretsDetected  bool `json:"secrets_detected"`
	NoTests          bool `json:"no_tests"`
	NoCI             bool `json:"no_ci"`
	MissingDocs      bool `json:"missing_docs"`
	SingleMaintainer bool `json:"single_maintainer"`
	Stale            bool `json:"stale"`
}

// CompositeReport is the fully populated analysis result. Every core
// dimension key is always present, defaulted if its task failed.
type CompositeReport struct {
	Repository         string                  `json:"repository"`
	GeneratedAt        time.Time               `json:"generated_at"`
	Fallback           bool                    `json:"fallback"`
	Dimensions         map[string]ModuleRecord `json:"dimensions"`
	OverallScore       int                     `json:"overall_score"`
	MaturityLevel      string                  `json:"maturity_level"`
	RiskSnapshot       []string                `json:"risk_snapshot"`
	ImprovementRoadmap []RoadmapItem           `json:"improvement_roadmap"`
	CriticalFlags      CriticalFlags           `json:"critical_flags"`
	Summary            string                  `json:"summary"`
	Repo               github.RepoMeta         `json:"repo"`
}

// InsufficientResultsError is the batch-level failure: fewer dimensions
// succeeded than the configured threshold.
type InsufficientResultsError struct {
	Successes int
	Required  int
}

func (e *InsufficientResultsError) Error() string {
	return fmt.Sprintf("insufficient analysis results: %d of %d required dimensions succeeded", e.Successes, e.Required)
}

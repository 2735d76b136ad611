package core

import (
	"fmt"
	"math"
	"time"

	"github.com/sabbir-lite-0/repolens/core/github"
)

const (
	riskSnapshotCap = 3
	roadmapCap      = 8
	roadmapReason   = "Identified during automated repository analysis"
	staleAfter      = 365 * 24 * time.Hour
)

// riskDimensions contribute their hidden risks to the risk snapshot.
var riskDimensions = []string{DimStructure, DimSecurity, DimPerformance, DimScalability}

// roadmapDimensions contribute remediation steps, in this order.
var roadmapDimensions = []string{DimSecurity, DimCodeQuality, DimStructure, DimPerformance, DimTesting}

// Aggregate merges per-dimension records into one composite report. Every
// core dimension is present in the output, defaulted when absent from
// partial; the result is fully populated regardless of how little the
// batch produced.
func Aggregate(partial PartialResults, meta github.RepoMeta) CompositeReport {
	dimensions := make(map[string]ModuleRecord, len(CoreDimensions))
	total := 0
	for _, dim := range CoreDimensions {
		record, ok := partial[dim]
		if !ok {
			record = DefaultModuleRecord()
		}
		dimensions[dim] = record
		total += record.Score
	}

	overall := int(math.Round(float64(total) / float64(len(CoreDimensions))))

	report := CompositeReport{
		Repository:         meta.FullName,
		GeneratedAt:        time.Now(),
		Dimensions:         dimensions,
		OverallScore:       overall,
		MaturityLevel:      MaturityForScore(overall),
		RiskSnapshot:       buildRiskSnapshot(dimensions),
		ImprovementRoadmap: buildRoadmap(dimensions),
		CriticalFlags:      deriveCriticalFlags(dimensions, meta),
		Summary:            buildSummary(partial, meta, overall),
		Repo:               meta,
	}

	return report
}

func buildRiskSnapshot(dimensions map[string]ModuleRecord) []string {
	risks := []string{}
	for _, dim := range riskDimensions {
		risks = append(risks, dimensions[dim].HiddenRisks...)
	}
	if len(risks) > riskSnapshotCap {
		risks = risks[:riskSnapshotCap]
	}
	return risks
}

func buildRoadmap(dimensions map[string]ModuleRecord) []RoadmapItem {
	roadmap := []RoadmapItem{}
	for _, dim := range roadmapDimensions {
		for _, step := range dimensions[dim].RemediationSteps {
			roadmap = append(roadmap, RoadmapItem{
				Dimension: "Technical",
				Action:    step,
				Reason:    roadmapReason,
			})
			if len(roadmap) == roadmapCap {
				return roadmap
			}
		}
	}
	return roadmap
}

func deriveCriticalFlags(dimensions map[string]ModuleRecord, meta github.RepoMeta) CriticalFlags {
	return CriticalFlags{
		SecretsDetected:  dimensions[DimSecurity].Score < 70,
		NoTests:          !meta.HasTests,
		NoCI:             !meta.HasCI,
		MissingDocs:      meta.Readme == "" || dimensions[DimDocumentation].Score < 50,
		SingleMaintainer: meta.Contributors <= 1,
		Stale:            !meta.PushedAt.IsZero() && time.Since(meta.PushedAt) > staleAfter,
	}
}

func buildSummary(partial PartialResults, meta github.RepoMeta, overall int) string {
	if holistic, ok := partial[DimHolistic]; ok && holistic.Summary != "" {
		return holistic.Summary
	}
	return fmt.Sprintf("%s scored %d/100 (%s maturity) across %d analysis dimensions.",
		meta.FullName, overall, MaturityForScore(overall), len(CoreDimensions))
}

package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sabbir-lite-0/repolens/core/github"
	"github.com/sabbir-lite-0/repolens/utils"
)

// PromptTask is one unit of work for the dispatcher. PrimaryKeyIndex is the
// round-robin key assignment; it never changes for the task's lifetime.
type PromptTask struct {
	Index           int
	Dimension       string
	Text            string
	PrimaryKeyIndex int
}

const recordSchema = `{
  "score": <integer 0-100>,
  "medal": "<Bronze|Silver|Gold|Platinum>",
  "strengths": ["<string>", ...],
  "weaknesses": ["<string>", ...],
  "hidden_risks": ["<string>", ...],
  "real_world_impact": "<string>",
  "failure_scenario": "<string>",
  "remediation_steps": ["<string>", ...]
}`

// dimensionFocus is what each prompt asks the model to concentrate on.
var dimensionFocus = map[string]string{
	DimCodeQuality:     "code quality: naming, idioms, duplication, error handling discipline, dead code",
	DimStructure:       "repository structure and architecture: module boundaries, layering, coupling, separation of concerns",
	DimSecurity:        "security posture: secret handling, input validation, dependency risk, auth patterns, attack surface",
	DimPerformance:     "performance: hot paths, obvious inefficiencies, resource usage, caching",
	DimScalability:     "scalability: concurrency model, statefulness, bottlenecks under growth of data and traffic",
	DimTesting:         "testing: presence and depth of automated tests, CI enforcement, testability of the design",
	DimDocumentation:   "documentation: README quality, setup instructions, API docs, inline documentation culture",
	DimDependencies:    "dependency hygiene: freshness, pinning, supply-chain exposure, unnecessary dependencies",
	DimCICD:            "CI/CD and operations: automated builds, release process, containerization, deploy story",
	DimMaintainability: "maintainability: bus factor, commit cadence, issue hygiene, how hard a newcomer lands a change",
}

// BuildPrompts creates the fixed ordered prompt set for one analysis run:
// one prompt per core dimension plus the holistic assessment, with primary
// keys assigned i mod poolSize.
func BuildPrompts(meta github.RepoMeta, poolSize int) []PromptTask {
	if poolSize < 1 {
		poolSize = 1
	}

	context := buildRepoContext(meta)
	tasks := make([]PromptTask, 0, len(CoreDimensions)+1)

	for i, dim := range CoreDimensions {
		tasks = append(tasks, PromptTask{
			Index:           i,
			Dimension:       dim,
			Text:            buildDimensionPrompt(dim, context),
			PrimaryKeyIndex: i % poolSize,
		})
	}

	holisticIndex := len(CoreDimensions)
	tasks = append(tasks, PromptTask{
		Index:           holisticIndex,
		Dimension:       DimHolistic,
		Text:            buildHolisticPrompt(context),
		PrimaryKeyIndex: holisticIndex % poolSize,
	})

	return tasks
}

func buildDimensionPrompt(dimension, repoContext string) string {
	schema := recordSchema
	if dimension == DimSecurity {
		schema = strings.TrimSuffix(recordSchema, "\n}") + `,
  "vulnerabilities": [{"issue": "<string>", "severity": <integer 1-10>, "explanation": "<string>", "mitigation": "<string>"}, ...]
}`
	}

	return fmt.Sprintf(`You are a senior engineer reviewing a GitHub repository. Assess ONLY this aspect: %s.

%s

Respond with a single JSON object, no prose before or after, exactly this shape:
%s

Score strictly: 90+ is exceptional, 50 is average open-source quality.`,
		dimensionFocus[dimension], repoContext, schema)
}

func buildHolisticPrompt(repoContext string) string {
	return fmt.Sprintf(`You are a senior engineer writing an executive assessment of a GitHub repository as a whole: its purpose, health, and the single biggest thing holding it back.

%s

Respond with a single JSON object, no prose before or after, exactly this shape:
%s

Additionally include a "summary" field: 3-5 sentences a CTO would read.`,
		repoContext, strings.TrimSuffix(recordSchema, "\n}")+`,
  "summary": "<string>"
}`)
}

// buildRepoContext serializes the metadata record into the prompt preamble.
// README text is stripped of HTML and truncated to bound the prompt size.
func buildRepoContext(meta github.RepoMeta) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Repository: %s\n", meta.FullName)
	if meta.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", meta.Description)
	}
	fmt.Fprintf(&b, "Stars: %d, Forks: %d, Open issues: %d, Size: %d KB\n", meta.Stars, meta.Forks, meta.OpenIssues, meta.Size)
	fmt.Fprintf(&b, "Created: %s, Last push: %s\n", meta.CreatedAt.Format("2006-01-02"), meta.PushedAt.Format("2006-01-02"))
	if meta.License != "" {
		fmt.Fprintf(&b, "License: %s\n", meta.License)
	}
	fmt.Fprintf(&b, "Commits: %d, Contributors: %d, Branches: %d\n", meta.Commits, meta.Contributors, meta.Branches)
	fmt.Fprintf(&b, "Has tests: %t, Has CI: %t, Has Dockerfile: %t\n", meta.HasTests, meta.HasCI, meta.HasDockerfile)

	if len(meta.Languages) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", formatLanguages(meta.Languages))
	}

	if deps := packageDependencies(meta.PackageJSON); len(deps) > 0 {
		fmt.Fprintf(&b, "Declared dependencies: %s\n", utils.TruncateString(strings.Join(deps, ", "), 800))
	}

	if meta.Readme != "" {
		readme := meta.Readme
		if strings.Contains(readme, "</") {
			readme = utils.StripHTML(readme)
		}
		fmt.Fprintf(&b, "\nREADME:\n%s\n", utils.TruncateString(readme, 4000))
	}

	return b.String()
}

func formatLanguages(languages map[string]int) string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	// Largest byte count first.
	sort.Slice(names, func(i, j int) bool {
		if languages[names[i]] != languages[names[j]] {
			return languages[names[i]] > languages[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%d bytes)", name, languages[name])
	}
	return strings.Join(parts, ", ")
}

func packageDependencies(packageJSON map[string]interface{}) []string {
	if packageJSON == nil {
		return nil
	}
	var deps []string
	for _, section := range []string{"dependencies", "devDependencies"} {
		if m, ok := packageJSON[section].(map[string]interface{}); ok {
			for name := range m {
				deps = append(deps, name)
			}
		}
	}
	sort.Strings(deps)
	return deps
}

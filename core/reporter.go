package core

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/sabbir-lite-0/repolens/utils"
)

type Reporter struct {
	logger *utils.Logger
}

func NewReporter(logger *utils.Logger) *Reporter {
	return &Reporter{
		logger: logger,
	}
}

// GenerateReport writes the composite report to filename in the given
// format (json, markdown, html).
func (r *Reporter) GenerateReport(report CompositeReport, filename, format string) error {
	r.logger.Info("Writing %s report for %s", format, report.Repository)

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	switch format {
	case "json":
		return r.generateJSONReport(report, filename)
	case "markdown":
		return r.generateMarkdownReport(report, filename)
	case "html":
		return r.generateHTMLReport(report, filename)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

func (r *Reporter) generateJSONReport(report CompositeReport, filename string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteToFile(filename, data)
}

func (r *Reporter) generateMarkdownReport(report CompositeReport, filename string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Repository Analysis: %s\n\n", report.Repository)
	if report.Fallback {
		b.WriteString("> **Baseline report**: live analysis was unavailable; scores are neutral defaults.\n\n")
	}
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Overall score: %d/100 (%s maturity)**\n\n", report.OverallScore, report.MaturityLevel)

	if report.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", report.Summary)
	}

	b.WriteString("## Dimensions\n\n")
	b.WriteString("| Dimension | Score | Medal |\n|---|---|---|\n")
	for _, dim := range CoreDimensions {
		record := report.Dimensions[dim]
		fmt.Fprintf(&b, "| %s | %d | %s |\n", dim, record.Score, record.Medal)
	}
	b.WriteString("\n")

	if len(report.RiskSnapshot) > 0 {
		b.WriteString("## Risk Snapshot\n\n")
		for _, risk := range report.RiskSnapshot {
			fmt.Fprintf(&b, "- %s\n", risk)
		}
		b.WriteString("\n")
	}

	if len(report.ImprovementRoadmap) > 0 {
		b.WriteString("## Improvement Roadmap\n\n")
		for i, item := range report.ImprovementRoadmap {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.Action)
		}
		b.WriteString("\n")
	}

	if security := report.Dimensions[DimSecurity]; len(security.Vulnerabilities) > 0 {
		b.WriteString("## Security Findings\n\n")
		for _, vuln := range security.Vulnerabilities {
			fmt.Fprintf(&b, "- **%s** (severity %d/10): %s\n  - Mitigation: %s\n", vuln.Issue, vuln.Severity, vuln.Explanation, vuln.Mitigation)
		}
		b.WriteString("\n")
	}

	return utils.WriteToFile(filename, []byte(b.String()))
}

const htmlReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Repolens Report: {{.Repository}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; margin: 0; padding: 20px; color: #333; }
        .header { border-bottom: 2px solid #007acc; padding-bottom: 20px; margin-bottom: 30px; }
        .score { font-size: 2em; font-weight: bold; color: #007acc; }
        .fallback { background-color: #fff3cd; padding: 10px; border-radius: 4px; margin-bottom: 20px; }
        table { border-collapse: collapse; width: 100%; margin-bottom: 30px; }
        th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #ddd; }
        .medal-Platinum { color: #5e60ce; } .medal-Gold { color: #c9a227; }
        .medal-Silver { color: #808080; } .medal-Bronze { color: #a0522d; }
        .risks { background-color: #f8f9fa; padding: 15px; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Repository}}</h1>
        <div class="score">{{.OverallScore}}/100 &mdash; {{.MaturityLevel}}</div>
        <p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>
    </div>
    {{if .Fallback}}<div class="fallback">Baseline report: live analysis was unavailable; scores are neutral defaults.</div>{{end}}
    {{if .Summary}}<p>{{.Summary}}</p>{{end}}
    <h2>Dimensions</h2>
    <table>
        <tr><th>Dimension</th><th>Score</th><th>Medal</th></tr>
        {{range $dim, $record := .Dimensions}}
        <tr><td>{{$dim}}</td><td>{{$record.Score}}</td><td class="medal-{{$record.Medal}}">{{$record.Medal}}</td></tr>
        {{end}}
    </table>
    {{if .RiskSnapshot}}
    <h2>Risk Snapshot</h2>
    <div class="risks"><ul>{{range .RiskSnapshot}}<li>{{.}}</li>{{end}}</ul></div>
    {{end}}
    {{if .ImprovementRoadmap}}
    <h2>Improvement Roadmap</h2>
    <ol>{{range .ImprovementRoadmap}}<li>{{.Action}}</li>{{end}}</ol>
    {{end}}
</body>
</html>`

func (r *Reporter) generateHTMLReport(report CompositeReport, filename string) error {
	tmpl, err := template.New("report").Parse(htmlReportTemplate)
	if err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return tmpl.Execute(file, report)
}

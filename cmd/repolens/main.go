package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/sabbir-lite-0/repolens/core"
	"github.com/sabbir-lite-0/repolens/core/gemini"
	"github.com/sabbir-lite-0/repolens/core/github"
	"github.com/sabbir-lite-0/repolens/utils"
)

const (
	Version = "1.0.0"
	Logo    = `
    ____                   __
   / __ \___  ____  ____  / /__  ____  _____
  / /_/ / _ \/ __ \/ __ \/ / _ \/ __ \/ ___/
 / _, _/  __/ /_/ / /_/ / /  __/ / / (__  )
/_/ |_|\___/ .___/\____/_/\___/_/ /_/____/
          /_/
AI-Assisted Repository Maturity Assessment v%s
`
)

func main() {
	app := &cli.App{
		Name:     "repolens",
		Version:  Version,
		Usage:    "AI-assisted GitHub repository maturity assessment",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "GitHub repository URL to analyze",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory for reports",
				Value:   "",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Report format (json, markdown, html)",
				Value: "json",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Verbose output",
			},
			&cli.BoolFlag{
				Name:  "daemon",
				Usage: "Run the API server instead of a one-shot analysis",
			},
			&cli.StringFlag{
				Name:  "daemon-addr",
				Usage: "Daemon listen address (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "Hide the banner",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Skip the redis report cache even when configured",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if !c.Bool("no-banner") {
		fmt.Printf(Logo, Version)
		fmt.Println()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	config, err := utils.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	if c.String("output") != "" {
		config.Reporting.OutputDir = c.String("output")
	}

	logger := utils.NewLogger(c.Bool("verbose"), config.Logging.Dir)
	defer logger.Close()

	if len(config.Gemini.APIKeys) == 0 {
		logger.Warning("No Gemini API keys configured; analysis will produce baseline reports only")
	} else {
		logger.Info("Gemini integration enabled with %d API keys", len(config.Gemini.APIKeys))
	}

	pool := gemini.NewKeyPool(config.Gemini.APIKeys, time.Duration(config.Analysis.KeyResetMinutes)*time.Minute)
	invoker := gemini.NewClient(gemini.ClientOptions{
		Model:           config.Gemini.Model,
		Temperature:     config.Gemini.Temperature,
		MaxOutputTokens: config.Gemini.MaxOutputTokens,
		RequestTimeout:  time.Duration(config.Gemini.RequestTimeout) * time.Second,
	}, logger)
	fetcher := github.NewClient(config.GitHub.Token, config.GitHub.Timeout, config.GitHub.Retries, logger)

	analyzer := core.NewAnalyzer(logger, config, fetcher, invoker, pool)

	if config.Cache.Enabled && !c.Bool("no-cache") {
		if cache := core.NewReportCache(config.Cache.RedisURL, time.Duration(config.Cache.TTLHours)*time.Hour, logger); cache != nil {
			analyzer.SetCache(cache)
			logger.Info("Report cache enabled")
		}
	}

	if c.Bool("daemon") {
		return runDaemonMode(c, logger, config, analyzer)
	}

	repoURL := c.String("repo")
	if repoURL == "" {
		return fmt.Errorf("a repository URL is required (--repo) unless running with --daemon")
	}

	return runAnalysis(ctx, c, logger, config, analyzer, repoURL)
}

func runAnalysis(ctx context.Context, c *cli.Context, logger *utils.Logger, config utils.Config, analyzer *core.Analyzer, repoURL string) error {
	format := c.String("format")
	if !utils.StringInSlice(format, []string{"json", "markdown", "html"}) {
		return fmt.Errorf("unsupported report format: %s (expected json, markdown, or html)", format)
	}

	logger.Info("Starting analysis for: %s", repoURL)

	progress := utils.NewProgressTracker()
	defer progress.Stop()

	const progressTask = "Analyzing dimensions"
	progress.AddTask(progressTask, len(core.CoreDimensions)+1)

	started := time.Now()
	report, err := analyzer.AnalyzeRepo(ctx, repoURL, func(dimension, event string) {
		if event == core.EventDimensionCompleted || event == core.EventDimensionFailed {
			progress.IncrementTask(progressTask, 1)
		}
	})
	progress.CompleteTask(progressTask)
	if err != nil {
		if core.IsNotFoundError(err) {
			return fmt.Errorf("repository not found or not accessible: %s", repoURL)
		}
		return fmt.Errorf("analysis aborted: %v", err)
	}

	reporter := core.NewReporter(logger)
	reportFile := filepath.Join(config.Reporting.OutputDir, fmt.Sprintf("repolens_%s_%s.%s",
		strings.ReplaceAll(strings.ToLower(report.Repository), "/", "_"),
		time.Now().Format("20060102_150405"),
		reportExtension(format)))

	if err := reporter.GenerateReport(report, reportFile, format); err != nil {
		return fmt.Errorf("failed to write report: %v", err)
	}

	logger.Success("Analysis completed in %s. Report saved to: %s", time.Since(started).Round(time.Second), reportFile)
	showReportSummary(report, logger)
	return nil
}

func runDaemonMode(c *cli.Context, logger *utils.Logger, config utils.Config, analyzer *core.Analyzer) error {
	addr := c.String("daemon-addr")
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", config.API.Host, config.API.Port)
	}
	logger.Info("Starting repolens daemon on %s", addr)

	dashboard := core.NewDashboard(logger)
	apiServer := core.NewAPIServer(logger, config, analyzer, dashboard)

	return apiServer.Start(addr)
}

func showReportSummary(report core.CompositeReport, logger *utils.Logger) {
	logger.Info("=== ANALYSIS SUMMARY ===")
	if report.Fallback {
		logger.Warning("Baseline report: live analysis was unavailable")
	}
	logger.Info("Repository: %s", report.Repository)
	logger.Info("Overall score: %d/100 (%s maturity)", report.OverallScore, report.MaturityLevel)

	for _, dim := range core.CoreDimensions {
		record := report.Dimensions[dim]
		line := fmt.Sprintf("  %-16s %3d  %s", dim, record.Score, record.Medal)
		switch record.Medal {
		case core.MedalPlatinum, core.MedalGold:
			color.Green(line)
		case core.MedalSilver:
			color.Yellow(line)
		default:
			color.Red(line)
		}
	}

	if len(report.RiskSnapshot) > 0 {
		logger.Warning("Top risks:")
		for _, risk := range report.RiskSnapshot {
			logger.Warning("  - %s", risk)
		}
	}
	if len(report.ImprovementRoadmap) > 0 {
		logger.Info("Next steps:")
		for i, item := range report.ImprovementRoadmap {
			logger.Info("  %d. %s", i+1, item.Action)
		}
	}
}

func reportExtension(format string) string {
	switch format {
	case "markdown":
		return "md"
	default:
		return format
	}
}

func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()
		time.Sleep(1 * time.Second)
		os.Exit(0)
	}()
}

package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sabbir-lite-0/repolens/core/gemini"
	"github.com/sabbir-lite-0/repolens/core/github"
	"github.com/sabbir-lite-0/repolens/utils"
)

// RepoFetcher is the GitHub collaborator boundary. *github.Client satisfies
// it; tests substitute a stub.
type RepoFetcher interface {
	FetchRepoMeta(ctx context.Context, owner, repo string) (github.RepoMeta, error)
}

// Analyzer is the top-level orchestrator: fetch metadata, dispatch the
// prompt batch, aggregate, and fall back to a complete labeled report when
// the batch fails. The caller always gets either a fully populated report
// or a repository-fetch error, never a partial report.
type Analyzer struct {
	logger     *utils.Logger
	config     utils.Config
	fetcher    RepoFetcher
	invoker    Invoker
	pool       *gemini.KeyPool
	dispatcher *Dispatcher
	cache      *ReportCache
}

func NewAnalyzer(logger *utils.Logger, config utils.Config, fetcher RepoFetcher, invoker Invoker, pool *gemini.KeyPool) *Analyzer {
	dispatcher := NewDispatcher(invoker, pool, logger, DispatcherOptions{
		MinSuccesses:     config.Analysis.MinSuccesses,
		MaxKeyAttempts:   config.Analysis.MaxKeyAttempts,
		BatchTimeout:     time.Duration(config.Analysis.BatchTimeout) * time.Second,
		OverloadBackoff:  time.Duration(config.Analysis.OverloadBackoff) * time.Millisecond,
		TransportBackoff: time.Duration(config.Analysis.TransportBackoff) * time.Millisecond,
	})

	return &Analyzer{
		logger:     logger,
		config:     config,
		fetcher:    fetcher,
		invoker:    invoker,
		pool:       pool,
		dispatcher: dispatcher,
	}
}

// SetCache attaches an optional report cache.
func (a *Analyzer) SetCache(cache *ReportCache) {
	a.cache = cache
}

// PoolStats exposes the key pool snapshot for observability endpoints.
func (a *Analyzer) PoolStats() gemini.PoolStats {
	return a.pool.Stats()
}

// RecentAnalyses returns the newest cached-analysis entries, empty without a
// cache.
func (a *Analyzer) RecentAnalyses(ctx context.Context, n int) []string {
	if a.cache == nil {
		return nil
	}
	return a.cache.Recent(ctx, n)
}

// InvalidateReport drops the cached report for owner/repo so the next request
// re-analyzes.
func (a *Analyzer) InvalidateReport(ctx context.Context, owner, repo string) {
	if a.cache != nil {
		a.cache.Invalidate(ctx, owner, repo)
	}
}

// AnalyzeRepo analyzes the repository at the given GitHub URL. A fetch
// failure (bad URL, 404, 403, network) aborts before any prompts are
// dispatched and surfaces directly. A failed batch is substituted with a
// complete fallback report labeled as such. progress may be nil; it is
// scoped to this run, so concurrent analyses report independently.
func (a *Analyzer) AnalyzeRepo(ctx context.Context, url string, progress ProgressFunc) (CompositeReport, error) {
	owner, repo, err := utils.ParseRepoURL(url)
	if err != nil {
		return CompositeReport{}, &github.FetchError{Owner: owner, Repo: repo, Err: err}
	}

	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, owner, repo); ok {
			a.logger.Info("Returning cached report for %s/%s", owner, repo)
			return cached, nil
		}
	}

	meta, err := a.fetcher.FetchRepoMeta(ctx, owner, repo)
	if err != nil {
		return CompositeReport{}, err
	}

	a.logger.Info("Analyzing %s: %d keys in pool, %d prompts", meta.FullName, a.pool.Size(), len(CoreDimensions)+1)

	tasks := BuildPrompts(meta, a.pool.Size())
	partial, err := a.dispatcher.Run(ctx, tasks, progress)
	if err != nil {
		a.logger.Warning("Dynamic analysis failed for %s/%s, substituting fallback report: %v", owner, repo, err)
		return a.fallbackReport(meta), nil
	}

	report := Aggregate(partial, meta)

	if a.cache != nil {
		if err := a.cache.Put(ctx, report); err != nil {
			a.logger.Debug("Report cache store failed: %v", err)
		}
	}

	a.logger.Success("Analysis of %s complete: %d/100 (%s)", meta.FullName, report.OverallScore, report.MaturityLevel)
	return report, nil
}

// fallbackReport builds a complete report from defaults only. It is clearly
// labeled so the UI can tell the user no live analysis backs it.
func (a *Analyzer) fallbackReport(meta github.RepoMeta) CompositeReport {
	report := Aggregate(PartialResults{}, meta)
	report.Fallback = true
	report.Summary = fmt.Sprintf("Automated analysis of %s could not be completed; this is a baseline report built from repository metadata only.", meta.FullName)
	return report
}

// ChatMessage is one turn of a report conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const chatHistoryLimit = 10

// ChatWithRepo answers a question about an analyzed repository with a
// single model call built from a serialized slice of the report plus the
// conversation history. Any model failure degrades to a canned reply
// referencing the report's own summary fields.
func (a *Analyzer) ChatWithRepo(ctx context.Context, history []ChatMessage, newMessage string, report CompositeReport) string {
	prompt := buildChatPrompt(history, newMessage, report)

	credential := a.pool.CurrentKey()
	text, err := a.invoker.Generate(ctx, prompt, credential)
	if err != nil {
		switch gemini.KindOf(err) {
		case gemini.ErrInvalidCredential, gemini.ErrQuotaExceeded:
			a.pool.MarkCurrentFailed()
			credential = a.pool.Advance()
			if text, err = a.invoker.Generate(ctx, prompt, credential); err == nil {
				return strings.TrimSpace(text)
			}
		}
		a.logger.Warning("Chat model call failed, using canned reply: %v", err)
		return cannedChatReply(report)
	}

	return strings.TrimSpace(text)
}

func buildChatPrompt(history []ChatMessage, newMessage string, report CompositeReport) string {
	var b strings.Builder

	b.WriteString("You are an assistant answering questions about a GitHub repository that was just analyzed.\n\n")
	fmt.Fprintf(&b, "Repository: %s\nOverall score: %d/100 (%s maturity)\n", report.Repository, report.OverallScore, report.MaturityLevel)

	fmt.Fprintf(&b, "Dimension scores:\n")
	for _, dim := range CoreDimensions {
		fmt.Fprintf(&b, "- %s: %d (%s)\n", dim, report.Dimensions[dim].Score, report.Dimensions[dim].Medal)
	}

	if len(report.RiskSnapshot) > 0 {
		fmt.Fprintf(&b, "Key risks: %s\n", strings.Join(report.RiskSnapshot, "; "))
	}
	if report.Summary != "" {
		fmt.Fprintf(&b, "Assessment summary: %s\n", report.Summary)
	}

	recent := history
	if len(recent) > chatHistoryLimit {
		recent = recent[len(recent)-chatHistoryLimit:]
	}
	if len(recent) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, msg := range recent {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	fmt.Fprintf(&b, "\nuser: %s\n\nAnswer concisely, grounded in the analysis above.", newMessage)
	return b.String()
}

func cannedChatReply(report CompositeReport) string {
	reply := fmt.Sprintf("I can't reach the analysis model right now. From the existing report: %s scored %d/100 (%s maturity).",
		report.Repository, report.OverallScore, report.MaturityLevel)
	if len(report.RiskSnapshot) > 0 {
		reply += fmt.Sprintf(" The most pressing risk identified was: %s.", report.RiskSnapshot[0])
	}
	return reply
}

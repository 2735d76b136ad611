package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/sabbir-lite-0/repolens/utils"
)

// RepoMeta is the fixed record shape the analysis core consumes. It is
// assembled from several GitHub REST calls; every field beyond the base
// repository record is best-effort.
type RepoMeta struct {
	Owner         string                 `json:"owner"`
	Name          string                 `json:"name"`
	FullName      string                 `json:"full_name"`
	Description   string                 `json:"description"`
	Stars         int                    `json:"stars"`
	Forks         int                    `json:"forks"`
	Size          int                    `json:"size"`
	OpenIssues    int                    `json:"open_issues"`
	DefaultBranch string                 `json:"default_branch"`
	License       string                 `json:"license"`
	CreatedAt     time.Time              `json:"created_at"`
	PushedAt      time.Time              `json:"pushed_at"`
	Languages     map[string]int         `json:"languages"`
	HasTests      bool                   `json:"has_tests"`
	HasCI         bool                   `json:"has_ci"`
	HasDockerfile bool                   `json:"has_dockerfile"`
	Readme        string                 `json:"readme,omitempty"`
	PackageJSON   map[string]interface{} `json:"package_json,omitempty"`
	Commits       int                    `json:"commits"`
	Contributors  int                    `json:"contributors"`
	Branches      int                    `json:"branches"`
}

// FetchError is the typed failure for an unreachable or nonexistent
// repository. It aborts an analysis run before any prompts are dispatched.
type FetchError struct {
	Owner      string
	Repo       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("github fetch %s/%s failed (status %d): %v", e.Owner, e.Repo, e.StatusCode, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFound reports whether the repository does not exist or is private.
func (e *FetchError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusForbidden
}

// Client fetches repository metadata. A token is optional; without one the
// unauthenticated rate limit applies.
type Client struct {
	gh      *gogithub.Client
	logger  *utils.Logger
	retries int
}

func NewClient(token string, timeout, retries int, logger *utils.Logger) *Client {
	httpClient := &http.Client{Timeout: time.Duration(timeout) * time.Second}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = time.Duration(timeout) * time.Second
	}

	return &Client{
		gh:      gogithub.NewClient(httpClient),
		logger:  logger,
		retries: retries,
	}
}

// FetchRepoMeta returns the metadata record for owner/repo. The base
// repository lookup is fatal; the sub-fetches (languages, readme, counts,
// marker files) run in parallel and degrade to zero values on failure.
func (c *Client) FetchRepoMeta(ctx context.Context, owner, repo string) (RepoMeta, error) {
	repository, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return RepoMeta{}, newFetchError(owner, repo, resp, err)
	}

	meta := RepoMeta{
		Owner:         owner,
		Name:          repository.GetName(),
		FullName:      repository.GetFullName(),
		Description:   repository.GetDescription(),
		Stars:         repository.GetStargazersCount(),
		Forks:         repository.GetForksCount(),
		Size:          repository.GetSize(),
		OpenIssues:    repository.GetOpenIssuesCount(),
		DefaultBranch: repository.GetDefaultBranch(),
		License:       repository.GetLicense().GetSPDXID(),
		CreatedAt:     repository.GetCreatedAt().Time,
		PushedAt:      repository.GetPushedAt().Time,
		Languages:     map[string]int{},
	}

	pool := utils.NewWorkerPool(4, c.retries, 500*time.Millisecond)

	pool.Submit(func() error {
		languages, _, err := c.gh.Repositories.ListLanguages(ctx, owner, repo)
		if err != nil {
			return fmt.Errorf("languages: %w", err)
		}
		meta.Languages = languages
		return nil
	})

	pool.Submit(func() error {
		readme, _, err := c.gh.Repositories.GetReadme(ctx, owner, repo, nil)
		if err != nil {
			return fmt.Errorf("readme: %w", err)
		}
		text, err := readme.GetContent()
		if err != nil {
			return fmt.Errorf("readme decode: %w", err)
		}
		meta.Readme = text
		return nil
	})

	pool.Submit(func() error {
		_, rootEntries, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, "", nil)
		if err != nil {
			return fmt.Errorf("root contents: %w", err)
		}
		for _, entry := range rootEntries {
			name := strings.ToLower(entry.GetName())
			switch {
			case name == "dockerfile" || name == "docker-compose.yml" || name == "docker-compose.yaml":
				meta.HasDockerfile = true
			case entry.GetType() == "dir" && (strings.Contains(name, "test") || strings.Contains(name, "spec") || name == "__tests__"):
				meta.HasTests = true
			case name == "package.json":
				c.loadPackageJSON(ctx, owner, repo, &meta)
			}
		}
		return nil
	})

	pool.Submit(func() error {
		_, workflows, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, ".github/workflows", nil)
		if err != nil {
			// No workflows directory is the common case, not a failure.
			return nil
		}
		meta.HasCI = len(workflows) > 0
		return nil
	})

	pool.Submit(func() error {
		commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, &gogithub.CommitsListOptions{
			ListOptions: gogithub.ListOptions{PerPage: 1},
		})
		if err != nil {
			return fmt.Errorf("commits: %w", err)
		}
		meta.Commits = pagedCount(resp, len(commits))
		return nil
	})

	pool.Submit(func() error {
		contributors, resp, err := c.gh.Repositories.ListContributors(ctx, owner, repo, &gogithub.ListContributorsOptions{
			ListOptions: gogithub.ListOptions{PerPage: 1},
		})
		if err != nil {
			return fmt.Errorf("contributors: %w", err)
		}
		meta.Contributors = pagedCount(resp, len(contributors))
		return nil
	})

	pool.Submit(func() error {
		branches, resp, err := c.gh.Repositories.ListBranches(ctx, owner, repo, &gogithub.BranchListOptions{
			ListOptions: gogithub.ListOptions{PerPage: 1},
		})
		if err != nil {
			return fmt.Errorf("branches: %w", err)
		}
		meta.Branches = pagedCount(resp, len(branches))
		return nil
	})

	pool.Wait()
	for _, err := range pool.Errors() {
		c.logger.Debug("Metadata sub-fetch for %s/%s: %v", owner, repo, err)
	}

	// package.json test script counts as test signal for JS repos.
	if !meta.HasTests && meta.PackageJSON != nil {
		if scripts, ok := meta.PackageJSON["scripts"].(map[string]interface{}); ok {
			if _, ok := scripts["test"]; ok {
				meta.HasTests = true
			}
		}
	}

	return meta, nil
}

func (c *Client) loadPackageJSON(ctx context.Context, owner, repo string, meta *RepoMeta) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, "package.json", nil)
	if err != nil || file == nil {
		return
	}
	raw, err := file.GetContent()
	if err != nil {
		return
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.logger.Debug("Unparseable package.json in %s/%s: %v", owner, repo, err)
		return
	}
	meta.PackageJSON = parsed
}

// pagedCount derives a total count from the Link header of a per_page=1
// request. Single-page results have no last page; the item count is the
// total.
func pagedCount(resp *gogithub.Response, fetched int) int {
	if resp != nil && resp.LastPage > 0 {
		return resp.LastPage
	}
	return fetched
}

func newFetchError(owner, repo string, resp *gogithub.Response, err error) *FetchError {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	return &FetchError{Owner: owner, Repo: repo, StatusCode: status, Err: err}
}

// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/kraklabs/cratescan/pkg/pipeline"
)

// maxSearchResults is the GitHub search API cap on reachable results.
const maxSearchResults = 1000

// GitHubConfig configures the repository search.
type GitHubConfig struct {
	// Token authenticates requests. Empty means anonymous access, which is
	// heavily rate limited.
	Token string

	// Query is the search query. Default: "language:rust".
	Query string

	// RepoCount is how many repositories to collect. Default: 100.
	RepoCount int

	// PerPage is the page size. Default and maximum: 100.
	PerPage int

	// RequestsPerSecond paces search requests. Default: 0.5 (the search
	// API allows 30 authenticated requests per minute).
	RequestsPerSecond float64

	// BaseURL overrides the API endpoint (GitHub Enterprise or tests).
	BaseURL string

	Retry  *RetryConfig
	Logger *slog.Logger
}

func (c *GitHubConfig) applyDefaults() {
	if c.Query == "" {
		c.Query = "language:rust"
	}
	if c.RepoCount <= 0 {
		c.RepoCount = 100
	}
	if c.RepoCount > maxSearchResults {
		c.RepoCount = maxSearchResults
	}
	if c.PerPage <= 0 || c.PerPage > 100 {
		c.PerPage = 100
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 0.5
	}
	if c.Retry == nil {
		c.Retry = DefaultRetryConfig()
	}
	c.Retry.ApplyDefaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// GitHub lists the most starred repositories matching a query.
type GitHub struct {
	client  *github.Client
	limiter *rate.Limiter
	cfg     GitHubConfig
}

// NewGitHub creates a GitHub search client.
func NewGitHub(ctx context.Context, cfg GitHubConfig) (*GitHub, error) {
	cfg.applyDefaults()

	var httpClient *http.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := github.NewClient(httpClient)

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHub{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:     cfg,
	}, nil
}

// TopRepositories returns up to RepoCount repositories sorted by stars,
// most starred first. Forks and archived repositories are kept; duplicates
// across pages are dropped.
func (g *GitHub) TopRepositories(ctx context.Context) ([]pipeline.RepoRef, error) {
	repos := make([]pipeline.RepoRef, 0, g.cfg.RepoCount)
	seen := make(map[string]bool, g.cfg.RepoCount)

	opts := &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{Page: 1, PerPage: g.cfg.PerPage},
	}

	for len(repos) < g.cfg.RepoCount {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}

		var result *github.RepositoriesSearchResult
		resp, err := retryGitHubOperation(ctx, g.cfg.Retry, g.cfg.Logger, func() (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)
			result, resp, err = g.client.Search.Repositories(ctx, g.cfg.Query, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("search repositories (page %d): %w", opts.Page, err)
		}

		for _, r := range result.Repositories {
			name := r.GetFullName()
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			repos = append(repos, pipeline.RepoRef{
				FullName: name,
				CloneURL: r.GetCloneURL(),
				Stars:    r.GetStargazersCount(),
			})
			if len(repos) == g.cfg.RepoCount {
				break
			}
		}

		g.cfg.Logger.Debug("github.search.page",
			"page", opts.Page,
			"received", len(result.Repositories),
			"total", len(repos),
		)

		if resp == nil || resp.NextPage == 0 || len(result.Repositories) == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	g.cfg.Logger.Info("github.search.complete", "query", g.cfg.Query, "repos", len(repos))
	return repos, nil
}

// RetryConfig configures retry behavior for GitHub API calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts. Default: 3
	MaxRetries int

	// InitialBackoff is the first backoff duration. Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff. Default: 30 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff between attempts. Default: 2
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	defaults := DefaultRetryConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

// retryGitHubOperation retries operation with exponential backoff, waiting
// for the rate limit reset when GitHub reports one.
func retryGitHubOperation(ctx context.Context, cfg *RetryConfig, logger *slog.Logger, operation func() (*github.Response, error)) (*github.Response, error) {
	var (
		lastErr  error
		lastResp *github.Response
	)
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := operation()
		if err == nil {
			if attempt > 0 {
				logger.Info("github.retry.recovered", "attempts", attempt)
			}
			return resp, nil
		}
		lastErr, lastResp = err, resp

		if !isRetryableError(err, resp) {
			return resp, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		if isRateLimitError(resp) {
			backoff = rateLimitBackoff(resp, cfg.MaxBackoff)
		}
		logger.Warn("github.retry",
			"attempt", attempt+1,
			"max_attempts", cfg.MaxRetries+1,
			"status", statusCode(resp),
			"backoff", backoff,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return lastResp, fmt.Errorf("github api failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// isRetryableError reports whether a GitHub API error is transient.
func isRetryableError(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}
	if resp == nil || resp.Response == nil {
		// Network error, timeout, reset connection
		return true
	}

	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return true
	case code == http.StatusForbidden:
		// Secondary rate limits come back as 403 with rate headers
		return resp.Rate.Limit > 0 && resp.Rate.Remaining == 0
	case code >= 500 && code < 600:
		return true
	default:
		return false
	}
}

func isRateLimitError(resp *github.Response) bool {
	if resp == nil || resp.Response == nil {
		return false
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Rate.Limit > 0
}

// rateLimitBackoff waits until the advertised reset, capped at maxBackoff.
func rateLimitBackoff(resp *github.Response, maxBackoff time.Duration) time.Duration {
	if resp.Rate.Reset.Time.IsZero() {
		return maxBackoff
	}
	backoff := time.Until(resp.Rate.Reset.Time) + time.Second
	if backoff < time.Second {
		backoff = time.Second
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func statusCode(resp *github.Response) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	return 0
}

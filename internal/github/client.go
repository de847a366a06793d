// internal/github/client.go
package github

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// maxPerPage is the GitHub API's own page-size ceiling.
const maxPerPage = 100

// Client is a wrapper around the go-github client. It makes exactly one
// attempt per call and translates failures into the typed errors in this
// package; retry policy belongs to the caller.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance. The token is
// optional: without one requests are unauthenticated and run against the
// lower anonymous quota. baseURL overrides the API endpoint (used in tests);
// pass "" for api.github.com.
func NewClient(token, baseURL string, logger *slog.Logger) (*Client, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	gh := github.NewClient(httpClient)
	if baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, err
		}
	}

	return &Client{gh: gh, logger: logger}, nil
}

// FetchRepository fetches a single repository record.
func (c *Client) FetchRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, c.classify(err, owner, name)
	}
	return repo, nil
}

// FetchCommitPage fetches one page of commits. perPage is clamped to the
// API's ceiling; page numbering starts at 1. An empty result means the
// repository has no more history past this page.
func (c *Client) FetchCommitPage(ctx context.Context, owner, name string, perPage, page int) ([]*github.RepositoryCommit, error) {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page < 1 {
		page = 1
	}

	c.logger.Debug("Fetching commits page", "owner", owner, "repo", name, "page", page, "per_page", perPage)

	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: perPage, Page: page},
	}
	commits, _, err := c.gh.Repositories.ListCommits(ctx, owner, name, opts)
	if err != nil {
		return nil, c.classify(err, owner, name)
	}
	return commits, nil
}

// classify maps go-github errors onto this package's taxonomy. go-github
// reports a RateLimitError only for a 403/429 whose X-RateLimit-Remaining is
// zero; a 403 with quota left falls through to TransportError.
func (c *Client) classify(err error, owner, name string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		c.logger.Warn("GitHub rate limit exhausted",
			"owner", owner, "repo", name,
			"remaining", rateErr.Rate.Remaining, "reset", rateErr.Rate.Reset.Time)
		return &RateLimitedError{
			Remaining: rateErr.Rate.Remaining,
			Reset:     rateErr.Rate.Reset.Time,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		reset := time.Now()
		if abuseErr.RetryAfter != nil {
			reset = reset.Add(*abuseErr.RetryAfter)
		}
		return &RateLimitedError{Remaining: 0, Reset: reset}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		status := 0
		if respErr.Response != nil {
			status = respErr.Response.StatusCode
		}
		if status == http.StatusNotFound {
			return &NotFoundError{FullName: owner + "/" + name}
		}
		return &TransportError{StatusCode: status, Body: respErr.Message}
	}

	return &TransportError{Body: err.Error()}
}

package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

const (
	perPageLimit  = 100  // GitHub API per_page limit
	maxSearchHits = 1000 // search API never returns more than this
)

type login struct {
	Login string `json:"login"`
}

// PullRequest fetches a single pull request.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, prNumber int) (*types.PullRequest, error) {
	slog.Debug("Fetching PR", "component", "api", "owner", owner, "repo", repo, "pr", prNumber)

	var prData struct {
		UpdatedAt          time.Time `json:"updated_at"`
		Title              string    `json:"title"`
		State              string    `json:"state"`
		User               login     `json:"user"`
		RequestedReviewers []login   `json:"requested_reviewers"`
		Number             int       `json:"number"`
		Draft              bool      `json:"draft"`
	}
	if err := c.getJSON(ctx, c.endpoint("/repos/%s/%s/pulls/%d", owner, repo, prNumber), &prData); err != nil {
		return nil, fmt.Errorf("failed to get PR %s/%s#%d: %w", owner, repo, prNumber, err)
	}

	reviewers := make([]string, 0, len(prData.RequestedReviewers))
	for _, r := range prData.RequestedReviewers {
		reviewers = append(reviewers, r.Login)
	}

	return &types.PullRequest{
		UpdatedAt:  prData.UpdatedAt,
		Title:      prData.Title,
		State:      prData.State,
		Author:     prData.User.Login,
		Repository: repo,
		Owner:      owner,
		Reviewers:  reviewers,
		Number:     prData.Number,
		Draft:      prData.Draft,
	}, nil
}

// ReviewAuthors returns the users who submitted reviews on a PR, in first-review
// order without duplicates. Pending review requests are on PullRequest.Reviewers.
func (c *Client) ReviewAuthors(ctx context.Context, owner, repo string, prNumber int) ([]string, error) {
	var authors []string
	for page := 1; ; page++ {
		var reviews []struct {
			User login `json:"user"`
		}
		apiURL := c.endpoint("/repos/%s/%s/pulls/%d/reviews?per_page=%d&page=%d", owner, repo, prNumber, perPageLimit, page)
		if err := c.getJSON(ctx, apiURL, &reviews); err != nil {
			return nil, fmt.Errorf("failed to get reviews: %w", err)
		}
		for _, r := range reviews {
			if r.User.Login != "" && !slices.Contains(authors, r.User.Login) {
				authors = append(authors, r.User.Login)
			}
		}
		if len(reviews) < perPageLimit {
			break
		}
	}

	slog.Debug("Found review authors", "component", "api", "owner", owner, "repo", repo, "pr", prNumber, "authors", authors)
	return authors, nil
}

// AddReviewers requests reviews from the given users.
func (c *Client) AddReviewers(ctx context.Context, owner, repo string, prNumber int, reviewers []string) error {
	if len(reviewers) == 0 {
		return nil
	}
	slog.Info("Requesting reviewers", "component", "api", "owner", owner, "repo", repo, "pr", prNumber, "reviewers", reviewers)

	apiURL := c.endpoint("/repos/%s/%s/pulls/%d/requested_reviewers", owner, repo, prNumber)
	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, map[string][]string{"reviewers": reviewers}, "")
	if err != nil {
		return fmt.Errorf("failed to add reviewers: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if err := checkStatus(resp, http.StatusCreated); err != nil {
		return fmt.Errorf("failed to add reviewers to %s/%s#%d: %w", owner, repo, prNumber, err)
	}
	return nil
}

// FileContent returns the raw contents of path on the repository's default branch.
// A missing file yields ErrNotFound.
func (c *Client) FileContent(ctx context.Context, owner, repo, path string) ([]byte, error) {
	apiURL := c.endpoint("/repos/%s/%s/contents/%s", owner, repo, escapeContentPath(path))

	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil, "application/vnd.github.raw+json")
	if err != nil {
		return nil, err
	}
	defer drainAndCloseBody(resp.Body)

	if err := checkStatus(resp, http.StatusOK); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get %s from %s/%s: %w", path, owner, repo, err)
	}

	data, err := readLimited(resp.Body, maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// SearchOpenPRs lists open, non-draft pull requests owned by account.
func (c *Client) SearchOpenPRs(ctx context.Context, account string) ([]types.PRRef, error) {
	qualifier := "org"
	if c.IsUserAccount(account) {
		qualifier = "user"
	}
	query := fmt.Sprintf("is:pr is:open draft:false %s:%s", qualifier, account)
	slog.Debug("Searching open PRs", "component", "api", "query", query)

	var refs []types.PRRef
	for page := 1; ; page++ {
		var result struct {
			Items []struct {
				RepositoryURL string `json:"repository_url"`
				Number        int    `json:"number"`
			} `json:"items"`
			TotalCount int `json:"total_count"`
		}
		apiURL := c.endpoint("/search/issues?q=%s&per_page=%d&page=%d", url.QueryEscape(query), perPageLimit, page)
		if err := c.getJSON(ctx, apiURL, &result); err != nil {
			return nil, fmt.Errorf("search failed for %s: %w", account, err)
		}

		for _, item := range result.Items {
			owner, repo, ok := repoFromAPIURL(item.RepositoryURL)
			if !ok {
				slog.Warn("Skipping search hit with unexpected repository URL", "component", "api", "url", item.RepositoryURL)
				continue
			}
			refs = append(refs, types.PRRef{Owner: owner, Repo: repo, Number: item.Number})
		}

		if len(result.Items) < perPageLimit || page*perPageLimit >= min(result.TotalCount, maxSearchHits) {
			break
		}
	}

	slog.Info("Found open PRs", "component", "api", "account", account, "count", len(refs))
	return refs, nil
}

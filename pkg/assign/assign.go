// Package assign ties the GitHub client, the repository config and the selection
// engine together: it decides whether a pull request should get reviewers, picks
// them, and requests the reviews.
package assign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/config"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/selection"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

// Skip reasons reported in Outcome.Skipped.
const (
	SkipClosed          = "pull request is not open"
	SkipDraft           = "pull request is a draft"
	SkipRecentlyUpdated = "pull request was updated too recently"
)

// PRClient is the part of the GitHub client the assigner uses.
type PRClient interface {
	PullRequest(ctx context.Context, owner, repo string, prNumber int) (*types.PullRequest, error)
	ReviewAuthors(ctx context.Context, owner, repo string, prNumber int) ([]string, error)
	AddReviewers(ctx context.Context, owner, repo string, prNumber int, reviewers []string) error
}

// Options controls how reviewers are applied.
type Options struct {
	// MinAge delays assignment until the PR has been quiet for this long.
	MinAge time.Duration
	DryRun bool
}

// Outcome describes what happened to one pull request.
type Outcome struct {
	PR       *types.PullRequest `json:"pull_request,omitempty"`
	Skipped  string             `json:"skipped,omitempty"`
	Existing []string           `json:"existing_reviewers"`
	Result   selection.Result   `json:"result"`
	Applied  bool               `json:"applied"`
	DryRun   bool               `json:"dry_run"`
}

// Shortfalls returns the steps that picked fewer reviewers than they still needed.
func (o *Outcome) Shortfalls() []selection.Step {
	var short []selection.Step
	for _, s := range o.Result.Process {
		if s.Short() {
			short = append(short, s)
		}
	}
	return short
}

// Assigner assigns reviewers to pull requests.
type Assigner struct {
	client PRClient
	engine *selection.Engine
	now    func() time.Time
	opts   Options
}

// New creates an Assigner. A nil engine uses a randomly seeded one.
func New(client PRClient, engine *selection.Engine, opts Options) *Assigner {
	if engine == nil {
		engine = selection.New(nil)
	}
	return &Assigner{client: client, engine: engine, now: time.Now, opts: opts}
}

// Assign fetches the pull request, selects reviewers according to cfg and
// requests reviews from them. Existing reviewers are the pending review requests
// followed by review authors. Failing to list reviews is not fatal: selection
// proceeds with the pending requests alone.
func (a *Assigner) Assign(ctx context.Context, ref types.PRRef, cfg *config.Config) (*Outcome, error) {
	pr, err := a.client.PullRequest(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	out := &Outcome{PR: pr, Existing: []string{}, DryRun: a.opts.DryRun}

	if reason := a.skipReason(pr, cfg); reason != "" {
		slog.Info("Skipping PR", "component", "assign", "pr", ref.String(), "reason", reason)
		out.Skipped = reason
		return out, nil
	}

	authors, err := a.client.ReviewAuthors(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		slog.Warn("Failed to fetch reviews (continuing with pending requests only)", "component", "assign", "pr", ref.String(), "error", err)
		authors = nil
	}
	existing := existingReviewers(pr.Author, pr.Reviewers, authors)
	out.Existing = existing

	out.Result = a.engine.Select(pr.Author, existing, cfg.Selection())
	slog.Info("Selected reviewers", "component", "assign", "pr", ref.String(), "author", pr.Author,
		"rule", out.Result.AppliedRule.Describe(), "existing", existing, "selected", out.Result.SelectedReviewers)
	for _, s := range out.Shortfalls() {
		slog.Warn("Not enough candidates for requirement", "component", "assign", "pr", ref.String(),
			"token", s.Token, "needed", s.CountStillNeeded, "picked", len(s.Picked))
	}

	if len(out.Result.SelectedReviewers) == 0 {
		return out, nil
	}
	if a.opts.DryRun {
		slog.Info("Would assign reviewers (dry-run)", "component", "assign", "pr", ref.String(), "reviewers", out.Result.SelectedReviewers)
		return out, nil
	}

	if err := a.client.AddReviewers(ctx, ref.Owner, ref.Repo, ref.Number, out.Result.SelectedReviewers); err != nil {
		return out, fmt.Errorf("failed to assign reviewers to %s: %w", ref, err)
	}
	out.Applied = true
	slog.Info("Assigned reviewers", "component", "assign", "pr", ref.String(), "reviewers", out.Result.SelectedReviewers)
	return out, nil
}

// Simulate runs selection for a hypothetical author without touching GitHub.
func (a *Assigner) Simulate(author string, existing []string, cfg *config.Config) *Outcome {
	if existing == nil {
		existing = []string{}
	}
	return &Outcome{
		Existing: existing,
		Result:   a.engine.Select(author, existing, cfg.Selection()),
		DryRun:   true,
	}
}

// existingReviewers joins the reviewer lists in order, dropping the author and duplicates.
func existingReviewers(author string, lists ...[]string) []string {
	existing := []string{}
	seen := map[string]bool{author: true, "": true}
	for _, list := range lists {
		for _, name := range list {
			if seen[name] {
				continue
			}
			seen[name] = true
			existing = append(existing, name)
		}
	}
	return existing
}

func (a *Assigner) skipReason(pr *types.PullRequest, cfg *config.Config) string {
	if pr.State != "" && pr.State != "open" {
		return SkipClosed
	}
	if pr.Draft && cfg.SkipDrafts() {
		return SkipDraft
	}
	if a.opts.MinAge > 0 && !pr.UpdatedAt.IsZero() && a.now().Sub(pr.UpdatedAt) < a.opts.MinAge {
		return SkipRecentlyUpdated
	}
	return ""
}

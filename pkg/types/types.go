// Package types contains shared data structures used across the reviewer system.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import (
	"fmt"
	"time"
)

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	UpdatedAt  time.Time
	Title      string
	State      string
	Author     string
	Repository string
	Owner      string
	Reviewers  []string // requested reviewers (users only)
	Number     int
	Draft      bool
}

// Ref returns the PR's owner/repo#number reference.
func (pr *PullRequest) Ref() PRRef {
	return PRRef{Owner: pr.Owner, Repo: pr.Repository, Number: pr.Number}
}

// PRRef identifies a pull request.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// String returns the owner/repo#number shorthand.
func (r PRRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

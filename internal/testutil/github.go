// Package testutil provides mock implementations and testing utilities for the group-reviewers project.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/github"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

// MockGitHubClient is a programmable stand-in for the per-org GitHub client.
// Unconfigured pull requests and files answer github.ErrNotFound.
type MockGitHubClient struct {
	pullRequests      map[string]*types.PullRequest
	reviewAuthors     map[string][]string
	files             map[string][]byte
	searchResults     map[string][]types.PRRef
	errors            map[string]error
	addReviewersCalls []AddReviewersCall
	fileReads         int
	mu                sync.RWMutex
}

// AddReviewersCall records a call to AddReviewers.
type AddReviewersCall struct {
	Owner     string
	Repo      string
	Reviewers []string
	PRNumber  int
}

// NewMockGitHubClient creates a new MockGitHubClient.
func NewMockGitHubClient() *MockGitHubClient {
	return &MockGitHubClient{
		pullRequests:  make(map[string]*types.PullRequest),
		reviewAuthors: make(map[string][]string),
		files:         make(map[string][]byte),
		searchResults: make(map[string][]types.PRRef),
		errors:        make(map[string]error),
	}
}

func prKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s/%d", owner, repo, number)
}

// PullRequest returns a configured pull request.
func (m *MockGitHubClient) PullRequest(_ context.Context, owner, repo string, number int) (*types.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := prKey(owner, repo, number)
	if err := m.errors["PullRequest:"+key]; err != nil {
		return nil, err
	}
	pr, ok := m.pullRequests[key]
	if !ok {
		return nil, fmt.Errorf("PR %s: %w", key, github.ErrNotFound)
	}
	return pr, nil
}

// ReviewAuthors returns the configured review authors for a PR.
func (m *MockGitHubClient) ReviewAuthors(_ context.Context, owner, repo string, number int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := prKey(owner, repo, number)
	if err := m.errors["ReviewAuthors:"+key]; err != nil {
		return nil, err
	}
	return m.reviewAuthors[key], nil
}

// AddReviewers records the call.
func (m *MockGitHubClient) AddReviewers(_ context.Context, owner, repo string, number int, reviewers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["AddReviewers:"+prKey(owner, repo, number)]; err != nil {
		return err
	}
	m.addReviewersCalls = append(m.addReviewersCalls, AddReviewersCall{
		Owner:     owner,
		Repo:      repo,
		PRNumber:  number,
		Reviewers: append([]string(nil), reviewers...),
	})
	return nil
}

// FileContent returns a configured repository file.
func (m *MockGitHubClient) FileContent(_ context.Context, owner, repo, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileReads++
	key := owner + "/" + repo + "/" + path
	if err := m.errors["FileContent:"+owner+"/"+repo]; err != nil {
		return nil, err
	}
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, github.ErrNotFound)
	}
	return data, nil
}

// SearchOpenPRs returns the configured search results for an account.
func (m *MockGitHubClient) SearchOpenPRs(_ context.Context, account string) ([]types.PRRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.errors["SearchOpenPRs:"+account]; err != nil {
		return nil, err
	}
	return m.searchResults[account], nil
}

// SetPullRequest configures a pull request and adds it to its owner's search results.
func (m *MockGitHubClient) SetPullRequest(pr *types.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullRequests[prKey(pr.Owner, pr.Repository, pr.Number)] = pr
	m.searchResults[pr.Owner] = append(m.searchResults[pr.Owner], pr.Ref())
}

// SetReviewAuthors configures the users who already reviewed a PR.
func (m *MockGitHubClient) SetReviewAuthors(owner, repo string, number int, authors []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewAuthors[prKey(owner, repo, number)] = authors
}

// SetFile configures the content of a repository file.
func (m *MockGitHubClient) SetFile(owner, repo, path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[owner+"/"+repo+"/"+path] = []byte(content)
}

// SetError makes a method fail. Keys look like "PullRequest:owner/repo/1",
// "ReviewAuthors:owner/repo/1", "FileContent:owner/repo" or "SearchOpenPRs:org".
func (m *MockGitHubClient) SetError(methodWithParams string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[methodWithParams] = err
}

// AddReviewersCalls returns a copy of the recorded AddReviewers calls.
func (m *MockGitHubClient) AddReviewersCalls() []AddReviewersCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AddReviewersCall(nil), m.addReviewersCalls...)
}

// FileReads returns how many times FileContent was called.
func (m *MockGitHubClient) FileReads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fileReads
}

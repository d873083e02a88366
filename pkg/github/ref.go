package github

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

// maxFileSize caps how much of a repository file we are willing to read.
const maxFileSize = 1 << 20

// ParsePRURL parses a pull request reference. Accepted forms:
//
//	https://github.com/owner/repo/pull/123
//	owner/repo#123
func ParsePRURL(s string) (types.PRRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.PRRef{}, errors.New("empty pull request reference")
	}
	if !strings.Contains(s, "://") && strings.Contains(s, "/pull/") {
		s = "https://" + s
	}

	if owner, rest, ok := strings.Cut(s, "/"); ok && !strings.Contains(s, "://") {
		repo, num, ok := strings.Cut(rest, "#")
		if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
			return types.PRRef{}, fmt.Errorf("invalid pull request reference %q: want owner/repo#number", s)
		}
		n, err := parsePRNumber(num)
		if err != nil {
			return types.PRRef{}, fmt.Errorf("invalid pull request reference %q: %w", s, err)
		}
		return types.PRRef{Owner: owner, Repo: repo, Number: n}, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return types.PRRef{}, fmt.Errorf("invalid pull request URL %q: %w", s, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull" || parts[0] == "" || parts[1] == "" {
		return types.PRRef{}, fmt.Errorf("invalid pull request URL %q: want https://host/owner/repo/pull/number", s)
	}
	n, err := parsePRNumber(parts[3])
	if err != nil {
		return types.PRRef{}, fmt.Errorf("invalid pull request URL %q: %w", s, err)
	}
	return types.PRRef{Owner: parts[0], Repo: parts[1], Number: n}, nil
}

func parsePRNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("pull request number %q is not numeric", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("pull request number must be positive, got %d", n)
	}
	return n, nil
}

// repoFromAPIURL extracts owner and repo from an API repository URL such as
// https://api.github.com/repos/owner/repo.
func repoFromAPIURL(raw string) (owner, repo string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	_, rest, found := strings.Cut(u.Path, "/repos/")
	if !found {
		return "", "", false
	}
	owner, repo, found = strings.Cut(strings.Trim(rest, "/"), "/")
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

// escapeContentPath escapes each segment of a repository path, keeping the separators.
func escapeContentPath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return data, nil
}

package gh

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StarPageSize is the fixed page size for stargazer pagination.
const StarPageSize = 100

// Client is the upstream boundary the engine fans out against. A fake
// implementation stands in for GitHub in tests; HTTPClient talks to the real
// API.
type Client interface {
	// SearchPullRequests returns all PRs authored by username whose last
	// activity falls in [since, until], newest activity first. Pagination of
	// the primary listing is handled inside the implementation.
	SearchPullRequests(ctx context.Context, username string, since, until time.Time) ([]PullRequest, error)

	// PullRequestFiles fetches per-file statistics for one PR.
	PullRequestFiles(ctx context.Context, owner, repo string, number int) (*FileStats, error)

	// GetRepository fetches repository metadata.
	GetRepository(ctx context.Context, owner, repo string) (*Repository, error)

	// Stargazers fetches one page of stargazer events ordered newest-first.
	// An empty cursor requests the first page.
	Stargazers(ctx context.Context, owner, repo string, pageSize int, cursor string) (*StarPage, error)
}

// SplitRepo splits an "owner/name" full name. Returns false when the name
// does not have exactly two non-empty halves.
func SplitRepo(fullName string) (owner, name string, ok bool) {
	owner, name, found := strings.Cut(fullName, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}

// SearchQuery builds the issue-search query string for a user's PRs.
// Filtering on updated (last activity) rather than created catches PRs opened
// earlier but merged inside the window.
func SearchQuery(username string, since, until time.Time) string {
	return fmt.Sprintf("is:pr author:%s updated:%s..%s",
		username, since.Format("2006-01-02"), until.Format("2006-01-02"))
}

package gh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the GitHub REST API root.
const DefaultBaseURL = "https://api.github.com"

// DefaultGraphQLURL is the GitHub GraphQL endpoint.
const DefaultGraphQLURL = "https://api.github.com/graphql"

// DefaultRequestTimeout is the per-request timeout.
const DefaultRequestTimeout = 30 * time.Second

const searchPageSize = 100

// HTTPConfig configures the GitHub HTTP client.
type HTTPConfig struct {
	// Token is a personal access token or OAuth token (required).
	Token string
	// BaseURL overrides the REST API root (for test servers).
	BaseURL string
	// GraphQLURL overrides the GraphQL endpoint (for test servers).
	GraphQLURL string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
}

// HTTPClient talks to the GitHub REST and GraphQL APIs.
// Transport-level failures and non-2xx statuses surface as *APIError so the
// pipelines can classify them without inspecting HTTP details.
type HTTPClient struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPClient creates a GitHub client from the given config.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github client requires a token")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = DefaultGraphQLURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	return &HTTPClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// searchItem is the wire shape of one issue-search result.
type searchItem struct {
	Number        int    `json:"number"`
	Title         string `json:"title"`
	State         string `json:"state"`
	HTMLURL       string `json:"html_url"`
	RepositoryURL string `json:"repository_url"`
	RawCreatedAt  string `json:"created_at"`
	RawClosedAt   string `json:"closed_at"`
	User          struct {
		Login string `json:"login"`
	} `json:"user"`
	AuthorAssociation string `json:"author_association"`
	PullRequest       *struct {
		MergedAt *time.Time `json:"merged_at"`
	} `json:"pull_request"`
}

type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []searchItem `json:"items"`
}

// SearchPullRequests walks the issue-search pages for the user's PRs.
func (c *HTTPClient) SearchPullRequests(ctx context.Context, username string, since, until time.Time) ([]PullRequest, error) {
	query := SearchQuery(username, since, until)

	var prs []PullRequest
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("sort", "updated")
		params.Set("order", "desc")
		params.Set("per_page", strconv.Itoa(searchPageSize))
		params.Set("page", strconv.Itoa(page))

		var resp searchResponse
		if err := c.getJSON(ctx, "search", "/search/issues?"+params.Encode(), &resp); err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			pr, ok := toPullRequest(item)
			if !ok {
				continue
			}
			prs = append(prs, pr)
		}

		if len(resp.Items) < searchPageSize || len(prs) >= resp.TotalCount {
			break
		}
	}
	return prs, nil
}

// toPullRequest converts a search item, skipping plain issues and items too
// malformed to attribute to a repository.
func toPullRequest(item searchItem) (PullRequest, bool) {
	if item.PullRequest == nil {
		return PullRequest{}, false
	}

	repoFullName := repoFromURL(item.RepositoryURL, item.HTMLURL)
	if repoFullName == "" {
		return PullRequest{}, false
	}
	organization, _, _ := strings.Cut(repoFullName, "/")

	createdAt, err := time.Parse(time.RFC3339, item.RawCreatedAt)
	if err != nil {
		return PullRequest{}, false
	}
	var closedAt *time.Time
	if item.RawClosedAt != "" {
		if t, err := time.Parse(time.RFC3339, item.RawClosedAt); err == nil {
			closedAt = &t
		}
	}

	return PullRequest{
		Number:            item.Number,
		Title:             item.Title,
		Repository:        repoFullName,
		Organization:      organization,
		Author:            item.User.Login,
		State:             item.State,
		CreatedAt:         createdAt,
		ClosedAt:          closedAt,
		MergedAt:          item.PullRequest.MergedAt,
		URL:               item.HTMLURL,
		AuthorAssociation: item.AuthorAssociation,
	}, true
}

// repoFromURL extracts "owner/name" from the API repository URL, falling back
// to the HTML URL.
func repoFromURL(repositoryURL, htmlURL string) string {
	if repositoryURL != "" {
		parts := strings.Split(strings.TrimSuffix(repositoryURL, "/"), "/")
		if len(parts) >= 2 {
			return parts[len(parts)-2] + "/" + parts[len(parts)-1]
		}
	}
	parts := strings.Split(htmlURL, "/")
	if len(parts) >= 5 {
		return parts[3] + "/" + parts[4]
	}
	return ""
}

// prFile is the wire shape of one entry from the PR files listing.
type prFile struct {
	Filename  string `json:"filename"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// PullRequestFiles fetches and folds the PR file listing into a FileStats.
func (c *HTTPClient) PullRequestFiles(ctx context.Context, owner, repo string, number int) (*FileStats, error) {
	stats := &FileStats{}
	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=100&page=%d", owner, repo, number, page)

		var files []prFile
		if err := c.getJSON(ctx, "pr_files", path, &files); err != nil {
			return nil, err
		}

		for _, f := range files {
			stats.Filenames = append(stats.Filenames, f.Filename)
			stats.Additions += f.Additions
			stats.Deletions += f.Deletions
			stats.ChangedFiles++
		}

		if len(files) < 100 {
			break
		}
	}
	return stats, nil
}

// GetRepository fetches repository metadata.
func (c *HTTPClient) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	if err := c.getJSON(ctx, "repository", fmt.Sprintf("/repos/%s/%s", owner, repo), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

const stargazerQuery = `
query($owner: String!, $name: String!, $first: Int!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    stargazers(first: $first, after: $cursor, orderBy: {field: STARRED_AT, direction: DESC}) {
      pageInfo { endCursor hasNextPage }
      edges { starredAt }
    }
  }
}`

type stargazerResponse struct {
	Data struct {
		Repository *struct {
			Stargazers struct {
				PageInfo struct {
					EndCursor   string `json:"endCursor"`
					HasNextPage bool   `json:"hasNextPage"`
				} `json:"pageInfo"`
				Edges []struct {
					StarredAt time.Time `json:"starredAt"`
				} `json:"edges"`
			} `json:"stargazers"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Stargazers fetches one page of stargazer events via GraphQL, newest-first.
func (c *HTTPClient) Stargazers(ctx context.Context, owner, repo string, pageSize int, cursor string) (*StarPage, error) {
	if pageSize <= 0 || pageSize > StarPageSize {
		pageSize = StarPageSize
	}

	variables := map[string]any{"owner": owner, "name": repo, "first": pageSize}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	body, err := json.Marshal(map[string]any{"query": stargazerQuery, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("stargazers: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stargazers: build request: %w", err)
	}
	c.setHeaders(req)

	var resp stargazerResponse
	if err := c.do("stargazers", req, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Repository == nil {
		msg := "repository not found or inaccessible"
		if len(resp.Errors) > 0 {
			msg = resp.Errors[0].Message
		}
		return nil, &APIError{Kind: ErrNotFound, Op: "stargazers", Err: fmt.Errorf("%s", msg)}
	}

	sg := resp.Data.Repository.Stargazers
	page := &StarPage{
		NextCursor: sg.PageInfo.EndCursor,
		HasMore:    sg.PageInfo.HasNextPage,
	}
	for _, edge := range sg.Edges {
		page.Events = append(page.Events, StarEvent{StarredAt: edge.StarredAt})
	}
	return page, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, op, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	c.setHeaders(req)
	return c.do(op, req, dest)
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

func (c *HTTPClient) do(op string, req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return WrapTransportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		apiErr := NewStatusError(op, resp.StatusCode)
		// A 403 with the rate-limit budget exhausted is throttling, which is
		// transient, unlike a plain forbidden.
		if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
			apiErr.Kind = ErrRateLimited
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &APIError{Kind: ErrServer, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Verify HTTPClient implements the Client interface.
var _ Client = (*HTTPClient)(nil)

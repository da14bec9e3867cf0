package stars

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justapithecus/gitbrag/cache"
	"github.com/justapithecus/gitbrag/gh"
	"github.com/justapithecus/gitbrag/log"
	"github.com/justapithecus/gitbrag/retry"
)

// pagedClient serves a fixed newest-first event timeline in cursor pages.
type pagedClient struct {
	events       []gh.StarEvent // newest first
	repositories map[string]*gh.Repository
	pageRequests atomic.Int64
	repoRequests atomic.Int64
}

func (c *pagedClient) SearchPullRequests(ctx context.Context, username string, since, until time.Time) ([]gh.PullRequest, error) {
	return nil, nil
}

func (c *pagedClient) PullRequestFiles(ctx context.Context, owner, repo string, number int) (*gh.FileStats, error) {
	return nil, gh.NewStatusError("pull request files", 404)
}

func (c *pagedClient) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, error) {
	c.repoRequests.Add(1)
	if r, ok := c.repositories[owner+"/"+repo]; ok {
		return r, nil
	}
	return nil, gh.NewStatusError("get repository", 404)
}

func (c *pagedClient) Stargazers(ctx context.Context, owner, repo string, pageSize int, cursor string) (*gh.StarPage, error) {
	c.pageRequests.Add(1)

	start := 0
	if cursor != "" {
		var err error
		start, err = parseCursor(cursor)
		if err != nil {
			return nil, err
		}
	}

	end := min(start+pageSize, len(c.events))
	page := &gh.StarPage{Events: c.events[start:end]}
	if end < len(c.events) {
		page.HasMore = true
		page.NextCursor = formatCursor(end)
	}
	return page, nil
}

func parseCursor(cursor string) (int, error) {
	n := 0
	for _, r := range cursor {
		n = n*10 + int(r-'0')
	}
	return n, nil
}

func formatCursor(n int) string {
	if n == 0 {
		return "0"
	}
	out := []byte{}
	for n > 0 {
		out = append([]byte{byte('0' + n%10)}, out...)
		n /= 10
	}
	return string(out)
}

// eventsEvery builds n events newest-first, the newest at anchor and each
// subsequent event one step older.
func eventsEvery(anchor time.Time, n int, step time.Duration) []gh.StarEvent {
	events := make([]gh.StarEvent, n)
	for i := range events {
		events[i] = gh.StarEvent{StarredAt: anchor.Add(-time.Duration(i) * step)}
	}
	return events
}

func newTestAggregator(client gh.Client, store cache.Store) *Aggregator {
	policy := retry.DefaultPolicy()
	policy.InitialDelay = 100 * time.Microsecond
	return NewAggregator(client, store, Config{Retry: policy}, log.NewLogger().WithOutput(io.Discard))
}

func TestStarIncrease_EarlyTermination(t *testing.T) {
	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	since := until.Add(-199*time.Hour - 30*time.Minute)

	// 10,000 events one hour apart, newest at until. Exactly 200 of them
	// (indexes 0..199) fall inside [since, until]; index 200 onward is older.
	client := &pagedClient{events: eventsEvery(until, 10_000, time.Hour)}
	agg := newTestAggregator(client, cache.NewMemoryStore())

	got, err := agg.StarIncrease(context.Background(), "octo", "widgets", since, until)
	if err != nil {
		t.Fatalf("star increase: %v", err)
	}
	if got != 200 {
		t.Fatalf("increase = %d, want 200", got)
	}
	// Pages of 100: two full in-window pages plus the page holding the first
	// out-of-window event. Paging must stop there.
	if n := client.pageRequests.Load(); n != 3 {
		t.Fatalf("page requests = %d, want 3", n)
	}
}

func TestStarIncrease_SkipsEventsNewerThanUntil(t *testing.T) {
	anchor := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	until := anchor.Add(-50 * time.Hour)
	since := until.Add(-30 * time.Hour)

	client := &pagedClient{events: eventsEvery(anchor, 200, time.Hour)}
	agg := newTestAggregator(client, cache.NewMemoryStore())

	got, err := agg.StarIncrease(context.Background(), "octo", "widgets", since, until)
	if err != nil {
		t.Fatalf("star increase: %v", err)
	}
	// Indexes 50..80 inclusive fall inside the window.
	if got != 31 {
		t.Fatalf("increase = %d, want 31", got)
	}
}

func TestStarIncrease_CapSentinel(t *testing.T) {
	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	since := until.Add(-5000 * time.Hour)

	client := &pagedClient{events: eventsEvery(until, 3000, time.Hour)}
	agg := newTestAggregator(client, cache.NewMemoryStore())

	got, err := agg.StarIncrease(context.Background(), "octo", "widgets", since, until)
	if err != nil {
		t.Fatalf("star increase: %v", err)
	}
	if got != Capped {
		t.Fatalf("increase = %d, want capped sentinel %d", got, Capped)
	}
	// Counting stops right past the cap: 11 pages cover 1001 events.
	if n := client.pageRequests.Load(); n != 11 {
		t.Fatalf("page requests = %d, want 11", n)
	}
}

func TestStarIncrease_AllTimeShortcut(t *testing.T) {
	client := &pagedClient{
		events: eventsEvery(time.Now().UTC(), 500, time.Hour),
		repositories: map[string]*gh.Repository{
			"octo/widgets": {FullName: "octo/widgets", Stargazers: 4321},
		},
	}
	agg := newTestAggregator(client, cache.NewMemoryStore())

	since := time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := agg.StarIncrease(context.Background(), "octo", "widgets", since, time.Now().UTC())
	if err != nil {
		t.Fatalf("star increase: %v", err)
	}
	if got != 4321 {
		t.Fatalf("increase = %d, want stargazer total 4321", got)
	}
	if n := client.pageRequests.Load(); n != 0 {
		t.Fatalf("page requests = %d, want 0 for all-time window", n)
	}
}

func TestStarIncrease_CachedResult(t *testing.T) {
	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	since := until.Add(-10 * time.Hour)

	client := &pagedClient{events: eventsEvery(until, 50, time.Hour)}
	store := cache.NewMemoryStore()
	agg := newTestAggregator(client, store)

	first, err := agg.StarIncrease(context.Background(), "octo", "widgets", since, until)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	before := client.pageRequests.Load()

	second, err := agg.StarIncrease(context.Background(), "Octo", "Widgets", since, until)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second != first {
		t.Fatalf("cached increase = %d, want %d", second, first)
	}
	if client.pageRequests.Load() != before {
		t.Fatalf("cached lookup hit upstream")
	}
}

func TestCollectStarIncreases_PartialFailure(t *testing.T) {
	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	since := until.Add(-10 * time.Hour)

	// The paged client serves events for any repo but 404s GetRepository,
	// which only matters for the all-time path; window counting succeeds.
	client := &pagedClient{events: eventsEvery(until, 5, time.Hour)}
	agg := newTestAggregator(client, cache.NewMemoryStore())

	repos := []string{"octo/widgets", "octo/widgets", "bad-name"}
	increases, err := agg.CollectStarIncreases(context.Background(), repos, since, until)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(increases) != 2 {
		t.Fatalf("entries = %d, want 2 (duplicates collapsed)", len(increases))
	}
	if got := increases["octo/widgets"]; got == nil || *got != 5 {
		t.Fatalf("octo/widgets = %v, want 5", got)
	}
	if got, ok := increases["bad-name"]; !ok || got != nil {
		t.Fatalf("bad-name = %v present=%v, want nil entry", got, ok)
	}
}

func TestCollectStarIncreases_UpstreamFailureDegrades(t *testing.T) {
	// All-time window forces GetRepository, which 404s for unknown repos.
	client := &pagedClient{
		repositories: map[string]*gh.Repository{
			"octo/widgets": {FullName: "octo/widgets", Stargazers: 12},
		},
	}
	agg := newTestAggregator(client, cache.NewMemoryStore())

	since := time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)
	repos := []string{"octo/widgets", "octo/gone"}
	increases, err := agg.CollectStarIncreases(context.Background(), repos, since, time.Now().UTC())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := increases["octo/widgets"]; got == nil || *got != 12 {
		t.Fatalf("octo/widgets = %v, want 12", got)
	}
	if got := increases["octo/gone"]; got != nil {
		t.Fatalf("octo/gone = %v, want nil", got)
	}
}

// Package stars computes per-repository star increases over a report window
// by walking stargazer event pages newest-first and stopping as soon as the
// page stream leaves the window.
package stars

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/gitbrag/cache"
	"github.com/justapithecus/gitbrag/gh"
	"github.com/justapithecus/gitbrag/log"
	"github.com/justapithecus/gitbrag/retry"
)

const (
	// MaxCountedStars caps event-by-event counting. Beyond this the exact
	// number stops being worth the page requests and the aggregator reports
	// the Capped sentinel instead.
	MaxCountedStars = 1000

	// Capped marks a star increase that exceeded MaxCountedStars.
	Capped = -1

	// DefaultConcurrency bounds concurrent per-repo aggregations.
	DefaultConcurrency = 10

	// DefaultTTL is the cache TTL for computed per-repo increases.
	DefaultTTL = 6 * time.Hour
)

// allTimeEpoch is the earliest date with meaningful data upstream. Windows
// reaching this far back cover a repository's whole history, so the current
// total stargazer count answers the question without any event paging.
var allTimeEpoch = time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC)

// Config tunes one aggregator instance.
type Config struct {
	// Concurrency bounds in-flight per-repo aggregations (1-20, default 10).
	Concurrency int
	// TTL is the cache TTL for computed increases.
	TTL time.Duration
	// Retry is the policy applied to every upstream call.
	Retry retry.Policy
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 || c.Concurrency > 20 {
		c.Concurrency = DefaultConcurrency
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay == 0 {
		c.Retry = retry.DefaultPolicy()
	}
	return c
}

// Aggregator counts star increases per repository over a time window.
type Aggregator struct {
	client gh.Client
	store  cache.Store
	config Config
	policy retry.Policy
	logger *log.Logger
}

// NewAggregator creates an aggregator over the given client and cache.
func NewAggregator(client gh.Client, store cache.Store, cfg Config, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.NewLogger()
	}
	cfg = cfg.withDefaults()
	return &Aggregator{
		client: client,
		store:  store,
		config: cfg,
		policy: cfg.Retry.WithClassifier(func(err error) bool {
			return gh.Classify(err) == gh.ClassTransient
		}),
		logger: logger,
	}
}

// starsKey scopes the cached increase to the repository and window.
func starsKey(owner, repo string, since, until time.Time) string {
	return fmt.Sprintf("stars:%s:%s:%s_%s",
		strings.ToLower(owner), strings.ToLower(repo),
		since.UTC().Format("2006-01-02"), until.UTC().Format("2006-01-02"))
}

// StarIncrease returns the number of stars the repository gained in
// [since, until], Capped when the count exceeds MaxCountedStars. Results are
// cached per repository and window.
func (a *Aggregator) StarIncrease(ctx context.Context, owner, repo string, since, until time.Time) (int, error) {
	key := starsKey(owner, repo, since, until)

	var cached int
	hit, err := a.store.Get(ctx, key, &cached)
	if err != nil {
		return 0, err
	}
	if hit {
		return cached, nil
	}

	var count int
	if !since.After(allTimeEpoch) {
		count, err = a.totalStars(ctx, owner, repo)
	} else {
		count, err = a.countWindow(ctx, owner, repo, since, until)
	}
	if err != nil {
		return 0, err
	}

	if err := a.store.Set(ctx, key, count, a.config.TTL); err != nil {
		return 0, err
	}
	return count, nil
}

// totalStars is the all-time shortcut: the repository's current stargazer
// count, with zero event pages fetched.
func (a *Aggregator) totalStars(ctx context.Context, owner, repo string) (int, error) {
	var repository *gh.Repository
	err := a.policy.Do(ctx, func() error {
		var err error
		repository, err = a.client.GetRepository(ctx, owner, repo)
		return err
	})
	if err != nil {
		return 0, err
	}
	return repository.Stargazers, nil
}

// countWindow walks stargazer pages newest-first, counting events inside
// [since, until]. Events newer than until are skipped; the first event older
// than since ends the walk, since every later event is older still.
func (a *Aggregator) countWindow(ctx context.Context, owner, repo string, since, until time.Time) (int, error) {
	count := 0
	cursor := ""
	for {
		var page *gh.StarPage
		err := a.policy.Do(ctx, func() error {
			var err error
			page, err = a.client.Stargazers(ctx, owner, repo, gh.StarPageSize, cursor)
			return err
		})
		if err != nil {
			return 0, err
		}

		for _, ev := range page.Events {
			if ev.StarredAt.After(until) {
				continue
			}
			if ev.StarredAt.Before(since) {
				return count, nil
			}
			count++
			if count > MaxCountedStars {
				return Capped, nil
			}
		}

		if !page.HasMore {
			return count, nil
		}
		cursor = page.NextCursor
	}
}

// CollectStarIncreases aggregates increases for each unique repository with
// bounded concurrency. A repository whose aggregation fails maps to nil and
// is logged; only systemic cache failures abort the batch.
func (a *Aggregator) CollectStarIncreases(ctx context.Context, repos []string, since, until time.Time) (map[string]*int, error) {
	unique := make([]string, 0, len(repos))
	seen := make(map[string]struct{}, len(repos))
	for _, r := range repos {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		unique = append(unique, r)
	}

	var mu sync.Mutex
	increases := make(map[string]*int, len(unique))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)

	for _, fullName := range unique {
		g.Go(func() error {
			owner, repo, ok := gh.SplitRepo(fullName)
			if !ok {
				mu.Lock()
				increases[fullName] = nil
				mu.Unlock()
				return nil
			}

			count, err := a.StarIncrease(ctx, owner, repo, since, until)
			if err != nil {
				// Upstream failures degrade this repository; anything else
				// (cache backend, cancellation) is systemic.
				var apiErr *gh.APIError
				if !errors.As(err, &apiErr) {
					return err
				}
				a.logger.Warn("star increase unavailable", map[string]any{
					"repository": fullName,
					"error":      err.Error(),
				})
				mu.Lock()
				increases[fullName] = nil
				mu.Unlock()
				return nil
			}

			mu.Lock()
			increases[fullName] = &count
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stars: aggregation aborted: %w", err)
	}
	return increases, nil
}

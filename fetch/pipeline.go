// Package fetch implements the bounded-concurrency enrichment pipeline.
//
// Given the PRs from the primary listing, the pipeline attaches per-PR file
// statistics: intermediate cache first, then the upstream API under the
// shared retry policy. Individual item failures never escape the pipeline;
// they fold into CollectionStats and the item keeps zero metrics. Only
// systemic failures (cache backend unreachable) propagate.
package fetch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/gitbrag/cache"
	"github.com/justapithecus/gitbrag/gh"
	"github.com/justapithecus/gitbrag/log"
	"github.com/justapithecus/gitbrag/retry"
)

// Default concurrency limits per fetch kind. File stats are expensive
// upstream calls; descriptions are cheap single GETs.
const (
	DefaultFileConcurrency        = 5
	DefaultDescriptionConcurrency = 10
)

// DefaultIntermediateTTL bounds how long raw upstream data is reused.
const DefaultIntermediateTTL = 6 * time.Hour

// Outcome classifies one item's enrichment.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeCached  Outcome = "cached"
)

// Result is the per-item record of one enrichment fetch.
type Result struct {
	// ID identifies the item, e.g. "octo/widgets#7".
	ID string
	// Stats is nil when Outcome is failed.
	Stats *gh.FileStats
	// Outcome classifies how the value was obtained.
	Outcome Outcome
}

// CollectionStats aggregates enrichment outcomes for diagnostics.
type CollectionStats struct {
	Total     int64    `json:"total"`
	Succeeded int64    `json:"succeeded"`
	Failed    int64    `json:"failed"`
	Cached    int64    `json:"cached"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// SuccessRate is succeeded over fresh attempts. Cached hits are excluded:
// they represent no new upstream risk. With zero attempts the rate is 1.0.
func (s *CollectionStats) SuccessRate() float64 {
	attempts := s.Succeeded + s.Failed
	if attempts == 0 {
		return 1.0
	}
	return float64(s.Succeeded) / float64(attempts)
}

// Config tunes one pipeline instance.
type Config struct {
	// FileConcurrency bounds in-flight file-stat fetches (1-20, default 5).
	FileConcurrency int
	// DescriptionConcurrency bounds in-flight description fetches (1-20, default 10).
	DescriptionConcurrency int
	// IntermediateTTL is the cache TTL for fetched upstream data.
	IntermediateTTL time.Duration
	// Retry is the policy applied to every upstream call. The classifier is
	// installed by the pipeline.
	Retry retry.Policy
}

func (c Config) withDefaults() Config {
	if c.FileConcurrency < 1 || c.FileConcurrency > 20 {
		c.FileConcurrency = DefaultFileConcurrency
	}
	if c.DescriptionConcurrency < 1 || c.DescriptionConcurrency > 20 {
		c.DescriptionConcurrency = DefaultDescriptionConcurrency
	}
	if c.IntermediateTTL <= 0 {
		c.IntermediateTTL = DefaultIntermediateTTL
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay == 0 {
		c.Retry = retry.DefaultPolicy()
	}
	return c
}

// Pipeline fans out enrichment fetches with bounded concurrency.
type Pipeline struct {
	client gh.Client
	store  cache.Store
	config Config
	policy retry.Policy
	logger *log.Logger
}

// NewPipeline creates a pipeline over the given upstream client and cache.
func NewPipeline(client gh.Client, store cache.Store, cfg Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.NewLogger()
	}
	cfg = cfg.withDefaults()
	return &Pipeline{
		client: client,
		store:  store,
		config: cfg,
		policy: cfg.Retry.WithClassifier(func(err error) bool {
			return gh.Classify(err) == gh.ClassTransient
		}),
		logger: logger,
	}
}

// fileStatsKey is the intermediate cache key for one PR's file statistics.
func fileStatsKey(owner, repo string, number int) string {
	return fmt.Sprintf("pr_files:%s:%s:%d", strings.ToLower(owner), strings.ToLower(repo), number)
}

// descriptionKey is the intermediate cache key for a repository description.
func descriptionKey(owner, repo string) string {
	return fmt.Sprintf("repo:%s:%s:description", strings.ToLower(owner), strings.ToLower(repo))
}

// statsCollector accumulates outcomes across workers.
type statsCollector struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	cached    atomic.Int64

	mu        sync.Mutex
	failedIDs []string
}

func (sc *statsCollector) fail(id string) {
	sc.failed.Add(1)
	sc.mu.Lock()
	sc.failedIDs = append(sc.failedIDs, id)
	sc.mu.Unlock()
}

func (sc *statsCollector) snapshot(total int) CollectionStats {
	sc.mu.Lock()
	ids := slices.Clone(sc.failedIDs)
	sc.mu.Unlock()
	return CollectionStats{
		Total:     int64(total),
		Succeeded: sc.succeeded.Load(),
		Failed:    sc.failed.Load(),
		Cached:    sc.cached.Load(),
		FailedIDs: ids,
	}
}

// EnrichPullRequests attaches file statistics to each PR in place and
// returns per-item results plus aggregate stats. Items that fail after the
// retry budget, or fail fatally, keep zero metrics. Returns an error only for
// systemic failures; the slice is then in an undefined partial state and must
// be discarded.
func (p *Pipeline) EnrichPullRequests(ctx context.Context, prs []gh.PullRequest) ([]Result, CollectionStats, error) {
	results := make([]Result, len(prs))
	collector := &statsCollector{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.FileConcurrency)

	for i := range prs {
		g.Go(func() error {
			pr := &prs[i]
			id := fmt.Sprintf("%s#%d", pr.Repository, pr.Number)

			stats, outcome, err := p.fetchFileStats(ctx, pr)
			if err != nil {
				return err // systemic
			}

			switch outcome {
			case OutcomeCached:
				collector.cached.Add(1)
			case OutcomeSuccess:
				collector.succeeded.Add(1)
			case OutcomeFailed:
				collector.fail(id)
			}

			if stats != nil {
				pr.Additions = stats.Additions
				pr.Deletions = stats.Deletions
				pr.ChangedFiles = stats.ChangedFiles
				pr.Files = stats.Filenames
			}

			results[i] = Result{ID: id, Stats: stats, Outcome: outcome}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, CollectionStats{}, fmt.Errorf("fetch: enrichment aborted: %w", err)
	}

	stats := collector.snapshot(len(prs))
	p.logger.Info("enrichment complete", map[string]any{
		"total":        stats.Total,
		"succeeded":    stats.Succeeded,
		"failed":       stats.Failed,
		"cached":       stats.Cached,
		"success_rate": stats.SuccessRate(),
	})
	return results, stats, nil
}

// fetchFileStats resolves one PR's file statistics: cache, then upstream
// under the retry policy. A nil stats with OutcomeFailed means the item is
// unavailable; error is reserved for systemic failures.
func (p *Pipeline) fetchFileStats(ctx context.Context, pr *gh.PullRequest) (*gh.FileStats, Outcome, error) {
	owner, repo, ok := gh.SplitRepo(pr.Repository)
	if !ok {
		p.logger.Warn("malformed repository name", map[string]any{"repository": pr.Repository})
		return nil, OutcomeFailed, nil
	}

	key := fileStatsKey(owner, repo, pr.Number)

	var cached gh.FileStats
	hit, err := p.store.Get(ctx, key, &cached)
	if err != nil {
		return nil, "", err
	}
	if hit {
		return &cached, OutcomeCached, nil
	}

	var fetched *gh.FileStats
	fetchErr := p.policy.Do(ctx, func() error {
		var err error
		fetched, err = p.client.PullRequestFiles(ctx, owner, repo, pr.Number)
		return err
	})
	if fetchErr != nil {
		p.logger.Warn("file stats unavailable", map[string]any{
			"repository": pr.Repository,
			"number":     pr.Number,
			"class":      gh.Classify(fetchErr).String(),
			"error":      fetchErr.Error(),
		})
		return nil, OutcomeFailed, nil
	}

	p.clampNegatives(pr, fetched)

	if err := p.store.Set(ctx, key, fetched, p.config.IntermediateTTL); err != nil {
		return nil, "", err
	}
	return fetched, OutcomeSuccess, nil
}

// clampNegatives floors negative metric fields at zero. Negative values are
// upstream data corruption; they are logged and never propagated.
func (p *Pipeline) clampNegatives(pr *gh.PullRequest, stats *gh.FileStats) {
	if stats.Additions >= 0 && stats.Deletions >= 0 && stats.ChangedFiles >= 0 {
		return
	}
	p.logger.Warn("negative metrics clamped to zero", map[string]any{
		"repository":    pr.Repository,
		"number":        pr.Number,
		"additions":     stats.Additions,
		"deletions":     stats.Deletions,
		"changed_files": stats.ChangedFiles,
	})
	stats.Additions = max(stats.Additions, 0)
	stats.Deletions = max(stats.Deletions, 0)
	stats.ChangedFiles = max(stats.ChangedFiles, 0)
}

// RepoDescriptions fetches descriptions for the given repositories with the
// cheap-fetch concurrency limit. Unavailable repositories map to "" and are
// logged; the overall call fails only on systemic errors.
func (p *Pipeline) RepoDescriptions(ctx context.Context, repos []string) (map[string]string, error) {
	var mu sync.Mutex
	descriptions := make(map[string]string, len(repos))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.DescriptionConcurrency)

	for _, fullName := range repos {
		g.Go(func() error {
			desc, err := p.fetchDescription(ctx, fullName)
			if err != nil {
				return err // systemic
			}
			mu.Lock()
			descriptions[fullName] = desc
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch: descriptions aborted: %w", err)
	}
	return descriptions, nil
}

func (p *Pipeline) fetchDescription(ctx context.Context, fullName string) (string, error) {
	owner, repo, ok := gh.SplitRepo(fullName)
	if !ok {
		return "", nil
	}

	key := descriptionKey(owner, repo)

	var cached string
	hit, err := p.store.Get(ctx, key, &cached)
	if err != nil {
		return "", err
	}
	if hit {
		return cached, nil
	}

	var repository *gh.Repository
	fetchErr := p.policy.Do(ctx, func() error {
		var err error
		repository, err = p.client.GetRepository(ctx, owner, repo)
		return err
	})
	if fetchErr != nil {
		p.logger.Warn("description unavailable", map[string]any{
			"repository": fullName,
			"error":      fetchErr.Error(),
		})
		return "", nil
	}

	if err := p.store.Set(ctx, key, repository.Description, p.config.IntermediateTTL); err != nil {
		return "", err
	}
	return repository.Description, nil
}

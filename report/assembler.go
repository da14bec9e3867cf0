package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/gitbrag/cache"
	"github.com/justapithecus/gitbrag/config"
	"github.com/justapithecus/gitbrag/fetch"
	"github.com/justapithecus/gitbrag/gh"
	"github.com/justapithecus/gitbrag/log"
	"github.com/justapithecus/gitbrag/retry"
	"github.com/justapithecus/gitbrag/stars"
	"github.com/justapithecus/gitbrag/task"
)

// Request describes one report generation.
type Request struct {
	Subject string
	Period  Period
	Params  Params

	// Since and Until override the period window when both are set,
	// otherwise the window is derived from Period at generation time.
	Since time.Time
	Until time.Time

	// CreatedBy is recorded in the report metadata; empty means system.
	CreatedBy string

	// IncludeClosedUnmerged keeps closed-but-not-merged PRs in the report.
	// They are dropped by default since they represent rejected work.
	IncludeClosedUnmerged bool
}

// Assembler runs the full generation flow for one request: primary listing,
// concurrent enrichment and aggregation, pure computation, then the
// permanent cache commit. Any error before the commit leaves previously
// cached data untouched.
type Assembler struct {
	client     gh.Client
	store      cache.Store
	pipeline   *fetch.Pipeline
	aggregator *stars.Aggregator
	policy     retry.Policy
	logger     *log.Logger
	clock      func() time.Time
}

// NewAssembler wires an assembler from the shared client, store and config.
func NewAssembler(client gh.Client, store cache.Store, cfg *config.Config, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.NewLogger()
	}
	policy := cfg.RetryPolicy()
	pipeline := fetch.NewPipeline(client, store, fetch.Config{
		FileConcurrency:        cfg.FetchConcurrencyPrimary,
		DescriptionConcurrency: cfg.FetchConcurrencySecondary,
		IntermediateTTL:        cfg.IntermediateTTL(),
		Retry:                  policy,
	}, logger)
	aggregator := stars.NewAggregator(client, store, stars.Config{
		Concurrency: cfg.FetchConcurrencySecondary,
		TTL:         cfg.IntermediateTTL(),
		Retry:       policy,
	}, logger)
	return &Assembler{
		client:     client,
		store:      store,
		pipeline:   pipeline,
		aggregator: aggregator,
		policy: policy.WithClassifier(func(err error) bool {
			return gh.Classify(err) == gh.ClassTransient
		}),
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the time source.
func (a *Assembler) WithClock(clock func() time.Time) *Assembler {
	a.clock = clock
	return a
}

// Generate produces and commits the report for the request. The returned
// error is always systemic: individual item failures fold into the report's
// collection stats and the report still commits.
func (a *Assembler) Generate(ctx context.Context, req Request) (*Report, error) {
	since, until := req.Since, req.Until
	if since.IsZero() || until.IsZero() {
		since, until = req.Period.DateRange(a.clock())
	}

	logger := a.logger.WithTask(req.Subject, task.ID(req.Subject, string(req.Period), req.Params.Hash()))
	logger.Info("generating report", map[string]any{
		"since": since.Format(time.DateOnly),
		"until": until.Format(time.DateOnly),
	})

	var prs []gh.PullRequest
	err := a.policy.Do(ctx, func() error {
		var err error
		prs, err = a.client.SearchPullRequests(ctx, req.Subject, since, until)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("report: primary listing for %s: %w", req.Subject, err)
	}

	if !req.IncludeClosedUnmerged {
		kept := prs[:0]
		for _, pr := range prs {
			if pr.DisplayState() != gh.StateClosed {
				kept = append(kept, pr)
			}
		}
		if dropped := len(prs) - len(kept); dropped > 0 {
			logger.Info("filtered closed-unmerged PRs", map[string]any{"dropped": dropped})
		}
		prs = kept
	}

	repos := uniqueRepos(prs)

	// Enrichment, star aggregation and description fetches are independent
	// of each other and run concurrently, each under its own pool.
	var (
		results      []fetch.Result
		stats        fetch.CollectionStats
		increases    map[string]*int
		descriptions map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		results, stats, err = a.pipeline.EnrichPullRequests(gctx, prs)
		return err
	})
	if req.Params.ShowStarIncrease {
		g.Go(func() error {
			var err error
			increases, err = a.aggregator.CollectStarIncreases(gctx, repos, since, until)
			return err
		})
	}
	g.Go(func() error {
		var err error
		descriptions, err = a.pipeline.RepoDescriptions(gctx, repos)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("report: generation for %s: %w", req.Subject, err)
	}

	rep := buildReport(req, since, until, prs, results, stats, increases, descriptions)

	if err := a.commit(ctx, req, since, until, rep); err != nil {
		return nil, err
	}

	logger.Info("report committed", map[string]any{
		"total_prs":    rep.TotalPRs,
		"repos":        rep.RepoCount,
		"failed_items": stats.Failed,
	})
	return rep, nil
}

// commit writes the body first and the metadata second, so metadata never
// describes a body that has not landed yet.
func (a *Assembler) commit(ctx context.Context, req Request, since, until time.Time, rep *Report) error {
	hash := req.Params.Hash()
	if err := a.store.Set(ctx, ReportKey(req.Subject, req.Period, hash), rep, 0); err != nil {
		return fmt.Errorf("report: commit body: %w", err)
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = CreatedBySystem
	}
	meta := Metadata{
		CreatedAt:  a.clock().UTC(),
		CreatedBy:  createdBy,
		Since:      since,
		Until:      until,
		ParamsHash: hash,
	}
	if err := a.store.Set(ctx, MetaKey(req.Subject, req.Period, hash), meta, 0); err != nil {
		return fmt.Errorf("report: commit metadata: %w", err)
	}
	return nil
}

func uniqueRepos(prs []gh.PullRequest) []string {
	seen := make(map[string]struct{}, len(prs))
	repos := make([]string, 0, len(prs))
	for i := range prs {
		if _, ok := seen[prs[i].Repository]; ok {
			continue
		}
		seen[prs[i].Repository] = struct{}{}
		repos = append(repos, prs[i].Repository)
	}
	return repos
}

// buildReport derives every aggregate from the enriched set. Pure function
// of its inputs, no I/O.
func buildReport(
	req Request,
	since, until time.Time,
	prs []gh.PullRequest,
	results []fetch.Result,
	stats fetch.CollectionStats,
	increases map[string]*int,
	descriptions map[string]string,
) *Report {
	rep := &Report{
		Username: req.Subject,
		Period:   req.Period,
		Since:    since,
		Until:    until,
		TotalPRs: len(prs),
		Stats:    stats,
	}

	enriched := make(map[int]bool, len(results))
	for i, r := range results {
		enriched[i] = r.Outcome != fetch.OutcomeFailed
	}

	sizeCounts := make(map[string]int)
	for i := range prs {
		pr := &prs[i]
		switch pr.DisplayState() {
		case gh.StateMerged:
			rep.MergedCount++
		case gh.StateOpen:
			rep.OpenCount++
		default:
			rep.ClosedCount++
		}
		rep.TotalAdditions += pr.Additions
		rep.TotalDeletions += pr.Deletions
		rep.TotalChangedFiles += pr.ChangedFiles

		if enriched[i] {
			pr.SizeCategory = CategorizePRSize(pr.Additions, pr.Deletions)
			sizeCounts[pr.SizeCategory]++
		}
		if inc, ok := increases[pr.Repository]; ok && inc != nil {
			v := *inc
			pr.StarIncrease = &v
		}
	}

	for _, category := range SizeOrder {
		if count := sizeCounts[category]; count > 0 {
			rep.SizeDistribution = append(rep.SizeDistribution, SizeBucket{Category: category, Count: count})
		}
	}

	rep.LanguageBreakdown = CalculateLanguagePercentages(prs, 10)
	rep.Repositories = groupRepositories(req, prs, increases, descriptions)
	rep.RepoCount = len(rep.Repositories)

	if req.Params.ShowStarIncrease {
		rep.TotalStarIncrease = totalStarIncrease(rep.Repositories)
	}
	return rep
}

// groupRepositories splits the PRs per repository and orders the groups for
// display: all-time reports by PR count, star reports by increase, plain
// reports alphabetically.
func groupRepositories(req Request, prs []gh.PullRequest, increases map[string]*int, descriptions map[string]string) []RepoGroup {
	byRepo := make(map[string][]gh.PullRequest)
	order := make([]string, 0)
	for i := range prs {
		name := prs[i].Repository
		if _, ok := byRepo[name]; !ok {
			order = append(order, name)
		}
		byRepo[name] = append(byRepo[name], prs[i])
	}

	groups := make([]RepoGroup, 0, len(order))
	for _, name := range order {
		group := RepoGroup{
			FullName:     name,
			Description:  descriptions[name],
			Role:         repoRole(byRepo[name]),
			PullRequests: byRepo[name],
		}
		if inc, ok := increases[name]; ok && inc != nil {
			v := *inc
			group.StarIncrease = &v
		}
		groups = append(groups, group)
	}

	switch {
	case req.Period == PeriodAllTime:
		sort.Slice(groups, func(i, j int) bool {
			if len(groups[i].PullRequests) != len(groups[j].PullRequests) {
				return len(groups[i].PullRequests) > len(groups[j].PullRequests)
			}
			return groups[i].FullName < groups[j].FullName
		})
	case req.Params.ShowStarIncrease:
		sort.Slice(groups, func(i, j int) bool {
			a, b := starSortValue(groups[i].StarIncrease), starSortValue(groups[j].StarIncrease)
			if a != b {
				return a > b
			}
			return groups[i].FullName < groups[j].FullName
		})
	default:
		sort.Slice(groups, func(i, j int) bool {
			return groups[i].FullName < groups[j].FullName
		})
	}
	return groups
}

// starSortValue orders the cap sentinel above every exact count.
func starSortValue(inc *int) int {
	if inc == nil {
		return 0
	}
	if *inc == stars.Capped {
		return stars.MaxCountedStars + 1
	}
	return *inc
}

// repoRole is the author association of the most recent PR in the group.
func repoRole(prs []gh.PullRequest) string {
	var recent *gh.PullRequest
	for i := range prs {
		if recent == nil || prs[i].CreatedAt.After(recent.CreatedAt) {
			recent = &prs[i]
		}
	}
	if recent == nil {
		return ""
	}
	return recent.AuthorAssociation
}

// totalStarIncrease sums per-repository increases; repositories without data
// are skipped, and any capped repository caps the total.
func totalStarIncrease(groups []RepoGroup) *int {
	total := 0
	for _, g := range groups {
		if g.StarIncrease == nil {
			continue
		}
		if *g.StarIncrease == stars.Capped {
			capped := stars.Capped
			return &capped
		}
		total += *g.StarIncrease
	}
	return &total
}

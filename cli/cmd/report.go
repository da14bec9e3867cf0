// Package cmd implements the gitbrag CLI commands.
package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/gitbrag/cache"
	"github.com/justapithecus/gitbrag/cli/render"
	"github.com/justapithecus/gitbrag/config"
	"github.com/justapithecus/gitbrag/gh"
	"github.com/justapithecus/gitbrag/log"
	"github.com/justapithecus/gitbrag/report"
	"github.com/justapithecus/gitbrag/task"
)

// ReportCommand returns the report command: generate and print a
// contribution report for a GitHub username.
func ReportCommand() *cli.Command {
	flags := append(ConfigFlags(), OutputFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:    "period",
			Aliases: []string{"p"},
			Value:   "1_year",
			Usage:   "Report window: 1_year, 2_years, 5_years, or all_time",
		},
		&cli.BoolFlag{
			Name:  "stars",
			Usage: "Include per-repository star increases (extra upstream paging)",
		},
		&cli.BoolFlag{
			Name:  "include-closed",
			Usage: "Keep closed-but-not-merged pull requests in the report",
		},
	)
	return &cli.Command{
		Name:      "report",
		Usage:     "Generate a contribution report for a GitHub user",
		ArgsUsage: "<username>",
		Flags:     flags,
		Action:    reportAction,
	}
}

func reportAction(c *cli.Context) error {
	username := c.Args().First()
	if username == "" {
		return cli.Exit("username argument is required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	svc, closeStore, err := buildService(c, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rep, err := svc.Generate(c.Context, report.Request{
		Subject:               username,
		Period:                report.NormalizePeriod(c.String("period")),
		Params:                report.Params{ShowStarIncrease: c.Bool("stars")},
		CreatedBy:             "cli",
		IncludeClosedUnmerged: c.Bool("include-closed"),
	})
	if err != nil {
		return err
	}

	return r.Render(reportView{rep})
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

// buildService wires the cache backend, upstream client, coordinator and
// assembler from config plus flags.
func buildService(c *cli.Context, cfg *config.Config) (*report.Service, func(), error) {
	token := c.String("token")
	if token == "" {
		token = cfg.GitHub.Token
	}
	client, err := gh.NewHTTPClient(gh.HTTPConfig{
		Token:      token,
		BaseURL:    cfg.GitHub.BaseURL,
		GraphQLURL: cfg.GitHub.GraphQLURL,
	})
	if err != nil {
		return nil, nil, err
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		store, err = cache.NewRedisStore(cache.RedisConfig{URL: cfg.Cache.RedisURL})
		if err != nil {
			return nil, nil, err
		}
	default:
		store = cache.NewMemoryStore()
	}

	logger := log.NewLogger()
	coordinator := task.NewCoordinator(store, cfg.TaskLease(), logger)
	assembler := report.NewAssembler(client, store, cfg, logger)
	svc := report.NewService(store, coordinator, assembler, cfg.StaleAge(), logger)

	return svc, func() { _ = store.Close() }, nil
}

// reportView adapts a report for table rendering.
type reportView struct {
	*report.Report
}

func (v reportView) Table() [][]string {
	rows := [][]string{
		{"User", v.Username},
		{"Period", string(v.Period)},
		{"Window", fmt.Sprintf("%s .. %s", v.Since.Format("2006-01-02"), v.Until.Format("2006-01-02"))},
		{"Pull requests", fmt.Sprintf("%d (%d merged, %d open, %d closed)", v.TotalPRs, v.MergedCount, v.OpenCount, v.ClosedCount)},
		{"Lines", fmt.Sprintf("+%d / -%d across %d files", v.TotalAdditions, v.TotalDeletions, v.TotalChangedFiles)},
	}
	if v.TotalStarIncrease != nil {
		rows = append(rows, []string{"Stars gained", starText(v.TotalStarIncrease)})
	}
	if len(v.LanguageBreakdown) > 0 {
		rows = append(rows, nil, []string{"Language", "Share"})
		for _, share := range v.LanguageBreakdown {
			rows = append(rows, []string{share.Language, fmt.Sprintf("%.1f%%", share.Percentage)})
		}
	}
	if len(v.SizeDistribution) > 0 {
		rows = append(rows, nil, []string{"Size", "PRs"})
		for _, bucket := range v.SizeDistribution {
			rows = append(rows, []string{bucket.Category, fmt.Sprintf("%d", bucket.Count)})
		}
	}
	rows = append(rows, nil, []string{"Repository", "PRs", "Role", "Stars"})
	for _, repo := range v.Repositories {
		rows = append(rows, []string{
			repo.FullName,
			fmt.Sprintf("%d", len(repo.PullRequests)),
			repo.Role,
			starText(repo.StarIncrease),
		})
	}
	if v.Stats.Failed > 0 {
		rows = append(rows, nil, []string{
			"Incomplete",
			fmt.Sprintf("%d of %d items unavailable (success rate %.0f%%)",
				v.Stats.Failed, v.Stats.Total, v.Stats.SuccessRate()*100),
		})
	}
	return rows
}

func starText(inc *int) string {
	switch {
	case inc == nil:
		return "-"
	case *inc == -1:
		return ">1000"
	default:
		return fmt.Sprintf("%d", *inc)
	}
}

package cmd

import "github.com/urfave/cli/v2"

// OutputFlags are the flags shared by commands that render results.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: json, table, or yaml (default: table on TTY, json otherwise)",
		},
	}
}

// ConfigFlags are the flags shared by commands that load configuration.
func ConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a gitbrag.yaml configuration file",
			EnvVars: []string{"GITBRAG_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "GitHub API token (overrides the config file)",
			EnvVars: []string{"GITHUB_TOKEN"},
		},
	}
}

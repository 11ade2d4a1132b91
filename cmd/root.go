package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlnow/internal/app"
	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/logging"
)

// NewRootCommand builds the command tree
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "sqlnow",
		Usage: "Query CSV, Parquet, JSON and spreadsheet files with SQL",
		Description: `sqlnow loads files and external databases into an embedded DuckDB engine and
builds a catalog of every table. Sources are given with --source or in sqlnow.toml;
CSV, Parquet and database files become views, JSON and spreadsheets become tables.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a TOML config file"},
			&cli.StringSliceFlag{Name: "source", Aliases: []string{"s"}, Usage: "file or database to load (repeatable)"},
			&cli.StringFlag{Name: "database", Usage: "persist the engine to this DuckDB file"},
			&cli.BoolFlag{Name: "drop", Usage: "drop previously loaded relations before loading"},
			&cli.BoolFlag{Name: "all-text", Usage: "load every CSV column as text"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
		},
		Commands: []*cli.Command{
			ServeCommand(),
			TablesCommand(),
			SQLCommand(),
			QueryCommand(),
			ExportCommand(),
			ConfigCommand(),
		},
	}
}

// Execute runs the command line
func Execute() error {
	err := NewRootCommand().Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+errors.Human(err))

		for _, suggestion := range errors.Suggestions(err) {
			fmt.Fprintln(os.Stderr, "  "+suggestion)
		}
	}

	return err
}

// loadConfig layers the file, the environment and the global flags. Extra
// positional arguments are treated as sources.
func loadConfig(cmd *cli.Command, extraSources ...string) (*config.Config, error) {
	overrides := map[string]interface{}{
		"database":   cmd.String("database"),
		"drop":       cmd.Bool("drop"),
		"all-text":   cmd.Bool("all-text"),
		"log-level":  cmd.String("log-level"),
		"log-format": cmd.String("log-format"),
	}

	if sources := append(cmd.StringSlice("source"), extraSources...); len(sources) > 0 {
		overrides["sources"] = sources
	}

	cfg, err := config.LoadConfigWithOverrides(cmd.String("config"), overrides)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration").
			WithSuggestion("Run 'sqlnow config' to inspect the active settings")
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
		logging.Warnf("failed to initialize logger: %v", err)
	}

	return cfg, nil
}

// openApp loads the configuration and ingests every source
func openApp(ctx context.Context, cmd *cli.Command, extraSources ...string) (*app.App, error) {
	cfg, err := loadConfig(cmd, extraSources...)
	if err != nil {
		return nil, err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = fmt.Sprintf(" Loading %d sources", len(cfg.Views)+len(cfg.Tables))
	s.Start()

	a, err := app.Build(ctx, cfg)

	s.Stop()

	return a, err
}

// output is where command results are written
func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}

	return os.Stdout
}

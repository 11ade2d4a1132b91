package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/errors"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the current active configuration including all settings from file, environment variables, and command-line flags.`,
		ArgsUsage:   " [source...]",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd, cmd.Args().Slice()...)
			if err != nil {
				return err
			}

			return RunConfigWithConfig(output(cmd), cfg)
		},
	}
}

// RunConfigWithConfig prints a summary of cfg followed by the equivalent TOML
func RunConfigWithConfig(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	database := cfg.Database
	if database == "" {
		database = "(in memory)"
	}

	fmt.Fprintln(w, "====================")
	fmt.Fprintln(w, "Active Configuration:")

	fmt.Fprintln(w, "\nEngine:")
	fmt.Fprintf(w, "  Database: %s\n", database)
	fmt.Fprintf(w, "  Drop: %t\n", cfg.Drop)
	fmt.Fprintf(w, "  All Text: %t\n", cfg.AllText)

	fmt.Fprintln(w, "\nSources:")
	for _, source := range cfg.Views {
		fmt.Fprintf(w, "  view  %s <- %s\n", source.Name, source.URI)
	}

	for _, source := range cfg.Tables {
		fmt.Fprintf(w, "  table %s <- %s\n", source.Name, source.URI)
	}

	if len(cfg.Views)+len(cfg.Tables) == 0 {
		fmt.Fprintln(w, "  (none)")
	}

	fmt.Fprintln(w, "\nQuery:")
	fmt.Fprintf(w, "  Preview Limit: %d\n", cfg.Query.PreviewLimit)
	fmt.Fprintf(w, "  Display Limit: %d\n", cfg.Query.DisplayLimit)
	fmt.Fprintf(w, "  Export Limit: %d\n", cfg.Query.ExportLimit)
	fmt.Fprintf(w, "  Query Timeout: %s\n", cfg.Query.QueryTimeout)
	fmt.Fprintf(w, "  Export Timeout: %s\n", cfg.Query.ExportTimeout)

	fmt.Fprintln(w, "\nServer:")
	fmt.Fprintf(w, "  Address: %s\n", cfg.Server.Addr)

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Fprintf(w, "  File: %s\n", cfg.Logging.File)
	}

	encoded, err := cfg.Encode()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "\nTOML:")
	fmt.Fprint(w, encoded)

	return nil
}

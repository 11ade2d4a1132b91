package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlnow/internal/app"
	"github.com/kyleking/sqlnow/internal/formatter"
)

func TablesCommand() *cli.Command {
	return &cli.Command{
		Name:        "tables",
		Usage:       "List the catalog",
		Description: `Show every loaded table grouped by section. With a table name, show its columns.`,
		ArgsUsage:   " [table]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return runTables(cmd, a, cmd.Args().First())
		},
	}
}

func runTables(cmd *cli.Command, a *app.App, name string) error {
	f := formatter.NewFormatter()
	w := output(cmd)

	if name == "" {
		_, err := fmt.Fprintln(w, f.FormatCatalog(a.Catalog(), a.Sections()))
		return err
	}

	table, err := a.Table(name)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, f.FormatTable(table, formatter.FormatLong))

	return err
}

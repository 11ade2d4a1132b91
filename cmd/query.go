package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/formatter"
)

func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Run SQL and print the result as a table",
		Description: `Run a query against the loaded sources. At most --limit rows are shown;
zero uses the configured display limit.`,
		ArgsUsage: " <sql>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "maximum number of rows to display"},
		},
		Action: runQuery,
	}
}

func runQuery(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return errors.New(errors.ErrTypeValidation, "query cannot be empty").
			WithSuggestion(`Try: sqlnow query "SELECT 1"`)
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := a.RunQuery(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(output(cmd), formatter.NewFormatter().FormatData(data))

	return err
}

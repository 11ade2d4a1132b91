package cmd

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/results"
)

func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Stream a query result as CSV, TSV or NDJSON",
		Description: `Stream every row of a query to stdout or --output. A negative --limit uses the
configured export limit and zero exports everything.`,
		ArgsUsage: " <sql>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "csv", Usage: "csv, tab or jsonl"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write to this file instead of stdout"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: -1, Usage: "maximum number of rows"},
		},
		Action: runExport,
	}
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return errors.New(errors.ErrTypeValidation, "query cannot be empty")
	}

	enc, err := results.ParseEncoding(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dst := output(cmd)

	if path := cmd.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeFileSystem, "failed to create output file")
		}
		defer f.Close()

		dst = f
	}

	w := bufio.NewWriter(dst)

	if err := a.Stream(ctx, w, query, enc, int(cmd.Int("limit"))); err != nil {
		return err
	}

	return w.Flush()
}

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/sqlgen"
)

func SQLCommand() *cli.Command {
	return &cli.Command{
		Name:        "sql",
		Usage:       "Print a starter query for a table",
		Description: `Generate the default SELECT for a table. Intents: ` + strings.Join(intentNames(), ", ") + `.`,
		ArgsUsage:   " <table>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "intent", Aliases: []string{"i"}, Value: string(sqlgen.SelectStar), Usage: "query shape"},
		},
		Action: runSQL,
	}
}

func runSQL(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.Newf(errors.ErrTypeValidation, "expected exactly 1 argument, got %d", cmd.Args().Len())
	}

	intent, err := sqlgen.ParseIntent(cmd.String("intent"))
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	query, err := a.GenerateSQL(cmd.Args().First(), intent)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(output(cmd), query)

	return err
}

func intentNames() []string {
	var names []string
	for _, intent := range sqlgen.Intents() {
		names = append(names, string(intent))
	}

	return names
}

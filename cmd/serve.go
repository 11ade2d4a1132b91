package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlnow/internal/server"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Serve the catalog and queries over HTTP",
		Description: `Load every source, then answer catalog, query and download requests until interrupted.`,
		ArgsUsage:   " [source...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (default 127.0.0.1:3030)"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd, cmd.Args().Slice()...)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config().Server
	if addr := cmd.String("addr"); addr != "" {
		cfg.Addr = addr
	}

	return server.New(a, cfg).ListenAndServe(ctx)
}

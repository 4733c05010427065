package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "webbyctl",
		Usage: "Run webby lookups from a terminal",
		Description: `webbyctl runs the same commands the Slack bot serves and prints
the replies to stdout. Configuration is read the same way the server reads
it: an optional YAML file followed by WEBBY_* environment variables.

Examples:
  webbyctl website example.com
  webbyctl ray 783dd7324ebfbb62
  webbyctl zones`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars("WEBBY_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			websiteCommand(out),
			rayCommand(out),
			zonesCommand(out),
			helpCommand(out),
		},
	}
}

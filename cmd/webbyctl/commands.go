package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/sgerhart/webby/internal/app"
	"github.com/sgerhart/webby/internal/audit"
	"github.com/sgerhart/webby/internal/config"
	"github.com/sgerhart/webby/internal/dispatch"
	"github.com/sgerhart/webby/internal/logging"
)

const localChannel = "terminal"

// stdoutPoster prints replies instead of posting them to Slack
type stdoutPoster struct {
	w io.Writer
}

func (p *stdoutPoster) Post(ctx context.Context, channelID string, msg dispatch.Message) error {
	_, err := fmt.Fprintln(p.w, msg.Text)
	return err
}

func loadEnv(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(os.Stderr, cmd.String("log-level"), "text")
	return cfg, logger, nil
}

// runCommand executes one dispatcher command synchronously
func runCommand(ctx context.Context, cmd *cli.Command, out io.Writer, name, text string) error {
	cfg, logger, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	cfg.AsyncWebsite = false

	d, err := app.NewDispatcher(cfg, &stdoutPoster{w: out}, audit.NopPublisher{}, nil, logger)
	if err != nil {
		return err
	}

	d.Handle(ctx, dispatch.Command{
		Name:      name,
		Text:      text,
		ChannelID: localChannel,
		UserID:    os.Getenv("USER"),
	})
	d.Wait()
	return nil
}

func websiteCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "website",
		Usage:     "Show who hosts a domain and its Cloudflare DNS records",
		ArgsUsage: "<domain>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCommand(ctx, cmd, out, "/website", strings.Join(cmd.Args().Slice(), " "))
		},
	}
}

func rayCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "ray",
		Aliases:   []string{"cf"},
		Usage:     "Look up the firewall event for a Cloudflare Ray ID",
		ArgsUsage: "<ray_id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCommand(ctx, cmd, out, "/cf", "-ray "+cmd.Args().First())
		},
	}
}

func helpCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "commands",
		Usage: "Print the bot help text",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCommand(ctx, cmd, out, "/help", "")
		},
	}
}

func zonesCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "zones",
		Usage: "List the zones visible to the Cloudflare token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			c, err := app.BuildComponents(cfg, nil, logger)
			if err != nil {
				return err
			}

			zones, err := c.Cloudflare.ListZones(ctx)
			if err != nil {
				return fmt.Errorf("failed to list zones: %w", err)
			}
			if len(zones) == 0 {
				fmt.Fprintln(out, "No zones found.")
				return nil
			}
			for _, z := range zones {
				fmt.Fprintf(out, "%s\t%s\n", z.ID, z.Name)
			}
			return nil
		},
	}
}

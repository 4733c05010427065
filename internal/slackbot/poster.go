package slackbot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nlopes/slack"

	"github.com/sgerhart/webby/internal/dispatch"
)

// Poster posts dispatcher replies through chat.postMessage
type Poster struct {
	client *slack.Client
	logger *slog.Logger
}

// NewPoster creates a poster using client
func NewPoster(client *slack.Client, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		client: client,
		logger: logger.With("component", "slack_poster"),
	}
}

// Post sends msg to channelID
func (p *Poster) Post(ctx context.Context, channelID string, msg dispatch.Message) error {
	options := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks) > 0 {
		options = append(options, slack.MsgOptionBlocks(msg.Blocks...))
	}

	_, ts, err := p.client.PostMessageContext(ctx, channelID, options...)
	if err != nil {
		return fmt.Errorf("failed to post message to %s: %w", channelID, err)
	}

	p.logger.Debug("Message posted", "channel_id", channelID, "ts", ts)
	return nil
}

// Identity returns the bot's own user ID via auth.test
func Identity(ctx context.Context, client *slack.Client) (string, error) {
	resp, err := client.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth test failed: %w", err)
	}
	return resp.UserID, nil
}

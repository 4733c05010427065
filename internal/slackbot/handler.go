package slackbot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nlopes/slack"
	"github.com/nlopes/slack/slackevents"

	"github.com/sgerhart/webby/internal/dispatch"
	"github.com/sgerhart/webby/internal/metrics"
)

// maxRequestBody bounds inbound Slack payloads
const maxRequestBody = 1 << 20

// CommandHandler runs one slash command
type CommandHandler interface {
	Handle(ctx context.Context, cmd dispatch.Command)
}

// Options configures a Handler
type Options struct {
	// SigningSecret enables request verification when set
	SigningSecret string
	// BotUserID is ignored as a message author
	BotUserID string
	// DedupeCap bounds the number of remembered event IDs
	DedupeCap int
}

// Handler serves Slack slash commands and Events API deliveries
type Handler struct {
	commands      CommandHandler
	poster        dispatch.Poster
	signingSecret string
	botUserID     string
	seen          *lru.Cache[string, bool]
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewHandler creates a new Slack handler
func NewHandler(commands CommandHandler, poster dispatch.Poster, opts Options, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	dedupeCap := opts.DedupeCap
	if dedupeCap <= 0 {
		dedupeCap = 1024
	}
	seen, _ := lru.New[string, bool](dedupeCap)

	return &Handler{
		commands:      commands,
		poster:        poster,
		signingSecret: opts.SigningSecret,
		botUserID:     opts.BotUserID,
		seen:          seen,
		metrics:       m,
		logger:        logger.With("component", "slack"),
	}
}

// SlashCommand returns a handler for slash commands. A non-empty command
// overrides the "command" form field, for per-command routes.
func (h *Handler) SlashCommand(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.verify(w, r); !ok {
			return
		}

		s, err := slack.SlashCommandParse(r)
		if err != nil {
			h.logger.Warn("Invalid slash command payload", "error", err)
			http.Error(w, "invalid slash command", http.StatusBadRequest)
			return
		}

		name := s.Command
		if command != "" {
			name = command
		}

		// The reply is posted to the channel; the invoking request only gets an ack
		h.commands.Handle(context.WithoutCancel(r.Context()), dispatch.Command{
			Name:      name,
			ChannelID: s.ChannelID,
			UserID:    s.UserID,
			Text:      s.Text,
		})

		w.WriteHeader(http.StatusOK)
	}
}

// Events handles Events API deliveries
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	body, ok := h.verify(w, r)
	if !ok {
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Warn("Invalid event payload", "error", err)
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "invalid challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
		return

	case slackevents.CallbackEvent:
		if cb, ok := event.Data.(*slackevents.EventsAPICallbackEvent); ok && cb.EventID != "" {
			// Slack retries deliveries it considers unacknowledged
			if seen, _ := h.seen.ContainsOrAdd(cb.EventID, true); seen {
				h.logger.Debug("Duplicate event ignored", "event_id", cb.EventID)
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		h.metrics.IncrementSlackEvents(event.InnerEvent.Type)
		if msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			h.onMessage(context.WithoutCancel(r.Context()), msg)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// onMessage answers greetings and echo requests from users
func (h *Handler) onMessage(ctx context.Context, msg *slackevents.MessageEvent) {
	if msg.User == "" || msg.BotID != "" || msg.SubType != "" || msg.User == h.botUserID {
		return
	}

	text := strings.ToLower(msg.Text)
	var reply string
	switch {
	case strings.Contains(text, "hi webby") || strings.Contains(text, "hello webby"):
		reply = "Hello <@" + msg.User + ">!"
	case strings.Contains(text, "echo"):
		reply = msg.Text
	default:
		return
	}

	if err := h.poster.Post(ctx, msg.Channel, dispatch.Message{Text: reply}); err != nil {
		h.logger.Error("Failed to reply to message", "channel_id", msg.Channel, "error", err)
	}
}

// verify reads the request body and checks its Slack signature when a
// signing secret is configured. The body is restored for later parsing.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if h.signingSecret == "" {
		return body, true
	}

	sv, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		h.logger.Warn("Slack signature headers rejected", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if _, err := sv.Write(body); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if err := sv.Ensure(); err != nil {
		h.logger.Warn("Slack signature mismatch", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	return body, true
}

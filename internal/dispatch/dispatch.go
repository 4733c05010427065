package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/nlopes/slack"

	"github.com/sgerhart/webby/internal/audit"
	"github.com/sgerhart/webby/internal/metrics"
	"github.com/sgerhart/webby/internal/model"
)

// Command outcomes reported to metrics and audit records
const (
	OutcomeOK       = "ok"
	OutcomeUsage    = "usage"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeHelp     = "help"
	OutcomeAsync    = "async"
)

// Canonical command names
const (
	CommandWebsite = "website"
	CommandRay     = "ray"
	CommandHelp    = "help"
)

// Command is one inbound slash-command invocation
type Command struct {
	Name      string
	ChannelID string
	UserID    string
	Text      string
}

// Message is one outbound chat message. Blocks is optional; Text doubles as
// the notification fallback when blocks are present.
type Message struct {
	Text   string
	Blocks []slack.Block
}

// Poster delivers a message to a channel
type Poster interface {
	Post(ctx context.Context, channelID string, msg Message) error
}

// Classifier decides who hosts a website
type Classifier interface {
	Classify(ctx context.Context, raw string) (*model.Classification, error)
}

// Enricher renders the provider's DNS data for a host
type Enricher interface {
	Summary(ctx context.Context, domain string) (string, error)
}

// EventSource finds the most recent security event for a Ray ID
type EventSource interface {
	LookupRay(ctx context.Context, rayID string) (*model.SecurityEvent, error)
}

// Deps are the collaborators a Dispatcher drives
type Deps struct {
	Poster     Poster
	Classifier Classifier
	Enricher   Enricher
	Events     EventSource
	Audit      audit.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Options tune dispatcher behaviour
type Options struct {
	// ProviderLabel titles the provider flag line, e.g. "Cloudflare"
	ProviderLabel string
	// AsyncWebsite runs website lookups in the background
	AsyncWebsite bool
}

// Dispatcher routes slash commands to lookups and posts the replies
type Dispatcher struct {
	poster        Poster
	classifier    Classifier
	enricher      Enricher
	events        EventSource
	audit         audit.Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	providerLabel string
	async         bool

	tasks sync.WaitGroup
}

// New creates a new Dispatcher
func New(deps Deps, opts Options) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditor := deps.Audit
	if auditor == nil {
		auditor = audit.NopPublisher{}
	}
	label := opts.ProviderLabel
	if label == "" {
		label = "Cloudflare"
	}

	return &Dispatcher{
		poster:        deps.Poster,
		classifier:    deps.Classifier,
		enricher:      deps.Enricher,
		events:        deps.Events,
		audit:         auditor,
		metrics:       deps.Metrics,
		logger:        logger.With("component", "dispatcher"),
		providerLabel: label,
		async:         opts.AsyncWebsite,
	}
}

// Resolve maps a slash command name or alias to its canonical command.
// Anything unrecognised is help.
func Resolve(name string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/")) {
	case "website":
		return CommandWebsite
	case "cf", "cloudflare", "ray":
		return CommandRay
	default:
		return CommandHelp
	}
}

// Handle runs cmd to completion, or until its background task is started.
// Every outcome, including failures, is reported to the channel; Handle never
// fails the invoking transport.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) {
	start := time.Now()
	name := Resolve(cmd.Name)

	d.logger.Info("Handling command",
		"command", name,
		"raw_command", cmd.Name,
		"channel_id", cmd.ChannelID,
		"user_id", cmd.UserID)

	var outcome string
	switch name {
	case CommandWebsite:
		outcome = d.website(ctx, cmd, start)
	case CommandRay:
		outcome = d.ray(ctx, cmd)
	default:
		outcome = d.help(ctx, cmd)
	}

	// background lookups record their own outcome when done
	if outcome == OutcomeAsync {
		return
	}
	d.record(ctx, name, cmd, outcome, start)
}

// Wait blocks until every background task has finished
func (d *Dispatcher) Wait() {
	d.tasks.Wait()
}

// post delivers msg, logging instead of failing when delivery does not work
func (d *Dispatcher) post(ctx context.Context, channelID string, msg Message) {
	if err := d.poster.Post(ctx, channelID, msg); err != nil {
		d.logger.Error("Failed to post message", "channel_id", channelID, "error", err)
	}
}

func (d *Dispatcher) postText(ctx context.Context, channelID, text string) {
	d.post(ctx, channelID, Message{Text: text})
}

func (d *Dispatcher) record(ctx context.Context, name string, cmd Command, outcome string, start time.Time) {
	elapsed := time.Since(start)
	d.metrics.ObserveCommand(name, outcome, elapsed)

	record := audit.NewRecord(name, cmd.ChannelID, cmd.UserID, strings.TrimSpace(cmd.Text), outcome, elapsed)
	if err := d.audit.Publish(ctx, record); err != nil {
		d.logger.Warn("Audit record dropped", "record_id", record.ID, "error", err)
	}

	d.logger.Info("Command handled",
		"command", name,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds())
}

// SplitArgs splits text with shell quoting rules, falling back to plain
// whitespace splitting when the quoting is unbalanced
func SplitArgs(text string) []string {
	args, err := shlex.Split(text)
	if err != nil {
		return strings.Fields(text)
	}
	return args
}

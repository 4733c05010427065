package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sgerhart/webby/internal/model"
)

const (
	usageWebsite  = "Usage: /website [website URL]"
	invalidDomain = "Invalid website domain / Domain not found."
	hostNotFound  = "Not Found"
)

// website validates the argument, acknowledges, and runs the lookup inline
// or as a background task
func (d *Dispatcher) website(ctx context.Context, cmd Command, start time.Time) string {
	args := SplitArgs(cmd.Text)
	if len(args) == 0 {
		d.postText(ctx, cmd.ChannelID, usageWebsite)
		return OutcomeUsage
	}
	target := args[0]

	d.postText(ctx, cmd.ChannelID, fmt.Sprintf("Gathering info about `%s`...", target))

	if !d.async {
		return d.lookupWebsite(ctx, cmd.ChannelID, target)
	}

	// The task outlives the request that triggered it and posts its own reply
	bg := context.WithoutCancel(ctx)
	d.tasks.Add(1)
	go func() {
		defer d.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Website lookup panicked", "target", target, "panic", r)
				d.record(bg, CommandWebsite, cmd, OutcomeError, start)
			}
		}()

		outcome := d.lookupWebsite(bg, cmd.ChannelID, target)
		d.record(bg, CommandWebsite, cmd, outcome, start)
	}()

	return OutcomeAsync
}

// lookupWebsite classifies target and posts the combined reply
func (d *Dispatcher) lookupWebsite(ctx context.Context, channelID, target string) string {
	result, err := d.classifier.Classify(ctx, target)
	if err != nil {
		if !model.IsKind(err, model.KindInvalidDomain) {
			d.logger.Error("Classification failed", "target", target, "error", err)
		}
		d.postText(ctx, channelID, invalidDomain)
		return OutcomeInvalid
	}

	reply := d.formatWebsite(result)

	if result.IsTargetProvider {
		summary, err := d.enrich(ctx, result.Host)
		if err != nil {
			d.logger.Warn("DNS enrichment failed", "host", result.Host, "error", err)
			reply += "\nDNS Lookup Error: " + model.UserMessage(err)
		} else {
			reply += "\n" + summary
		}
	}

	d.post(ctx, channelID, Message{Text: reply})
	return OutcomeOK
}

func (d *Dispatcher) enrich(ctx context.Context, host string) (string, error) {
	if d.enricher == nil {
		return "", fmt.Errorf("DNS enrichment is not configured")
	}
	return d.enricher.Summary(ctx, host)
}

// formatWebsite renders the base website reply
func (d *Dispatcher) formatWebsite(c *model.Classification) string {
	hosts := hostNotFound
	if len(c.HostIPs) > 0 {
		hosts = strings.Join(c.HostIPs, ", ")
	}

	owners := make([]string, 0, len(c.Ownership))
	for _, entry := range c.Ownership {
		owners = append(owners, fmt.Sprintf("%s (%s)", entry.IP, entry.Organization))
	}

	fronted := "No"
	if c.IsTargetProvider {
		fronted = "Yes"
	}

	return fmt.Sprintf("*Website:* %s\n*Host:* %s\n*IP Ownership:* %s\n*%s:* %s",
		c.Host, hosts, strings.Join(owners, ", "), d.providerLabel, fronted)
}

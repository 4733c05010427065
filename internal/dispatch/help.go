package dispatch

import (
	"context"
	"fmt"

	"github.com/nlopes/slack"
)

func (d *Dispatcher) help(ctx context.Context, cmd Command) string {
	d.post(ctx, cmd.ChannelID, HelpMessage(d.providerLabel))
	return OutcomeHelp
}

// HelpMessage describes the supported commands as Block Kit sections with a
// plain-text fallback
func HelpMessage(providerLabel string) Message {
	intro := fmt.Sprintf("Hi! I'm *Webby*, your %s & web tools assistant.\n\nHere are the commands I support:", providerLabel)
	ray := fmt.Sprintf("*`/cf -ray [ray_id]`* or *`/cloudflare -ray [ray_id]`*\n"+
		"Look up %s firewall events for a specific Ray ID.\n\n"+
		"*Example:* `/cf -ray 783dd7324ebfbb62`", providerLabel)
	rayNote := "_Ray IDs must be tied to firewall/security events to return data, " +
		"and there may be a short delay (up to 1 minute) after an event is logged._"
	website := "*`/website [website_url]`*\n" +
		"Check hosting, IP ownership, and DNS records for a domain.\n\n" +
		"*Example:* `/website www.example.com`"
	outro := "Need help? Just type *`/webby`* or *`/help`* anytime."

	blocks := []slack.Block{
		section(intro),
		slack.NewDividerBlock(),
		section(ray),
		slack.NewContextBlock("", markdown(rayNote)),
		slack.NewDividerBlock(),
		section(website),
		slack.NewDividerBlock(),
		section(outro),
	}

	fallback := fmt.Sprintf("Webby commands: /website [website URL], /cf -ray [ray_id] (or /cloudflare -ray [ray_id]) for %s firewall events, /webby or /help for this message.", providerLabel)

	return Message{Text: fallback, Blocks: blocks}
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(markdown(text), nil, nil)
}

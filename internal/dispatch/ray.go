package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sgerhart/webby/internal/model"
)

const (
	usageRay     = "Usage: /cf -ray [ray_id] or /cloudflare -ray [ray_id]"
	invalidRayID = "Invalid Ray ID format. A Ray ID is a 16-character hex string (e.g., 783dd7324ebfbb62)."
	noRayEvents  = "No firewall events found for that Ray ID."
)

var rayIDPattern = regexp.MustCompile(`^[a-fA-F0-9]{16}$`)

// ValidRayID reports whether id is exactly 16 hex characters
func ValidRayID(id string) bool {
	return rayIDPattern.MatchString(id)
}

// ParseRayCommand extracts the Ray ID from "-ray <id>". Anything else is a
// MalformedCommand error carrying the message to show the user.
func ParseRayCommand(text string) (string, error) {
	args := SplitArgs(text)
	if len(args) != 2 || args[0] != "-ray" {
		return "", model.NewMalformedCommandError(usageRay)
	}
	if !ValidRayID(args[1]) {
		return "", model.NewMalformedCommandError(invalidRayID)
	}
	return args[1], nil
}

func (d *Dispatcher) ray(ctx context.Context, cmd Command) string {
	rayID, err := ParseRayCommand(cmd.Text)
	if err != nil {
		d.postText(ctx, cmd.ChannelID, model.UserMessage(err))
		return OutcomeUsage
	}

	if d.events == nil {
		d.postText(ctx, cmd.ChannelID, "Error fetching data: security event lookups are not configured")
		return OutcomeError
	}

	event, err := d.events.LookupRay(ctx, rayID)
	if err != nil {
		d.logger.Error("Ray ID lookup failed", "ray_id", rayID, "error", err)
		d.postText(ctx, cmd.ChannelID, rayErrorText(err))
		return OutcomeError
	}
	if event == nil {
		d.postText(ctx, cmd.ChannelID, noRayEvents)
		return OutcomeNotFound
	}

	d.postText(ctx, cmd.ChannelID, FormatSecurityEvent(event))
	return OutcomeOK
}

// rayErrorText turns an event lookup failure into the message shown to the user
func rayErrorText(err error) string {
	var lookupErr *model.LookupError
	if !errors.As(err, &lookupErr) || lookupErr.Kind != model.KindUpstream {
		return "Error fetching data: " + err.Error()
	}

	detail, _ := lookupErr.Context["detail"].(string)
	if strings.HasPrefix(detail, "GraphQL error:") || strings.HasPrefix(detail, "Non-JSON response received:") {
		return detail
	}

	status := model.StatusCode(err)
	if status == 0 {
		return "Error fetching data: " + detail
	}
	return fmt.Sprintf("Error fetching data: %d %s", status, detail)
}

// FormatSecurityEvent renders every field of ev, substituting "unknown" for
// those the provider omitted
func FormatSecurityEvent(ev *model.SecurityEvent) string {
	datetime := model.Unknown
	if ev.Datetime != nil {
		datetime = ev.Datetime.UTC().Format(time.RFC3339)
	}

	botScore := model.Unknown
	if ev.BotScore != nil {
		botScore = strconv.Itoa(*ev.BotScore)
	}

	path := model.StringOrUnknown(ev.Path)
	if ev.Query != nil && *ev.Query != "" {
		path += "?" + strings.TrimPrefix(*ev.Query, "?")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Ray ID:* `%s`\n", ev.RayID)
	fmt.Fprintf(&b, "*Datetime:* %s\n", datetime)
	fmt.Fprintf(&b, "*Host:* %s\n", model.StringOrUnknown(ev.Host))
	fmt.Fprintf(&b, "*Path:* `%s`\n", path)

	b.WriteString("\n_Firewall Details:_\n")
	fmt.Fprintf(&b, "*Action:* %s\n", model.StringOrUnknown(ev.Action))
	fmt.Fprintf(&b, "*Source:* %s\n", model.StringOrUnknown(ev.Source))

	b.WriteString("\n_Bot Management:_\n")
	fmt.Fprintf(&b, "*Bot Score:* %s\n", botScore)
	fmt.Fprintf(&b, "*Bot Score Source:* %s\n", model.StringOrUnknown(ev.BotScoreSource))
	fmt.Fprintf(&b, "*JA3 Fingerprint:* %s\n", model.StringOrUnknown(ev.JA3))
	fmt.Fprintf(&b, "*JA4 Fingerprint:* %s\n", model.StringOrUnknown(ev.JA4))

	b.WriteString("\n_Client Details:_\n")
	fmt.Fprintf(&b, "*IP:* %s (%s)\n", model.StringOrUnknown(ev.ClientIP), model.StringOrUnknown(ev.ClientCountry))
	fmt.Fprintf(&b, "*ASN:* %s\n", model.StringOrUnknown(ev.ClientASN))
	fmt.Fprintf(&b, "*User Agent:* `%s`", model.StringOrUnknown(ev.UserAgent))

	return b.String()
}

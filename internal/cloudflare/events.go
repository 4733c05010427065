package cloudflare

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sgerhart/webby/internal/model"
)

const firewallEventsQuery = `query ListFirewallEvents($zoneTag: string, $filter: FirewallEventsAdaptiveFilter_InputObject) {
  viewer {
    zones(filter: { zoneTag: $zoneTag }) {
      firewallEventsAdaptive(filter: $filter, limit: 1, orderBy: [datetime_DESC]) {
        action
        clientAsn
        clientCountryName
        clientIP
        clientRequestPath
        clientRequestQuery
        clientRequestHTTPHost
        datetime
        source
        userAgent
        botScore
        botScoreSrcName
        ja3Hash
        ja4
      }
    }
  }
}`

// logpullFields are the Logpull fields mapped onto a SecurityEvent
var logpullFields = []string{
	"RayID",
	"EdgeStartTimestamp",
	"ClientIP",
	"ClientASN",
	"ClientCountry",
	"ClientRequestHost",
	"ClientRequestPath",
	"ClientRequestURI",
	"ClientRequestUserAgent",
	"SecurityAction",
	"SecuritySources",
	"BotScore",
	"BotScoreSrc",
	"JA3Hash",
	"JA4",
}

// GraphQLEvents finds security events through the GraphQL analytics API
type GraphQLEvents struct {
	client   *Client
	zoneTag  string
	lookback time.Duration
	now      func() time.Time
}

// NewGraphQLEvents creates an event source querying firewallEventsAdaptive
// for zoneTag over the last lookback
func (c *Client) NewGraphQLEvents(zoneTag string, lookback time.Duration) *GraphQLEvents {
	return &GraphQLEvents{
		client:   c,
		zoneTag:  zoneTag,
		lookback: lookback,
		now:      time.Now,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLResponse struct {
	Data *struct {
		Viewer struct {
			Zones []struct {
				FirewallEventsAdaptive []firewallEvent `json:"firewallEventsAdaptive"`
			} `json:"zones"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type firewallEvent struct {
	Action                *string    `json:"action"`
	ClientAsn             *string    `json:"clientAsn"`
	ClientCountryName     *string    `json:"clientCountryName"`
	ClientIP              *string    `json:"clientIP"`
	ClientRequestPath     *string    `json:"clientRequestPath"`
	ClientRequestQuery    *string    `json:"clientRequestQuery"`
	ClientRequestHTTPHost *string    `json:"clientRequestHTTPHost"`
	Datetime              *time.Time `json:"datetime"`
	Source                *string    `json:"source"`
	UserAgent             *string    `json:"userAgent"`
	BotScore              *int       `json:"botScore"`
	BotScoreSrcName       *string    `json:"botScoreSrcName"`
	Ja3Hash               *string    `json:"ja3Hash"`
	Ja4                   *string    `json:"ja4"`
}

// LookupRay returns the most recent firewall event for rayID, or nil when
// the window holds none
func (g *GraphQLEvents) LookupRay(ctx context.Context, rayID string) (*model.SecurityEvent, error) {
	now := g.now().UTC()
	payload, err := json.Marshal(graphQLRequest{
		Query: firewallEventsQuery,
		Variables: map[string]interface{}{
			"zoneTag": g.zoneTag,
			"filter": map[string]interface{}{
				"rayName":      rayID,
				"datetime_geq": now.Add(-g.lookback).Format(time.RFC3339),
				"datetime_leq": now.Format(time.RFC3339),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := g.client.newRequest(ctx, http.MethodPost, "/graphql", nil, payload)
	if err != nil {
		return nil, err
	}

	body, err := g.client.do("graphql", req)
	if err != nil {
		return nil, err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewUpstreamError("graphql", http.StatusOK, "Non-JSON response received: "+truncate(string(body)), err)
	}
	if len(resp.Errors) > 0 {
		return nil, model.NewUpstreamError("graphql", http.StatusOK, "GraphQL error: "+resp.Errors[0].Message, nil)
	}

	if resp.Data == nil || len(resp.Data.Viewer.Zones) == 0 {
		return nil, nil
	}
	events := resp.Data.Viewer.Zones[0].FirewallEventsAdaptive
	if len(events) == 0 {
		return nil, nil
	}

	ev := events[0]
	return &model.SecurityEvent{
		RayID:          rayID,
		Action:         ev.Action,
		Source:         ev.Source,
		ClientIP:       ev.ClientIP,
		ClientASN:      ev.ClientAsn,
		ClientCountry:  ev.ClientCountryName,
		Host:           ev.ClientRequestHTTPHost,
		Path:           ev.ClientRequestPath,
		Query:          ev.ClientRequestQuery,
		UserAgent:      ev.UserAgent,
		BotScore:       ev.BotScore,
		BotScoreSource: ev.BotScoreSrcName,
		JA3:            ev.Ja3Hash,
		JA4:            ev.Ja4,
		Datetime:       ev.Datetime,
	}, nil
}

// LogpullEvents finds security events by scanning raw Logpull output
type LogpullEvents struct {
	client   *Client
	zoneID   string
	lookback time.Duration
	now      func() time.Time
}

// NewLogpullEvents creates an event source scanning zoneID's request logs
// over the last lookback
func (c *Client) NewLogpullEvents(zoneID string, lookback time.Duration) *LogpullEvents {
	return &LogpullEvents{
		client:   c,
		zoneID:   zoneID,
		lookback: lookback,
		now:      time.Now,
	}
}

type logpullRecord struct {
	RayID                  string     `json:"RayID"`
	EdgeStartTimestamp     *time.Time `json:"EdgeStartTimestamp"`
	ClientIP               *string    `json:"ClientIP"`
	ClientASN              *int       `json:"ClientASN"`
	ClientCountry          *string    `json:"ClientCountry"`
	ClientRequestHost      *string    `json:"ClientRequestHost"`
	ClientRequestPath      *string    `json:"ClientRequestPath"`
	ClientRequestURI       *string    `json:"ClientRequestURI"`
	ClientRequestUserAgent *string    `json:"ClientRequestUserAgent"`
	SecurityAction         *string    `json:"SecurityAction"`
	SecuritySources        []string   `json:"SecuritySources"`
	BotScore               *int       `json:"BotScore"`
	BotScoreSrc            *string    `json:"BotScoreSrc"`
	JA3Hash                *string    `json:"JA3Hash"`
	JA4                    *string    `json:"JA4"`
}

// LookupRay scans the Logpull window for rayID and returns the most recent
// match, or nil when there is none
func (l *LogpullEvents) LookupRay(ctx context.Context, rayID string) (*model.SecurityEvent, error) {
	// Logpull only serves data at least one minute old
	end := l.now().UTC().Add(-time.Minute)
	start := end.Add(-l.lookback)

	query := url.Values{}
	query.Set("start", start.Format(time.RFC3339))
	query.Set("end", end.Format(time.RFC3339))
	query.Set("fields", strings.Join(logpullFields, ","))
	query.Set("timestamps", "rfc3339")

	path := fmt.Sprintf("/zones/%s/logs/received", url.PathEscape(l.zoneID))
	req, err := l.client.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := l.client.client.Do(req)
	if err != nil {
		l.client.metrics.ObserveUpstream("logpull", 0)
		return nil, model.NewUpstreamError("logpull", 0, err.Error(), err)
	}
	defer resp.Body.Close()

	l.client.metrics.ObserveUpstream("logpull", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := readBody(resp)
		return nil, model.NewUpstreamError("logpull", resp.StatusCode, truncate(string(body)), nil)
	}

	r, err := bodyReader(resp)
	if err != nil {
		return nil, model.NewUpstreamError("logpull", resp.StatusCode, "failed to decode response", err)
	}
	defer r.Close()

	var best *logpullRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record logpullRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, model.NewUpstreamError("logpull", resp.StatusCode, "Non-JSON response received: "+truncate(string(line)), err)
		}
		if !strings.EqualFold(record.RayID, rayID) {
			continue
		}
		if best == nil || newer(record.EdgeStartTimestamp, best.EdgeStartTimestamp) {
			rec := record
			best = &rec
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, model.NewUpstreamError("logpull", resp.StatusCode, "failed to read response", err)
	}

	if best == nil {
		return nil, nil
	}
	return best.toEvent(rayID), nil
}

func newer(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

func (r *logpullRecord) toEvent(rayID string) *model.SecurityEvent {
	ev := &model.SecurityEvent{
		RayID:          rayID,
		Action:         r.SecurityAction,
		ClientIP:       r.ClientIP,
		ClientCountry:  r.ClientCountry,
		Host:           r.ClientRequestHost,
		Path:           r.ClientRequestPath,
		UserAgent:      r.ClientRequestUserAgent,
		BotScore:       r.BotScore,
		BotScoreSource: r.BotScoreSrc,
		JA3:            r.JA3Hash,
		JA4:            r.JA4,
		Datetime:       r.EdgeStartTimestamp,
	}

	if r.ClientASN != nil {
		asn := strconv.Itoa(*r.ClientASN)
		ev.ClientASN = &asn
	}
	if len(r.SecuritySources) > 0 {
		source := strings.Join(r.SecuritySources, ",")
		ev.Source = &source
	}
	if r.ClientRequestURI != nil {
		if _, q, found := strings.Cut(*r.ClientRequestURI, "?"); found {
			ev.Query = &q
		}
	}

	return ev
}

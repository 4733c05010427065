package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sgerhart/webby/internal/metrics"
	"github.com/sgerhart/webby/internal/model"
)

// maxErrorBody bounds how much of an error response ends up in a chat message
const maxErrorBody = 512

// Client talks to the Cloudflare v4 API
type Client struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Options configures a Client
type Options struct {
	BaseURL  string
	Token    string
	PageSize int
	Timeout  time.Duration
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewClient creates a new Cloudflare API client
func NewClient(opts Options) *Client {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		pageSize: pageSize,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		metrics: opts.Metrics,
		logger:  logger.With("component", "cloudflare"),
	}
}

// envelope is the v4 API response wrapper
type envelope struct {
	Success    bool            `json:"success"`
	Errors     []apiMessage    `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultInfo struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
	Count      int   `json:"count"`
	TotalCount int   `json:"total_count"`
	More       *bool `json:"more,omitempty"`
}

// hasMore reports whether another page follows the one described by info.
// total_pages wins when present; older responses only carry a "more" flag.
func (info *resultInfo) hasMore(requested, received int) bool {
	if received == 0 || info == nil {
		return false
	}
	if info.TotalPages > 0 {
		page := info.Page
		if page == 0 {
			page = requested
		}
		return page < info.TotalPages
	}
	if info.More != nil {
		return *info.More
	}
	return false
}

// ListZones returns every zone visible to the API token
func (c *Client) ListZones(ctx context.Context) ([]model.Zone, error) {
	var zones []model.Zone

	err := c.paginate(ctx, "zones", "/zones", func(raw json.RawMessage) (int, error) {
		var page []model.Zone
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, fmt.Errorf("failed to decode zones: %w", err)
		}
		zones = append(zones, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Zones listed", "count", len(zones))
	return zones, nil
}

// ListDNSRecords returns the records of zone whose name equals name exactly.
// An error on any page discards everything collected so far.
func (c *Client) ListDNSRecords(ctx context.Context, zone model.Zone, name string) ([]model.DNSRecord, error) {
	var records []model.DNSRecord

	path := fmt.Sprintf("/zones/%s/dns_records", url.PathEscape(zone.ID))
	err := c.paginate(ctx, "dns_records", path, func(raw json.RawMessage) (int, error) {
		var page []model.DNSRecord
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, fmt.Errorf("failed to decode dns records: %w", err)
		}
		for _, record := range page {
			if record.Name == name {
				records = append(records, record)
			}
		}
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("DNS records listed", "zone", zone.Name, "name", name, "matched", len(records))
	return records, nil
}

// paginate walks a paginated listing endpoint, handing each page's result to fn
func (c *Client) paginate(ctx context.Context, endpoint, path string, fn func(json.RawMessage) (int, error)) error {
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(c.pageSize))

		env, err := c.get(ctx, endpoint, path, query)
		if err != nil {
			return err
		}

		received, err := fn(env.Result)
		if err != nil {
			return err
		}

		if !env.ResultInfo.hasMore(page, received) {
			return nil
		}
	}
}

// get performs one GET against the v4 API and unwraps the envelope
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) (*envelope, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(endpoint, req)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, model.NewUpstreamError(endpoint, http.StatusOK, "Non-JSON response received: "+truncate(string(body)), err)
	}
	if !env.Success {
		return nil, model.NewUpstreamError(endpoint, http.StatusOK, joinMessages(env.Errors), nil)
	}

	return &env, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends req and returns the body of a 2xx response. Anything else is an
// UpstreamError carrying the status and a truncated body.
func (c *Client) do(endpoint string, req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(endpoint, 0)
		return nil, model.NewUpstreamError(endpoint, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	c.metrics.ObserveUpstream(endpoint, resp.StatusCode)

	body, err := readBody(resp)
	if err != nil {
		return nil, model.NewUpstreamError(endpoint, resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Cloudflare API error",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", truncate(string(body)))
		return nil, model.NewUpstreamError(endpoint, resp.StatusCode, truncate(string(body)), nil)
	}

	return body, nil
}

func joinMessages(messages []apiMessage) string {
	if len(messages) == 0 {
		return "request was not successful"
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, fmt.Sprintf("%d %s", m.Code, m.Message))
	}
	return strings.Join(parts, "; ")
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

package ownership

import (
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/sgerhart/webby/internal/metrics"
	"github.com/sgerhart/webby/internal/model"
)

// Resolver is the subset of DNS resolution the classifier needs
type Resolver interface {
	Resolvable(ctx context.Context, host string) error
	LookupIPs(ctx context.Context, host string) ([]string, error)
}

// Classifier decides whether a host is fronted by the target provider
type Classifier struct {
	resolver Resolver
	lookup   Lookup
	target   string
	backend  string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewClassifier creates a classifier matching organizations against target.
// backend only labels metrics.
func NewClassifier(resolver Resolver, lookup Lookup, target, backend string, m *metrics.Metrics, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		resolver: resolver,
		lookup:   lookup,
		target:   strings.ToLower(target),
		backend:  backend,
		metrics:  m,
		logger:   logger.With("component", "classifier"),
	}
}

// Classify resolves raw to its addresses and looks up the owner of each.
// Only an unresolvable host is an error; per-IP lookup failures are recorded
// as "Lookup Failed" entries.
func (c *Classifier) Classify(ctx context.Context, raw string) (*model.Classification, error) {
	host := NormalizeHost(raw)
	if host == "" {
		return nil, model.NewInvalidDomainError(raw, nil)
	}

	if err := c.resolver.Resolvable(ctx, host); err != nil {
		c.logger.Info("Host does not resolve", "host", host, "error", err)
		return nil, model.NewInvalidDomainError(host, err)
	}

	result := &model.Classification{
		Host:      host,
		HostIPs:   []string{},
		Ownership: []model.OwnershipEntry{},
	}

	ips, err := c.resolver.LookupIPs(ctx, host)
	if err != nil {
		c.logger.Warn("Address lookup failed", "host", host, "error", err)
		return result, nil
	}
	result.HostIPs = append(result.HostIPs, ips...)

	for _, ip := range ips {
		entry := model.OwnershipEntry{IP: ip}

		org, err := c.lookup.Organization(ctx, ip)
		if err != nil {
			lookupErr := model.NewLookupFailedError(ip, err)
			c.logger.Warn("Ownership lookup failed", "ip", ip, "error", lookupErr)
			c.metrics.ObserveOwnershipLookup(c.backend, false)
			entry.Organization = model.LookupFailedOrg
		} else {
			c.metrics.ObserveOwnershipLookup(c.backend, true)
			entry.Organization = org
		}

		result.Ownership = append(result.Ownership, entry)
		if c.matchesTarget(entry) {
			result.IsTargetProvider = true
		}
	}

	c.logger.Debug("Host classified",
		"host", host,
		"ips", len(result.HostIPs),
		"target_provider", result.IsTargetProvider)

	return result, nil
}

func (c *Classifier) matchesTarget(entry model.OwnershipEntry) bool {
	if c.target == "" || entry.Failed() {
		return false
	}
	return strings.Contains(strings.ToLower(entry.Organization), c.target)
}

// NormalizeHost reduces user input to a bare lower-case host name. Slack
// link markup ("<http://x|x>"), URL scheme, userinfo, port, path and query
// are removed.
func NormalizeHost(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		s = s[1 : len(s)-1]
		if link, _, found := strings.Cut(s, "|"); found {
			s = link
		}
	}

	if _, rest, found := strings.Cut(s, "://"); found {
		s = rest
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}

	if strings.HasPrefix(s, "[") {
		// bracketed IPv6 literal, optionally with a port
		if end := strings.Index(s, "]"); end > 0 {
			s = s[1:end]
		}
	} else if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}

	return strings.TrimSuffix(strings.ToLower(s), ".")
}

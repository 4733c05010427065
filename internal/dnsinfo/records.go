package dnsinfo

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/sgerhart/webby/internal/model"
)

// NoProvider is reported when no record resolved to a known organization
const NoProvider = "NA"

// ZoneSource lists the provider's zones and their records
type ZoneSource interface {
	ListZones(ctx context.Context) ([]model.Zone, error)
	ListDNSRecords(ctx context.Context, zone model.Zone, name string) ([]model.DNSRecord, error)
}

// AddressResolver resolves CNAME targets to addresses
type AddressResolver interface {
	LookupIPs(ctx context.Context, host string) ([]string, error)
}

// OrganizationLookup maps an IP to its registered owner
type OrganizationLookup interface {
	Organization(ctx context.Context, ip string) (string, error)
}

// Aggregator gathers the provider's DNS records for a domain and infers who
// hosts them
type Aggregator struct {
	source   ZoneSource
	resolver AddressResolver
	lookup   OrganizationLookup
	logger   *slog.Logger
}

// NewAggregator creates a new record aggregator
func NewAggregator(source ZoneSource, resolver AddressResolver, lookup OrganizationLookup, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		source:   source,
		resolver: resolver,
		lookup:   lookup,
		logger:   logger.With("component", "aggregator"),
	}
}

// ListRecords returns zone's records named exactly domain
func (a *Aggregator) ListRecords(ctx context.Context, zone model.Zone, domain string) ([]model.DNSRecord, error) {
	records, err := a.source.ListDNSRecords(ctx, zone, domain)
	if err != nil {
		return nil, err
	}

	// The source filters already; enforce exact names regardless
	matched := make([]model.DNSRecord, 0, len(records))
	for _, record := range records {
		if record.Name == domain {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// InferProvider returns the sorted, comma-joined set of organizations owning
// the addresses behind records, or "NA" when there are none
func (a *Aggregator) InferProvider(ctx context.Context, records []model.DNSRecord) string {
	orgs := make(map[string]struct{})

	for _, record := range records {
		for _, ip := range a.recordIPs(ctx, record) {
			org, err := a.lookup.Organization(ctx, ip)
			if err != nil {
				a.logger.Debug("Provider lookup failed", "ip", ip, "error", err)
				continue
			}
			if org != "" {
				orgs[org] = struct{}{}
			}
		}
	}

	if len(orgs) == 0 {
		return NoProvider
	}

	names := make([]string, 0, len(orgs))
	for org := range orgs {
		names = append(names, org)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (a *Aggregator) recordIPs(ctx context.Context, record model.DNSRecord) []string {
	switch strings.ToUpper(record.Type) {
	case "A", "AAAA":
		if net.ParseIP(record.Content) == nil {
			return nil
		}
		return []string{record.Content}
	case "CNAME":
		ips, err := a.resolver.LookupIPs(ctx, strings.TrimSuffix(record.Content, "."))
		if err != nil {
			a.logger.Debug("CNAME target did not resolve", "target", record.Content, "error", err)
			return nil
		}
		return ips
	default:
		return nil
	}
}

// Summary renders the provider's DNS records for domain. Zone and listing
// failures are returned to the caller.
func (a *Aggregator) Summary(ctx context.Context, domain string) (string, error) {
	zones, err := a.source.ListZones(ctx)
	if err != nil {
		return "", err
	}

	zone, err := FindZone(domain, zones)
	if err != nil {
		return "", err
	}

	records, err := a.ListRecords(ctx, zone, domain)
	if err != nil {
		return "", err
	}

	a.logger.Info("DNS records gathered", "domain", domain, "zone", zone.Name, "records", len(records))

	if len(records) == 0 {
		return fmt.Sprintf("No DNS records found for *%s*.", domain), nil
	}

	var b strings.Builder
	b.WriteString("*DNS Records:*\n")
	for _, record := range records {
		fmt.Fprintf(&b, " • Content: %s, Type: %s\n", record.Content, record.Type)
	}
	fmt.Fprintf(&b, "*Provider:* %s", a.InferProvider(ctx, records))
	return b.String(), nil
}

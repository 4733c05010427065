package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ErrNoAddresses is returned when a name exists but has no A/AAAA records
var ErrNoAddresses = errors.New("no addresses found")

// Resolver resolves host names to IP addresses
type Resolver interface {
	// Resolvable checks that host resolves to at least one address
	Resolvable(ctx context.Context, host string) error
	// LookupIPs returns all IPv4 and IPv6 addresses of host, deduplicated and sorted
	LookupIPs(ctx context.Context, host string) ([]string, error)
}

// DNSResolver resolves names by querying nameservers directly
type DNSResolver struct {
	client  *dns.Client
	servers []string
	logger  *slog.Logger
}

// NewDNSResolver creates a resolver for server ("host" or "host:port"). An
// empty server uses the nameservers from /etc/resolv.conf.
func NewDNSResolver(server string, timeout time.Duration, logger *slog.Logger) (*DNSResolver, error) {
	servers, err := nameservers(server)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DNSResolver{
		client:  &dns.Client{Timeout: timeout},
		servers: servers,
		logger:  logger.With("component", "resolver"),
	}, nil
}

func nameservers(server string) ([]string, error) {
	if server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		return []string{server}, nil
	}

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, fmt.Errorf("failed to read resolv.conf: %w", err)
	}
	if len(conf.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured in resolv.conf")
	}

	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return servers, nil
}

// Resolvable checks that host has at least one A or AAAA record
func (r *DNSResolver) Resolvable(ctx context.Context, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}

	ips, err := r.query(ctx, host, dns.TypeA)
	if err == nil && len(ips) > 0 {
		return nil
	}

	ips6, err6 := r.query(ctx, host, dns.TypeAAAA)
	if err6 == nil && len(ips6) > 0 {
		return nil
	}

	if err != nil {
		return err
	}
	if err6 != nil {
		return err6
	}
	return ErrNoAddresses
}

// LookupIPs returns all A and AAAA addresses of host. CNAME chains are
// followed by the recursive nameserver; only address records are collected.
func (r *DNSResolver) LookupIPs(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}

	seen := make(map[string]struct{})
	var firstErr error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ips, err := r.query(ctx, host, qtype)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, ip := range ips {
			seen[ip] = struct{}{}
		}
	}

	if len(seen) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, ErrNoAddresses
	}

	result := make([]string, 0, len(seen))
	for ip := range seen {
		result = append(result, ip)
	}
	sort.Strings(result)
	return result, nil
}

// query asks each nameserver in turn until one answers
func (r *DNSResolver) query(ctx context.Context, host string, qtype uint16) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(strings.TrimSuffix(host, ".")), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = fmt.Errorf("query %s %s via %s: %w", host, dns.TypeToString[qtype], server, err)
			r.logger.Debug("DNS query failed", "host", host, "type", dns.TypeToString[qtype], "server", server, "error", err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
			return addresses(resp.Answer), nil
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%s: %s", host, dns.RcodeToString[resp.Rcode])
		default:
			lastErr = fmt.Errorf("query %s %s via %s: %s", host, dns.TypeToString[qtype], server, dns.RcodeToString[resp.Rcode])
		}
	}

	return nil, lastErr
}

func addresses(answer []dns.RR) []string {
	var ips []string
	for _, rr := range answer {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A.String())
		case *dns.AAAA:
			ips = append(ips, v.AAAA.String())
		}
	}
	return ips
}

package ownership

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ammario/ipisp/v2"
	"github.com/openrdap/rdap"
)

// UnknownNetwork is reported when the registry answered without a network name
const UnknownNetwork = "Unknown"

// Lookup maps one IP address to its registered network owner
type Lookup interface {
	Organization(ctx context.Context, ip string) (string, error)
}

// RDAPLookup queries the regional registries over RDAP, bootstrapped via IANA
type RDAPLookup struct {
	client *rdap.Client
	server *url.URL
}

// NewRDAPLookup creates an RDAP lookup. server overrides IANA bootstrap when non-nil.
func NewRDAPLookup(timeout time.Duration, server *url.URL) *RDAPLookup {
	return &RDAPLookup{
		client: &rdap.Client{
			HTTP: &http.Client{Timeout: timeout},
		},
		server: server,
	}
}

// Organization returns the RDAP network name covering ip
func (l *RDAPLookup) Organization(ctx context.Context, ip string) (string, error) {
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil {
		return "", fmt.Errorf("invalid IP address %q", ip)
	}

	req := rdap.NewIPRequest(addr).WithContext(ctx)
	if l.server != nil {
		req = req.WithServer(l.server)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rdap query for %s failed: %w", ip, err)
	}

	network, ok := resp.Object.(*rdap.IPNetwork)
	if !ok {
		return "", fmt.Errorf("rdap query for %s returned %T, want ip network", ip, resp.Object)
	}
	if network.Name == "" {
		return UnknownNetwork, nil
	}
	return network.Name, nil
}

// CymruLookup resolves the announcing ISP via the Team Cymru IP-to-ASN service
type CymruLookup struct {
	lookupIP func(ctx context.Context, ip net.IP) (*ipisp.Response, error)
}

// NewCymruLookup creates a lookup backed by Team Cymru's DNS interface
func NewCymruLookup() *CymruLookup {
	return &CymruLookup{lookupIP: ipisp.LookupIP}
}

// Organization returns the ISP name announcing ip
func (l *CymruLookup) Organization(ctx context.Context, ip string) (string, error) {
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil {
		return "", fmt.Errorf("invalid IP address %q", ip)
	}

	resp, err := l.lookupIP(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("cymru lookup for %s failed: %w", ip, err)
	}
	if resp == nil || resp.ISPName == "" {
		return UnknownNetwork, nil
	}
	return resp.ISPName, nil
}

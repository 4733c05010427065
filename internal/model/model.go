package model

import (
	"time"
)

// Unknown is rendered in place of any field the provider omitted
const Unknown = "unknown"

// LookupFailedOrg marks an IP whose ownership lookup failed
const LookupFailedOrg = "Lookup Failed"

// Zone represents a provider-managed DNS zone
type Zone struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// DNSRecord represents a DNS record whose name matched the queried domain exactly
type DNSRecord struct {
	Name    string `json:"name"`
	Type    string `json:"type"`    // A, AAAA, CNAME, MX, TXT, ...
	Content string `json:"content"`
	Proxied *bool  `json:"proxied,omitempty"`
	TTL     *int   `json:"ttl,omitempty"`
}

// OwnershipEntry is the registered network owner of one IP
type OwnershipEntry struct {
	IP           string `json:"ip"`
	Organization string `json:"organization"`
}

// Failed reports whether the ownership lookup for this IP failed
func (e OwnershipEntry) Failed() bool {
	return e.Organization == LookupFailedOrg
}

// Classification is the hosting/ownership picture of one host
type Classification struct {
	Host             string           `json:"host"`
	HostIPs          []string         `json:"host_ips"`
	Ownership        []OwnershipEntry `json:"ownership"`
	IsTargetProvider bool             `json:"is_target_provider"`
}

// SecurityEvent represents one firewall/security log entry matched by Ray ID.
// Every field is optional; the provider may omit any of them.
type SecurityEvent struct {
	RayID          string     `json:"ray_id"`
	Action         *string    `json:"action,omitempty"`
	Source         *string    `json:"source,omitempty"`
	ClientIP       *string    `json:"client_ip,omitempty"`
	ClientASN      *string    `json:"client_asn,omitempty"`
	ClientCountry  *string    `json:"client_country,omitempty"`
	Host           *string    `json:"host,omitempty"`
	Path           *string    `json:"path,omitempty"`
	Query          *string    `json:"query,omitempty"`
	UserAgent      *string    `json:"user_agent,omitempty"`
	BotScore       *int       `json:"bot_score,omitempty"`
	BotScoreSource *string    `json:"bot_score_source,omitempty"`
	JA3            *string    `json:"ja3,omitempty"`
	JA4            *string    `json:"ja4,omitempty"`
	Datetime       *time.Time `json:"datetime,omitempty"`
}

// StringOrUnknown dereferences s, substituting Unknown for nil or empty values
func StringOrUnknown(s *string) string {
	if s == nil || *s == "" {
		return Unknown
	}
	return *s
}

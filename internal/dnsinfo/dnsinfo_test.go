package dnsinfo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/webby/internal/model"
)

func TestFindZone(t *testing.T) {
	zones := []model.Zone{
		{Name: "example.com", ID: "z1"},
		{Name: "sub.example.com", ID: "z2"},
		{Name: "example.org", ID: "z3"},
	}

	tests := []struct {
		name    string
		domain  string
		zones   []model.Zone
		wantID  string
		wantErr bool
	}{
		{name: "single match", domain: "www.example.org", zones: zones, wantID: "z3"},
		{name: "longest match wins", domain: "sub.example.com", zones: zones, wantID: "z2"},
		{name: "deeper name under longest", domain: "a.sub.example.com", zones: zones, wantID: "z2"},
		{name: "apex", domain: "example.com", zones: zones, wantID: "z1"},
		{
			name:   "order does not matter for longest",
			domain: "sub.example.com",
			zones:  []model.Zone{{Name: "sub.example.com", ID: "z2"}, {Name: "example.com", ID: "z1"}},
			wantID: "z2",
		},
		{
			name:   "equal length keeps first seen",
			domain: "www.example.com",
			zones:  []model.Zone{{Name: "example.com", ID: "first"}, {Name: "example.com", ID: "second"}},
			wantID: "first",
		},
		{name: "no match", domain: "example.net", zones: zones, wantErr: true},
		{name: "no zones", domain: "example.com", zones: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindZone(tt.domain, tt.zones)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, model.IsKind(err, model.KindZoneNotFound))
				assert.Equal(t, "Zone for domain '"+tt.domain+"' not found.", model.UserMessage(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

// FindZone's result is always a suffix match at least as long as any other match
func TestFindZone_Properties(t *testing.T) {
	names := []string{"com", "example.com", "b.example.com", "a.b.example.com", "other.net", "net"}
	domains := []string{"x.a.b.example.com", "b.example.com", "shop.example.com", "other.net", "www.other.net", "example.io"}

	for _, domain := range domains {
		var zones []model.Zone
		for _, name := range names {
			zones = append(zones, model.Zone{Name: name, ID: name})
		}

		got, err := FindZone(domain, zones)

		longest := ""
		for _, name := range names {
			if strings.HasSuffix(domain, name) && len(name) > len(longest) {
				longest = name
			}
		}

		if longest == "" {
			assert.Error(t, err, domain)
			continue
		}
		require.NoError(t, err, domain)
		assert.Equal(t, longest, got.Name, domain)
	}
}

// mockSource is a canned zone/record source
type mockSource struct {
	zones      []model.Zone
	zonesErr   error
	records    []model.DNSRecord
	recordsErr error
	gotZone    model.Zone
}

func (m *mockSource) ListZones(ctx context.Context) ([]model.Zone, error) {
	return m.zones, m.zonesErr
}

func (m *mockSource) ListDNSRecords(ctx context.Context, zone model.Zone, name string) ([]model.DNSRecord, error) {
	m.gotZone = zone
	if m.recordsErr != nil {
		return nil, m.recordsErr
	}
	return m.records, nil
}

type mockResolver struct {
	ips map[string][]string
}

func (m *mockResolver) LookupIPs(ctx context.Context, host string) ([]string, error) {
	ips, ok := m.ips[host]
	if !ok {
		return nil, errors.New("NXDOMAIN")
	}
	return ips, nil
}

type mockLookup struct {
	orgs map[string]string
}

func (m *mockLookup) Organization(ctx context.Context, ip string) (string, error) {
	org, ok := m.orgs[ip]
	if !ok {
		return "", errors.New("lookup failed")
	}
	return org, nil
}

func TestListRecords(t *testing.T) {
	source := &mockSource{records: []model.DNSRecord{
		{Name: "example.com", Type: "A", Content: "192.0.2.1"},
		{Name: "www.example.com", Type: "CNAME", Content: "example.com"},
	}}
	a := NewAggregator(source, &mockResolver{}, &mockLookup{}, nil)

	got, err := a.ListRecords(context.Background(), model.Zone{Name: "example.com", ID: "z1"}, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []model.DNSRecord{{Name: "example.com", Type: "A", Content: "192.0.2.1"}}, got)

	source.recordsErr = model.NewUpstreamError("dns_records", 500, "boom", nil)
	got, err = a.ListRecords(context.Background(), model.Zone{Name: "example.com", ID: "z1"}, "example.com")
	assert.Nil(t, got)
	assert.True(t, model.IsKind(err, model.KindUpstream))
}

func TestInferProvider(t *testing.T) {
	resolver := &mockResolver{ips: map[string][]string{
		"lb.example.net": {"198.51.100.1", "198.51.100.2"},
	}}
	lookup := &mockLookup{orgs: map[string]string{
		"192.0.2.1":    "CLOUDFLARENET",
		"2001:db8::1":  "CLOUDFLARENET",
		"198.51.100.1": "AMAZON-02",
		"198.51.100.2": "AMAZON-02",
	}}
	a := NewAggregator(&mockSource{}, resolver, lookup, nil)

	tests := []struct {
		name    string
		records []model.DNSRecord
		want    string
	}{
		{
			name: "deduplicated and sorted",
			records: []model.DNSRecord{
				{Type: "A", Content: "192.0.2.1"},
				{Type: "AAAA", Content: "2001:db8::1"},
				{Type: "CNAME", Content: "lb.example.net."},
			},
			want: "AMAZON-02, CLOUDFLARENET",
		},
		{
			name:    "unresolvable cname tolerated",
			records: []model.DNSRecord{{Type: "CNAME", Content: "gone.example.net"}},
			want:    NoProvider,
		},
		{
			name:    "failed lookup skipped",
			records: []model.DNSRecord{{Type: "A", Content: "203.0.113.1"}, {Type: "A", Content: "192.0.2.1"}},
			want:    "CLOUDFLARENET",
		},
		{
			name:    "non address records ignored",
			records: []model.DNSRecord{{Type: "TXT", Content: "v=spf1 -all"}, {Type: "MX", Content: "mail.example.com"}},
			want:    NoProvider,
		},
		{
			name:    "malformed address",
			records: []model.DNSRecord{{Type: "A", Content: "not-an-ip"}},
			want:    NoProvider,
		},
		{
			name: "no records",
			want: NoProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.InferProvider(context.Background(), tt.records))
		})
	}
}

func TestSummary(t *testing.T) {
	zones := []model.Zone{{Name: "example.com", ID: "z1"}, {Name: "shop.example.com", ID: "z2"}}
	lookup := &mockLookup{orgs: map[string]string{"104.16.1.1": "CLOUDFLARENET"}}

	t.Run("records", func(t *testing.T) {
		source := &mockSource{zones: zones, records: []model.DNSRecord{
			{Name: "www.shop.example.com", Type: "A", Content: "104.16.1.1"},
			{Name: "www.shop.example.com", Type: "TXT", Content: "hello"},
		}}
		a := NewAggregator(source, &mockResolver{}, lookup, nil)

		got, err := a.Summary(context.Background(), "www.shop.example.com")
		require.NoError(t, err)
		assert.Equal(t, "z2", source.gotZone.ID)
		assert.Equal(t, "*DNS Records:*\n"+
			" • Content: 104.16.1.1, Type: A\n"+
			" • Content: hello, Type: TXT\n"+
			"*Provider:* CLOUDFLARENET", got)
	})

	t.Run("no records", func(t *testing.T) {
		a := NewAggregator(&mockSource{zones: zones}, &mockResolver{}, lookup, nil)

		got, err := a.Summary(context.Background(), "example.com")
		require.NoError(t, err)
		assert.Equal(t, "No DNS records found for *example.com*.", got)
	})

	t.Run("zone not found", func(t *testing.T) {
		a := NewAggregator(&mockSource{zones: zones}, &mockResolver{}, lookup, nil)

		_, err := a.Summary(context.Background(), "example.net")
		assert.True(t, model.IsKind(err, model.KindZoneNotFound))
	})

	t.Run("zone listing fails", func(t *testing.T) {
		source := &mockSource{zonesErr: model.NewUpstreamError("zones", 403, "forbidden", nil)}
		a := NewAggregator(source, &mockResolver{}, lookup, nil)

		_, err := a.Summary(context.Background(), "example.com")
		assert.True(t, model.IsKind(err, model.KindUpstream))
		assert.Equal(t, 403, model.StatusCode(err))
	})
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"WEBBY_CONFIG_FILE", "WEBBY_HTTP_ADDR", "SLACK_TOKEN", "SLACK_SIGNING_SECRET",
		"CLOUDFLARE_API_TOKEN", "CLOUDFLARE_ZONE_ID", "CLOUDFLARE_API_URL", "WEBBY_PAGE_SIZE",
		"WEBBY_TARGET_PROVIDER", "WEBBY_PROVIDER_LABEL", "WEBBY_EVENT_SOURCE", "WEBBY_EVENT_LOOKBACK",
		"WEBBY_OWNERSHIP_BACKEND", "WEBBY_DNS_SERVER", "WEBBY_DNS_TIMEOUT", "WEBBY_HTTP_TIMEOUT",
		"WEBBY_ASYNC_WEBSITE", "WEBBY_NATS_URL", "WEBBY_AUDIT_SUBJECT", "WEBBY_DEDUPE_CAP",
		"WEBBY_LOG_LEVEL", "WEBBY_LOG_FORMAT", "WEBBY_HOT_RELOAD",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "webby.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, EventSourceGraphQL, cfg.EventSource)
	assert.Equal(t, DefaultGraphQLLookback, cfg.EventLookback)
	assert.Equal(t, OwnershipRDAP, cfg.OwnershipBackend)
	assert.Equal(t, "Cloudflare", cfg.Label())
	assert.False(t, cfg.AsyncWebsite)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
cloudflare_api_token: file-token
cloudflare_zone_id: zone-from-file
event_source: logpull
dns_timeout: 2s
page_size: 100
async_website: true
`)
	t.Setenv("CLOUDFLARE_ZONE_ID", "zone-from-env")
	t.Setenv("WEBBY_HTTP_TIMEOUT", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.CloudflareAPIToken)
	assert.Equal(t, "zone-from-env", cfg.CloudflareZoneID)
	assert.Equal(t, EventSourceLogpull, cfg.EventSource)
	assert.Equal(t, DefaultLogpullLookback, cfg.EventLookback)
	assert.Equal(t, 2*time.Second, cfg.DNSTimeout)
	assert.Equal(t, 12*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 100, cfg.PageSize)
	assert.True(t, cfg.AsyncWebsite)
	assert.Equal(t, path, cfg.File)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "unknown event source",
			content: "event_source: kafka\n",
			errText: "event_source",
		},
		{
			name:    "unknown ownership backend",
			content: "ownership_backend: whois\n",
			errText: "ownership_backend",
		},
		{
			name:    "bad duration",
			content: "event_lookback: forever\n",
			errText: "event_lookback",
		},
		{
			name:    "page size too large",
			content: "page_size: 10000\n",
			errText: "page_size",
		},
		{
			name:    "unknown key",
			content: "cloudflare_zone: abc\n",
			errText: "cloudflare_zone",
		},
		{
			name:    "wrong type",
			content: "async_website: sometimes\n",
			errText: "async_website",
		},
		{
			name:    "not a mapping",
			content: "- one\n- two\n",
			errText: "invalid config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestManager_Reload(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "event_source: graphql\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	manager := NewManager(cfg, slog.Default())

	var received *Config
	manager.Subscribe(func(c *Config) { received = c })

	require.NoError(t, os.WriteFile(path, []byte("event_source: logpull\nevent_lookback: 10m\n"), 0o600))
	manager.Reload()

	require.NotNil(t, received)
	assert.Equal(t, EventSourceLogpull, received.EventSource)
	assert.Equal(t, 10*time.Minute, received.EventLookback)
	assert.Equal(t, EventSourceLogpull, manager.GetCurrentConfig().EventSource)

	// An invalid file keeps the previous configuration
	received = nil
	require.NoError(t, os.WriteFile(path, []byte("event_source: kafka\n"), 0o600))
	manager.Reload()

	assert.Nil(t, received)
	assert.Equal(t, EventSourceLogpull, manager.GetCurrentConfig().EventSource)
}

func TestManager_StartWithoutFile(t *testing.T) {
	manager := NewManager(Default(), slog.Default())
	assert.NoError(t, manager.Start())
	manager.Stop()
}

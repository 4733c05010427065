package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Event sources for Ray ID lookups
const (
	EventSourceGraphQL = "graphql"
	EventSourceLogpull = "logpull"
)

// Ownership lookup backends
const (
	OwnershipRDAP  = "rdap"
	OwnershipCymru = "cymru"
)

// Default lookback windows per event source
const (
	DefaultGraphQLLookback = 30 * 24 * time.Hour
	DefaultLogpullLookback = 15 * time.Minute
)

// Config holds the webby configuration
type Config struct {
	HTTPAddr string `yaml:"http_addr" json:"http_addr"`

	// Slack
	SlackToken         string `yaml:"slack_token" json:"-"`
	SlackSigningSecret string `yaml:"slack_signing_secret" json:"-"`

	// Cloudflare
	CloudflareAPIToken string `yaml:"cloudflare_api_token" json:"-"`
	CloudflareZoneID   string `yaml:"cloudflare_zone_id" json:"cloudflare_zone_id"`
	CloudflareAPIURL   string `yaml:"cloudflare_api_url" json:"cloudflare_api_url"`
	PageSize           int    `yaml:"page_size" json:"page_size"`

	// Lookup behaviour
	TargetProvider   string        `yaml:"target_provider" json:"target_provider"`
	ProviderLabel    string        `yaml:"provider_label" json:"provider_label"`
	EventSource      string        `yaml:"event_source" json:"event_source"`
	EventLookback    time.Duration `yaml:"event_lookback" json:"event_lookback"`
	OwnershipBackend string        `yaml:"ownership_backend" json:"ownership_backend"`
	DNSServer        string        `yaml:"dns_server" json:"dns_server"`
	DNSTimeout       time.Duration `yaml:"dns_timeout" json:"dns_timeout"`
	HTTPTimeout      time.Duration `yaml:"http_timeout" json:"http_timeout"`
	AsyncWebsite     bool          `yaml:"async_website" json:"async_website"`

	// Audit
	NATSURL      string `yaml:"nats_url" json:"nats_url"`
	AuditSubject string `yaml:"audit_subject" json:"audit_subject"`

	DedupeCap int    `yaml:"dedupe_cap" json:"dedupe_cap"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
	HotReload bool   `yaml:"hot_reload" json:"hot_reload"`

	// Path the configuration was loaded from, if any
	File string `yaml:"-" json:"file,omitempty"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		HTTPAddr:         ":3000",
		CloudflareAPIURL: "https://api.cloudflare.com/client/v4",
		PageSize:         50,
		TargetProvider:   "cloudflare",
		ProviderLabel:    "Cloudflare",
		EventSource:      EventSourceGraphQL,
		OwnershipBackend: OwnershipRDAP,
		DNSTimeout:       5 * time.Second,
		HTTPTimeout:      30 * time.Second,
		AuditSubject:     "webby.commands",
		DedupeCap:        1024,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence (environment wins).
// An empty path falls back to WEBBY_CONFIG_FILE.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("WEBBY_CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.File = path
	}

	cfg.applyEnv()

	if cfg.EventLookback <= 0 {
		cfg.EventLookback = DefaultLookback(cfg.EventSource)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultLookback returns the lookback window used when none is configured
func DefaultLookback(source string) time.Duration {
	if source == EventSourceLogpull {
		return DefaultLogpullLookback
	}
	return DefaultGraphQLLookback
}

// loadFile overlays the YAML file at path onto c
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := validateFile(data); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return file.apply(c)
}

// applyEnv overrides c with any environment variables that are set
func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("WEBBY_HTTP_ADDR", c.HTTPAddr)
	c.SlackToken = getEnv("SLACK_TOKEN", c.SlackToken)
	c.SlackSigningSecret = getEnv("SLACK_SIGNING_SECRET", c.SlackSigningSecret)
	c.CloudflareAPIToken = getEnv("CLOUDFLARE_API_TOKEN", c.CloudflareAPIToken)
	c.CloudflareZoneID = getEnv("CLOUDFLARE_ZONE_ID", c.CloudflareZoneID)
	c.CloudflareAPIURL = getEnv("CLOUDFLARE_API_URL", c.CloudflareAPIURL)
	c.PageSize = getIntEnv("WEBBY_PAGE_SIZE", c.PageSize)
	c.TargetProvider = getEnv("WEBBY_TARGET_PROVIDER", c.TargetProvider)
	c.ProviderLabel = getEnv("WEBBY_PROVIDER_LABEL", c.ProviderLabel)
	c.EventSource = strings.ToLower(getEnv("WEBBY_EVENT_SOURCE", c.EventSource))
	c.EventLookback = getDurationEnv("WEBBY_EVENT_LOOKBACK", c.EventLookback)
	c.OwnershipBackend = strings.ToLower(getEnv("WEBBY_OWNERSHIP_BACKEND", c.OwnershipBackend))
	c.DNSServer = getEnv("WEBBY_DNS_SERVER", c.DNSServer)
	c.DNSTimeout = getDurationEnv("WEBBY_DNS_TIMEOUT", c.DNSTimeout)
	c.HTTPTimeout = getDurationEnv("WEBBY_HTTP_TIMEOUT", c.HTTPTimeout)
	c.AsyncWebsite = getBoolEnv("WEBBY_ASYNC_WEBSITE", c.AsyncWebsite)
	c.NATSURL = getEnv("WEBBY_NATS_URL", c.NATSURL)
	c.AuditSubject = getEnv("WEBBY_AUDIT_SUBJECT", c.AuditSubject)
	c.DedupeCap = getIntEnv("WEBBY_DEDUPE_CAP", c.DedupeCap)
	c.LogLevel = getEnv("WEBBY_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("WEBBY_LOG_FORMAT", c.LogFormat)
	c.HotReload = getBoolEnv("WEBBY_HOT_RELOAD", c.HotReload)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, fmt.Errorf("http_addr cannot be empty"))
	}
	if c.CloudflareAPIURL == "" {
		errs = append(errs, fmt.Errorf("cloudflare_api_url cannot be empty"))
	}
	if c.PageSize <= 0 || c.PageSize > 5000 {
		errs = append(errs, fmt.Errorf("page_size must be between 1 and 5000"))
	}
	if strings.TrimSpace(c.TargetProvider) == "" {
		errs = append(errs, fmt.Errorf("target_provider cannot be empty"))
	}
	if c.EventSource != EventSourceGraphQL && c.EventSource != EventSourceLogpull {
		errs = append(errs, fmt.Errorf("event_source must be %q or %q", EventSourceGraphQL, EventSourceLogpull))
	}
	if c.EventLookback < 0 {
		errs = append(errs, fmt.Errorf("event_lookback cannot be negative"))
	}
	if c.OwnershipBackend != OwnershipRDAP && c.OwnershipBackend != OwnershipCymru {
		errs = append(errs, fmt.Errorf("ownership_backend must be %q or %q", OwnershipRDAP, OwnershipCymru))
	}
	if c.DNSTimeout < 0 || c.HTTPTimeout < 0 {
		errs = append(errs, fmt.Errorf("timeouts cannot be negative"))
	}
	if c.DedupeCap <= 0 {
		errs = append(errs, fmt.Errorf("dedupe_cap must be positive"))
	}

	return errors.Join(errs...)
}

// Label returns the provider label shown in replies
func (c *Config) Label() string {
	if c.ProviderLabel != "" {
		return c.ProviderLabel
	}
	return c.TargetProvider
}

// fileConfig mirrors Config for YAML decoding. Durations are strings
// ("720h", "15m") and every field is optional.
type fileConfig struct {
	HTTPAddr           *string `yaml:"http_addr"`
	SlackToken         *string `yaml:"slack_token"`
	SlackSigningSecret *string `yaml:"slack_signing_secret"`
	CloudflareAPIToken *string `yaml:"cloudflare_api_token"`
	CloudflareZoneID   *string `yaml:"cloudflare_zone_id"`
	CloudflareAPIURL   *string `yaml:"cloudflare_api_url"`
	PageSize           *int    `yaml:"page_size"`
	TargetProvider     *string `yaml:"target_provider"`
	ProviderLabel      *string `yaml:"provider_label"`
	EventSource        *string `yaml:"event_source"`
	EventLookback      *string `yaml:"event_lookback"`
	OwnershipBackend   *string `yaml:"ownership_backend"`
	DNSServer          *string `yaml:"dns_server"`
	DNSTimeout         *string `yaml:"dns_timeout"`
	HTTPTimeout        *string `yaml:"http_timeout"`
	AsyncWebsite       *bool   `yaml:"async_website"`
	NATSURL            *string `yaml:"nats_url"`
	AuditSubject       *string `yaml:"audit_subject"`
	DedupeCap          *int    `yaml:"dedupe_cap"`
	LogLevel           *string `yaml:"log_level"`
	LogFormat          *string `yaml:"log_format"`
	HotReload          *bool   `yaml:"hot_reload"`
}

func (f *fileConfig) apply(c *Config) error {
	setString(&c.HTTPAddr, f.HTTPAddr)
	setString(&c.SlackToken, f.SlackToken)
	setString(&c.SlackSigningSecret, f.SlackSigningSecret)
	setString(&c.CloudflareAPIToken, f.CloudflareAPIToken)
	setString(&c.CloudflareZoneID, f.CloudflareZoneID)
	setString(&c.CloudflareAPIURL, f.CloudflareAPIURL)
	setString(&c.TargetProvider, f.TargetProvider)
	setString(&c.ProviderLabel, f.ProviderLabel)
	setString(&c.EventSource, f.EventSource)
	setString(&c.OwnershipBackend, f.OwnershipBackend)
	setString(&c.DNSServer, f.DNSServer)
	setString(&c.NATSURL, f.NATSURL)
	setString(&c.AuditSubject, f.AuditSubject)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogFormat, f.LogFormat)

	if f.PageSize != nil {
		c.PageSize = *f.PageSize
	}
	if f.DedupeCap != nil {
		c.DedupeCap = *f.DedupeCap
	}
	if f.AsyncWebsite != nil {
		c.AsyncWebsite = *f.AsyncWebsite
	}
	if f.HotReload != nil {
		c.HotReload = *f.HotReload
	}

	durations := []struct {
		name  string
		value *string
		dst   *time.Duration
	}{
		{"event_lookback", f.EventLookback, &c.EventLookback},
		{"dns_timeout", f.DNSTimeout, &c.DNSTimeout},
		{"http_timeout", f.HTTPTimeout, &c.HTTPTimeout},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		parsed, err := parseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, *d.value, err)
		}
		*d.dst = parsed
	}

	c.EventSource = strings.ToLower(c.EventSource)
	c.OwnershipBackend = strings.ToLower(c.OwnershipBackend)
	return nil
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}

// parseDuration accepts Go duration strings and plain integers (seconds)
func parseDuration(value string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable with a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable with a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := parseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getBoolEnv gets a bool environment variable with a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

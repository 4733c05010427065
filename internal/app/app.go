package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sgerhart/webby/internal/audit"
	"github.com/sgerhart/webby/internal/cloudflare"
	"github.com/sgerhart/webby/internal/config"
	"github.com/sgerhart/webby/internal/dispatch"
	"github.com/sgerhart/webby/internal/dnsinfo"
	"github.com/sgerhart/webby/internal/metrics"
	"github.com/sgerhart/webby/internal/ownership"
	"github.com/sgerhart/webby/internal/resolver"
)

// Components are the lookup services built from one configuration snapshot
type Components struct {
	Cloudflare *cloudflare.Client
	Resolver   *resolver.DNSResolver
	Lookup     ownership.Lookup
	Classifier *ownership.Classifier
	Aggregator *dnsinfo.Aggregator
	Events     dispatch.EventSource
}

// BuildComponents wires the lookup services described by cfg
func BuildComponents(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Components, error) {
	res, err := resolver.NewDNSResolver(cfg.DNSServer, cfg.DNSTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	var lookup ownership.Lookup
	switch cfg.OwnershipBackend {
	case config.OwnershipCymru:
		lookup = ownership.NewCymruLookup()
	default:
		lookup = ownership.NewRDAPLookup(cfg.HTTPTimeout, nil)
	}

	cf := cloudflare.NewClient(cloudflare.Options{
		BaseURL:  cfg.CloudflareAPIURL,
		Token:    cfg.CloudflareAPIToken,
		PageSize: cfg.PageSize,
		Timeout:  cfg.HTTPTimeout,
		Metrics:  m,
		Logger:   logger,
	})

	var events dispatch.EventSource
	switch cfg.EventSource {
	case config.EventSourceLogpull:
		events = cf.NewLogpullEvents(cfg.CloudflareZoneID, cfg.EventLookback)
	default:
		events = cf.NewGraphQLEvents(cfg.CloudflareZoneID, cfg.EventLookback)
	}

	return &Components{
		Cloudflare: cf,
		Resolver:   res,
		Lookup:     lookup,
		Classifier: ownership.NewClassifier(res, lookup, cfg.TargetProvider, cfg.OwnershipBackend, m, logger),
		Aggregator: dnsinfo.NewAggregator(cf, res, lookup, logger),
		Events:     events,
	}, nil
}

// NewDispatcher builds a dispatcher for cfg posting through poster
func NewDispatcher(cfg *config.Config, poster dispatch.Poster, auditor audit.Publisher, m *metrics.Metrics, logger *slog.Logger) (*dispatch.Dispatcher, error) {
	c, err := BuildComponents(cfg, m, logger)
	if err != nil {
		return nil, err
	}

	return dispatch.New(dispatch.Deps{
		Poster:     poster,
		Classifier: c.Classifier,
		Enricher:   c.Aggregator,
		Events:     c.Events,
		Audit:      auditor,
		Metrics:    m,
		Logger:     logger,
	}, dispatch.Options{
		ProviderLabel: cfg.Label(),
		AsyncWebsite:  cfg.AsyncWebsite,
	}), nil
}

// Holder serves commands with the current dispatcher. Swapping leaves
// in-flight commands on the dispatcher they started with.
type Holder struct {
	current atomic.Pointer[dispatch.Dispatcher]

	mu      sync.Mutex
	retired []*dispatch.Dispatcher
}

// NewHolder creates a holder serving d
func NewHolder(d *dispatch.Dispatcher) *Holder {
	h := &Holder{}
	h.current.Store(d)
	return h
}

// Handle runs cmd on the current dispatcher
func (h *Holder) Handle(ctx context.Context, cmd dispatch.Command) {
	h.current.Load().Handle(ctx, cmd)
}

// Swap installs d as the current dispatcher
func (h *Holder) Swap(d *dispatch.Dispatcher) {
	old := h.current.Swap(d)
	if old != nil {
		h.mu.Lock()
		h.retired = append(h.retired, old)
		h.mu.Unlock()
	}
}

// Current returns the dispatcher new commands go to
func (h *Holder) Current() *dispatch.Dispatcher {
	return h.current.Load()
}

// Wait blocks until background tasks of the current and every retired
// dispatcher have finished
func (h *Holder) Wait() {
	h.mu.Lock()
	retired := append([]*dispatch.Dispatcher(nil), h.retired...)
	h.mu.Unlock()

	for _, d := range retired {
		d.Wait()
	}
	h.current.Load().Wait()
}

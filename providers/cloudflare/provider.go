// Package cloudflare implements the dnsapi.Client interface for
// Cloudflare DNS using the official API client.
package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	cf "github.com/cloudflare/cloudflare-go"

	"gitlab.bluewillows.net/root/flarekeep/pkg/dnsapi"
	"gitlab.bluewillows.net/root/flarekeep/pkg/httputil"
)

// ProviderName identifies this provider in wrapped errors.
const ProviderName = "cloudflare"

// recordComment is attached to records the daemon creates, so they are
// recognizable in the Cloudflare dashboard.
const recordComment = "managed by flarekeep"

// IPSource yields the host's current public address, normally an
// *ipresolver.Resolver.
type IPSource interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// Provider implements dnsapi.Client for Cloudflare DNS.
type Provider struct {
	api    *cf.API
	ips    IPSource
	logger *slog.Logger

	baseURL    string
	httpClient *http.Client

	// Zone lookups are cached for the process lifetime; a zone does
	// not move while the daemon runs.
	mu      sync.RWMutex
	zoneIDs map[string]string
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithBaseURL sets a custom API endpoint (useful for testing).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// New creates a Cloudflare provider authenticated by an API token.
func New(token string, ips IPSource, opts ...Option) (*Provider, error) {
	p := &Provider{
		ips:        ips,
		logger:     slog.Default(),
		httpClient: httputil.DefaultClient(),
		zoneIDs:    make(map[string]string),
	}

	for _, opt := range opts {
		opt(p)
	}

	cfOpts := []cf.Option{
		cf.HTTPClient(p.httpClient),
		cf.UserAgent(httputil.DefaultUserAgent),
	}
	if p.baseURL != "" {
		cfOpts = append(cfOpts, cf.BaseURL(p.baseURL))
	}

	api, err := cf.NewWithAPIToken(token, cfOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating cloudflare api client: %w", err)
	}
	p.api = api

	return p, nil
}

// PublicIP returns the host's current public address from the
// configured source.
func (p *Provider) PublicIP(ctx context.Context) (netip.Addr, error) {
	if p.ips == nil {
		return netip.Addr{}, dnsapi.WrapError(ProviderName, "public ip",
			errors.New("no address source configured"))
	}
	return p.ips.Resolve(ctx)
}

// ZoneID resolves the zone containing domain by longest-suffix match
// over the zones visible to the token.
func (p *Provider) ZoneID(ctx context.Context, domain string) (string, error) {
	p.mu.RLock()
	id, ok := p.zoneIDs[domain]
	p.mu.RUnlock()
	if ok {
		return id, nil
	}

	zones, err := p.api.ListZones(ctx)
	if err != nil {
		return "", dnsapi.WrapError(ProviderName, "list zones", err)
	}

	var zoneID string
	best := 0
	for _, z := range zones {
		if inZone(domain, z.Name) && len(z.Name) > best {
			best, zoneID = len(z.Name), z.ID
		}
	}
	if zoneID == "" {
		return "", dnsapi.WrapError(ProviderName, "zone lookup",
			fmt.Errorf("%s: %w", domain, dnsapi.ErrZoneNotFound))
	}

	p.logger.Debug("resolved zone",
		slog.String("domain", domain),
		slog.String("zone_id", zoneID),
	)

	p.mu.Lock()
	p.zoneIDs[domain] = zoneID
	p.mu.Unlock()

	return zoneID, nil
}

// inZone reports whether name is zone itself or a name below it. A bare
// suffix check would let notexample.com claim example.com.
func inZone(name, zone string) bool {
	return name == zone || strings.HasSuffix(name, "."+zone)
}

// GetRecord looks up a single record by fully-qualified name and type.
func (p *Provider) GetRecord(ctx context.Context, zoneID, name string, rtype dnsapi.RecordType) (dnsapi.Record, error) {
	records, _, err := p.api.ListDNSRecords(ctx, cf.ZoneIdentifier(zoneID), cf.ListDNSRecordsParams{
		Type: string(rtype),
		Name: name,
	})
	if err != nil {
		return dnsapi.Record{}, dnsapi.WrapError(ProviderName, "list records", err)
	}

	if len(records) == 0 {
		return dnsapi.Record{}, dnsapi.WrapError(ProviderName, "get record",
			fmt.Errorf("%s %s: %w", rtype, name, dnsapi.ErrRecordNotFound))
	}

	return toRecord(records[0]), nil
}

// CreateRecord adds a new record to the zone.
func (p *Provider) CreateRecord(ctx context.Context, zoneID string, record dnsapi.Record) error {
	proxied := record.Proxied
	_, err := p.api.CreateDNSRecord(ctx, cf.ZoneIdentifier(zoneID), cf.CreateDNSRecordParams{
		Type:    string(record.Type),
		Name:    record.Name,
		Content: record.Content,
		TTL:     record.TTL,
		Proxied: &proxied,
		Comment: recordComment,
	})
	if err != nil {
		return dnsapi.WrapError(ProviderName, "create record", err)
	}

	p.logger.Info("created DNS record",
		slog.String("zone_id", zoneID),
		slog.String("type", string(record.Type)),
		slog.String("name", record.Name),
		slog.String("content", record.Content),
		slog.Int("ttl", record.TTL),
		slog.Bool("proxied", record.Proxied),
	)

	return nil
}

// UpdateRecord rewrites only the record's content. TTL and proxy
// settings on the existing record stay as they are.
func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID, content string) error {
	_, err := p.api.UpdateDNSRecord(ctx, cf.ZoneIdentifier(zoneID), cf.UpdateDNSRecordParams{
		ID:      recordID,
		Content: content,
	})
	if err != nil {
		return dnsapi.WrapError(ProviderName, "update record", err)
	}

	p.logger.Info("updated DNS record",
		slog.String("zone_id", zoneID),
		slog.String("record_id", recordID),
		slog.String("content", content),
	)

	return nil
}

// CreateTXT adds a TXT record, used for ACME challenge setup.
func (p *Provider) CreateTXT(ctx context.Context, zoneID, name, content string, ttl int) error {
	_, err := p.api.CreateDNSRecord(ctx, cf.ZoneIdentifier(zoneID), cf.CreateDNSRecordParams{
		Type:    "TXT",
		Name:    name,
		Content: content,
		TTL:     ttl,
		Comment: recordComment,
	})
	if err != nil {
		return dnsapi.WrapError(ProviderName, "create txt", err)
	}

	p.logger.Debug("created TXT record",
		slog.String("zone_id", zoneID),
		slog.String("name", name),
	)

	return nil
}

// DeleteTXT removes the TXT records matching name and content. A record
// that is already gone is not an error.
func (p *Provider) DeleteTXT(ctx context.Context, zoneID, name, content string) error {
	records, _, err := p.api.ListDNSRecords(ctx, cf.ZoneIdentifier(zoneID), cf.ListDNSRecordsParams{
		Type: "TXT",
		Name: name,
	})
	if err != nil {
		return dnsapi.WrapError(ProviderName, "list txt", err)
	}

	for _, r := range records {
		if !txtContentEqual(r.Content, content) {
			continue
		}
		if err := p.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(zoneID), r.ID); err != nil {
			return dnsapi.WrapError(ProviderName, "delete txt", err)
		}
		p.logger.Debug("deleted TXT record",
			slog.String("zone_id", zoneID),
			slog.String("name", name),
			slog.String("record_id", r.ID),
		)
	}

	return nil
}

// txtContentEqual compares TXT values ignoring the quoted zone-file
// form the API sometimes returns.
func txtContentEqual(a, b string) bool {
	return strings.Trim(a, `"`) == strings.Trim(b, `"`)
}

// Verify checks that the API token is valid and active.
func (p *Provider) Verify(ctx context.Context) error {
	result, err := p.api.VerifyAPIToken(ctx)
	if err != nil {
		return dnsapi.WrapError(ProviderName, "verify token", err)
	}

	if result.Status != "active" {
		return dnsapi.WrapError(ProviderName, "verify token",
			fmt.Errorf("token status %q: %w", result.Status, dnsapi.ErrUnauthorized))
	}

	return nil
}

func toRecord(r cf.DNSRecord) dnsapi.Record {
	rec := dnsapi.Record{
		ID:      r.ID,
		Name:    r.Name,
		Type:    dnsapi.RecordType(r.Type),
		Content: r.Content,
		TTL:     r.TTL,
	}
	if r.Proxied != nil {
		rec.Proxied = *r.Proxied
	}
	return rec
}

// Ensure Provider implements dnsapi.Client at compile time.
var _ dnsapi.Client = (*Provider)(nil)

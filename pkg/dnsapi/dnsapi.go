// Package dnsapi defines the interface to the DNS authority used for
// dynamic DNS updates and ACME DNS-01 challenges.
package dnsapi

import (
	"context"
	"net/netip"
	"strings"
)

// RecordType represents the type of DNS record.
type RecordType string

const (
	RecordTypeA    RecordType = "A"
	RecordTypeAAAA RecordType = "AAAA"
	RecordTypeTXT  RecordType = "TXT"
)

// NormalizeRecordType upper-cases and trims a record type string.
// Unknown types are passed through; the provider rejects what the zone
// cannot hold.
func NormalizeRecordType(s string) RecordType {
	return RecordType(strings.ToUpper(strings.TrimSpace(s)))
}

// Record represents a DNS record as known to the provider.
// An empty ID means the record does not exist yet and must be created
// rather than updated.
type Record struct {
	ID      string
	Name    string // fully-qualified record name
	Type    RecordType
	Content string
	TTL     int
	Proxied bool
}

// Client is the capability interface consumed by the tasks. Each
// implementation (Cloudflare, a fake in tests) must satisfy this interface.
type Client interface {
	// PublicIP returns the host's current public IP address.
	PublicIP(ctx context.Context) (netip.Addr, error)

	// ZoneID resolves the zone containing domain to its provider-assigned id.
	// Returns ErrZoneNotFound if no configured zone contains the domain.
	ZoneID(ctx context.Context, domain string) (string, error)

	// GetRecord looks up a single record by fully-qualified name and type.
	// Returns ErrRecordNotFound if no such record exists.
	GetRecord(ctx context.Context, zoneID, name string, rtype RecordType) (Record, error)

	// CreateRecord adds a new record to the zone.
	CreateRecord(ctx context.Context, zoneID string, record Record) error

	// UpdateRecord rewrites the content of an existing record, preserving
	// its other attributes.
	UpdateRecord(ctx context.Context, zoneID, recordID, content string) error

	// CreateTXT adds a TXT record, used for ACME challenge setup.
	CreateTXT(ctx context.Context, zoneID, name, content string, ttl int) error

	// DeleteTXT removes a TXT record by name and content. Deleting a record
	// that does not exist is not an error.
	DeleteTXT(ctx context.Context, zoneID, name, content string) error

	// Verify checks that the provider credentials are valid and usable.
	Verify(ctx context.Context) error
}

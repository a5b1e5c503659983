package metrics

import (
	"context"
	"errors"
	"net/netip"

	"gitlab.bluewillows.net/root/flarekeep/pkg/dnsapi"
)

// InstrumentDNSClient wraps a dnsapi.Client so every provider call is
// counted by operation and status. Lookups that come back empty are a
// normal part of the sync flow and count as not_found rather than error.
func InstrumentDNSClient(client dnsapi.Client) dnsapi.Client {
	return &instrumentedClient{next: client}
}

type instrumentedClient struct {
	next dnsapi.Client
}

var _ dnsapi.Client = (*instrumentedClient)(nil)

func (c *instrumentedClient) PublicIP(ctx context.Context) (netip.Addr, error) {
	addr, err := c.next.PublicIP(ctx)
	PublicIPLookupsTotal.WithLabelValues(callStatus(err)).Inc()
	return addr, err
}

func (c *instrumentedClient) ZoneID(ctx context.Context, domain string) (string, error) {
	id, err := c.next.ZoneID(ctx, domain)
	ProviderAPIRequestsTotal.WithLabelValues("zone_id", callStatus(err)).Inc()
	return id, err
}

func (c *instrumentedClient) GetRecord(ctx context.Context, zoneID, name string, rtype dnsapi.RecordType) (dnsapi.Record, error) {
	record, err := c.next.GetRecord(ctx, zoneID, name, rtype)
	ProviderAPIRequestsTotal.WithLabelValues("get_record", callStatus(err)).Inc()
	return record, err
}

func (c *instrumentedClient) CreateRecord(ctx context.Context, zoneID string, record dnsapi.Record) error {
	err := c.next.CreateRecord(ctx, zoneID, record)
	ProviderAPIRequestsTotal.WithLabelValues("create_record", callStatus(err)).Inc()
	return err
}

func (c *instrumentedClient) UpdateRecord(ctx context.Context, zoneID, recordID, content string) error {
	err := c.next.UpdateRecord(ctx, zoneID, recordID, content)
	ProviderAPIRequestsTotal.WithLabelValues("update_record", callStatus(err)).Inc()
	return err
}

func (c *instrumentedClient) CreateTXT(ctx context.Context, zoneID, name, content string, ttl int) error {
	err := c.next.CreateTXT(ctx, zoneID, name, content, ttl)
	ProviderAPIRequestsTotal.WithLabelValues("create_txt", callStatus(err)).Inc()
	return err
}

func (c *instrumentedClient) DeleteTXT(ctx context.Context, zoneID, name, content string) error {
	err := c.next.DeleteTXT(ctx, zoneID, name, content)
	ProviderAPIRequestsTotal.WithLabelValues("delete_txt", callStatus(err)).Inc()
	return err
}

func (c *instrumentedClient) Verify(ctx context.Context) error {
	err := c.next.Verify(ctx)
	ProviderAPIRequestsTotal.WithLabelValues("verify", callStatus(err)).Inc()
	return err
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, dnsapi.ErrRecordNotFound), errors.Is(err, dnsapi.ErrZoneNotFound):
		return "not_found"
	default:
		return "error"
	}
}

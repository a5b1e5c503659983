package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gitlab.bluewillows.net/root/flarekeep/pkg/certtool"
	"gitlab.bluewillows.net/root/flarekeep/pkg/dnsapi"
)

// ChallengeTTL is the TTL on ACME validation TXT records. Short, so
// repeated validation attempts observe fresh values.
const ChallengeTTL = 120

// dnsChallenge answers DNS-01 challenges by writing TXT records through
// the DNS provider.
type dnsChallenge struct {
	client dnsapi.Client
	logger *slog.Logger
}

// NewChallengeHook returns a challenge hook that creates and removes
// validation TXT records through client.
func NewChallengeHook(client dnsapi.Client, logger *slog.Logger) certtool.ChallengeHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &dnsChallenge{client: client, logger: logger}
}

// ChallengeName returns the TXT record name that validates domain. A
// wildcard is validated at its parent's name: *.example.com and
// example.com share _acme-challenge.example.com.
func ChallengeName(domain string) string {
	return "_acme-challenge." + strings.TrimPrefix(domain, "*.")
}

func (c *dnsChallenge) Present(ctx context.Context, domain, value string) error {
	name := ChallengeName(domain)

	zoneID, err := c.client.ZoneID(ctx, strings.TrimPrefix(domain, "*."))
	if err != nil {
		return fmt.Errorf("zone for %s: %w", domain, err)
	}

	if err := c.client.CreateTXT(ctx, zoneID, name, value, ChallengeTTL); err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}

	c.logger.Debug("challenge record created",
		slog.String("domain", domain),
		slog.String("record", name),
	)
	return nil
}

func (c *dnsChallenge) Cleanup(ctx context.Context, domain, value string) error {
	name := ChallengeName(domain)

	zoneID, err := c.client.ZoneID(ctx, strings.TrimPrefix(domain, "*."))
	if err != nil {
		return fmt.Errorf("zone for %s: %w", domain, err)
	}

	if err := c.client.DeleteTXT(ctx, zoneID, name, value); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}

	c.logger.Debug("challenge record removed",
		slog.String("domain", domain),
		slog.String("record", name),
	)
	return nil
}

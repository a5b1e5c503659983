package acme

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/miekg/dns"
)

// queryTimeout bounds each propagation query.
const queryTimeout = 5 * time.Second

// propagationCheck gates ACME validation on the challenge TXT value
// being visible on every authoritative name server for its zone.
// Recursive resolvers are deliberately not consulted for the value
// itself: their negative caches can hold an empty answer long after the
// record exists.
type propagationCheck struct {
	resolver string
	client   *dns.Client
	logger   *slog.Logger
}

func newPropagationCheck(resolver string, logger *slog.Logger) *propagationCheck {
	if resolver == "" {
		resolver = systemResolver()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &propagationCheck{
		resolver: resolver,
		client:   &dns.Client{Timeout: queryTimeout},
		logger:   logger,
	}
}

// systemResolver reads the first resolver from /etc/resolv.conf, falling
// back to Cloudflare's public resolver.
func systemResolver() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return "1.1.1.1:53"
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// Wrap implements dns01.WrapPreCheckFunc. lego polls it until it reports
// true or the propagation timeout expires, so transient lookup problems
// report not-ready rather than error.
func (p *propagationCheck) Wrap(domain, fqdn, value string, _ dns01.PreCheckFunc) (bool, error) {
	servers, err := p.authoritativeServers(fqdn)
	if err != nil {
		p.logger.Debug("authoritative server discovery failed",
			slog.String("fqdn", fqdn),
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	for _, server := range servers {
		found, err := p.hasTXTValue(server, fqdn, value)
		if err != nil {
			p.logger.Debug("propagation query failed",
				slog.String("fqdn", fqdn),
				slog.String("server", server),
				slog.String("error", err.Error()),
			)
			return false, nil
		}
		if !found {
			p.logger.Debug("challenge value not yet visible",
				slog.String("fqdn", fqdn),
				slog.String("server", server),
			)
			return false, nil
		}
	}

	p.logger.Debug("challenge value propagated",
		slog.String("fqdn", fqdn),
		slog.Int("servers", len(servers)),
	)
	return true, nil
}

// authoritativeServers resolves the zone containing fqdn and returns its
// NS hosts as host:port addresses.
func (p *propagationCheck) authoritativeServers(fqdn string) ([]string, error) {
	zone, err := p.zoneOf(fqdn)
	if err != nil {
		return nil, err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(zone, dns.TypeNS)

	resp, _, err := p.client.Exchange(msg, p.resolver)
	if err != nil {
		return nil, fmt.Errorf("ns query for %s: %w", zone, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("ns query for %s returned %s", zone, dns.RcodeToString[resp.Rcode])
	}

	var servers []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			servers = append(servers, net.JoinHostPort(strings.TrimSuffix(ns.Ns, "."), "53"))
		}
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no NS records for %s", zone)
	}
	return servers, nil
}

// zoneOf finds the zone apex containing fqdn by walking its parents
// until a SOA record identifies the zone. A negative answer's authority
// section usually names the zone on the first query.
func (p *propagationCheck) zoneOf(fqdn string) (string, error) {
	labels := dns.SplitDomainName(fqdn)

	for i := 0; i < len(labels)-1; i++ {
		candidate := dns.Fqdn(strings.Join(labels[i:], "."))

		msg := new(dns.Msg)
		msg.SetQuestion(candidate, dns.TypeSOA)

		resp, _, err := p.client.Exchange(msg, p.resolver)
		if err != nil {
			return "", fmt.Errorf("soa query for %s: %w", candidate, err)
		}

		for _, rr := range resp.Answer {
			if soa, ok := rr.(*dns.SOA); ok {
				return soa.Hdr.Name, nil
			}
		}
		for _, rr := range resp.Ns {
			if soa, ok := rr.(*dns.SOA); ok {
				return soa.Hdr.Name, nil
			}
		}
	}

	return "", fmt.Errorf("no zone found for %s", fqdn)
}

// hasTXTValue queries one server directly for the challenge record.
func (p *propagationCheck) hasTXTValue(server, fqdn, value string) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeTXT)

	resp, _, err := p.client.Exchange(msg, server)
	if err != nil {
		return false, err
	}
	if resp.Rcode == dns.RcodeNameError {
		return false, nil
	}
	if resp.Rcode != dns.RcodeSuccess {
		return false, fmt.Errorf("txt query returned %s", dns.RcodeToString[resp.Rcode])
	}

	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		for _, s := range txt.Txt {
			if s == value {
				return true, nil
			}
		}
	}
	return false, nil
}

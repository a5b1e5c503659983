package acme

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strings"
	"testing"

	"github.com/miekg/dns"
)

// fakeZone answers SOA, NS, and TXT queries for a single zone over a
// loopback UDP listener.
type fakeZone struct {
	apex     string
	ns       []string
	txt      map[string][]string
	soaRcode int
}

func (z *fakeZone) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	resp := new(dns.Msg)
	resp.SetReply(req)
	q := req.Question[0]

	switch q.Qtype {
	case dns.TypeSOA:
		if z.soaRcode != dns.RcodeSuccess {
			resp.Rcode = z.soaRcode
			break
		}
		switch {
		case q.Name == z.apex:
			resp.Answer = append(resp.Answer, z.soaRR())
		case strings.HasSuffix(q.Name, "."+z.apex):
			resp.Ns = append(resp.Ns, z.soaRR())
		default:
			resp.Rcode = dns.RcodeNameError
		}
	case dns.TypeNS:
		if q.Name != z.apex {
			resp.Rcode = dns.RcodeNameError
			break
		}
		for _, host := range z.ns {
			rr, _ := dns.NewRR(fmt.Sprintf("%s 300 IN NS %s", z.apex, host))
			resp.Answer = append(resp.Answer, rr)
		}
	case dns.TypeTXT:
		values, ok := z.txt[q.Name]
		if !ok {
			resp.Rcode = dns.RcodeNameError
			break
		}
		for _, v := range values {
			rr, _ := dns.NewRR(fmt.Sprintf("%s 120 IN TXT %q", q.Name, v))
			resp.Answer = append(resp.Answer, rr)
		}
	}

	_ = w.WriteMsg(resp)
}

func (z *fakeZone) soaRR() dns.RR {
	rr, _ := dns.NewRR(fmt.Sprintf(
		"%s 300 IN SOA ns1.%s hostmaster.%s 1 7200 900 1209600 300",
		z.apex, z.apex, z.apex,
	))
	return rr
}

func startDNSServer(t *testing.T, handler dns.Handler) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func testCheck(resolver string) *propagationCheck {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newPropagationCheck(resolver, logger)
}

func TestZoneOf(t *testing.T) {
	zone := &fakeZone{apex: "example.com."}
	addr := startDNSServer(t, zone)
	check := testCheck(addr)

	tests := []struct {
		fqdn string
		want string
	}{
		{"_acme-challenge.example.com.", "example.com."},
		{"_acme-challenge.www.example.com.", "example.com."},
		{"example.com.", "example.com."},
	}
	for _, tt := range tests {
		got, err := check.zoneOf(tt.fqdn)
		if err != nil {
			t.Errorf("zoneOf(%s): unexpected error: %v", tt.fqdn, err)
			continue
		}
		if got != tt.want {
			t.Errorf("zoneOf(%s) = %s, want %s", tt.fqdn, got, tt.want)
		}
	}
}

func TestZoneOfUnknownName(t *testing.T) {
	zone := &fakeZone{apex: "example.com."}
	addr := startDNSServer(t, zone)
	check := testCheck(addr)

	if _, err := check.zoneOf("sub.other.net."); err == nil {
		t.Error("expected error for a name outside the zone")
	}
}

func TestAuthoritativeServers(t *testing.T) {
	zone := &fakeZone{
		apex: "example.com.",
		ns:   []string{"ns1.example.com.", "ns2.example.com."},
	}
	addr := startDNSServer(t, zone)
	check := testCheck(addr)

	servers, err := check.authoritativeServers("_acme-challenge.example.com.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"ns1.example.com:53", "ns2.example.com:53"}
	if !reflect.DeepEqual(servers, want) {
		t.Errorf("expected servers %v, got %v", want, servers)
	}
}

func TestAuthoritativeServersNoNS(t *testing.T) {
	zone := &fakeZone{apex: "example.com."}
	addr := startDNSServer(t, zone)
	check := testCheck(addr)

	if _, err := check.authoritativeServers("_acme-challenge.example.com."); err == nil {
		t.Error("expected error when the zone has no NS records")
	}
}

func TestHasTXTValue(t *testing.T) {
	zone := &fakeZone{
		apex: "example.com.",
		txt: map[string][]string{
			"_acme-challenge.example.com.": {"stale-value", "expected-value"},
		},
	}
	addr := startDNSServer(t, zone)
	check := testCheck(addr)

	found, err := check.hasTXTValue(addr, "_acme-challenge.example.com", "expected-value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Error("expected value to be found")
	}

	found, err = check.hasTXTValue(addr, "_acme-challenge.example.com", "missing-value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected value to be absent")
	}
}

func TestHasTXTValueNameError(t *testing.T) {
	zone := &fakeZone{apex: "example.com."}
	addr := startDNSServer(t, zone)
	check := testCheck(addr)

	found, err := check.hasTXTValue(addr, "_acme-challenge.example.com", "value")
	if err != nil {
		t.Fatalf("expected NXDOMAIN to read as not-yet-propagated, got %v", err)
	}
	if found {
		t.Error("expected value to be absent")
	}
}

func TestWrapReportsNotReadyOnLookupFailure(t *testing.T) {
	zone := &fakeZone{apex: "example.com.", soaRcode: dns.RcodeServerFailure}
	addr := startDNSServer(t, zone)
	check := testCheck(addr)

	ready, err := check.Wrap("example.com", "_acme-challenge.example.com.", "value", nil)
	if err != nil {
		t.Fatalf("transient lookup failures must not abort validation: %v", err)
	}
	if ready {
		t.Error("expected not-ready when the zone cannot be resolved")
	}
}

func TestNewPropagationCheckDefaults(t *testing.T) {
	check := newPropagationCheck("", nil)

	if check.resolver == "" {
		t.Error("expected a default resolver")
	}
	if !strings.Contains(check.resolver, ":") {
		t.Errorf("expected host:port resolver, got %s", check.resolver)
	}
	if check.client == nil || check.client.Timeout != queryTimeout {
		t.Error("expected a query client with the default timeout")
	}
	if check.logger == nil {
		t.Error("expected a logger")
	}
}

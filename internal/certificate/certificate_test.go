package certificate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"strings"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/flarekeep/internal/config"
	"gitlab.bluewillows.net/root/flarekeep/internal/task"
	"gitlab.bluewillows.net/root/flarekeep/pkg/certtool"
	"gitlab.bluewillows.net/root/flarekeep/pkg/dnsapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTool is an in-memory certtool.Tool.
type fakeTool struct {
	expiries  map[string]time.Time
	expiryErr map[string]error
	issueErr  map[string]error
	issued    [][]string
}

var _ certtool.Tool = (*fakeTool)(nil)

func (f *fakeTool) Expiry(groupKey string) (time.Time, bool, error) {
	if err := f.expiryErr[groupKey]; err != nil {
		return time.Time{}, false, err
	}
	exp, ok := f.expiries[groupKey]
	return exp, ok, nil
}

func (f *fakeTool) Issue(ctx context.Context, domains []string, hook certtool.ChallengeHook) error {
	if err := f.issueErr[domains[0]]; err != nil {
		return err
	}
	f.issued = append(f.issued, domains)
	return nil
}

type txtWrite struct {
	zoneID  string
	name    string
	content string
	ttl     int
}

// fakeDNS records TXT traffic for challenge hook tests.
type fakeDNS struct {
	zones   map[string]string
	created []txtWrite
	deleted []txtWrite
}

var _ dnsapi.Client = (*fakeDNS)(nil)

func (f *fakeDNS) PublicIP(ctx context.Context) (netip.Addr, error) { return netip.Addr{}, nil }

func (f *fakeDNS) ZoneID(ctx context.Context, domain string) (string, error) {
	for suffix, id := range f.zones {
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return id, nil
		}
	}
	return "", dnsapi.ErrZoneNotFound
}

func (f *fakeDNS) GetRecord(ctx context.Context, zoneID, name string, rtype dnsapi.RecordType) (dnsapi.Record, error) {
	return dnsapi.Record{}, dnsapi.ErrRecordNotFound
}

func (f *fakeDNS) CreateRecord(ctx context.Context, zoneID string, record dnsapi.Record) error {
	return nil
}

func (f *fakeDNS) UpdateRecord(ctx context.Context, zoneID, recordID, content string) error {
	return nil
}

func (f *fakeDNS) CreateTXT(ctx context.Context, zoneID, name, content string, ttl int) error {
	f.created = append(f.created, txtWrite{zoneID: zoneID, name: name, content: content, ttl: ttl})
	return nil
}

func (f *fakeDNS) DeleteTXT(ctx context.Context, zoneID, name, content string) error {
	f.deleted = append(f.deleted, txtWrite{zoneID: zoneID, name: name, content: content})
	return nil
}

func (f *fakeDNS) Verify(ctx context.Context) error { return nil }

func newTask(tool *fakeTool, groups [][]string, opts ...Option) *Task {
	cfg := &config.Config{
		DomainGroups:             groups,
		CertRenewalThresholdDays: 30,
		CertCheckIntervalHours:   12,
	}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return New(tool, &fakeDNS{zones: map[string]string{"example.com": "zone-1"}}, cfg, opts...)
}

func TestCycleRenewsWhenNoCertificate(t *testing.T) {
	tool := &fakeTool{expiries: map[string]time.Time{}}
	group := []string{"example.com", "www.example.com"}

	res := newTask(tool, [][]string{group}).ExecuteCycle(context.Background())

	if res.Outcome() != task.OutcomeSuccess {
		t.Fatalf("outcome = %s, want success: %v", res.Outcome(), res.Err())
	}
	if len(tool.issued) != 1 {
		t.Fatalf("issued %d certificates, want 1", len(tool.issued))
	}
	if got := tool.issued[0]; len(got) != 2 || got[0] != "example.com" || got[1] != "www.example.com" {
		t.Errorf("issued domains = %v, want the full group", got)
	}
	if res.Units[0].Action != task.ActionRenew || res.Units[0].Name != "example.com" {
		t.Errorf("unit = %+v", res.Units[0])
	}
}

func TestCycleThresholdBoundary(t *testing.T) {
	now := time.Now()
	tool := &fakeTool{expiries: map[string]time.Time{
		// 30 whole days remaining: exactly at the threshold, renews.
		"due.example": now.Add(30*24*time.Hour + time.Hour),
		// 31 whole days remaining: above the threshold, waits.
		"later.example": now.Add(31*24*time.Hour + 2*time.Hour),
	}}

	res := newTask(tool, [][]string{{"due.example"}, {"later.example"}}).ExecuteCycle(context.Background())

	if len(tool.issued) != 1 || tool.issued[0][0] != "due.example" {
		t.Fatalf("issued = %v, want only due.example", tool.issued)
	}
	if res.Units[0].Action != task.ActionRenew {
		t.Errorf("due.example action = %s, want renew", res.Units[0].Action)
	}
	if res.Units[1].Action != task.ActionSkip {
		t.Errorf("later.example action = %s, want skip", res.Units[1].Action)
	}
	if res.Outcome() != task.OutcomeSuccess {
		t.Errorf("outcome = %s, want success", res.Outcome())
	}
}

func TestCycleRenewsOnUnreadableExpiry(t *testing.T) {
	tool := &fakeTool{
		expiryErr: map[string]error{"example.com": errors.New("asn1: truncated")},
	}

	res := newTask(tool, [][]string{{"example.com"}}).ExecuteCycle(context.Background())

	if len(tool.issued) != 1 {
		t.Fatalf("issued = %v, want renewal forced by unreadable expiry", tool.issued)
	}
	if res.Outcome() != task.OutcomeSuccess {
		t.Errorf("outcome = %s, want success", res.Outcome())
	}
}

func TestCycleIsolatesGroupFailures(t *testing.T) {
	tool := &fakeTool{
		expiries: map[string]time.Time{},
		issueErr: map[string]error{"bad.example": errors.New("acme: rate limited")},
	}

	res := newTask(tool, [][]string{{"bad.example"}, {"good.example"}}).ExecuteCycle(context.Background())

	if res.Outcome() != task.OutcomePartial {
		t.Fatalf("outcome = %s, want partial", res.Outcome())
	}
	if len(tool.issued) != 1 || tool.issued[0][0] != "good.example" {
		t.Errorf("issued = %v, want good.example despite bad.example failing", tool.issued)
	}

	failed := res.Failed()
	if len(failed) != 1 || failed[0].Name != "bad.example" {
		t.Errorf("failed = %v", failed)
	}
}

func TestCycleRunsRenewHook(t *testing.T) {
	tool := &fakeTool{expiries: map[string]time.Time{}}

	var gotKey string
	var gotDomains []string
	hook := func(ctx context.Context, groupKey string, domains []string) error {
		gotKey = groupKey
		gotDomains = domains
		return nil
	}

	group := []string{"example.com", "www.example.com"}
	res := newTask(tool, [][]string{group}, WithRenewHook(hook)).ExecuteCycle(context.Background())

	if res.Outcome() != task.OutcomeSuccess {
		t.Fatalf("outcome = %s: %v", res.Outcome(), res.Err())
	}
	if gotKey != "example.com" || len(gotDomains) != 2 {
		t.Errorf("hook got (%q, %v)", gotKey, gotDomains)
	}
}

func TestCycleRenewHookFailureMarksUnit(t *testing.T) {
	tool := &fakeTool{expiries: map[string]time.Time{}}
	hook := func(ctx context.Context, groupKey string, domains []string) error {
		return errors.New("sftp: connection refused")
	}

	res := newTask(tool, [][]string{{"example.com"}}, WithRenewHook(hook)).ExecuteCycle(context.Background())

	if res.Outcome() != task.OutcomeFailure {
		t.Fatalf("outcome = %s, want failure", res.Outcome())
	}
	if len(tool.issued) != 1 {
		t.Error("certificate was not issued before the hook ran")
	}
	if err := res.Units[0].Err; err == nil || !strings.Contains(err.Error(), "deployment failed") {
		t.Errorf("unit error = %v", err)
	}
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		notAfter time.Time
		want     int
	}{
		{"exactly 30 days", now.Add(30 * 24 * time.Hour), 30},
		{"one second short of 30", now.Add(30*24*time.Hour - time.Second), 29},
		{"half a day", now.Add(12 * time.Hour), 0},
		{"expired", now.Add(-36 * time.Hour), -2},
		{"now", now, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysRemaining(tt.notAfter, now); got != tt.want {
				t.Errorf("DaysRemaining = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChallengeName(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"example.com", "_acme-challenge.example.com"},
		{"www.example.com", "_acme-challenge.www.example.com"},
		{"*.example.com", "_acme-challenge.example.com"},
	}

	for _, tt := range tests {
		if got := ChallengeName(tt.domain); got != tt.want {
			t.Errorf("ChallengeName(%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}
}

func TestChallengeHookPresentAndCleanup(t *testing.T) {
	dns := &fakeDNS{zones: map[string]string{"example.com": "zone-1"}}
	hook := NewChallengeHook(dns, discardLogger())

	ctx := context.Background()
	if err := hook.Present(ctx, "*.example.com", "token-value"); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	if len(dns.created) != 1 {
		t.Fatalf("got %d TXT creates, want 1", len(dns.created))
	}
	created := dns.created[0]
	if created.zoneID != "zone-1" || created.name != "_acme-challenge.example.com" || created.content != "token-value" {
		t.Errorf("created = %+v", created)
	}
	if created.ttl != ChallengeTTL {
		t.Errorf("ttl = %d, want %d", created.ttl, ChallengeTTL)
	}

	if err := hook.Cleanup(ctx, "*.example.com", "token-value"); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if len(dns.deleted) != 1 || dns.deleted[0].name != "_acme-challenge.example.com" {
		t.Errorf("deleted = %+v", dns.deleted)
	}
}

func TestChallengeHookUnknownZone(t *testing.T) {
	hook := NewChallengeHook(&fakeDNS{zones: map[string]string{}}, discardLogger())

	err := hook.Present(context.Background(), "nosuch.example", "v")
	if err == nil {
		t.Fatal("Present() succeeded for a domain with no zone")
	}
	if !errors.Is(err, dnsapi.ErrZoneNotFound) {
		t.Errorf("error = %v, want ErrZoneNotFound in chain", err)
	}
}

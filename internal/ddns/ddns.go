// Package ddns implements the dynamic DNS task.
//
// Every cycle resolves the host's public IP exactly once, then walks each
// configured (domain, subdomain, record type) unit: create the record if
// it is missing, rewrite it if its content differs, leave it alone if it
// already matches. Units are independent; one failing never stops the
// rest.
package ddns

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gitlab.bluewillows.net/root/flarekeep/internal/config"
	"gitlab.bluewillows.net/root/flarekeep/internal/task"
	"gitlab.bluewillows.net/root/flarekeep/pkg/dnsapi"
)

// RecordTTL is the TTL written on dynamic records, kept short so IP
// changes propagate quickly. Updates rewrite content only, so an
// operator-tuned TTL or proxied flag on an existing record survives.
const RecordTTL = 60

// Task keeps the configured DNS records pointed at the current public IP.
type Task struct {
	client   dnsapi.Client
	entries  []config.DDNSEntry
	interval time.Duration
	logger   *slog.Logger
}

// Option is a functional option for configuring the Task.
type Option func(*Task)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates the DDNS task from the effective configuration.
func New(client dnsapi.Client, cfg *config.Config, opts ...Option) *Task {
	t := &Task{
		client:   client,
		entries:  cfg.DDNSEntries,
		interval: cfg.DDNSCheckInterval(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("task", t.Name()))
	return t
}

// Name implements task.Task.
func (t *Task) Name() string { return "ddns" }

// Interval implements task.Task.
func (t *Task) Interval() time.Duration { return t.interval }

// ExecuteCycle resolves the public IP once and syncs every configured
// record against it. An IP lookup failure fails the whole cycle before
// any record is touched: with no observed IP there is nothing valid to
// compare against or write.
func (t *Task) ExecuteCycle(ctx context.Context) *task.Result {
	res := task.NewResult(t.Name())

	ip, err := t.client.PublicIP(ctx)
	if err != nil {
		return res.Fail(fmt.Errorf("public ip lookup: %w", err))
	}
	content := ip.String()
	t.logger.Debug("public ip resolved", slog.String("ip", content))

	zones := make(map[string]string)
	zoneErrs := make(map[string]error)

	for _, entry := range t.entries {
		zoneID, ok := zones[entry.Domain]
		if !ok {
			if _, failed := zoneErrs[entry.Domain]; !failed {
				id, err := t.client.ZoneID(ctx, entry.Domain)
				if err != nil {
					zoneErrs[entry.Domain] = err
				} else {
					zones[entry.Domain] = id
					zoneID = id
				}
			}
		}

		for _, sub := range entry.Subdomains {
			name := RecordName(entry.Domain, sub)
			for _, rtype := range entry.RecordTypes {
				unit := name + "/" + string(rtype)

				if zerr := zoneErrs[entry.Domain]; zerr != nil {
					res.Add(unit, task.ActionNone, fmt.Errorf("zone lookup: %w", zerr))
					continue
				}

				action, err := t.syncRecord(ctx, zoneID, name, rtype, content)
				res.Add(unit, action, err)
			}
		}
	}

	return res
}

// syncRecord brings one record to the desired content and reports the
// action taken.
func (t *Task) syncRecord(ctx context.Context, zoneID, name string, rtype dnsapi.RecordType, content string) (task.Action, error) {
	existing, err := t.client.GetRecord(ctx, zoneID, name, rtype)
	switch {
	case dnsapi.IsNotFound(err):
		rec := dnsapi.Record{
			Name:    name,
			Type:    rtype,
			Content: content,
			TTL:     RecordTTL,
		}
		if err := t.client.CreateRecord(ctx, zoneID, rec); err != nil {
			return task.ActionCreate, err
		}
		t.logger.Info("record created",
			slog.String("record", name),
			slog.String("type", string(rtype)),
			slog.String("content", content),
		)
		return task.ActionCreate, nil

	case err != nil:
		return task.ActionNone, err

	case existing.Content == content:
		t.logger.Debug("record already current",
			slog.String("record", name),
			slog.String("type", string(rtype)),
		)
		return task.ActionNone, nil

	default:
		if err := t.client.UpdateRecord(ctx, zoneID, existing.ID, content); err != nil {
			return task.ActionUpdate, err
		}
		t.logger.Info("record updated",
			slog.String("record", name),
			slog.String("type", string(rtype)),
			slog.String("previous", existing.Content),
			slog.String("content", content),
		)
		return task.ActionUpdate, nil
	}
}

// RecordName expands a subdomain to its record FQDN. The apex marker "@"
// and the empty string both mean the bare domain.
func RecordName(domain, subdomain string) string {
	if subdomain == "" || subdomain == "@" {
		return domain
	}
	return subdomain + "." + domain
}

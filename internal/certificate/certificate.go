// Package certificate implements the certificate renewal task.
//
// Every cycle walks the configured domain groups. A group is renewed when
// it has no stored certificate, its expiry cannot be read, or the whole
// days remaining until expiry are at or below the renewal threshold.
// Renewal issues one certificate covering the full group, answering the
// DNS-01 challenges through the DNS provider. Groups are independent
// units; one failing never stops the rest.
package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gitlab.bluewillows.net/root/flarekeep/internal/config"
	"gitlab.bluewillows.net/root/flarekeep/internal/metrics"
	"gitlab.bluewillows.net/root/flarekeep/internal/task"
	"gitlab.bluewillows.net/root/flarekeep/pkg/certtool"
	"gitlab.bluewillows.net/root/flarekeep/pkg/dnsapi"
)

// RenewHook runs after a group's certificate has been renewed and stored,
// typically to deploy it to the hosts that serve it. A hook error marks
// the group's unit failed so the operator sees that the new certificate
// did not reach its destination, even though issuance itself succeeded.
type RenewHook func(ctx context.Context, groupKey string, domains []string) error

// Task renews certificates for the configured domain groups.
type Task struct {
	tool      certtool.Tool
	hook      certtool.ChallengeHook
	groups    [][]string
	threshold int
	interval  time.Duration
	onRenew   RenewHook
	logger    *slog.Logger
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

// WithRenewHook registers a hook run after each successful renewal.
func WithRenewHook(hook RenewHook) Option {
	return func(t *Task) {
		t.onRenew = hook
	}
}

// New creates the certificate task from the effective configuration. DNS
// challenges are answered through client.
func New(tool certtool.Tool, client dnsapi.Client, cfg *config.Config, opts ...Option) *Task {
	t := &Task{
		tool:      tool,
		groups:    cfg.DomainGroups,
		threshold: cfg.CertRenewalThresholdDays,
		interval:  cfg.CertCheckInterval(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("task", t.Name()))
	t.hook = NewChallengeHook(client, t.logger)
	return t
}

// Name implements task.Task.
func (t *Task) Name() string { return "certificate" }

// Interval implements task.Task.
func (t *Task) Interval() time.Duration { return t.interval }

// ExecuteCycle checks every domain group and renews the ones that are
// due. Each group is one unit in the rollup.
func (t *Task) ExecuteCycle(ctx context.Context) *task.Result {
	res := task.NewResult(t.Name())

	for _, group := range t.groups {
		key := config.GroupKey(group)
		action, err := t.processGroup(ctx, key, group)
		res.Add(key, action, err)
	}

	return res
}

func (t *Task) processGroup(ctx context.Context, key string, group []string) (task.Action, error) {
	notAfter, present, err := t.tool.Expiry(key)

	var reason string
	switch {
	case err != nil:
		// An unreadable certificate renews rather than risking a lapse.
		t.logger.Warn("certificate expiry unreadable, forcing renewal",
			slog.String("group", key),
			slog.String("error", err.Error()),
		)
		reason = "expiry unreadable"
	case !present:
		reason = "no existing certificate"
	default:
		days := DaysRemaining(notAfter, time.Now())
		metrics.CertificateExpiryDays.WithLabelValues(key).Set(float64(days))
		if days > t.threshold {
			t.logger.Debug("renewal not due",
				slog.String("group", key),
				slog.Int("days_remaining", days),
				slog.Int("threshold_days", t.threshold),
			)
			return task.ActionSkip, nil
		}
		reason = fmt.Sprintf("%d days remaining, threshold %d", days, t.threshold)
	}

	t.logger.Info("renewing certificate",
		slog.String("group", key),
		slog.Any("domains", group),
		slog.String("reason", reason),
	)

	if err := t.tool.Issue(ctx, group, t.hook); err != nil {
		return task.ActionRenew, err
	}

	t.logger.Info("certificate renewed",
		slog.String("group", key),
		slog.Any("domains", group),
	)

	if t.onRenew != nil {
		if err := t.onRenew(ctx, key, group); err != nil {
			return task.ActionRenew, fmt.Errorf("renewed but deployment failed: %w", err)
		}
	}

	return task.ActionRenew, nil
}

// DaysRemaining returns the number of whole days from now until notAfter,
// floored. A certificate 29.9 days from expiry has 29 days remaining, and
// one already expired goes negative.
func DaysRemaining(notAfter, now time.Time) int {
	return int(math.Floor(notAfter.Sub(now).Hours() / 24))
}

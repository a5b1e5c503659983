// Package ipresolver determines the host's current public IP address by
// querying well-known HTTPS services.
package ipresolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"gitlab.bluewillows.net/root/flarekeep/pkg/httputil"
)

// DefaultServices are queried in order; the first parseable answer wins.
var DefaultServices = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
	"https://checkip.amazonaws.com",
}

// maxResponseBytes bounds how much of a service response is read.
// A plain-text IP address fits comfortably.
const maxResponseBytes = 64

// NetworkError indicates no service returned a usable public IP.
// It aborts the current DDNS cycle; the next cycle retries.
type NetworkError struct {
	Attempts int
	Err      error // last failure
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("public ip lookup failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Resolver queries public IP services in order until one answers.
type Resolver struct {
	services []string
	client   *http.Client
	logger   *slog.Logger
}

// Option is a functional option for configuring the Resolver.
type Option func(*Resolver)

// WithServices overrides the service URL list.
func WithServices(services []string) Option {
	return func(r *Resolver) {
		r.services = services
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver with the default service list.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		services: DefaultServices,
		client:   httputil.DefaultClient(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the host's current public IP. Services are tried in
// order; all failing yields a *NetworkError wrapping the last failure.
func (r *Resolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var lastErr error

	for _, svc := range r.services {
		addr, err := r.query(ctx, svc)
		if err != nil {
			r.logger.Debug("public ip service failed",
				slog.String("service", svc),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}

		r.logger.Debug("public ip resolved",
			slog.String("service", svc),
			slog.String("ip", addr.String()),
		)
		return addr, nil
	}

	return netip.Addr{}, &NetworkError{Attempts: len(r.services), Err: lastErr}
}

func (r *Resolver) query(ctx context.Context, url string) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return netip.Addr{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return netip.Addr{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s: reading response: %w", url, err)
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s: parsing response: %w", url, err)
	}

	return addr, nil
}

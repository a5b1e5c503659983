package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/flarekeep/internal/acme"
	"gitlab.bluewillows.net/root/flarekeep/internal/certificate"
	"gitlab.bluewillows.net/root/flarekeep/internal/config"
	"gitlab.bluewillows.net/root/flarekeep/internal/ddns"
	"gitlab.bluewillows.net/root/flarekeep/internal/deploy"
	"gitlab.bluewillows.net/root/flarekeep/internal/health"
	"gitlab.bluewillows.net/root/flarekeep/internal/metrics"
	"gitlab.bluewillows.net/root/flarekeep/internal/task"
	"gitlab.bluewillows.net/root/flarekeep/pkg/ipresolver"
	"gitlab.bluewillows.net/root/flarekeep/providers/cloudflare"
)

// shutdownGrace bounds how long shutdown waits for in-flight cycles. An
// ACME issuance mid-propagation can run for minutes; anything still going
// after this is abandoned to the process exit.
const shutdownGrace = 5 * time.Minute

var serviceFlag string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the certificate and DDNS daemon",
	Long: `Run starts the configured background tasks and blocks until the process
receives SIGINT or SIGTERM. Each task runs its first cycle immediately
and then repeats on its fixed interval.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&serviceFlag, "service", "all", "services to run: all, certificate, or ddns")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	services, err := parseServices(serviceFlag)
	if err != nil {
		return err
	}

	// Load configuration first; a bad or incomplete configuration stops
	// the process before anything touches the network.
	path := cfgFile
	if path == "" {
		path = config.ConfigFilePath()
	}
	cfg, err := config.Load(path, services)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("flarekeep starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.Bool("certificate", cfg.Services.Certificate),
		slog.Bool("ddns", cfg.Services.DDNS),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := ipresolver.New(ipresolver.WithLogger(logger))
	client, err := cloudflare.New(cfg.CloudflareAPIToken, resolver,
		cloudflare.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("creating cloudflare client: %w", err)
	}
	dnsClient := metrics.InstrumentDNSClient(client)

	// Surface a bad token now instead of in the first cycle. Not fatal;
	// the API may just be unreachable at the moment.
	verifyCtx, verifyCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := client.Verify(verifyCtx); err != nil {
		logger.Warn("cloudflare token verification failed", slog.String("error", err.Error()))
	} else {
		logger.Info("cloudflare token verified")
	}
	verifyCancel()

	group := &task.Group{}

	if cfg.Services.Certificate {
		issuer := acme.New(acme.Config{
			Email:   cfg.ACMEEmail,
			Staging: cfg.ACMEStaging,
			CertDir: cfg.CertDir,
		}, acme.WithLogger(logger))

		certOpts := []certificate.Option{certificate.WithLogger(logger)}
		if len(cfg.DeployTargets) > 0 {
			deployer := deploy.New(issuer.Storage(), cfg.DeployTargets,
				deploy.WithLogger(logger),
			)
			certOpts = append(certOpts, certificate.WithRenewHook(deployer.Deploy))
		}

		group.Add(task.NewRunner(certificate.New(issuer, dnsClient, cfg, certOpts...),
			task.WithLogger(logger),
			task.WithCycleHook(metrics.ObserveCycle),
		))
		logger.Info("certificate task configured",
			slog.Int("groups", len(cfg.DomainGroups)),
			slog.Int("deploy_groups", len(cfg.DeployTargets)),
			slog.Int("threshold_days", cfg.CertRenewalThresholdDays),
			slog.Duration("interval", cfg.CertCheckInterval()),
			slog.Bool("staging", cfg.ACMEStaging),
		)
	}

	if cfg.Services.DDNS {
		group.Add(task.NewRunner(ddns.New(dnsClient, cfg, ddns.WithLogger(logger)),
			task.WithLogger(logger),
			task.WithCycleHook(metrics.ObserveCycle),
		))
		logger.Info("ddns task configured",
			slog.Int("entries", len(cfg.DDNSEntries)),
			slog.Duration("interval", cfg.DDNSCheckInterval()),
		)
	}

	var healthServer *health.Server
	if cfg.HealthAddr != "" {
		healthServer = health.New(cfg.HealthAddr,
			health.WithLogger(logger),
			health.WithVersion(Version),
			health.WithStatusSource(group.States),
		)
		healthServer.RegisterChecker("cloudflare", client.Verify)
		if err := healthServer.Start(); err != nil {
			return fmt.Errorf("starting health server: %w", err)
		}
	}

	group.Start(ctx)
	logger.Info("flarekeep running",
		slog.Int("tasks", len(group.States())),
		slog.String("health_addr", cfg.HealthAddr),
	)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	// Graceful shutdown: stop scheduling new cycles, then wait for
	// whatever is mid-flight.
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()
	if !group.StopWait(stopCtx) {
		logger.Warn("shutdown grace period expired with cycles in flight")
	}

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", slog.String("error", err.Error()))
		}
	}

	logger.Info("flarekeep shutdown complete")
	return nil
}

// parseServices maps the --service flag to a service selection.
func parseServices(s string) (config.ServiceSet, error) {
	switch s {
	case "all", "":
		return config.AllServices, nil
	case "certificate":
		return config.ServiceSet{Certificate: true}, nil
	case "ddns":
		return config.ServiceSet{DDNS: true}, nil
	default:
		return config.ServiceSet{}, fmt.Errorf("unknown service %q (want all, certificate, or ddns)", s)
	}
}

// Package deploy pushes renewed certificate material to remote hosts
// over SFTP and reloads the services that consume it.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"gitlab.bluewillows.net/root/flarekeep/internal/acme"
	"gitlab.bluewillows.net/root/flarekeep/internal/config"
	"gitlab.bluewillows.net/root/flarekeep/pkg/sshutil"
)

// Remote file names mirror the local storage layout, so targets see the
// familiar certbot names.
const (
	remoteCertFile = "fullchain.pem"
	remoteKeyFile  = "privkey.pem"
)

// remote bundles the sessions used to push files and run the reload
// command on one target.
type remote struct {
	fs     sshutil.FileSystem
	runner sshutil.CommandRunner
	close  func()
}

// connectFunc opens the sessions for one target.
type connectFunc func(ctx context.Context, target config.DeployTarget, logger *slog.Logger) (*remote, error)

// Deployer uploads issued certificates to the targets configured for
// each domain group. Groups without targets deploy nowhere.
type Deployer struct {
	targets map[string][]config.DeployTarget
	storage *acme.Storage
	logger  *slog.Logger
	connect connectFunc
}

// Option is a functional option for configuring the Deployer.
type Option func(*Deployer)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deployer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Deployer reading certificate material from storage.
func New(storage *acme.Storage, targets map[string][]config.DeployTarget, opts ...Option) *Deployer {
	d := &Deployer{
		targets: targets,
		storage: storage,
		logger:  slog.Default(),
		connect: sshConnect,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy uploads the group's fullchain and private key to every
// configured target and runs each target's reload command. A failed
// target does not stop the others; the combined error reports every
// failure. Matches the certificate task's renew hook signature.
func (d *Deployer) Deploy(ctx context.Context, groupKey string, _ []string) error {
	targets := d.targets[groupKey]
	if len(targets) == 0 {
		return nil
	}

	fullchain, err := os.ReadFile(d.storage.CertPath(groupKey))
	if err != nil {
		return fmt.Errorf("reading certificate: %w", err)
	}
	privkey, err := os.ReadFile(d.storage.KeyPath(groupKey))
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}

	var errs []error
	for _, target := range targets {
		if err := d.deployTo(ctx, target, fullchain, privkey); err != nil {
			d.logger.Error("certificate deployment failed",
				slog.String("group", groupKey),
				slog.String("host", target.Host),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", target.Host, err))
			continue
		}

		d.logger.Info("certificate deployed",
			slog.String("group", groupKey),
			slog.String("host", target.Host),
			slog.String("remote_dir", target.RemoteDir),
		)
	}

	return errors.Join(errs...)
}

// deployTo pushes the certificate files to one target and reloads it.
func (d *Deployer) deployTo(ctx context.Context, target config.DeployTarget, fullchain, privkey []byte) error {
	rem, err := d.connect(ctx, target, d.logger)
	if err != nil {
		return err
	}
	defer rem.close()

	if err := rem.fs.MkdirAll(target.RemoteDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", target.RemoteDir, err)
	}

	if err := rem.fs.WriteFile(path.Join(target.RemoteDir, remoteCertFile), fullchain, 0o644); err != nil {
		return fmt.Errorf("uploading %s: %w", remoteCertFile, err)
	}
	if err := rem.fs.WriteFile(path.Join(target.RemoteDir, remoteKeyFile), privkey, 0o600); err != nil {
		return fmt.Errorf("uploading %s: %w", remoteKeyFile, err)
	}

	if target.ReloadCommand != "" {
		if err := rem.runner.Run(ctx, target.ReloadCommand); err != nil {
			return fmt.Errorf("reload command: %w", err)
		}
	}

	return nil
}

// sshConnect opens the SSH connection and SFTP session for a target.
func sshConnect(ctx context.Context, target config.DeployTarget, logger *slog.Logger) (*remote, error) {
	cfg := &sshutil.Config{
		Host:     target.Host,
		Port:     target.Port,
		User:     target.User,
		KeyFile:  target.KeyFile,
		Password: target.Password,
	}

	client, err := sshutil.NewClient(cfg, sshutil.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	fs := sshutil.NewSFTPFileSystem(client, sshutil.WithSFTPLogger(logger))
	if err := fs.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &remote{
		fs:     fs,
		runner: sshutil.NewSSHCommandRunner(client, sshutil.WithCommandLogger(logger)),
		close: func() {
			_ = fs.Close()
			_ = client.Close()
		},
	}, nil
}

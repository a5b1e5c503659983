package deploy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"gitlab.bluewillows.net/root/flarekeep/internal/acme"
	"gitlab.bluewillows.net/root/flarekeep/internal/config"
)

type fakeRemote struct {
	files    map[string][]byte
	perms    map[string]os.FileMode
	dirs     []string
	commands []string
	writeErr error
	runErr   error
	closed   bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files: make(map[string][]byte),
		perms: make(map[string]os.FileMode),
	}
}

func (r *fakeRemote) WriteFile(path string, data []byte, perm os.FileMode) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.files[path] = data
	r.perms[path] = perm
	return nil
}

func (r *fakeRemote) MkdirAll(path string, perm os.FileMode) error {
	r.dirs = append(r.dirs, path)
	return nil
}

func (r *fakeRemote) Run(ctx context.Context, command string) error {
	if r.runErr != nil {
		return r.runErr
	}
	r.commands = append(r.commands, command)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedStorage writes certificate material the way a renewal would.
func seedStorage(t *testing.T, groupKey string) *acme.Storage {
	t.Helper()
	store := acme.NewStorage(t.TempDir())
	err := store.Save(groupKey, []byte("chain-pem"), []byte("key-pem"), nil)
	if err != nil {
		t.Fatalf("seeding storage: %v", err)
	}
	return store
}

// fakeConnect wires the deployer to canned remotes keyed by host.
// Hosts in failConnect refuse the connection.
func fakeConnect(remotes map[string]*fakeRemote, failConnect map[string]error) connectFunc {
	return func(ctx context.Context, target config.DeployTarget, logger *slog.Logger) (*remote, error) {
		if err := failConnect[target.Host]; err != nil {
			return nil, err
		}
		rem := remotes[target.Host]
		return &remote{
			fs:     rem,
			runner: rem,
			close:  func() { rem.closed = true },
		}, nil
	}
}

func TestDeployNoTargetsIsNoop(t *testing.T) {
	store := seedStorage(t, "example.com")
	d := New(store, map[string][]config.DeployTarget{}, WithLogger(discardLogger()))
	d.connect = func(ctx context.Context, target config.DeployTarget, logger *slog.Logger) (*remote, error) {
		t.Fatal("connect called for a group without targets")
		return nil, nil
	}

	if err := d.Deploy(context.Background(), "example.com", []string{"example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeployUploadsAndReloads(t *testing.T) {
	store := seedStorage(t, "example.com")
	rem := newFakeRemote()
	targets := map[string][]config.DeployTarget{
		"example.com": {{
			Group:         "example.com",
			Host:          "web-01.internal",
			User:          "deploy",
			RemoteDir:     "/etc/nginx/certs",
			ReloadCommand: "systemctl reload nginx",
		}},
	}

	d := New(store, targets, WithLogger(discardLogger()))
	d.connect = fakeConnect(map[string]*fakeRemote{"web-01.internal": rem}, nil)

	if err := d.Deploy(context.Background(), "example.com", []string{"example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rem.dirs) != 1 || rem.dirs[0] != "/etc/nginx/certs" {
		t.Errorf("expected remote dir creation, got %v", rem.dirs)
	}

	cert := rem.files["/etc/nginx/certs/fullchain.pem"]
	if string(cert) != "chain-pem" {
		t.Errorf("unexpected certificate content %q", cert)
	}
	if perm := rem.perms["/etc/nginx/certs/fullchain.pem"]; perm != 0o644 {
		t.Errorf("expected certificate mode 0644, got %o", perm)
	}

	key := rem.files["/etc/nginx/certs/privkey.pem"]
	if string(key) != "key-pem" {
		t.Errorf("unexpected key content %q", key)
	}
	if perm := rem.perms["/etc/nginx/certs/privkey.pem"]; perm != 0o600 {
		t.Errorf("expected key mode 0600, got %o", perm)
	}

	if len(rem.commands) != 1 || rem.commands[0] != "systemctl reload nginx" {
		t.Errorf("expected reload command, got %v", rem.commands)
	}
	if !rem.closed {
		t.Error("expected remote sessions to be closed")
	}
}

func TestDeployWithoutReloadCommand(t *testing.T) {
	store := seedStorage(t, "example.com")
	rem := newFakeRemote()
	targets := map[string][]config.DeployTarget{
		"example.com": {{
			Group:     "example.com",
			Host:      "web-01.internal",
			User:      "deploy",
			RemoteDir: "/etc/ssl/flarekeep",
		}},
	}

	d := New(store, targets, WithLogger(discardLogger()))
	d.connect = fakeConnect(map[string]*fakeRemote{"web-01.internal": rem}, nil)

	if err := d.Deploy(context.Background(), "example.com", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rem.commands) != 0 {
		t.Errorf("expected no reload command, got %v", rem.commands)
	}
}

func TestDeployMissingLocalCertificate(t *testing.T) {
	store := acme.NewStorage(t.TempDir())
	targets := map[string][]config.DeployTarget{
		"example.com": {{Group: "example.com", Host: "web-01.internal", User: "deploy", RemoteDir: "/certs"}},
	}

	d := New(store, targets, WithLogger(discardLogger()))
	d.connect = func(ctx context.Context, target config.DeployTarget, logger *slog.Logger) (*remote, error) {
		t.Fatal("connect called with no local certificate to deploy")
		return nil, nil
	}

	err := d.Deploy(context.Background(), "example.com", nil)
	if err == nil {
		t.Fatal("expected error for missing certificate")
	}
	if !strings.Contains(err.Error(), "reading certificate") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestDeployTargetFailuresAreIsolated(t *testing.T) {
	store := seedStorage(t, "example.com")
	good := newFakeRemote()
	connectErr := errors.New("connection refused")
	targets := map[string][]config.DeployTarget{
		"example.com": {
			{Group: "example.com", Host: "down.internal", User: "deploy", RemoteDir: "/certs"},
			{Group: "example.com", Host: "web-01.internal", User: "deploy", RemoteDir: "/certs"},
		},
	}

	d := New(store, targets, WithLogger(discardLogger()))
	d.connect = fakeConnect(
		map[string]*fakeRemote{"web-01.internal": good},
		map[string]error{"down.internal": connectErr},
	)

	err := d.Deploy(context.Background(), "example.com", nil)
	if err == nil {
		t.Fatal("expected error for the failed target")
	}
	if !strings.Contains(err.Error(), "down.internal") {
		t.Errorf("expected error to name the failed host, got %v", err)
	}
	if !errors.Is(err, connectErr) {
		t.Errorf("expected connect error in chain, got %v", err)
	}

	if _, ok := good.files["/certs/fullchain.pem"]; !ok {
		t.Error("expected the healthy target to still receive the certificate")
	}
}

func TestDeployReloadFailure(t *testing.T) {
	store := seedStorage(t, "example.com")
	rem := newFakeRemote()
	rem.runErr = errors.New("exit code 1")
	targets := map[string][]config.DeployTarget{
		"example.com": {{
			Group:         "example.com",
			Host:          "web-01.internal",
			User:          "deploy",
			RemoteDir:     "/certs",
			ReloadCommand: "systemctl reload nginx",
		}},
	}

	d := New(store, targets, WithLogger(discardLogger()))
	d.connect = fakeConnect(map[string]*fakeRemote{"web-01.internal": rem}, nil)

	err := d.Deploy(context.Background(), "example.com", nil)
	if err == nil {
		t.Fatal("expected error for failed reload")
	}
	if !strings.Contains(err.Error(), "reload command") {
		t.Errorf("unexpected error %v", err)
	}
	if !rem.closed {
		t.Error("expected remote sessions to be closed after failure")
	}
}

func TestDeployUploadFailureClosesRemote(t *testing.T) {
	store := seedStorage(t, "example.com")
	rem := newFakeRemote()
	rem.writeErr = errors.New("disk full")
	targets := map[string][]config.DeployTarget{
		"example.com": {{Group: "example.com", Host: "web-01.internal", User: "deploy", RemoteDir: "/certs"}},
	}

	d := New(store, targets, WithLogger(discardLogger()))
	d.connect = fakeConnect(map[string]*fakeRemote{"web-01.internal": rem}, nil)

	err := d.Deploy(context.Background(), "example.com", nil)
	if err == nil {
		t.Fatal("expected error for failed upload")
	}
	if !strings.Contains(err.Error(), "uploading fullchain.pem") {
		t.Errorf("unexpected error %v", err)
	}
	if !rem.closed {
		t.Error("expected remote sessions to be closed after failure")
	}
}

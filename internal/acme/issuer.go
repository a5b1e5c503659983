// Package acme issues certificates from an ACME certificate authority,
// answering DNS-01 challenges through a caller-supplied hook.
//
// The account key and registration persist under the certificate
// directory, so a restarted daemon reuses its account instead of
// registering a new one. Issued certificates land in the certbot live/
// layout: one directory per group key holding fullchain.pem and
// privkey.pem.
package acme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"gitlab.bluewillows.net/root/flarekeep/pkg/certtool"
	"gitlab.bluewillows.net/root/flarekeep/pkg/httputil"
)

// accountDir holds the ACME account material inside the certificate
// directory.
const accountDir = ".account"

const (
	accountKeyFile = "account.key"
	accountRegFile = "registration.json"
)

// Config configures the Issuer.
type Config struct {
	// Email registers the ACME account.
	Email string

	// Staging selects the Let's Encrypt staging directory. Staging
	// certificates are not browser-trusted; use for rehearsal only.
	Staging bool

	// CertDir is the root of certificate storage.
	CertDir string

	// Resolver overrides the DNS server used for propagation checks, as
	// host:port. Empty uses the system resolver.
	Resolver string
}

// Issuer is the lego-backed certificate tool.
type Issuer struct {
	email    string
	caDirURL string
	storage  *Storage
	check    *propagationCheck
	logger   *slog.Logger

	mu     sync.Mutex
	client *lego.Client
	acct   *account
}

var _ certtool.Tool = (*Issuer)(nil)

// Option is a functional option for configuring the Issuer.
type Option func(*Issuer)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an Issuer. No network traffic happens until the first
// issuance.
func New(cfg Config, opts ...Option) *Issuer {
	caDirURL := lego.LEDirectoryProduction
	if cfg.Staging {
		caDirURL = lego.LEDirectoryStaging
	}

	i := &Issuer{
		email:    cfg.Email,
		caDirURL: caDirURL,
		storage:  NewStorage(cfg.CertDir),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.check = newPropagationCheck(cfg.Resolver, i.logger)
	return i
}

// Storage exposes the certificate storage, for deployment after renewal.
func (i *Issuer) Storage() *Storage { return i.storage }

// Expiry implements certtool.Tool.
func (i *Issuer) Expiry(groupKey string) (time.Time, bool, error) {
	return i.storage.Expiry(groupKey)
}

// Issue implements certtool.Tool: obtain one certificate covering every
// domain in the group and store it under the first domain's name.
func (i *Issuer) Issue(ctx context.Context, domains []string, hook certtool.ChallengeHook) error {
	if len(domains) == 0 {
		return certtool.WrapError("", errors.New("empty domain group"))
	}
	key := domains[0]

	i.mu.Lock()
	defer i.mu.Unlock()

	client, err := i.ensureClient()
	if err != nil {
		return certtool.WrapError(key, err)
	}

	prov := newHookProvider(ctx, hook)
	if err := client.Challenge.SetDNS01Provider(prov, dns01.WrapPreCheck(i.check.Wrap)); err != nil {
		return certtool.WrapError(key, err)
	}

	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
	if err != nil {
		return certtool.WrapError(key, err)
	}

	if err := i.storage.Save(key, res.Certificate, res.PrivateKey, res.IssuerCertificate); err != nil {
		return certtool.WrapError(key, err)
	}

	i.logger.Info("certificate stored",
		slog.String("group", key),
		slog.String("dir", i.storage.Dir(key)),
	)
	return nil
}

// account is the persisted ACME account identity.
type account struct {
	email string
	key   crypto.PrivateKey
	reg   *registration.Resource
}

func (a *account) GetEmail() string                        { return a.email }
func (a *account) GetRegistration() *registration.Resource { return a.reg }
func (a *account) GetPrivateKey() crypto.PrivateKey        { return a.key }

// ensureClient builds the lego client on first use, loading or creating
// the account as needed. Caller holds i.mu.
func (i *Issuer) ensureClient() (*lego.Client, error) {
	if i.client != nil {
		return i.client, nil
	}

	acct, err := i.loadOrCreateAccount()
	if err != nil {
		return nil, err
	}

	cfg := lego.NewConfig(acct)
	cfg.CADirURL = i.caDirURL
	cfg.Certificate.KeyType = certcrypto.RSA2048
	cfg.UserAgent = httputil.DefaultUserAgent

	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("building acme client: %w", err)
	}

	if acct.reg == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("registering acme account: %w", err)
		}
		acct.reg = reg
		if err := i.saveRegistration(acct); err != nil {
			return nil, err
		}
		i.logger.Info("acme account registered",
			slog.String("email", i.email),
			slog.String("ca", i.caDirURL),
		)
	}

	i.acct = acct
	i.client = client
	return client, nil
}

func (i *Issuer) accountPath(file string) string {
	return filepath.Join(i.storage.Root(), accountDir, file)
}

// loadOrCreateAccount restores the account from disk, generating a fresh
// key when none exists. A key without a stored registration re-registers
// on the next issuance.
func (i *Issuer) loadOrCreateAccount() (*account, error) {
	acct := &account{email: i.email}

	keyPEM, err := os.ReadFile(i.accountPath(accountKeyFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating account key: %w", err)
		}
		if err := i.saveAccountKey(key); err != nil {
			return nil, err
		}
		acct.key = key
		i.logger.Info("acme account key generated",
			slog.String("path", i.accountPath(accountKeyFile)),
		)
		return acct, nil
	case err != nil:
		return nil, fmt.Errorf("reading account key: %w", err)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("account key %s: no PEM data", i.accountPath(accountKeyFile))
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing account key: %w", err)
	}
	acct.key = key

	regJSON, err := os.ReadFile(i.accountPath(accountRegFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Registration lost; re-register with the existing key.
	case err != nil:
		return nil, fmt.Errorf("reading account registration: %w", err)
	default:
		var reg registration.Resource
		if err := json.Unmarshal(regJSON, &reg); err != nil {
			return nil, fmt.Errorf("parsing account registration: %w", err)
		}
		acct.reg = &reg
	}

	return acct, nil
}

func (i *Issuer) saveAccountKey(key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding account key: %w", err)
	}

	dir := filepath.Join(i.storage.Root(), accountDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	pemData := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(i.accountPath(accountKeyFile), pemData, 0o600); err != nil {
		return fmt.Errorf("writing account key: %w", err)
	}
	return nil
}

func (i *Issuer) saveRegistration(acct *account) error {
	data, err := json.MarshalIndent(acct.reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding account registration: %w", err)
	}
	if err := os.WriteFile(i.accountPath(accountRegFile), data, 0o600); err != nil {
		return fmt.Errorf("writing account registration: %w", err)
	}
	return nil
}

package acme

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Certificate file names within a group's directory, matching the
// certbot live/ layout so existing consumers keep working.
const (
	fullchainFile = "fullchain.pem"
	privkeyFile   = "privkey.pem"
	chainFile     = "chain.pem"
)

// Storage reads and writes issued certificates, one directory per group
// key.
type Storage struct {
	dir string
}

// NewStorage creates storage rooted at dir.
func NewStorage(dir string) *Storage {
	return &Storage{dir: dir}
}

// Root returns the storage root directory.
func (s *Storage) Root() string { return s.dir }

// Dir returns the directory holding groupKey's certificate files.
func (s *Storage) Dir(groupKey string) string {
	return filepath.Join(s.dir, groupKey)
}

// CertPath returns the path of groupKey's certificate chain.
func (s *Storage) CertPath(groupKey string) string {
	return filepath.Join(s.Dir(groupKey), fullchainFile)
}

// KeyPath returns the path of groupKey's private key.
func (s *Storage) KeyPath(groupKey string) string {
	return filepath.Join(s.Dir(groupKey), privkeyFile)
}

// Expiry returns the NotAfter of the stored leaf certificate. present is
// false when no certificate exists yet; a certificate that exists but
// cannot be parsed is an error.
func (s *Storage) Expiry(groupKey string) (time.Time, bool, error) {
	path := s.CertPath(groupKey)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	// The leaf is the first block of the bundle.
	block, _ := pem.Decode(data)
	if block == nil {
		return time.Time{}, false, fmt.Errorf("%s: no PEM data", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cert.NotAfter, true, nil
}

// Save writes the issued material for groupKey. The private key lands
// first with tight permissions; fullchain.pem is written last, and
// Expiry treats its presence as the marker of a completed issuance.
func (s *Storage) Save(groupKey string, fullchain, privateKey, issuer []byte) error {
	dir := s.Dir(groupKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	if err := os.WriteFile(filepath.Join(dir, privkeyFile), privateKey, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if len(issuer) > 0 {
		if err := os.WriteFile(filepath.Join(dir, chainFile), issuer, 0o644); err != nil {
			return fmt.Errorf("writing issuer chain: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, fullchainFile), fullchain, 0o644); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}

	return nil
}

// Package config resolves flarekeep configuration from a structured config
// file, environment variables, and built-in defaults into one immutable
// effective configuration.
//
// Precedence is fixed per individual setting: file value if present and
// non-empty, else environment value if present and non-empty, else the
// built-in default. Mandatory settings without a default fail resolution
// with a ConfigurationError naming the missing key.
package config

import (
	"time"

	"gitlab.bluewillows.net/root/flarekeep/pkg/dnsapi"
)

// Config is the effective configuration. It is built once at startup and
// never mutated; a config change requires a process restart.
type Config struct {
	// DomainGroups is the ordered list of certificate domain groups. Each
	// group becomes one certificate covering all its names as SANs; the
	// first domain is the certificate's storage key.
	DomainGroups [][]string

	// DDNSEntries lists the DNS records to keep pointed at the public IP.
	DDNSEntries []DDNSEntry

	CertRenewalThresholdDays int
	CertCheckIntervalHours   int
	DDNSCheckIntervalMinutes int

	// CertDir is where issued certificates live, one directory per group key.
	CertDir string

	CloudflareAPIToken string
	CloudflareEmail    string

	ACMEEmail   string
	ACMEStaging bool

	// DeployTargets maps a group key to the remote hosts its certificate is
	// copied to after renewal.
	DeployTargets map[string][]DeployTarget

	LogLevel   string
	LogFormat  string
	HealthAddr string // empty disables the health listener

	// Services records which tasks this process was asked to run.
	Services ServiceSet
}

// DDNSEntry maps one domain to the subdomains and record types kept in sync.
// The subdomain "@" designates the bare apex domain.
type DDNSEntry struct {
	Domain      string
	Subdomains  []string
	RecordTypes []dnsapi.RecordType
}

// DeployTarget describes a remote host that receives a renewed certificate
// over SFTP, with an optional reload command run afterwards.
type DeployTarget struct {
	Group         string
	Host          string
	Port          int
	User          string
	KeyFile       string
	Password      string
	RemoteDir     string
	ReloadCommand string
}

// ServiceSet selects which tasks the process runs. Mandatory-key
// enforcement follows the selection: the Cloudflare token is always
// required; domain groups and the ACME email only when Certificate is set.
type ServiceSet struct {
	Certificate bool
	DDNS        bool
}

// AllServices enables both tasks.
var AllServices = ServiceSet{Certificate: true, DDNS: true}

// CertCheckInterval returns the certificate task cadence as a duration.
func (c *Config) CertCheckInterval() time.Duration {
	return time.Duration(c.CertCheckIntervalHours) * time.Hour
}

// DDNSCheckInterval returns the DDNS task cadence as a duration.
func (c *Config) DDNSCheckInterval() time.Duration {
	return time.Duration(c.DDNSCheckIntervalMinutes) * time.Minute
}

// GroupKey returns the canonical storage key for a domain group.
func GroupKey(group []string) string {
	if len(group) == 0 {
		return ""
	}
	return group[0]
}

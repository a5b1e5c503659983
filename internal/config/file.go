package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the structured configuration file. Both YAML and
// TOML files unmarshal into it; the format is chosen by file extension.
type FileConfig struct {
	Logging      *FileLoggingConfig    `yaml:"logging,omitempty" toml:"logging,omitempty"`
	Cloudflare   *FileCloudflareConfig `yaml:"cloudflare,omitempty" toml:"cloudflare,omitempty"`
	ACME         *FileACMEConfig       `yaml:"acme,omitempty" toml:"acme,omitempty"`
	Certificates *FileCertConfig       `yaml:"certificates,omitempty" toml:"certificates,omitempty"`
	DDNS         *FileDDNSConfig       `yaml:"ddns,omitempty" toml:"ddns,omitempty"`
	Health       *FileHealthConfig     `yaml:"health,omitempty" toml:"health,omitempty"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format,omitempty"` // json, text
}

// FileCloudflareConfig holds Cloudflare credentials.
type FileCloudflareConfig struct {
	APIToken string `yaml:"api_token,omitempty" toml:"api_token,omitempty"`
	Email    string `yaml:"email,omitempty" toml:"email,omitempty"`
}

// FileACMEConfig holds ACME account settings.
type FileACMEConfig struct {
	Email   string `yaml:"email,omitempty" toml:"email,omitempty"`
	Staging *bool  `yaml:"staging,omitempty" toml:"staging,omitempty"` // pointer to distinguish unset from false
}

// FileCertConfig holds certificate renewal settings. Each domains entry is
// one comma-separated group; distinct entries become distinct certificates.
type FileCertConfig struct {
	Domains              []string           `yaml:"domains,omitempty" toml:"domains,omitempty"`
	RenewalThresholdDays int                `yaml:"renewal_threshold_days,omitempty" toml:"renewal_threshold_days,omitempty"`
	CheckIntervalHours   int                `yaml:"check_interval_hours,omitempty" toml:"check_interval_hours,omitempty"`
	CertDir              string             `yaml:"cert_dir,omitempty" toml:"cert_dir,omitempty"`
	Deploy               []FileDeployTarget `yaml:"deploy,omitempty" toml:"deploy,omitempty"`
}

// FileDeployTarget holds one remote deployment destination for a group's
// renewed certificate.
type FileDeployTarget struct {
	Group         string `yaml:"group" toml:"group"`
	Host          string `yaml:"host" toml:"host"`
	Port          int    `yaml:"port,omitempty" toml:"port,omitempty"`
	User          string `yaml:"user" toml:"user"`
	KeyFile       string `yaml:"key_file,omitempty" toml:"key_file,omitempty"`
	Password      string `yaml:"password,omitempty" toml:"password,omitempty"`
	RemoteDir     string `yaml:"remote_dir" toml:"remote_dir"`
	ReloadCommand string `yaml:"reload_command,omitempty" toml:"reload_command,omitempty"`
}

// FileDDNSConfig holds dynamic DNS settings.
type FileDDNSConfig struct {
	CheckIntervalMinutes int              `yaml:"check_interval_minutes,omitempty" toml:"check_interval_minutes,omitempty"`
	Domains              []FileDDNSDomain `yaml:"domains,omitempty" toml:"domains,omitempty"`
}

// FileDDNSDomain configures one domain's dynamic records. Subdomains and
// record types are comma-separated strings; record_types left empty falls
// back to A.
type FileDDNSDomain struct {
	Domain      string `yaml:"domain" toml:"domain"`
	Subdomains  string `yaml:"subdomains,omitempty" toml:"subdomains,omitempty"`
	RecordTypes string `yaml:"record_types,omitempty" toml:"record_types,omitempty"`
}

// FileHealthConfig holds health/metrics listener settings.
type FileHealthConfig struct {
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable
// values. Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// interpolateEnvVars interpolates environment variables in all string
// fields of the config structure.
func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}

	if c.Cloudflare != nil {
		c.Cloudflare.APIToken = InterpolateEnvVars(c.Cloudflare.APIToken)
		c.Cloudflare.Email = InterpolateEnvVars(c.Cloudflare.Email)
	}

	if c.ACME != nil {
		c.ACME.Email = InterpolateEnvVars(c.ACME.Email)
	}

	if c.Certificates != nil {
		for i := range c.Certificates.Domains {
			c.Certificates.Domains[i] = InterpolateEnvVars(c.Certificates.Domains[i])
		}
		c.Certificates.CertDir = InterpolateEnvVars(c.Certificates.CertDir)
		for i := range c.Certificates.Deploy {
			d := &c.Certificates.Deploy[i]
			d.Group = InterpolateEnvVars(d.Group)
			d.Host = InterpolateEnvVars(d.Host)
			d.User = InterpolateEnvVars(d.User)
			d.KeyFile = InterpolateEnvVars(d.KeyFile)
			d.Password = InterpolateEnvVars(d.Password)
			d.RemoteDir = InterpolateEnvVars(d.RemoteDir)
			d.ReloadCommand = InterpolateEnvVars(d.ReloadCommand)
		}
	}

	if c.DDNS != nil {
		for i := range c.DDNS.Domains {
			d := &c.DDNS.Domains[i]
			d.Domain = InterpolateEnvVars(d.Domain)
			d.Subdomains = InterpolateEnvVars(d.Subdomains)
			d.RecordTypes = InterpolateEnvVars(d.RecordTypes)
		}
	}

	if c.Health != nil {
		c.Health.Addr = InterpolateEnvVars(c.Health.Addr)
	}
}

// LoadFile reads and parses a configuration file. Files ending in .toml
// are parsed as TOML; everything else as YAML. Environment variables in
// ${VAR} format are interpolated after parsing.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	cfg.interpolateEnvVars()

	return &cfg, nil
}

// ConfigFilePath returns the config file path from the environment.
// Returns empty string when no config file is specified; the resolver then
// works from environment variables and defaults alone.
func ConfigFilePath() string {
	return os.Getenv(EnvConfigFile)
}

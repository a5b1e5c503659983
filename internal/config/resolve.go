package config

import (
	"errors"
	"strconv"
	"strings"
)

// Load builds the effective configuration from the config file at path,
// the process environment, and built-in defaults. An empty path means no
// config file is in use and the file layer contributes nothing.
func Load(path string, services ServiceSet) (*Config, error) {
	var fc *FileConfig
	if path != "" {
		var err error
		fc, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	}
	return Resolve(fc, EnvFromOS(), services)
}

// Resolve merges the three configuration sources into the effective
// configuration. Precedence is applied per setting: the file value wins
// when present and non-empty, then the environment, then the built-in
// default. Settings that are mandatory for the selected services and
// resolve to nothing produce a ConfigurationError naming the setting; all
// such errors are collected and reported together.
func Resolve(fc *FileConfig, env EnvSource, services ServiceSet) (*Config, error) {
	r := &resolver{env: env}
	cfg := &Config{Services: services}

	cfg.LogLevel = strings.ToLower(r.str(fc.loggingLevel(), EnvLogLevel, DefaultLogLevel))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		r.invalid(EnvLogLevel, cfg.LogLevel, "must be one of debug, info, warn, error")
	}

	cfg.LogFormat = strings.ToLower(r.str(fc.loggingFormat(), EnvLogFormat, DefaultLogFormat))
	switch cfg.LogFormat {
	case "json", "text":
	default:
		r.invalid(EnvLogFormat, cfg.LogFormat, "must be json or text")
	}

	cfg.CloudflareAPIToken = r.str(fc.cloudflareToken(), EnvCloudflareAPIToken, "")
	if cfg.CloudflareAPIToken == "" {
		r.missing(EnvCloudflareAPIToken, "set cloudflare.api_token in the config file or the "+EnvCloudflareAPIToken+" environment variable")
	}
	cfg.CloudflareEmail = r.str(fc.cloudflareEmail(), EnvCloudflareEmail, "")

	cfg.CertRenewalThresholdDays = r.positiveInt(fc.certThresholdDays(), EnvCertRenewalThresholdDays, DefaultCertRenewalThresholdDays)
	cfg.CertCheckIntervalHours = r.positiveInt(fc.certIntervalHours(), EnvCertCheckIntervalHours, DefaultCertCheckIntervalHours)
	cfg.CertDir = r.str(fc.certDir(), EnvCertDir, DefaultCertDir)

	if entries := fc.certDomains(); len(entries) > 0 {
		groups, errs := groupsFromFile(entries)
		r.errs = append(r.errs, errs...)
		cfg.DomainGroups = groups
	} else if v := env.get(EnvDomains); v != "" {
		cfg.DomainGroups = ParseDomainGroups(v)
	}
	if services.Certificate && len(cfg.DomainGroups) == 0 {
		r.missing(EnvDomains, "set certificates.domains in the config file or the "+EnvDomains+" environment variable")
	}

	cfg.ACMEEmail = r.str(fc.acmeEmail(), EnvACMEEmail, "")
	if services.Certificate && cfg.ACMEEmail == "" {
		r.missing(EnvACMEEmail, "set acme.email in the config file or the "+EnvACMEEmail+" environment variable")
	}
	cfg.ACMEStaging = r.boolSetting(fc.acmeStaging(), EnvACMEStaging, false)

	targets, errs := deployFromFile(fc.certDeploy(), cfg.DomainGroups)
	r.errs = append(r.errs, errs...)
	cfg.DeployTargets = targets

	cfg.DDNSCheckIntervalMinutes = r.positiveInt(fc.ddnsIntervalMinutes(), EnvDDNSCheckIntervalMinute, DefaultDDNSCheckIntervalMinutes)

	defaultTypes := parseRecordTypes(env.get(EnvDDNSRecordTypes))
	if fileDomains := fc.ddnsDomains(); len(fileDomains) > 0 {
		entries, errs := ddnsFromFile(fileDomains, defaultTypes)
		r.errs = append(r.errs, errs...)
		cfg.DDNSEntries = entries
	} else if v := env.get(EnvDDNSDomains); v != "" {
		entries, errs := ParseDDNSDomains(v, defaultTypes)
		r.errs = append(r.errs, errs...)
		cfg.DDNSEntries = entries
	}

	cfg.HealthAddr = r.str(fc.healthAddr(), EnvHealthAddr, DefaultHealthAddr)

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}

// resolver applies per-setting precedence and accumulates configuration
// errors so a single run reports every problem at once.
type resolver struct {
	env  EnvSource
	errs []error
}

func (r *resolver) missing(key, hint string) {
	r.errs = append(r.errs, missingKey(key, hint))
}

func (r *resolver) invalid(key, value, reason string) {
	r.errs = append(r.errs, invalidKey(key, value, reason))
}

// str resolves a string setting: file value, then env, then default.
func (r *resolver) str(fileVal, envKey, def string) string {
	if v := strings.TrimSpace(fileVal); v != "" {
		return v
	}
	if v := r.env.get(envKey); v != "" {
		return v
	}
	return def
}

// positiveInt resolves an integer setting that must be greater than zero.
// A zero file value means unset; anything else invalid falls back to the
// default after recording an error.
func (r *resolver) positiveInt(fileVal int, envKey string, def int) int {
	if fileVal > 0 {
		return fileVal
	}
	if fileVal < 0 {
		r.invalid(envKey, strconv.Itoa(fileVal), "must be a positive integer")
		return def
	}
	if v := r.env.get(envKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.invalid(envKey, v, "must be a positive integer")
			return def
		}
		if n <= 0 {
			r.invalid(envKey, v, "must be a positive integer")
			return def
		}
		return n
	}
	return def
}

// boolSetting resolves a boolean setting. The file layer uses a *bool so
// an explicit false still wins over the environment.
func (r *resolver) boolSetting(fileVal *bool, envKey string, def bool) bool {
	if fileVal != nil {
		return *fileVal
	}
	if v := r.env.get(envKey); v != "" {
		return parseBool(v, def)
	}
	return def
}

// Nil-safe file accessors. A nil FileConfig (no config file) contributes
// nothing to any setting.

func (c *FileConfig) loggingLevel() string {
	if c == nil || c.Logging == nil {
		return ""
	}
	return c.Logging.Level
}

func (c *FileConfig) loggingFormat() string {
	if c == nil || c.Logging == nil {
		return ""
	}
	return c.Logging.Format
}

func (c *FileConfig) cloudflareToken() string {
	if c == nil || c.Cloudflare == nil {
		return ""
	}
	return c.Cloudflare.APIToken
}

func (c *FileConfig) cloudflareEmail() string {
	if c == nil || c.Cloudflare == nil {
		return ""
	}
	return c.Cloudflare.Email
}

func (c *FileConfig) acmeEmail() string {
	if c == nil || c.ACME == nil {
		return ""
	}
	return c.ACME.Email
}

func (c *FileConfig) acmeStaging() *bool {
	if c == nil || c.ACME == nil {
		return nil
	}
	return c.ACME.Staging
}

func (c *FileConfig) certThresholdDays() int {
	if c == nil || c.Certificates == nil {
		return 0
	}
	return c.Certificates.RenewalThresholdDays
}

func (c *FileConfig) certIntervalHours() int {
	if c == nil || c.Certificates == nil {
		return 0
	}
	return c.Certificates.CheckIntervalHours
}

func (c *FileConfig) certDir() string {
	if c == nil || c.Certificates == nil {
		return ""
	}
	return c.Certificates.CertDir
}

func (c *FileConfig) certDomains() []string {
	if c == nil || c.Certificates == nil {
		return nil
	}
	return c.Certificates.Domains
}

func (c *FileConfig) certDeploy() []FileDeployTarget {
	if c == nil || c.Certificates == nil {
		return nil
	}
	return c.Certificates.Deploy
}

func (c *FileConfig) ddnsIntervalMinutes() int {
	if c == nil || c.DDNS == nil {
		return 0
	}
	return c.DDNS.CheckIntervalMinutes
}

func (c *FileConfig) ddnsDomains() []FileDDNSDomain {
	if c == nil || c.DDNS == nil {
		return nil
	}
	return c.DDNS.Domains
}

func (c *FileConfig) healthAddr() string {
	if c == nil || c.Health == nil {
		return ""
	}
	return c.Health.Addr
}

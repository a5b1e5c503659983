package config

// Built-in defaults, applied when neither config source supplies a value.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultCertRenewalThresholdDays = 30
	DefaultCertCheckIntervalHours   = 12
	DefaultDDNSCheckIntervalMinutes = 15

	DefaultCertDir = "/etc/letsencrypt/live"

	// DefaultHealthAddr is empty: the health listener is off unless
	// configured.
	DefaultHealthAddr = ""

	DefaultDeployPort = 22
)

// Environment variable keys. The flat env source uses these bare names;
// mandatory-key errors name them too since they are the documented
// fallback spelling of each setting.
const (
	EnvCloudflareAPIToken = "CLOUDFLARE_API_TOKEN"
	EnvCloudflareEmail    = "CLOUDFLARE_EMAIL"

	EnvDomains = "DOMAINS"

	EnvACMEEmail   = "ACME_EMAIL"
	EnvACMEStaging = "ACME_STAGING"

	EnvCertRenewalThresholdDays = "CERT_RENEWAL_THRESHOLD_DAYS"
	EnvCertCheckIntervalHours   = "CERT_CHECK_INTERVAL_HOURS"
	EnvCertDir                  = "CERT_DIR"

	EnvDDNSDomains             = "DDNS_DOMAINS"
	EnvDDNSRecordTypes         = "DDNS_RECORD_TYPES"
	EnvDDNSCheckIntervalMinute = "DDNS_CHECK_INTERVAL_MINUTES"

	EnvLogLevel   = "LOG_LEVEL"
	EnvLogFormat  = "LOG_FORMAT"
	EnvHealthAddr = "HEALTH_ADDR"

	// EnvConfigFile points at the config file when the --config flag is
	// not given.
	EnvConfigFile = "FLAREKEEP_CONFIG"
)

package config

import (
	"os"
	"strings"
)

// EnvSource is a point-in-time snapshot of the flat environment source.
// Resolution reads only this map, so it stays pure and testable without
// mutating the process environment.
type EnvSource map[string]string

// secretFileKeys lists settings that support the _FILE suffix for Docker
// secrets. The file contents take precedence over the direct value; local
// development can use direct values while production mounts secrets.
var secretFileKeys = []string{EnvCloudflareAPIToken}

// EnvFromOS snapshots the process environment, resolving _FILE secret
// indirections as it goes.
func EnvFromOS() EnvSource {
	env := make(EnvSource)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}

	for _, key := range secretFileKeys {
		if path := env[key+"_FILE"]; path != "" {
			content, err := os.ReadFile(path)
			if err == nil {
				env[key] = strings.TrimSpace(string(content))
			}
			// If the file read fails, the direct value stays in effect.
		}
	}

	return env
}

// get returns the trimmed value for key; empty when unset.
func (e EnvSource) get(key string) string {
	return strings.TrimSpace(e[key])
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvFromOSSecretFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(secretPath, []byte("secret-token\n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	t.Setenv(EnvCloudflareAPIToken+"_FILE", secretPath)
	t.Setenv(EnvCloudflareAPIToken, "direct-token")

	env := EnvFromOS()
	if got := env.get(EnvCloudflareAPIToken); got != "secret-token" {
		t.Errorf("token = %q, want file contents to win over direct value", got)
	}
}

func TestEnvFromOSSecretFileUnreadable(t *testing.T) {
	t.Setenv(EnvCloudflareAPIToken+"_FILE", filepath.Join(t.TempDir(), "missing"))
	t.Setenv(EnvCloudflareAPIToken, "direct-token")

	env := EnvFromOS()
	if got := env.get(EnvCloudflareAPIToken); got != "direct-token" {
		t.Errorf("token = %q, want direct value kept when file is unreadable", got)
	}
}

func TestEnvSourceGetTrims(t *testing.T) {
	env := EnvSource{"KEY": "  value  "}
	if got := env.get("KEY"); got != "value" {
		t.Errorf("get = %q, want trimmed value", got)
	}
	if got := env.get("ABSENT"); got != "" {
		t.Errorf("get = %q for absent key, want empty", got)
	}
}

package client

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigResolvesLiteralTargetsWithoutDNS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	data := `
secret_key = "secret-alice"
edge = "https://edge.example.com"
edge_ip = "203.0.113.7"
idle_workers = 2

[tunnels.web]
target = "127.0.0.1:8080"
protocol = "tcp"
mode = "reverse"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SecretKey != "secret-alice" {
		t.Fatalf("SecretKey = %q", cfg.SecretKey)
	}
	if cfg.IdleWorkers != 2 {
		t.Fatalf("IdleWorkers = %d, want 2", cfg.IdleWorkers)
	}
	tunnel, ok := cfg.Tunnels["web"]
	if !ok {
		t.Fatalf("tunnel %q missing", "web")
	}
	if tunnel.Target != "127.0.0.1:8080" {
		t.Fatalf("Target = %q, want unchanged literal address", tunnel.Target)
	}
}

func TestLoadConfigMissingFileWrapsErrConfig(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want wrapping ErrConfig", err)
	}
}

func TestResolveTargetLiteralIPBypassesDNS(t *testing.T) {
	resolved, err := resolveTarget("198.51.100.2:443")
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if resolved != "198.51.100.2:443" {
		t.Fatalf("resolved = %q, want unchanged", resolved)
	}
}

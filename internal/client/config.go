package client

import (
	"fmt"
	"net"
	"os"

	"github.com/pelletier/go-toml"
)

// Tunnel is one entry of the client's tunnel table, matching
// original_source/client/src/config.rs's `Tunnel`.
type Tunnel struct {
	Target   string `toml:"target"`
	Protocol string `toml:"protocol"`
	Mode     string `toml:"mode"`
}

// Config is the client's on-disk TOML configuration, matching spec.md
// §6's persisted client config.
type Config struct {
	SecretKey   string            `toml:"secret_key"`
	Edge        string            `toml:"edge"`
	EdgeIP      string            `toml:"edge_ip"`
	IdleWorkers int               `toml:"idle_workers"`
	Tunnels     map[string]Tunnel `toml:"tunnels"`
}

// LoadConfig reads and decodes path, then resolves every tunnel target
// to a literal address: an already-literal host:port is left alone;
// otherwise the target is resolved via DNS and the first IPv4 result is
// preferred, falling back to the first result of any family, matching
// original_source/client/src/config.rs's `load_config`.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w: %w", path, ErrConfig, err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w: %w", path, ErrConfig, err)
	}

	for id, tunnel := range cfg.Tunnels {
		resolved, err := resolveTarget(tunnel.Target)
		if err != nil {
			return nil, fmt.Errorf("resolve target %s for tunnel %s: %w: %w", tunnel.Target, id, ErrConfig, err)
		}
		tunnel.Target = resolved
		cfg.Tunnels[id] = tunnel
	}
	return cfg, nil
}

func resolveTarget(target string) (string, error) {
	if _, _, err := net.SplitHostPort(target); err == nil {
		if host, port, _ := net.SplitHostPort(target); net.ParseIP(host) != nil {
			return net.JoinHostPort(host, port), nil
		}
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return "", err
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no addresses found for %s", host)
	}

	chosen := ips[0]
	for _, ip := range ips {
		if ip.To4() != nil {
			chosen = ip
			break
		}
	}
	return net.JoinHostPort(chosen.String(), port), nil
}

package edge

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// PersistedUser is one entry of the edge's on-disk secret store.
type PersistedUser struct {
	MaxTunnels uint   `toml:"max_tunnels"`
	Key        string `toml:"key"`
}

// Config is the edge's persisted configuration: the control-plane bind
// port and the secret store, matching spec.md §6's
// `port: uint16; secrets: { <name> = { max_tunnels, key } }`.
type Config struct {
	Port    uint16                   `toml:"port"`
	Secrets map[string]PersistedUser `toml:"secrets"`

	path string
}

// LoadConfig reads and decodes the TOML file at path. A missing secrets
// table decodes to an empty map, not an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("edge: read config %s: %w", path, err)
	}
	cfg := &Config{path: path}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("edge: parse config %s: %w", path, err)
	}
	if cfg.Secrets == nil {
		cfg.Secrets = map[string]PersistedUser{}
	}
	return cfg, nil
}

// Save re-encodes the config and writes it back to the path it was
// loaded from. Used by add-user/delete-user.
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("edge: encode config: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}

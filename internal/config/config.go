// Package config loads the daemon's TOML configuration: global defaults for
// the Source Poller's tunables (§6), one [[source]] table per upstream, and
// one [[client]] table per downstream scrobble target. It mirrors the
// teacher's koanf-based loader almost exactly, generalized from one global
// struct to these repeated tables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults holds the nine tunables from §6's configuration table, expressed
// in the TOML document's native units (seconds, counts). A zero value means
// "not set"; poller.Config.WithDefaults fills in the spec's defaults.
type Defaults struct {
	IntervalSec          int `koanf:"interval_sec"`
	MaxIntervalSec       int `koanf:"max_interval_sec"`
	WindowSize           int `koanf:"window_size"`
	CloseThresholdSec    int `koanf:"close_threshold_sec"`
	CloseDelaySec        int `koanf:"close_delay_sec"`
	QuietCycleThreshold  int `koanf:"quiet_cycle_threshold"`
	BackoffFactor        int `koanf:"backoff_factor"`
	BackoffCapSec        int `koanf:"backoff_cap_sec"`
	BackoffTriggerFactor int `koanf:"backoff_trigger_factor"`
}

// Source configures one upstream Poller. Any zero-valued tunable falls back
// to Config.Defaults, and from there to the spec's §6 defaults.
type Source struct {
	Identifier string   `koanf:"identifier"`
	Type       string   `koanf:"type"` // adapter implementation, e.g. "fixture"
	Clients    []string `koanf:"clients"`

	Defaults `koanf:",squash"`
}

// Client configures one downstream scrobble target. Credentials are
// adapter/client-specific (§4.3) and are not interpreted by the core; the
// core only ever sees the Name used to route dispatch.
type Client struct {
	Name           string `koanf:"name"`
	Type           string `koanf:"type"` // "lastfm", ...
	APIKey         string `koanf:"api_key"`
	APISecret      string `koanf:"api_secret"`
	SessionKey     string `koanf:"session_key"`
	SessionKeyFile string `koanf:"session_key_file"` // alternative to inlining the key
}

// ResolvedSessionKey returns the client's session key, reading
// SessionKeyFile if SessionKey was left empty.
func (c Client) ResolvedSessionKey() (string, error) {
	if c.SessionKey != "" {
		return c.SessionKey, nil
	}
	if c.SessionKeyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(expandPath(c.SessionKeyFile))
	if err != nil {
		return "", fmt.Errorf("read session key file: %w", err)
	}
	key := string(data)
	for len(key) > 0 && (key[len(key)-1] == '\n' || key[len(key)-1] == '\r') {
		key = key[:len(key)-1]
	}
	return key, nil
}

// Config is the top-level document.
type Config struct {
	Defaults    Defaults `koanf:"defaults"`
	Sources     []Source `koanf:"source"`
	Clients     []Client `koanf:"client"`
	LogLevel    string   `koanf:"log_level"`  // zerolog level name; empty means "info"
	LogFormat   string   `koanf:"log_format"` // "console" or "json"; empty means "console"
	MetricsAddr string   `koanf:"metrics_addr"`
	StatePath   string   `koanf:"state_path"` // override for the XDG-resolved retry-queue database
}

// Load reads and merges config files in priority order (later wins):
// ~/.config/scrobbled/config.toml, then ./config.toml.
func Load() (*Config, error) {
	k := koanf.New(".")

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.StatePath != "" {
		cfg.StatePath = expandPath(cfg.StatePath)
	}
	for i, c := range cfg.Clients {
		if c.SessionKeyFile != "" {
			cfg.Clients[i].SessionKeyFile = expandPath(c.SessionKeyFile)
		}
	}

	return cfg, nil
}

func configPaths() []string {
	paths := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scrobbled", "config.toml"))
	}
	paths = append(paths, "config.toml")
	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// ClientByName looks up a configured client by name, as referenced from a
// Source's Clients list.
func (c *Config) ClientByName(name string) (Client, bool) {
	for _, cl := range c.Clients {
		if cl.Name == name {
			return cl, true
		}
	}
	return Client{}, false
}

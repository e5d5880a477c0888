package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("could not get home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "tilde expands to home", input: "~/secrets/lastfm", expected: filepath.Join(home, "secrets/lastfm")},
		{name: "absolute path unchanged", input: "/etc/scrobbled/lastfm.key", expected: "/etc/scrobbled/lastfm.key"},
		{name: "relative path unchanged", input: "lastfm.key", expected: "lastfm.key"},
		{name: "empty string unchanged", input: "", expected: ""},
		{name: "tilde only", input: "~", expected: home},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, expandPath(tt.input))
		})
	}
}

func TestConfigPathsEndsWithLocalConfig(t *testing.T) {
	paths := configPaths()
	require.NotEmpty(t, paths)
	require.Equal(t, "config.toml", paths[len(paths)-1])

	if home, err := os.UserHomeDir(); err == nil {
		require.Equal(t, filepath.Join(home, ".config", "scrobbled", "config.toml"), paths[0])
	}
}

func TestClientByName(t *testing.T) {
	cfg := &Config{Clients: []Client{
		{Name: "lastfm-primary", Type: "lastfm"},
		{Name: "lastfm-backup", Type: "lastfm"},
	}}

	c, ok := cfg.ClientByName("lastfm-backup")
	require.True(t, ok)
	require.Equal(t, "lastfm", c.Type)

	_, ok = cfg.ClientByName("missing")
	require.False(t, ok)
}

func TestClientResolvedSessionKeyPrefersInline(t *testing.T) {
	c := Client{SessionKey: "inline-key", SessionKeyFile: "/does/not/exist"}
	key, err := c.ResolvedSessionKey()
	require.NoError(t, err)
	require.Equal(t, "inline-key", key)
}

func TestClientResolvedSessionKeyReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.key")
	require.NoError(t, os.WriteFile(path, []byte("from-file-key\n"), 0o600))

	c := Client{SessionKeyFile: path}
	key, err := c.ResolvedSessionKey()
	require.NoError(t, err)
	require.Equal(t, "from-file-key", key)
}

func TestClientResolvedSessionKeyEmptyWhenUnset(t *testing.T) {
	key, err := (Client{}).ResolvedSessionKey()
	require.NoError(t, err)
	require.Empty(t, key)
}

func TestLoadParsesSourcesAndClients(t *testing.T) {
	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(originalWd) })

	configContent := `
log_level = "debug"
log_format = "json"
metrics_addr = ":9090"

[defaults]
interval_sec = 45
quiet_cycle_threshold = 4

[[source]]
identifier = "living-room"
type = "fixture"
clients = ["lastfm-primary"]
window_size = 10

[[client]]
name = "lastfm-primary"
type = "lastfm"
api_key = "key"
api_secret = "secret"
session_key = "abc123"
`
	require.NoError(t, os.WriteFile("config.toml", []byte(configContent), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.Equal(t, 45, cfg.Defaults.IntervalSec)
	require.Equal(t, 4, cfg.Defaults.QuietCycleThreshold)

	require.Len(t, cfg.Sources, 1)
	require.Equal(t, "living-room", cfg.Sources[0].Identifier)
	require.Equal(t, "fixture", cfg.Sources[0].Type)
	require.Equal(t, []string{"lastfm-primary"}, cfg.Sources[0].Clients)
	require.Equal(t, 10, cfg.Sources[0].WindowSize)

	require.Len(t, cfg.Clients, 1)
	client, ok := cfg.ClientByName("lastfm-primary")
	require.True(t, ok)
	require.Equal(t, "lastfm", client.Type)
	require.Equal(t, "abc123", client.SessionKey)
}

func TestLoadEmptyConfigSucceeds(t *testing.T) {
	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(originalWd) })

	require.NoError(t, os.WriteFile("config.toml", []byte(""), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Empty(t, cfg.Sources)
}

func TestLoadInvalidTomlErrors(t *testing.T) {
	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(originalWd) })

	require.NoError(t, os.WriteFile("config.toml", []byte("invalid = [[["), 0o600))

	_, err = Load()
	require.Error(t, err)
}

func TestLoadStatePathExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(originalWd) })

	require.NoError(t, os.WriteFile("config.toml", []byte(`state_path = "~/scrobbled/state.db"`), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	require.Equal(t, filepath.Join(home, "scrobbled/state.db"), cfg.StatePath)
}

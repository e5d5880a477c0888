package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollerConfigUsesSourceOverridesOverGlobalDefaults(t *testing.T) {
	cfg := &Config{
		Defaults: Defaults{IntervalSec: 30, WindowSize: 20, BackoffFactor: 5},
	}
	src := Source{
		Identifier: "living-room",
		Type:       "fixture",
		Clients:    []string{"lastfm-primary"},
		Defaults:   Defaults{WindowSize: 10},
	}

	pc := cfg.PollerConfig(src)
	assert.Equal(t, "living-room", pc.Identifier)
	assert.Equal(t, "fixture", pc.Type)
	assert.Equal(t, []string{"lastfm-primary"}, pc.Clients)
	assert.Equal(t, 30*time.Second, pc.Interval)
	assert.Equal(t, 10, pc.WindowSize, "source override wins over global default")
	assert.Equal(t, 5, pc.BackoffFactor)
}

func TestPollerConfigZeroTunablesLeftForPollerDefaults(t *testing.T) {
	cfg := &Config{}
	pc := cfg.PollerConfig(Source{Identifier: "x"})

	assert.Equal(t, time.Duration(0), pc.Interval)
	assert.Equal(t, 0, pc.WindowSize)

	withDefaults := pc.WithDefaults()
	assert.Equal(t, 30*time.Second, withDefaults.Interval)
	assert.Equal(t, 20, withDefaults.WindowSize)
}

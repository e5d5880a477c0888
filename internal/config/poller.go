package config

import (
	"time"

	"github.com/fencepost-audio/scrobbled/internal/poller"
)

// PollerConfig builds a poller.Config for s, with any tunable s leaves at
// zero falling back to the document's [defaults] table, and from there to
// the core's own §6 defaults via poller.Config.WithDefaults.
func (c *Config) PollerConfig(s Source) poller.Config {
	d := mergeDefaults(c.Defaults, s.Defaults)
	return poller.Config{
		Identifier:           s.Identifier,
		Type:                 s.Type,
		Clients:              s.Clients,
		Interval:             secondsOrZero(d.IntervalSec),
		MaxInterval:          secondsOrZero(d.MaxIntervalSec),
		WindowSize:           d.WindowSize,
		CloseThreshold:       secondsOrZero(d.CloseThresholdSec),
		CloseDelay:           secondsOrZero(d.CloseDelaySec),
		QuietCycleThreshold:  d.QuietCycleThreshold,
		BackoffFactor:        d.BackoffFactor,
		BackoffCap:           secondsOrZero(d.BackoffCapSec),
		BackoffTriggerFactor: d.BackoffTriggerFactor,
	}
}

// mergeDefaults starts from global and, field by field, replaces each value
// with source's own wherever source's is non-zero.
func mergeDefaults(global, source Defaults) Defaults {
	merged := global
	if source.IntervalSec != 0 {
		merged.IntervalSec = source.IntervalSec
	}
	if source.MaxIntervalSec != 0 {
		merged.MaxIntervalSec = source.MaxIntervalSec
	}
	if source.WindowSize != 0 {
		merged.WindowSize = source.WindowSize
	}
	if source.CloseThresholdSec != 0 {
		merged.CloseThresholdSec = source.CloseThresholdSec
	}
	if source.CloseDelaySec != 0 {
		merged.CloseDelaySec = source.CloseDelaySec
	}
	if source.QuietCycleThreshold != 0 {
		merged.QuietCycleThreshold = source.QuietCycleThreshold
	}
	if source.BackoffFactor != 0 {
		merged.BackoffFactor = source.BackoffFactor
	}
	if source.BackoffCapSec != 0 {
		merged.BackoffCapSec = source.BackoffCapSec
	}
	if source.BackoffTriggerFactor != 0 {
		merged.BackoffTriggerFactor = source.BackoffTriggerFactor
	}
	return merged
}

func secondsOrZero(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}

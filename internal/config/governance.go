package config

import "time"

// GovernanceConfig configures the intention lifecycle layer.
type GovernanceConfig struct {
	// DefaultTTL applies to intentions proposed without an expiry.
	// Zero means intentions never expire.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// ExpirySweepInterval drives the background expiry sweep while the
	// governance layer is started. Expiry is also checked lazily on every
	// query, so this only bounds staleness of the attention surface.
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval"`
}

// DefaultGovernanceConfig returns sensible defaults.
func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		DefaultTTL:          0,
		ExpirySweepInterval: 30 * time.Second,
	}
}

func (c *GovernanceConfig) applyDefaults() {
	if c.ExpirySweepInterval <= 0 {
		c.ExpirySweepInterval = DefaultGovernanceConfig().ExpirySweepInterval
	}
}

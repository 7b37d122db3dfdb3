package config

import "time"

// CoordinatorConfig configures the coordination and execution loops and the
// auto-approval policy.
type CoordinatorConfig struct {
	// TickInterval paces the coordination (policy) loop.
	TickInterval time.Duration `yaml:"tick_interval"`

	// PollInterval paces the execution loop when no approved intention
	// is available.
	PollInterval time.Duration `yaml:"poll_interval"`

	// DiscoveryInterval paces the topic-discovery collaborator call.
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`

	// PendingCeiling triggers an advisory notification when exceeded.
	PendingCeiling int `yaml:"pending_ceiling"`

	// YoloMode approves every pending intention unconditionally.
	YoloMode bool `yaml:"yolo_mode"`

	// AutoApproveLowRisk approves Priority <= Low intentions.
	AutoApproveLowRisk bool `yaml:"auto_approve_low_risk"`

	// AutoApproveSelfReflection approves self-reflection intentions.
	AutoApproveSelfReflection bool `yaml:"auto_approve_self_reflection"`

	// AutoApproveMemory approves memory-management intentions.
	AutoApproveMemory bool `yaml:"auto_approve_memory"`

	// AlwaysRequireApproval lists categories that are never auto-approved
	// (YOLO still overrides).
	AlwaysRequireApproval []string `yaml:"always_require_approval"`
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		TickInterval:              5 * time.Second,
		PollInterval:              2 * time.Second,
		DiscoveryInterval:         5 * time.Minute,
		PendingCeiling:            25,
		AutoApproveLowRisk:        true,
		AutoApproveSelfReflection: true,
		AutoApproveMemory:         true,
		AlwaysRequireApproval:     []string{"code_modification", "safety_check"},
	}
}

func (c *CoordinatorConfig) applyDefaults() {
	d := DefaultCoordinatorConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = d.DiscoveryInterval
	}
	if c.PendingCeiling <= 0 {
		c.PendingCeiling = d.PendingCeiling
	}
	if c.AlwaysRequireApproval == nil {
		c.AlwaysRequireApproval = d.AlwaysRequireApproval
	}
}

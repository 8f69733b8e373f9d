package protocol

// AgentMode is an ordered authority level. Observe < Shadow < Takeover.
type AgentMode string

const (
	ModeObserve  AgentMode = "observe"
	ModeShadow   AgentMode = "shadow"
	ModeTakeover AgentMode = "takeover"
)

// rank gives AgentMode a total order so comparisons are numeric rather
// than string comparisons scattered across the codebase.
var rank = map[AgentMode]int{
	ModeObserve:  0,
	ModeShadow:   1,
	ModeTakeover: 2,
}

// Rank returns the mode's position in the Observe < Shadow < Takeover
// order. An unrecognized mode ranks below Observe.
func (m AgentMode) Rank() int {
	r, ok := rank[m]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether m grants at least the authority of other.
func (m AgentMode) AtLeast(other AgentMode) bool {
	return m.Rank() >= other.Rank()
}

// ModeConfig is the base authority level plus per-section overrides.
type ModeConfig struct {
	Mode             AgentMode                `json:"mode"`
	SectionOverrides map[ConfigSection]AgentMode `json:"section_overrides,omitempty"`
}

// DefaultModeConfig is what the agent falls back to when no persisted
// mode file exists or it fails to parse.
func DefaultModeConfig() ModeConfig {
	return ModeConfig{Mode: ModeObserve}
}

// EffectiveMode resolves the authority level for a specific section:
// the per-section override if one exists, otherwise the base mode.
func (c ModeConfig) EffectiveMode(section ConfigSection) AgentMode {
	if c.SectionOverrides != nil {
		if override, ok := c.SectionOverrides[section]; ok {
			return override
		}
	}
	return c.Mode
}

// CanApply reports whether section's effective mode permits applying
// configuration to the host.
func (c ModeConfig) CanApply(section ConfigSection) bool {
	return c.EffectiveMode(section) == ModeTakeover
}

// CanShadow reports whether section's effective mode permits running
// adapter validation (diff without apply).
func (c ModeConfig) CanShadow(section ConfigSection) bool {
	eff := c.EffectiveMode(section)
	return eff == ModeShadow || eff == ModeTakeover
}

// CanExecMutating reports whether the base mode (not per-section)
// permits mutating exec commands, reboot, and upgrade.
func (c ModeConfig) CanExecMutating() bool {
	return c.Mode == ModeTakeover
}

// CanExecDiagnostic reports whether the base mode permits read-only
// diagnostic exec commands.
func (c ModeConfig) CanExecDiagnostic() bool {
	return c.Mode == ModeShadow || c.Mode == ModeTakeover
}

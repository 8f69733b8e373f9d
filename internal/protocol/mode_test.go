package protocol

import "testing"

func TestDefaultModeConfigIsObserveWithNoOverrides(t *testing.T) {
	mc := DefaultModeConfig()
	if mc.Mode != ModeObserve {
		t.Fatalf("expected Observe, got %v", mc.Mode)
	}
	if len(mc.SectionOverrides) != 0 {
		t.Fatalf("expected no overrides, got %v", mc.SectionOverrides)
	}
}

func TestCanApply(t *testing.T) {
	cases := []struct {
		mode AgentMode
		want bool
	}{
		{ModeObserve, false},
		{ModeShadow, false},
		{ModeTakeover, true},
	}
	for _, c := range cases {
		mc := ModeConfig{Mode: c.mode}
		if got := mc.CanApply(SectionFirewall); got != c.want {
			t.Errorf("CanApply with mode %v: got %v, want %v", c.mode, got, c.want)
		}
	}
}

func TestCanShadow(t *testing.T) {
	cases := []struct {
		mode AgentMode
		want bool
	}{
		{ModeObserve, false},
		{ModeShadow, true},
		{ModeTakeover, true},
	}
	for _, c := range cases {
		mc := ModeConfig{Mode: c.mode}
		if got := mc.CanShadow(SectionFirewall); got != c.want {
			t.Errorf("CanShadow with mode %v: got %v, want %v", c.mode, got, c.want)
		}
	}
}

func TestCanExecMutatingOnlyInTakeover(t *testing.T) {
	if (ModeConfig{Mode: ModeObserve}).CanExecMutating() {
		t.Fatal("observe should not permit mutating exec")
	}
	if (ModeConfig{Mode: ModeShadow}).CanExecMutating() {
		t.Fatal("shadow should not permit mutating exec")
	}
	if !(ModeConfig{Mode: ModeTakeover}).CanExecMutating() {
		t.Fatal("takeover should permit mutating exec")
	}
}

func TestCanExecDiagnosticInShadowAndTakeover(t *testing.T) {
	if (ModeConfig{Mode: ModeObserve}).CanExecDiagnostic() {
		t.Fatal("observe should not permit diagnostic exec")
	}
	if !(ModeConfig{Mode: ModeShadow}).CanExecDiagnostic() {
		t.Fatal("shadow should permit diagnostic exec")
	}
	if !(ModeConfig{Mode: ModeTakeover}).CanExecDiagnostic() {
		t.Fatal("takeover should permit diagnostic exec")
	}
}

func TestEffectiveModeUsesBaseWhenNoOverride(t *testing.T) {
	mc := ModeConfig{Mode: ModeObserve}
	if mc.EffectiveMode(SectionFirewall) != ModeObserve {
		t.Fatal("expected base mode for section with no override")
	}
	if mc.EffectiveMode(SectionDns) != ModeObserve {
		t.Fatal("expected base mode for section with no override")
	}
}

func TestEffectiveModeUsesOverrideForSpecificSection(t *testing.T) {
	mc := ModeConfig{
		Mode:             ModeObserve,
		SectionOverrides: map[ConfigSection]AgentMode{SectionFirewall: ModeTakeover},
	}
	if mc.EffectiveMode(SectionFirewall) != ModeTakeover {
		t.Fatal("expected firewall override to apply")
	}
	if mc.EffectiveMode(SectionDns) != ModeObserve {
		t.Fatal("expected dns to fall back to base")
	}
}

func TestCanApplyRespectsSectionOverride(t *testing.T) {
	mc := ModeConfig{
		Mode: ModeObserve,
		SectionOverrides: map[ConfigSection]AgentMode{
			SectionFirewall: ModeTakeover,
			SectionWifi:     ModeShadow,
		},
	}
	if !mc.CanApply(SectionFirewall) {
		t.Fatal("firewall overridden to takeover should allow apply")
	}
	if mc.CanApply(SectionWifi) {
		t.Fatal("wifi overridden to shadow should not allow apply")
	}
	if mc.CanApply(SectionDns) {
		t.Fatal("dns falls back to observe, should not allow apply")
	}
}

func TestMixedOverridesAcrossSections(t *testing.T) {
	mc := ModeConfig{
		Mode: ModeShadow,
		SectionOverrides: map[ConfigSection]AgentMode{
			SectionFirewall: ModeTakeover,
			SectionDns:      ModeShadow,
			SectionVpn:      ModeObserve,
		},
	}

	if mc.EffectiveMode(SectionFirewall) != ModeTakeover || !mc.CanApply(SectionFirewall) || !mc.CanShadow(SectionFirewall) {
		t.Fatal("firewall should resolve to takeover and allow apply+shadow")
	}
	if mc.EffectiveMode(SectionDns) != ModeShadow || mc.CanApply(SectionDns) || !mc.CanShadow(SectionDns) {
		t.Fatal("dns should resolve to shadow: no apply, yes shadow")
	}
	if mc.EffectiveMode(SectionVpn) != ModeObserve || mc.CanApply(SectionVpn) || mc.CanShadow(SectionVpn) {
		t.Fatal("vpn should resolve to observe: no apply, no shadow")
	}
	if mc.EffectiveMode(SectionWifi) != ModeShadow || mc.CanApply(SectionWifi) || !mc.CanShadow(SectionWifi) {
		t.Fatal("wifi has no override, should fall back to base shadow")
	}
}

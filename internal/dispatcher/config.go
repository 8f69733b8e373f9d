package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/adapter"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// handleConfig routes a CONFIG_PUSH / CONFIG_FULL message to either a
// single-section apply or, for protocol.SectionFull, the per-section
// cross product over every registered adapter.
func (d *Dispatcher) handleConfig(ctx context.Context, msg protocol.RpcMessage, current protocol.ModeConfig) protocol.RpcMessage {
	var push protocol.ConfigPush
	if err := json.Unmarshal(msg.Payload, &push); err != nil {
		d.log.Warn("invalid ConfigPush payload", zap.String("id", msg.ID), zap.Error(err))
		return configFailResponse(msg.ID, protocol.SectionFull, 0, err.Error())
	}

	if push.Section == protocol.SectionFull {
		return d.handleFullConfig(ctx, msg.ID, push, current)
	}
	return d.applySection(ctx, msg.ID, push.Section, push.Config, push.Version, current)
}

// handleFullConfig expects push.Config to be a JSON object keyed by
// section name, and applies each present section independently,
// rolling the individual ConfigAck/ConfigFail results up into one
// response for the Full push.
func (d *Dispatcher) handleFullConfig(ctx context.Context, id string, push protocol.ConfigPush, current protocol.ModeConfig) protocol.RpcMessage {
	var bySection map[protocol.ConfigSection]json.RawMessage
	if err := json.Unmarshal(push.Config, &bySection); err != nil {
		return configFailResponse(id, protocol.SectionFull, push.Version, "full config must be an object keyed by section: "+err.Error())
	}

	var failures []string
	for _, section := range d.adapters.Sections() {
		cfg, ok := bySection[section]
		if !ok {
			continue
		}
		resp := d.applySection(ctx, id, section, cfg, push.Version, current)
		var ack protocol.ConfigAck
		if err := json.Unmarshal(resp.Payload, &ack); err == nil && !ack.Success {
			reason := ""
			if ack.Error != nil {
				reason = *ack.Error
			}
			failures = append(failures, fmt.Sprintf("%s: %s", section, reason))
		}
	}

	if len(failures) > 0 {
		return configFailResponse(id, protocol.SectionFull, push.Version, strings.Join(failures, "; "))
	}
	return configAckResponse(id, protocol.SectionFull, push.Version)
}

// applySection runs one section's push through structural validation
// and then the behavior its effective mode grants: Observe acks
// without touching the adapter, Shadow runs adapter validation only,
// Takeover backs up, applies, and rolls back on failure.
func (d *Dispatcher) applySection(ctx context.Context, id string, section protocol.ConfigSection, cfg json.RawMessage, version uint64, current protocol.ModeConfig) protocol.RpcMessage {
	if err := validateStructure(section, cfg); err != nil {
		return configFailResponse(id, section, version, err.Error())
	}

	switch current.EffectiveMode(section) {
	case protocol.ModeObserve:
		d.log.Info("observe mode — config received but not applied",
			zap.String("section", string(section)), zap.Uint64("version", version))
		return configAckResponse(id, section, version)

	case protocol.ModeShadow:
		return d.shadowValidate(ctx, id, section, cfg, version)

	case protocol.ModeTakeover:
		return d.takeoverApply(ctx, id, section, cfg, version)

	default:
		return configAckResponse(id, section, version)
	}
}

func (d *Dispatcher) shadowValidate(ctx context.Context, id string, section protocol.ConfigSection, cfg json.RawMessage, version uint64) protocol.RpcMessage {
	a, ok := d.adapters.Get(section)
	if !ok {
		d.log.Warn("shadow validation skipped, no adapter registered", zap.String("section", string(section)))
		return configAckResponse(id, section, version)
	}

	issues, err := a.Validate(ctx, cfg)
	if err != nil {
		d.log.Warn("shadow validation errored", zap.String("section", string(section)), zap.Error(err))
		return configFailResponse(id, section, version, err.Error())
	}
	if len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, iss := range issues {
			msgs[i] = fmt.Sprintf("%s: %s", iss.Field, iss.Message)
		}
		d.log.Warn("shadow validation failed", zap.String("section", string(section)), zap.Strings("issues", msgs))
		return configFailResponse(id, section, version, strings.Join(msgs, "; "))
	}

	d.log.Info("shadow validation passed", zap.String("section", string(section)))
	return configAckResponse(id, section, version)
}

func (d *Dispatcher) takeoverApply(ctx context.Context, id string, section protocol.ConfigSection, cfg json.RawMessage, version uint64) protocol.RpcMessage {
	a, ok := d.adapters.Get(section)
	if !ok {
		return configFailResponse(id, section, version, fmt.Sprintf("no adapter registered for section %q", section))
	}

	issues, err := a.Validate(ctx, cfg)
	if err != nil {
		d.log.Warn("takeover validation errored", zap.String("section", string(section)), zap.Error(err))
		return configFailResponse(id, section, version, err.Error())
	}
	if len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, iss := range issues {
			msgs[i] = fmt.Sprintf("%s: %s", iss.Field, iss.Message)
		}
		d.log.Warn("takeover validation failed", zap.String("section", string(section)), zap.Strings("issues", msgs))
		return configFailResponse(id, section, version, strings.Join(msgs, "; "))
	}

	previous, readErr := a.ReadConfig(ctx)
	if readErr != nil {
		d.log.Warn("could not snapshot prior config before apply", zap.String("section", string(section)), zap.Error(readErr))
	} else if err := d.rollback.Backup(section, previous); err != nil {
		d.log.Warn("failed to persist rollback backup", zap.String("section", string(section)), zap.Error(err))
	}

	if err := a.Apply(ctx, cfg, version); err != nil {
		d.log.Error("config apply failed, rolling back", zap.String("section", string(section)), zap.Error(err))
		d.restoreFromBackup(ctx, a, section)
		return configFailResponse(id, section, version, err.Error())
	}

	if err := d.rollback.UpdateVersion(section, version); err != nil {
		d.log.Warn("failed to record applied version", zap.String("section", string(section)), zap.Error(err))
	}

	d.log.Info("config applied", zap.String("section", string(section)), zap.Uint64("version", version))
	return configAckResponse(id, section, version)
}

// restoreFromBackup re-applies the last backed-up config for section
// after a failed apply. Backup-store restoration takes priority over
// an adapter's own Rollback — the NVRAM-backed adapters refuse
// Rollback outright, and the file-backed ones defer to exactly this
// flow, so it is the one path that actually recovers host state.
func (d *Dispatcher) restoreFromBackup(ctx context.Context, a adapter.Adapter, section protocol.ConfigSection) {
	backup, err := d.rollback.Restore(section)
	if err != nil {
		d.log.Warn("no rollback backup available, host state may be inconsistent",
			zap.String("section", string(section)), zap.Error(err))
		return
	}
	if err := a.Apply(ctx, backup, 0); err != nil {
		d.log.Error("failed to restore from backup after apply failure",
			zap.String("section", string(section)), zap.Error(err))
	}
}

// validateStructure performs the same shallow structural checks every
// section gets before any adapter sees the payload: it must be
// present, and for sections whose shape is always an object it must
// actually be one.
func validateStructure(section protocol.ConfigSection, cfg json.RawMessage) error {
	if len(cfg) == 0 || strings.TrimSpace(string(cfg)) == "null" {
		return errors.New("config payload is null")
	}

	switch section {
	case protocol.SectionFirewall, protocol.SectionWan, protocol.SectionLan, protocol.SectionDns, protocol.SectionFull:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cfg, &obj); err != nil {
			return fmt.Errorf("%s config must be an object", section)
		}
	}
	return nil
}

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// wireguardInterface is the tunnel interface name this adapter manages.
const wireguardInterface = "wg0"

// wireguardConfigPath is where the interface's config lives so
// wg-quick can bring it up or down.
const wireguardConfigPath = "/jffs/ngfw/wg0.conf"

// WireguardAdapter manages the "vpn" section via wg-quick, bringing
// the tunnel down before rewriting its config and back up afterward.
type WireguardAdapter struct{}

// NewVpnAdapter constructs a WireguardAdapter.
func NewVpnAdapter() *WireguardAdapter { return &WireguardAdapter{} }

func (a *WireguardAdapter) Section() protocol.ConfigSection { return protocol.SectionVpn }

func (a *WireguardAdapter) ReadConfig(context.Context) (json.RawMessage, error) {
	data, err := os.ReadFile(wireguardConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return json.Marshal(map[string]string{"conf": ""})
		}
		return nil, fmt.Errorf("vpn adapter: read config: %w", err)
	}
	return json.Marshal(map[string]string{"conf": string(data)})
}

func (a *WireguardAdapter) Validate(_ context.Context, config json.RawMessage) ([]ValidationIssue, error) {
	var body struct {
		Conf string `json:"conf"`
	}
	if err := json.Unmarshal(config, &body); err != nil || body.Conf == "" {
		return []ValidationIssue{{Field: "conf", Message: "expected a non-empty WireGuard interface config"}}, nil
	}
	return nil, nil
}

func (a *WireguardAdapter) Diff(ctx context.Context, proposed json.RawMessage) (ConfigDiff, error) {
	currentRaw, err := a.ReadConfig(ctx)
	if err != nil {
		return ConfigDiff{}, err
	}
	var current, body struct {
		Conf string `json:"conf"`
	}
	_ = json.Unmarshal(currentRaw, &current)
	if err := json.Unmarshal(proposed, &body); err != nil {
		return ConfigDiff{}, fmt.Errorf("vpn adapter: proposed config must carry a conf string: %w", err)
	}

	diff := ConfigDiff{Section: protocol.SectionVpn}
	if current.Conf != body.Conf {
		diff.Changes = append(diff.Changes, ConfigChange{Key: "conf", OldValue: current.Conf, NewValue: body.Conf})
	}
	return diff, nil
}

func (a *WireguardAdapter) Apply(ctx context.Context, config json.RawMessage, _ uint64) error {
	var body struct {
		Conf string `json:"conf"`
	}
	if err := json.Unmarshal(config, &body); err != nil {
		return fmt.Errorf("vpn adapter: config must carry a conf string: %w", err)
	}

	// wg-quick down is allowed to fail (e.g. interface not currently up).
	_, _ = runCommand(ctx, "wg-quick", "down", wireguardInterface)

	if err := os.WriteFile(wireguardConfigPath, []byte(body.Conf), 0o600); err != nil {
		return fmt.Errorf("vpn adapter: write config: %w", err)
	}

	if _, err := runCommand(ctx, "wg-quick", "up", wireguardInterface); err != nil {
		return fmt.Errorf("vpn adapter: bring tunnel up: %w", err)
	}
	return nil
}

func (a *WireguardAdapter) Rollback(context.Context) error {
	return fmt.Errorf("vpn adapter rollback is handled by the dispatcher's backup store")
}

func (a *WireguardAdapter) CollectMetrics(ctx context.Context) (json.RawMessage, error) {
	out, err := runCommand(ctx, "wg", "show", wireguardInterface, "transfer")
	if err != nil {
		return json.Marshal(map[string]any{"up": false})
	}
	return json.Marshal(map[string]any{"up": true, "transfer": out})
}

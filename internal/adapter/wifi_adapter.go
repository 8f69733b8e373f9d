package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// wifiNvramPrefix is the NVRAM key prefix Asuswrt-Merlin uses for
// wireless radio settings (SSID, security, channel, ...).
const wifiNvramPrefix = "wl_"

// WifiAdapter manages the "wifi" section through the same NVRAM
// mechanism the system adapter uses, scoped to the wl_ key namespace.
type WifiAdapter struct{}

// NewWifiAdapter constructs a WifiAdapter.
func NewWifiAdapter() *WifiAdapter { return &WifiAdapter{} }

func (a *WifiAdapter) Section() protocol.ConfigSection { return protocol.SectionWifi }

func (a *WifiAdapter) ReadConfig(ctx context.Context) (json.RawMessage, error) {
	all, err := nvramGetPrefix(ctx, wifiNvramPrefix)
	if err != nil {
		return nil, err
	}
	return json.Marshal(all)
}

func (a *WifiAdapter) Validate(_ context.Context, config json.RawMessage) ([]ValidationIssue, error) {
	var obj map[string]any
	if err := json.Unmarshal(config, &obj); err != nil {
		return []ValidationIssue{{Field: "*", Message: "expected a JSON object of key-value pairs"}}, nil
	}
	var issues []ValidationIssue
	for key, v := range obj {
		if _, ok := v.(string); !ok {
			issues = append(issues, ValidationIssue{Field: key, Message: "wifi values must be strings"})
			continue
		}
		if len(key) < len(wifiNvramPrefix) || key[:len(wifiNvramPrefix)] != wifiNvramPrefix {
			issues = append(issues, ValidationIssue{Field: key, Message: "wifi keys must be in the wl_ namespace"})
		}
	}
	return issues, nil
}

func (a *WifiAdapter) Diff(ctx context.Context, proposed json.RawMessage) (ConfigDiff, error) {
	current, err := nvramGetPrefix(ctx, wifiNvramPrefix)
	if err != nil {
		return ConfigDiff{}, err
	}
	var proposedObj map[string]string
	if err := json.Unmarshal(proposed, &proposedObj); err != nil {
		return ConfigDiff{}, fmt.Errorf("wifi adapter: proposed config must be an object of strings: %w", err)
	}

	diff := ConfigDiff{Section: protocol.SectionWifi}
	for key, newVal := range proposedObj {
		oldVal, existed := current[key]
		if !existed {
			diff.Additions = append(diff.Additions, fmt.Sprintf("%s=%s", key, newVal))
			continue
		}
		if oldVal != newVal {
			diff.Changes = append(diff.Changes, ConfigChange{Key: key, OldValue: oldVal, NewValue: newVal})
		}
	}
	return diff, nil
}

func (a *WifiAdapter) Apply(ctx context.Context, config json.RawMessage, _ uint64) error {
	var obj map[string]string
	if err := json.Unmarshal(config, &obj); err != nil {
		return fmt.Errorf("wifi adapter: config must be an object of key-value strings: %w", err)
	}
	for key, val := range obj {
		if err := nvramSet(ctx, key, val); err != nil {
			return err
		}
	}
	if err := nvramCommit(ctx); err != nil {
		return err
	}
	// Radio settings only take effect after the wireless driver is
	// restarted; Asuswrt-Merlin exposes this as a service script.
	_, err := runCommand(ctx, "service", "restart_wireless")
	return err
}

func (a *WifiAdapter) Rollback(context.Context) error {
	return fmt.Errorf("wifi adapter does not support rollback; reboot to discard uncommitted NVRAM changes")
}

func (a *WifiAdapter) CollectMetrics(ctx context.Context) (json.RawMessage, error) {
	all, err := nvramGetPrefix(ctx, wifiNvramPrefix)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"total_keys": len(all)})
}

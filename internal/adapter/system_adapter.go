package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// SystemAdapter owns the "system" section: it is backed by NVRAM for
// configuration (hostname, timezone, and similar scalar settings) and
// by procfs/sysfs for the read-only host telemetry it reports through
// CollectMetrics.
type SystemAdapter struct{}

// NewSystemAdapter constructs a SystemAdapter.
func NewSystemAdapter() *SystemAdapter { return &SystemAdapter{} }

func (a *SystemAdapter) Section() protocol.ConfigSection { return protocol.SectionSystem }

func (a *SystemAdapter) ReadConfig(ctx context.Context) (json.RawMessage, error) {
	all, err := nvramShowAll(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(all)
}

func (a *SystemAdapter) Validate(_ context.Context, config json.RawMessage) ([]ValidationIssue, error) {
	var obj map[string]any
	if err := json.Unmarshal(config, &obj); err != nil {
		return []ValidationIssue{{Field: "*", Message: "expected a JSON object of key-value pairs"}}, nil
	}

	var issues []ValidationIssue
	for key, v := range obj {
		if _, ok := v.(string); !ok {
			issues = append(issues, ValidationIssue{Field: key, Message: "NVRAM values must be strings"})
		}
	}
	return issues, nil
}

func (a *SystemAdapter) Diff(ctx context.Context, proposed json.RawMessage) (ConfigDiff, error) {
	current, err := nvramShowAll(ctx)
	if err != nil {
		return ConfigDiff{}, err
	}

	var proposedObj map[string]string
	if err := json.Unmarshal(proposed, &proposedObj); err != nil {
		return ConfigDiff{}, fmt.Errorf("system adapter: proposed config must be an object of strings: %w", err)
	}

	diff := ConfigDiff{Section: protocol.SectionSystem}
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

func (a *SystemAdapter) Apply(ctx context.Context, config json.RawMessage, _ uint64) error {
	var obj map[string]string
	if err := json.Unmarshal(config, &obj); err != nil {
		return fmt.Errorf("system adapter: config must be an object of key-value strings: %w", err)
	}
	for key, val := range obj {
		if err := nvramSet(ctx, key, val); err != nil {
			return err
		}
	}
	return nvramCommit(ctx)
}

// Rollback is not supported: NVRAM has no staged/uncommitted state the
// agent can discard short of a reboot.
func (a *SystemAdapter) Rollback(context.Context) error {
	return fmt.Errorf("system adapter does not support rollback; reboot to discard uncommitted NVRAM changes")
}

func (a *SystemAdapter) CollectMetrics(ctx context.Context) (json.RawMessage, error) {
	hostname := readTrimmed("/proc/sys/kernel/hostname")

	uptimeSecs := 0.0
	if raw := readTrimmed("/proc/uptime"); raw != "" {
		if fields := strings.Fields(raw); len(fields) > 0 {
			if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
				uptimeSecs = v
			}
		}
	}

	return json.Marshal(map[string]any{
		"hostname":    hostname,
		"uptime_secs": uptimeSecs,
	})
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

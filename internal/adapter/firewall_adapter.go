package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// IptablesAdapter manages a ruleset-bearing section (firewall or nat)
// through iptables-save/iptables-restore, the standard way of
// snapshotting and replacing an entire table atomically.
type IptablesAdapter struct {
	section protocol.ConfigSection
	table   string
}

// NewFirewallAdapter manages the "filter" table as the firewall section.
func NewFirewallAdapter() *IptablesAdapter {
	return &IptablesAdapter{section: protocol.SectionFirewall, table: "filter"}
}

// NewNatAdapter manages the "nat" table as the nat section.
func NewNatAdapter() *IptablesAdapter {
	return &IptablesAdapter{section: protocol.SectionNat, table: "nat"}
}

func (a *IptablesAdapter) Section() protocol.ConfigSection { return a.section }

func (a *IptablesAdapter) readRules(ctx context.Context) (string, error) {
	return runCommand(ctx, "iptables-save", "-t", a.table)
}

func (a *IptablesAdapter) ReadConfig(ctx context.Context) (json.RawMessage, error) {
	rules, err := a.readRules(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"rules": rules})
}

func (a *IptablesAdapter) Validate(_ context.Context, config json.RawMessage) ([]ValidationIssue, error) {
	var body struct {
		Rules string `json:"rules"`
	}
	if err := json.Unmarshal(config, &body); err != nil || body.Rules == "" {
		return []ValidationIssue{{Field: "rules", Message: "expected a non-empty iptables-save formatted ruleset"}}, nil
	}
	return nil, nil
}

func (a *IptablesAdapter) Diff(ctx context.Context, proposed json.RawMessage) (ConfigDiff, error) {
	current, err := a.readRules(ctx)
	if err != nil {
		return ConfigDiff{}, err
	}
	var body struct {
		Rules string `json:"rules"`
	}
	if err := json.Unmarshal(proposed, &body); err != nil {
		return ConfigDiff{}, fmt.Errorf("%s adapter: proposed config must carry a rules string: %w", a.section, err)
	}

	diff := ConfigDiff{Section: a.section}
	if current != body.Rules {
		diff.Changes = append(diff.Changes, ConfigChange{Key: "rules", OldValue: current, NewValue: body.Rules})
	}
	return diff, nil
}

func (a *IptablesAdapter) Apply(ctx context.Context, config json.RawMessage, _ uint64) error {
	var body struct {
		Rules string `json:"rules"`
	}
	if err := json.Unmarshal(config, &body); err != nil {
		return fmt.Errorf("%s adapter: config must carry a rules string: %w", a.section, err)
	}
	return a.restore(ctx, body.Rules)
}

func (a *IptablesAdapter) restore(ctx context.Context, rules string) error {
	cmd := exec.CommandContext(ctx, "iptables-restore", "--table="+a.table)
	cmd.Stdin = strings.NewReader(rules)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s adapter: iptables-restore: %w: %s", a.section, err, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%s adapter: iptables-restore: %w", a.section, err)
	}
	return nil
}

// Rollback is handled generically by the dispatcher (restore the last
// backed-up ruleset and re-apply); the adapter itself keeps no extra
// state beyond the live table, so there is nothing section-specific to
// undo here.
func (a *IptablesAdapter) Rollback(context.Context) error {
	return fmt.Errorf("%s adapter rollback is handled by the dispatcher's backup store", a.section)
}

func (a *IptablesAdapter) CollectMetrics(ctx context.Context) (json.RawMessage, error) {
	rules, err := a.readRules(ctx)
	if err != nil {
		return nil, err
	}
	lines := 0
	for _, r := range rules {
		if r == '\n' {
			lines++
		}
	}
	return json.Marshal(map[string]any{"rule_lines": lines})
}

package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// hookTimeout bounds how long a section's post-apply hook script may
// run before it's killed and the apply is failed.
const hookTimeout = 30 * time.Second

// genericAdapter backs a section that has no subsystem-specific CLI of
// its own (wan, lan, ids, qos): it persists whatever JSON blob the
// server pushes to a section-named file under dir and, if a hook
// script named <section>.hook exists alongside it, runs it after every
// apply so host-specific enforcement can still be wired in later
// without touching the agent.
type genericAdapter struct {
	section protocol.ConfigSection
	dir     string
}

// NewGenericAdapter constructs the fallback adapter for section,
// persisting its pushed config under dir.
func NewGenericAdapter(section protocol.ConfigSection, dir string) Adapter {
	return &genericAdapter{section: section, dir: dir}
}

func (a *genericAdapter) configPath() string {
	return filepath.Join(a.dir, string(a.section)+".json")
}

func (a *genericAdapter) hookPath() string {
	return filepath.Join(a.dir, string(a.section)+".hook")
}

func (a *genericAdapter) Section() protocol.ConfigSection { return a.section }

func (a *genericAdapter) ReadConfig(context.Context) (json.RawMessage, error) {
	data, err := os.ReadFile(a.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return json.RawMessage("{}"), nil
		}
		return nil, fmt.Errorf("%s adapter: read config: %w", a.section, err)
	}
	return json.RawMessage(data), nil
}

func (a *genericAdapter) Validate(_ context.Context, config json.RawMessage) ([]ValidationIssue, error) {
	var v any
	if err := json.Unmarshal(config, &v); err != nil {
		return []ValidationIssue{{Field: "*", Message: "config must be valid JSON"}}, nil
	}
	return nil, nil
}

func (a *genericAdapter) Diff(ctx context.Context, proposed json.RawMessage) (ConfigDiff, error) {
	current, err := a.ReadConfig(ctx)
	if err != nil {
		return ConfigDiff{}, err
	}

	diff := ConfigDiff{Section: a.section}
	if string(current) != string(proposed) {
		diff.Changes = append(diff.Changes, ConfigChange{Key: "config", OldValue: string(current), NewValue: string(proposed)})
	}
	return diff, nil
}

func (a *genericAdapter) Apply(ctx context.Context, config json.RawMessage, _ uint64) error {
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return fmt.Errorf("%s adapter: create config dir: %w", a.section, err)
	}
	if err := os.WriteFile(a.configPath(), config, 0o644); err != nil {
		return fmt.Errorf("%s adapter: write config: %w", a.section, err)
	}

	if _, err := os.Stat(a.hookPath()); err == nil {
		if err := a.runHook(ctx); err != nil {
			return fmt.Errorf("%s adapter: hook script failed: %w", a.section, err)
		}
	}
	return nil
}

// runHook executes the section's hook script directly (no shell — it's
// a known executable path, not an arbitrary command string) under a
// bounded timeout, folding stdout+stderr into the error on failure so
// it reaches the section's CONFIG_FAIL reason.
func (a *genericAdapter) runHook(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.hookPath())
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timed out: %w: %s", ctx.Err(), out.String())
		}
		return fmt.Errorf("%w: %s", err, out.String())
	}
	return nil
}

func (a *genericAdapter) Rollback(context.Context) error {
	return fmt.Errorf("%s adapter rollback is handled by the dispatcher's backup store", a.section)
}

func (a *genericAdapter) CollectMetrics(context.Context) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"managed": true})
}

// Package adapter defines the uniform contract every router subsystem
// exposes to the dispatcher — read, validate, diff, apply, rollback,
// and metrics collection — plus a registry the dispatcher uses to look
// one up by ConfigSection.
package adapter

import (
	"context"
	"encoding/json"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// ValidationIssue is a single problem found while validating a
// proposed configuration, before any change reaches the host.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigChange describes one key whose value differs between the
// running and proposed configuration.
type ConfigChange struct {
	Key      string `json:"key"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// ConfigDiff is the delta between the running configuration and a
// proposed one.
type ConfigDiff struct {
	Section   protocol.ConfigSection `json:"section"`
	Additions []string               `json:"additions"`
	Removals  []string               `json:"removals"`
	Changes   []ConfigChange         `json:"changes"`
}

// Adapter is implemented by every router subsystem the agent manages.
// Every method must tolerate ctx cancellation — the dispatcher passes
// its own context through, which is canceled on agent shutdown.
type Adapter interface {
	// Section reports which ConfigSection this adapter owns.
	Section() protocol.ConfigSection

	// ReadConfig reads the subsystem's current running configuration.
	ReadConfig(ctx context.Context) (json.RawMessage, error)

	// Validate checks a proposed configuration without applying it.
	Validate(ctx context.Context, config json.RawMessage) ([]ValidationIssue, error)

	// Diff computes the delta between the running config and proposed.
	Diff(ctx context.Context, proposed json.RawMessage) (ConfigDiff, error)

	// Apply writes config to the host and tags it with version.
	Apply(ctx context.Context, config json.RawMessage, version uint64) error

	// Rollback reverts to the subsystem's previous known-good state.
	Rollback(ctx context.Context) error

	// CollectMetrics gathers runtime telemetry specific to this
	// subsystem, distinct from the fixed-schema periodic METRICS
	// payload the sampler emits.
	CollectMetrics(ctx context.Context) (json.RawMessage, error)
}

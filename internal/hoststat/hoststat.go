// Package hoststat supplies the supplementary host fields carried in a
// STATUS payload — uptime and load averages — that the wire spec
// leaves unconstrained to an exact formula, so a general-purpose host
// library is the right fit rather than hand-rolled procfs parsing.
package hoststat

import (
	"context"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
)

// Snapshot is the host-level data folded into a STATUS payload
// alongside the procfs-derived CPU/memory/temperature/interface
// figures the metrics sampler computes separately.
type Snapshot struct {
	UptimeSeconds uint64
	Load1         float32
	Load5         float32
	Load15        float32
}

// Collect gathers uptime and load averages via gopsutil. Any
// individual read failing (e.g. /proc/loadavg absent in a container
// without it mounted) degrades that field to zero rather than failing
// the whole snapshot.
func Collect(ctx context.Context) Snapshot {
	var snap Snapshot

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snap.UptimeSeconds = uptime
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1 = float32(avg.Load1)
		snap.Load5 = float32(avg.Load5)
		snap.Load15 = float32(avg.Load15)
	}

	return snap
}

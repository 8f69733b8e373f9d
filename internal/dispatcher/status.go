package dispatcher

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/hoststat"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/metrics"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

func (d *Dispatcher) handleStatusRequest(ctx context.Context, msg protocol.RpcMessage) protocol.RpcMessage {
	d.log.Info("collecting system status")

	snap := metrics.CollectSnapshot(ctx)
	host := hoststat.Collect(ctx)
	wanIP := readWanIP(ctx)

	payload := protocol.StatusPayload{
		Uptime:      host.UptimeSeconds,
		CPU:         snap.CPU,
		Memory:      snap.Memory,
		Temperature: snap.Temperature,
		Load:        [3]float32{host.Load1, host.Load5, host.Load15},
		Interfaces:  map[string]protocol.InterfaceRates{},
		Connections: snap.Connections.Total,
		WanIP:       wanIP,
		Firmware:    "unknown",
	}

	resp, err := protocol.WithID(msg.ID, protocol.MessageStatus, payload)
	if err != nil {
		d.log.Error("failed to serialize StatusPayload", zap.Error(err))
		return protocol.RpcMessage{}
	}
	return resp
}

func handlePing(msg protocol.RpcMessage) protocol.RpcMessage {
	resp, _ := protocol.WithID(msg.ID, protocol.MessagePong, struct{}{})
	return resp
}

// readWanIP shells out to `ip route get 1.1.1.1` and scrapes the "src"
// field out of the kernel's reply, e.g.:
//
//	1.1.1.1 via 192.168.1.1 dev eth0 src 192.168.1.50 uid 0
func readWanIP(ctx context.Context) *string {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "ip", "route", "get", "1.1.1.1")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil
	}

	fields := strings.Fields(out.String())
	for i, f := range fields {
		if f == "src" && i+1 < len(fields) {
			ip := fields[i+1]
			return &ip
		}
	}
	return nil
}

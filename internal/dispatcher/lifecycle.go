package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// actionDelay is how long the agent waits after acknowledging a reboot
// or upgrade before carrying out the irreversible action, giving the
// ack time to actually leave on the wire.
const actionDelay = 2 * time.Second

func (d *Dispatcher) handleReboot(msg protocol.RpcMessage, current protocol.ModeConfig) protocol.RpcMessage {
	if current.Mode != protocol.ModeTakeover {
		d.log.Warn("reboot denied, requires takeover mode", zap.String("mode", string(current.Mode)))
		return errorResponse(msg.ID, fmt.Sprintf("reboot requires takeover mode (current: %s)", current.Mode))
	}

	d.log.Info("reboot requested, initiating delayed shutdown")
	ack, _ := protocol.WithID(msg.ID, protocol.MessageStatusOK, protocol.StatusOKPayload{
		Action: "reboot", Status: "initiated",
	})

	go func() {
		time.Sleep(actionDelay)
		d.log.Info("executing reboot")
		if err := exec.Command("reboot").Run(); err != nil {
			d.log.Error("reboot command failed", zap.Error(err))
		}
	}()

	return ack
}

func (d *Dispatcher) handleUpgrade(ctx context.Context, msg protocol.RpcMessage, current protocol.ModeConfig) protocol.RpcMessage {
	if current.Mode != protocol.ModeTakeover {
		d.log.Warn("upgrade denied, requires takeover mode", zap.String("mode", string(current.Mode)))
		return errorResponse(msg.ID, fmt.Sprintf("upgrade requires takeover mode (current: %s)", current.Mode))
	}

	var upgrade protocol.UpgradeCommand
	if err := json.Unmarshal(msg.Payload, &upgrade); err != nil {
		d.log.Warn("invalid UpgradeCommand payload", zap.String("id", msg.ID), zap.Error(err))
		return errorResponse(msg.ID, "invalid upgrade payload: "+err.Error())
	}

	d.log.Info("starting firmware upgrade", zap.String("version", upgrade.Version), zap.String("url", upgrade.DownloadURL))

	const downloadPath = "/jffs/ngfw/ngfw-agent.new"

	if out, err := exec.CommandContext(ctx, "curl", "-fsSL", "-o", downloadPath, upgrade.DownloadURL).CombinedOutput(); err != nil {
		d.log.Error("download failed", zap.ByteString("output", out), zap.Error(err))
		return errorResponse(msg.ID, "download failed: "+err.Error())
	}
	d.log.Info("download complete, verifying checksum")

	sumOut, err := exec.CommandContext(ctx, "sha256sum", downloadPath).Output()
	if err != nil {
		os.Remove(downloadPath)
		d.log.Error("checksum verification failed", zap.Error(err))
		return errorResponse(msg.ID, "checksum verification failed")
	}
	actualHash := strings.Fields(string(sumOut))
	if len(actualHash) == 0 || actualHash[0] != upgrade.Checksum {
		os.Remove(downloadPath)
		d.log.Error("checksum mismatch", zap.String("expected", upgrade.Checksum))
		return errorResponse(msg.ID, fmt.Sprintf("checksum mismatch: expected %s", upgrade.Checksum))
	}
	d.log.Info("checksum verified")

	currentExe, err := os.Executable()
	if err != nil {
		os.Remove(downloadPath)
		d.log.Error("cannot determine current executable path", zap.Error(err))
		return errorResponse(msg.ID, "cannot find current binary: "+err.Error())
	}

	if err := exec.CommandContext(ctx, "chmod", "+x", downloadPath).Run(); err != nil {
		d.log.Warn("chmod on new binary failed", zap.Error(err))
	}

	if err := os.Rename(downloadPath, currentExe); err != nil {
		os.Remove(downloadPath)
		d.log.Error("failed to replace binary", zap.Error(err))
		return errorResponse(msg.ID, "failed to replace binary: "+err.Error())
	}

	d.log.Info("upgrade installed, restarting", zap.String("version", upgrade.Version))
	ack, _ := protocol.WithID(msg.ID, protocol.MessageStatusOK, protocol.StatusOKPayload{
		Action: "upgrade", Status: "installed", Version: upgrade.Version,
	})

	go func() {
		time.Sleep(actionDelay)
		d.log.Info("restarting agent after upgrade")
		if err := exec.Command("service", "ngfw-agent", "restart").Run(); err != nil {
			d.log.Error("service restart failed, exiting for init to restart us", zap.Error(err))
			os.Exit(0)
		}
	}()

	return ack
}

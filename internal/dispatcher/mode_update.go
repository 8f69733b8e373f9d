package dispatcher

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

func (d *Dispatcher) handleModeUpdate(msg protocol.RpcMessage) protocol.RpcMessage {
	var update protocol.ModeUpdatePayload
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		d.log.Warn("invalid ModeUpdatePayload", zap.String("id", msg.ID), zap.Error(err))
		return modeAckResponse(msg.ID, false, d.modeStore.Current(), "invalid payload: "+err.Error())
	}

	d.log.Info("mode update received",
		zap.String("mode", string(update.ModeConfig.Mode)), zap.Int("overrides", len(update.ModeConfig.SectionOverrides)))

	if err := d.modeStore.Set(update.ModeConfig); err != nil {
		d.log.Error("failed to persist mode", zap.Error(err))
		return modeAckResponse(msg.ID, false, d.modeStore.Current(), "failed to persist: "+err.Error())
	}

	d.log.Info("mode updated and persisted", zap.String("mode", string(update.ModeConfig.Mode)))
	return modeAckResponse(msg.ID, true, update.ModeConfig, "")
}

func modeAckResponse(id string, success bool, mc protocol.ModeConfig, errMsg string) protocol.RpcMessage {
	ack := protocol.ModeAckPayload{Success: success, ModeConfig: mc}
	if errMsg != "" {
		ack.Error = strPtr(errMsg)
	}
	resp, _ := protocol.WithID(id, protocol.MessageModeAck, ack)
	return resp
}

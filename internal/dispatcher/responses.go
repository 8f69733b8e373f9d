package dispatcher

import (
	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

func strPtr(s string) *string { return &s }

func configAckResponse(id string, section protocol.ConfigSection, version uint64) protocol.RpcMessage {
	ack := protocol.ConfigAck{Section: section, Version: version, Success: true}
	msg, _ := protocol.WithID(id, protocol.MessageConfigAck, ack)
	return msg
}

func configFailResponse(id string, section protocol.ConfigSection, version uint64, reason string) protocol.RpcMessage {
	ack := protocol.ConfigAck{Section: section, Version: version, Success: false, Error: strPtr(reason)}
	msg, _ := protocol.WithID(id, protocol.MessageConfigFail, ack)
	return msg
}

func execErrorResponse(msgID, commandID, reason string) protocol.RpcMessage {
	result := protocol.ExecResult{CommandID: commandID, ExitCode: -1, Stderr: strPtr(reason)}
	msg, _ := protocol.WithID(msgID, protocol.MessageExecResult, result)
	return msg
}

func errorResponse(id string, reason string) protocol.RpcMessage {
	msg, _ := protocol.WithID(id, protocol.MessageError, protocol.ErrorPayload{Error: reason})
	return msg
}

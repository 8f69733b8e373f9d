// Package protocol defines the on-wire envelope exchanged between the
// agent and the cloud control server: the RpcMessage envelope, the
// closed MessageType/ConfigSection/AgentMode enumerations, and every
// payload shape carried inside a message.
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// MessageType identifies the kind of event or command carried by an
// RpcMessage. The wire representation is SCREAMING_SNAKE_CASE.
type MessageType string

// Server→Agent message types.
const (
	MessageAuthOK        MessageType = "AUTH_OK"
	MessageAuthFail      MessageType = "AUTH_FAIL"
	MessageConfigPush    MessageType = "CONFIG_PUSH"
	MessageConfigFull    MessageType = "CONFIG_FULL"
	MessageExec          MessageType = "EXEC"
	MessageReboot        MessageType = "REBOOT"
	MessageUpgrade       MessageType = "UPGRADE"
	MessageStatusRequest MessageType = "STATUS_REQUEST"
	MessagePing          MessageType = "PING"
	MessageModeUpdate    MessageType = "MODE_UPDATE"
)

// Agent→Server message types.
const (
	MessageAuth       MessageType = "AUTH"
	MessageStatus     MessageType = "STATUS"
	MessageStatusOK   MessageType = "STATUS_OK"
	MessageConfigAck  MessageType = "CONFIG_ACK"
	MessageConfigFail MessageType = "CONFIG_FAIL"
	MessageExecResult MessageType = "EXEC_RESULT"
	MessageLog        MessageType = "LOG"
	MessageAlert      MessageType = "ALERT"
	MessageMetrics    MessageType = "METRICS"
	MessagePong       MessageType = "PONG"
	MessageModeAck    MessageType = "MODE_ACK"
	MessageError      MessageType = "ERROR"
)

// MessageUnknown is the zero MessageType. The dispatcher returns a
// message of this type to mean "no reply". An inbound frame whose type
// is outside the closed set above decodes with that type string kept
// as-is; the dispatcher's switch falls through to its default case for
// it, satisfying the "unknown type is ignored, not an error" rule.
const MessageUnknown MessageType = ""

var knownTypes = map[MessageType]struct{}{
	MessageAuthOK: {}, MessageAuthFail: {}, MessageConfigPush: {}, MessageConfigFull: {},
	MessageExec: {}, MessageReboot: {}, MessageUpgrade: {}, MessageStatusRequest: {},
	MessagePing: {}, MessageModeUpdate: {},
	MessageAuth: {}, MessageStatus: {}, MessageStatusOK: {}, MessageConfigAck: {},
	MessageConfigFail: {}, MessageExecResult: {}, MessageLog: {}, MessageAlert: {},
	MessageMetrics: {}, MessagePong: {}, MessageModeAck: {}, MessageError: {},
}

// IsKnown reports whether t belongs to the closed MessageType enumeration.
func (t MessageType) IsKnown() bool {
	_, ok := knownTypes[t]
	return ok
}

// RpcMessage is the sole on-wire envelope exchanged in both directions.
type RpcMessage struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// New builds an RpcMessage with a freshly generated id, marshaling
// payload to JSON. Used for every agent-originated message that is not
// a reply to a specific request (AUTH, STATUS, METRICS, PING).
func New(msgType MessageType, payload any) (RpcMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return RpcMessage{}, err
	}
	return RpcMessage{ID: uuid.NewString(), Type: msgType, Payload: raw}, nil
}

// WithID builds an RpcMessage carrying an explicit id, used for every
// reply so the caller's id is preserved for correlation.
func WithID(id string, msgType MessageType, payload any) (RpcMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return RpcMessage{}, err
	}
	return RpcMessage{ID: id, Type: msgType, Payload: raw}, nil
}

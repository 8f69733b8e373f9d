package protocol

import "encoding/json"

// AuthRequest is the Agent→Server AUTH payload sent immediately after
// the WebSocket connection is established.
type AuthRequest struct {
	DeviceID        string `json:"device_id"`
	APIKey          string `json:"api_key"`
	FirmwareVersion string `json:"firmware_version"`
}

// AuthFailPayload is carried by a Server→Agent AUTH_FAIL message.
type AuthFailPayload struct {
	Error string `json:"error"`
}

// InterfaceRates carries the rx/tx byte-per-second rate for one
// monitored network interface.
type InterfaceRates struct {
	RxRate uint64 `json:"rx_rate"`
	TxRate uint64 `json:"tx_rate"`
}

// StatusPayload is the Agent→Server STATUS payload, sent once right
// after authentication and again on every STATUS_REQUEST.
type StatusPayload struct {
	Uptime      uint64                    `json:"uptime"`
	CPU         float32                   `json:"cpu"`
	Memory      float32                   `json:"memory"`
	Temperature *float32                  `json:"temperature"`
	Load        [3]float32                `json:"load"`
	Interfaces  map[string]InterfaceRates `json:"interfaces"`
	Connections uint32                    `json:"connections"`
	WanIP       *string                   `json:"wan_ip"`
	Firmware    string                    `json:"firmware"`
}

// ConfigPush is the Server→Agent CONFIG_PUSH / CONFIG_FULL payload.
type ConfigPush struct {
	Section ConfigSection   `json:"section"`
	Config  json.RawMessage `json:"config"`
	Version uint64          `json:"version"`
}

// ConfigAck is the Agent→Server CONFIG_ACK / CONFIG_FAIL payload.
type ConfigAck struct {
	Section ConfigSection `json:"section"`
	Version uint64        `json:"version"`
	Success bool          `json:"success"`
	Error   *string       `json:"error"`
}

// ExecCommand is the Server→Agent EXEC payload.
type ExecCommand struct {
	CommandID  string   `json:"command_id"`
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	TimeoutSec *uint64  `json:"timeout_secs,omitempty"`
}

// ExecResult is the Agent→Server EXEC_RESULT payload.
type ExecResult struct {
	CommandID  string  `json:"command_id"`
	ExitCode   int     `json:"exit_code"`
	Stdout     *string `json:"stdout"`
	Stderr     *string `json:"stderr"`
	DurationMs uint64  `json:"duration_ms"`
}

// UpgradeCommand is the Server→Agent UPGRADE payload.
type UpgradeCommand struct {
	Version     string `json:"version"`
	DownloadURL string `json:"download_url"`
	Checksum    string `json:"checksum"`
}

// ModeUpdatePayload is the Server→Agent MODE_UPDATE payload.
type ModeUpdatePayload struct {
	ModeConfig ModeConfig `json:"mode_config"`
}

// ModeAckPayload is the Agent→Server MODE_ACK payload.
type ModeAckPayload struct {
	Success    bool       `json:"success"`
	ModeConfig ModeConfig `json:"mode_config"`
	Error      *string    `json:"error,omitempty"`
}

// ConnectionCounts is the connection-tracking summary carried in a
// METRICS payload.
type ConnectionCounts struct {
	Total uint32 `json:"total"`
	TCP   uint32 `json:"tcp"`
	UDP   uint32 `json:"udp"`
}

// DnsMetrics is reserved for future dnsmasq-backed counters; the
// metrics sampler currently always emits zeros here.
type DnsMetrics struct {
	Queries uint64 `json:"queries"`
	Blocked uint64 `json:"blocked"`
	Cached  uint64 `json:"cached"`
}

// MetricsPayload is the Agent→Server METRICS payload emitted by the
// metrics sampler on every tick.
type MetricsPayload struct {
	Timestamp   int64                     `json:"timestamp"`
	CPU         float32                   `json:"cpu"`
	Memory      float32                   `json:"memory"`
	Temperature *float32                  `json:"temperature"`
	Interfaces  map[string]InterfaceRates `json:"interfaces"`
	Connections ConnectionCounts          `json:"connections"`
	DNS         DnsMetrics                `json:"dns"`
}

// ErrorPayload is the generic Agent→Server ERROR payload used by
// reboot/upgrade rejection and any other non-domain-specific failure.
type ErrorPayload struct {
	Error string `json:"error"`
}

// StatusOKPayload acknowledges an accepted reboot or upgrade request
// before the irreversible action is carried out.
type StatusOKPayload struct {
	Action  string `json:"action"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

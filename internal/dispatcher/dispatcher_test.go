package dispatcher

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/adapter"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/config"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/mode"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/rollback"
)

func newTestDispatcher(t *testing.T, initialMode protocol.ModeConfig) (*Dispatcher, chan protocol.RpcMessage, chan protocol.RpcMessage) {
	t.Helper()
	dir := t.TempDir()

	modeStore := mode.NewStore(filepath.Join(dir, "mode.json"), nil)
	if err := modeStore.Set(initialMode); err != nil {
		t.Fatalf("seed mode: %v", err)
	}

	rb := rollback.NewStore(filepath.Join(dir, "rollback"), nil)
	reg := adapter.NewRegistry(
		adapter.NewGenericAdapter(protocol.SectionWan, filepath.Join(dir, "adapters")),
		adapter.NewGenericAdapter(protocol.SectionLan, filepath.Join(dir, "adapters")),
	)

	inbound := make(chan protocol.RpcMessage, 4)
	outbound := make(chan protocol.RpcMessage, 4)

	d := New(config.AgentConfig{}, reg, rb, modeStore, inbound, outbound, nil)
	return d, inbound, outbound
}

func recvOrTimeout(t *testing.T, ch <-chan protocol.RpcMessage) protocol.RpcMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return protocol.RpcMessage{}
	}
}

func TestPingReturnsPongWithSameID(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.DefaultModeConfig())
	ping, _ := protocol.WithID("req-1", protocol.MessagePing, struct{}{})

	resp := d.dispatch(context.Background(), ping)
	if resp.Type != protocol.MessagePong {
		t.Fatalf("type = %v, want PONG", resp.Type)
	}
	if resp.ID != "req-1" {
		t.Fatalf("id = %q, want req-1", resp.ID)
	}
}

func TestUnknownMessageTypeIsIgnored(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.DefaultModeConfig())
	msg := protocol.RpcMessage{ID: "x", Type: "SOMETHING_WEIRD", Payload: json.RawMessage(`{}`)}

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageUnknown {
		t.Fatalf("expected no response, got type %v", resp.Type)
	}
}

func TestExecRejectsCommandNotInAllowlist(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.ModeConfig{Mode: protocol.ModeTakeover})
	payload := protocol.ExecCommand{CommandID: "c1", Command: "rm", Args: []string{"-rf", "/"}}
	msg, _ := protocol.WithID("req-2", protocol.MessageExec, payload)

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageExecResult {
		t.Fatalf("type = %v, want EXEC_RESULT", resp.Type)
	}
	var result protocol.ExecResult
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.ExitCode != -1 || result.Stderr == nil {
		t.Fatalf("expected rejection result, got %+v", result)
	}
}

func TestExecDeniesMutatingCommandInShadowMode(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.ModeConfig{Mode: protocol.ModeShadow})
	payload := protocol.ExecCommand{CommandID: "c2", Command: "iptables", Args: []string{"-L"}}
	msg, _ := protocol.WithID("req-3", protocol.MessageExec, payload)

	resp := d.dispatch(context.Background(), msg)
	var result protocol.ExecResult
	json.Unmarshal(resp.Payload, &result)
	if result.ExitCode != -1 {
		t.Fatalf("expected denial in shadow mode, got %+v", result)
	}
}

func TestExecAllowsDiagnosticCommandInShadowMode(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.ModeConfig{Mode: protocol.ModeShadow})
	payload := protocol.ExecCommand{CommandID: "c3", Command: "uname", Args: []string{"-a"}}
	msg, _ := protocol.WithID("req-4", protocol.MessageExec, payload)

	resp := d.dispatch(context.Background(), msg)
	var result protocol.ExecResult
	json.Unmarshal(resp.Payload, &result)
	if result.ExitCode != 0 {
		t.Fatalf("expected uname to run in shadow mode, got %+v", result)
	}
}

func TestConfigPushInObserveModeAcksWithoutApplying(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.DefaultModeConfig())
	push := protocol.ConfigPush{Section: protocol.SectionWan, Config: json.RawMessage(`{"dhcp":true}`), Version: 1}
	msg, _ := protocol.WithID("req-5", protocol.MessageConfigPush, push)

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageConfigAck {
		t.Fatalf("type = %v, want CONFIG_ACK", resp.Type)
	}

	a, _ := d.adapters.Get(protocol.SectionWan)
	stored, _ := a.ReadConfig(context.Background())
	if string(stored) != "{}" {
		t.Fatalf("observe mode must not write through to the adapter, got %s", stored)
	}
}

func TestConfigPushInShadowModeValidatesWithoutApplying(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.ModeConfig{Mode: protocol.ModeShadow})
	push := protocol.ConfigPush{Section: protocol.SectionWan, Config: json.RawMessage(`{"dhcp":true}`), Version: 1}
	msg, _ := protocol.WithID("req-6", protocol.MessageConfigPush, push)

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageConfigAck {
		t.Fatalf("type = %v, want CONFIG_ACK", resp.Type)
	}

	a, _ := d.adapters.Get(protocol.SectionWan)
	stored, _ := a.ReadConfig(context.Background())
	if string(stored) != "{}" {
		t.Fatalf("shadow mode must not write through to the adapter, got %s", stored)
	}
}

func TestConfigPushInTakeoverModeApplies(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.ModeConfig{Mode: protocol.ModeTakeover})
	push := protocol.ConfigPush{Section: protocol.SectionWan, Config: json.RawMessage(`{"dhcp":true}`), Version: 1}
	msg, _ := protocol.WithID("req-7", protocol.MessageConfigPush, push)

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageConfigAck {
		t.Fatalf("type = %v, want CONFIG_ACK, payload=%s", resp.Type, resp.Payload)
	}

	a, _ := d.adapters.Get(protocol.SectionWan)
	stored, _ := a.ReadConfig(context.Background())
	if string(stored) != `{"dhcp":true}` {
		t.Fatalf("takeover mode should write through, got %s", stored)
	}

	v, ok := d.rollback.GetVersion(protocol.SectionWan)
	if !ok || v != 1 {
		t.Fatalf("expected version 1 recorded, got %d ok=%v", v, ok)
	}
}

func TestConfigPushRejectsNullPayload(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.ModeConfig{Mode: protocol.ModeTakeover})
	push := protocol.ConfigPush{Section: protocol.SectionWan, Config: json.RawMessage(`null`), Version: 1}
	msg, _ := protocol.WithID("req-8", protocol.MessageConfigPush, push)

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageConfigFail {
		t.Fatalf("type = %v, want CONFIG_FAIL", resp.Type)
	}
}

func TestConfigPushRejectsNonObjectForFirewall(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.ModeConfig{Mode: protocol.ModeTakeover})
	push := protocol.ConfigPush{Section: protocol.SectionFirewall, Config: json.RawMessage(`[1,2,3]`), Version: 1}
	msg, _ := protocol.WithID("req-9", protocol.MessageConfigPush, push)

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageConfigFail {
		t.Fatalf("type = %v, want CONFIG_FAIL", resp.Type)
	}
}

func TestModeUpdatePersistsAndAcks(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.DefaultModeConfig())
	update := protocol.ModeUpdatePayload{ModeConfig: protocol.ModeConfig{Mode: protocol.ModeTakeover}}
	msg, _ := protocol.WithID("req-10", protocol.MessageModeUpdate, update)

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageModeAck {
		t.Fatalf("type = %v, want MODE_ACK", resp.Type)
	}
	var ack protocol.ModeAckPayload
	json.Unmarshal(resp.Payload, &ack)
	if !ack.Success || ack.ModeConfig.Mode != protocol.ModeTakeover {
		t.Fatalf("expected successful ack with takeover mode, got %+v", ack)
	}
	if d.modeStore.Current().Mode != protocol.ModeTakeover {
		t.Fatal("mode store should reflect the new mode")
	}
}

func TestRebootDeniedOutsideTakeover(t *testing.T) {
	d, _, _ := newTestDispatcher(t, protocol.ModeConfig{Mode: protocol.ModeShadow})
	msg, _ := protocol.WithID("req-11", protocol.MessageReboot, struct{}{})

	resp := d.dispatch(context.Background(), msg)
	if resp.Type != protocol.MessageError {
		t.Fatalf("type = %v, want ERROR", resp.Type)
	}
}

func TestRunForwardsResponsesAndStopsOnCancel(t *testing.T) {
	d, inbound, outbound := newTestDispatcher(t, protocol.DefaultModeConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	ping, _ := protocol.WithID("req-12", protocol.MessagePing, struct{}{})
	inbound <- ping
	resp := recvOrTimeout(t, outbound)
	if resp.Type != protocol.MessagePong {
		t.Fatalf("type = %v, want PONG", resp.Type)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

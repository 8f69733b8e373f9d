package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/config"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func readRPC(t *testing.T, conn *websocket.Conn) protocol.RpcMessage {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rpc protocol.RpcMessage
	if err := json.Unmarshal(data, &rpc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return rpc
}

func writeRPC(t *testing.T, conn *websocket.Conn, msg protocol.RpcMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestManagerAuthenticatesAndExchangesMessages(t *testing.T) {
	serverReady := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverReady <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg := config.AgentConfig{Agent: config.AgentSection{DeviceID: "dev-1", APIKey: "key-1", WebsocketURL: wsURL}}

	inbound := make(chan protocol.RpcMessage, 4)
	outbound := make(chan protocol.RpcMessage, 4)
	mgr := New(cfg, inbound, outbound, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverReady:
	case <-time.After(3 * time.Second):
		t.Fatal("server never received a connection")
	}
	defer serverConn.Close()

	auth := readRPC(t, serverConn)
	if auth.Type != protocol.MessageAuth {
		t.Fatalf("type = %v, want AUTH", auth.Type)
	}
	var authReq protocol.AuthRequest
	json.Unmarshal(auth.Payload, &authReq)
	if authReq.DeviceID != "dev-1" || authReq.APIKey != "key-1" {
		t.Fatalf("unexpected auth payload: %+v", authReq)
	}

	okMsg, _ := protocol.New(protocol.MessageAuthOK, struct{}{})
	writeRPC(t, serverConn, okMsg)

	status := readRPC(t, serverConn)
	if status.Type != protocol.MessageStatus {
		t.Fatalf("type = %v, want STATUS", status.Type)
	}

	// Server pushes a STATUS_REQUEST; the manager should forward it
	// onto the inbound channel verbatim.
	req, _ := protocol.WithID("srv-1", protocol.MessageStatusRequest, struct{}{})
	writeRPC(t, serverConn, req)

	select {
	case got := <-inbound:
		if got.ID != "srv-1" || got.Type != protocol.MessageStatusRequest {
			t.Fatalf("unexpected inbound message: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound forward")
	}

	// Something downstream (e.g. the dispatcher) places a reply on
	// outbound; the manager should write it to the wire.
	reply, _ := protocol.WithID("srv-1", protocol.MessageStatus, protocol.StatusPayload{Firmware: "unknown"})
	outbound <- reply

	onWire := readRPC(t, serverConn)
	if onWire.ID != "srv-1" || onWire.Type != protocol.MessageStatus {
		t.Fatalf("unexpected message on wire: %+v", onWire)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestManagerFailsAuthOnAuthFail(t *testing.T) {
	serverReady := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverReady <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg := config.AgentConfig{Agent: config.AgentSection{DeviceID: "dev-2", APIKey: "bad-key", WebsocketURL: wsURL}}

	inbound := make(chan protocol.RpcMessage, 4)
	outbound := make(chan protocol.RpcMessage, 4)
	mgr := New(cfg, inbound, outbound, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mgr.Run(ctx)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverReady:
	case <-time.After(3 * time.Second):
		t.Fatal("server never received a connection")
	}
	defer serverConn.Close()

	_ = readRPC(t, serverConn) // AUTH
	fail, _ := protocol.New(protocol.MessageAuthFail, protocol.AuthFailPayload{Error: "bad api key"})
	writeRPC(t, serverConn, fail)

	// The manager should close this connection and attempt to
	// reconnect rather than proceeding to the message loop — it will
	// retry against the same test server, so a second AUTH arrives.
	secondConn := <-serverReady
	defer secondConn.Close()
	secondAuth := readRPC(t, secondConn)
	if secondAuth.Type != protocol.MessageAuth {
		t.Fatalf("expected a retried AUTH after failure, got %v", secondAuth.Type)
	}
}

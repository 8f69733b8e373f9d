// Package connection owns the persistent authenticated WebSocket
// session to the cloud control server: dial, AUTH handshake,
// exponential-backoff reconnection, keepalive PING, and the
// fair-multiplexed read/write loop that hands inbound messages to the
// dispatcher and writes whatever the rest of the agent wants to send.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/config"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 60 * time.Second
	backoffFactor  = 2.0

	// pingInterval is how often the agent sends an application-level
	// PING RpcMessage once a session is established.
	pingInterval = 30 * time.Second

	// authTimeout bounds how long the agent waits for AUTH_OK/AUTH_FAIL
	// after sending its AUTH message before giving up on the session.
	authTimeout = 10 * time.Second
)

// Manager owns one logical connection to the server. Construct with
// New and run with Run, which reconnects with backoff until ctx is
// canceled.
type Manager struct {
	cfg      config.AgentConfig
	inbound  chan<- protocol.RpcMessage
	outbound <-chan protocol.RpcMessage
	log      *zap.Logger
	dialer   *websocket.Dialer
}

// New builds a Manager. inbound is where parsed server messages are
// handed off to the dispatcher; outbound is where the dispatcher and
// metrics sampler place messages this agent originates.
func New(cfg config.AgentConfig, inbound chan<- protocol.RpcMessage, outbound <-chan protocol.RpcMessage, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cfg: cfg, inbound: inbound, outbound: outbound, log: log, dialer: websocket.DefaultDialer}
}

// Run connects, authenticates, and serves the message loop, retrying
// with exponential backoff on any failure. Backoff resets to
// backoffInitial only after a session that closed cleanly. Blocks
// until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	backoff := backoffInitial

	for {
		if ctx.Err() != nil {
			m.log.Info("connection manager stopped")
			return
		}

		m.log.Info("connecting to server", zap.String("url", m.cfg.Agent.WebsocketURL))
		err := m.connectAndRun(ctx)

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			m.log.Warn("connection error", zap.Error(err))
		} else {
			m.log.Info("connection closed cleanly")
			backoff = backoffInitial
		}

		m.log.Warn("reconnecting", zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// connectAndRun dials, authenticates, sends the initial STATUS
// message, and runs the multiplexed loop for one session. A nil
// return means the peer closed the connection cleanly; any other
// return is a reconnect-worthy failure.
func (m *Manager) connectAndRun(ctx context.Context) error {
	wsURL := fmt.Sprintf("%s?device_id=%s&owner_id=%s",
		m.cfg.Agent.WebsocketURL, url.QueryEscape(m.cfg.Agent.DeviceID), url.QueryEscape(m.cfg.Agent.DeviceID))

	conn, _, err := m.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connection: dial: %w", err)
	}
	defer conn.Close()

	m.log.Info("websocket connected, sending auth")
	authMsg, err := protocol.New(protocol.MessageAuth, protocol.AuthRequest{
		DeviceID:        m.cfg.Agent.DeviceID,
		APIKey:          m.cfg.Agent.APIKey,
		FirmwareVersion: "unknown",
	})
	if err != nil {
		return fmt.Errorf("connection: build auth message: %w", err)
	}
	if err := writeJSON(conn, authMsg); err != nil {
		return fmt.Errorf("connection: send auth: %w", err)
	}

	if err := awaitAuth(conn); err != nil {
		return err
	}
	m.log.Info("authenticated successfully")

	statusMsg, err := protocol.New(protocol.MessageStatus, protocol.StatusPayload{Firmware: "unknown"})
	if err != nil {
		return fmt.Errorf("connection: build initial status message: %w", err)
	}
	if err := writeJSON(conn, statusMsg); err != nil {
		return fmt.Errorf("connection: send initial status: %w", err)
	}

	m.log.Info("entering message loop")
	return m.messageLoop(ctx, conn)
}

// awaitAuth blocks until AUTH_OK, AUTH_FAIL, a close frame, or
// authTimeout, ignoring any other message type that arrives first.
func awaitAuth(conn *websocket.Conn) error {
	deadline := time.Now().Add(authTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("connection: set auth deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isTimeoutError(err) {
				return errors.New("connection: auth handshake timed out")
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return errors.New("connection: connection closed during auth")
			}
			return fmt.Errorf("connection: websocket error during auth: %w", err)
		}

		var rpc protocol.RpcMessage
		if err := json.Unmarshal(data, &rpc); err != nil {
			continue
		}

		switch rpc.Type {
		case protocol.MessageAuthOK:
			return nil
		case protocol.MessageAuthFail:
			var fail protocol.AuthFailPayload
			json.Unmarshal(rpc.Payload, &fail)
			if fail.Error == "" {
				fail.Error = "unknown"
			}
			return fmt.Errorf("connection: auth failed: %s", fail.Error)
		default:
			continue
		}
	}
}

func isTimeoutError(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// messageLoop fairly multiplexes three event sources until the
// connection closes or ctx is canceled: inbound frames from the
// server, outbound messages the rest of the agent wants to send, and
// the keepalive ping ticker.
func (m *Manager) messageLoop(ctx context.Context, conn *websocket.Conn) error {
	wsIn := make(chan protocol.RpcMessage)
	wsErr := make(chan error, 1)
	go m.readPump(ctx, conn, wsIn, wsErr)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case err := <-wsErr:
			return err

		case rpc := <-wsIn:
			select {
			case m.inbound <- rpc:
			case <-ctx.Done():
				return nil
			}

		case rpc, ok := <-m.outbound:
			if !ok {
				m.log.Info("outbound channel closed")
				return nil
			}
			if err := writeJSON(conn, rpc); err != nil {
				return fmt.Errorf("connection: write: %w", err)
			}

		case <-ticker.C:
			ping, _ := protocol.New(protocol.MessagePing, struct{}{})
			if err := writeJSON(conn, ping); err != nil {
				return fmt.Errorf("connection: write ping: %w", err)
			}
		}
	}
}

// readPump is the sole goroutine reading from conn — gorilla/websocket
// connections allow exactly one concurrent reader. A nil send on
// errCh signals a clean peer-initiated close; anything else is a
// reconnect-worthy error.
func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn, out chan<- protocol.RpcMessage, errCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				m.log.Info("server closed connection")
				errCh <- nil
			} else {
				errCh <- fmt.Errorf("connection: websocket error: %w", err)
			}
			return
		}

		var rpc protocol.RpcMessage
		if err := json.Unmarshal(data, &rpc); err != nil {
			m.log.Warn("failed to parse RPC message", zap.Error(err))
			continue
		}

		select {
		case out <- rpc:
		case <-ctx.Done():
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, msg protocol.RpcMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// nextBackoff returns the next backoff duration, capped at backoffMax.
// This mirrors the distilled source's nextBackoff exactly — no jitter —
// so the observed reconnect delays form the sequence
// 1, 2, 4, 8, 16, 32, 60, 60, … every time.
func nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * backoffFactor)
	if next > backoffMax {
		return backoffMax
	}
	return next
}

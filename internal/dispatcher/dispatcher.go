// Package dispatcher routes inbound RpcMessages to the handler for
// their type, enforcing the current AgentMode's authority over config
// pushes, exec commands, reboot, and upgrade before acting on them.
package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/adapter"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/config"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/mode"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/rollback"
)

// Dispatcher owns the inbound/outbound message channels and every
// collaborator a handler needs: the adapter registry for config
// apply/rollback, the mode store for authority checks, and the agent's
// static configuration.
type Dispatcher struct {
	config    config.AgentConfig
	adapters  *adapter.Registry
	rollback  *rollback.Store
	modeStore *mode.Store
	inbound   <-chan protocol.RpcMessage
	outbound  chan<- protocol.RpcMessage
	log       *zap.Logger
}

// New builds a Dispatcher. inbound is owned by the connection manager;
// outbound is shared with the metrics sampler and anything else that
// originates agent-initiated messages.
func New(
	cfg config.AgentConfig,
	adapters *adapter.Registry,
	rollbackStore *rollback.Store,
	modeStore *mode.Store,
	inbound <-chan protocol.RpcMessage,
	outbound chan<- protocol.RpcMessage,
	log *zap.Logger,
) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		config:    cfg,
		adapters:  adapters,
		rollback:  rollbackStore,
		modeStore: modeStore,
		inbound:   inbound,
		outbound:  outbound,
		log:       log,
	}
}

// Run consumes inbound until it closes or ctx is canceled, dispatching
// each message and forwarding any reply onto outbound.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("dispatcher started")

	for {
		// Biased shutdown check: without this, a plain select over
		// ctx.Done() and d.inbound picks uniformly at random, so a
		// steady flood of inbound messages can starve shutdown.
		// Checking ctx.Done() non-blockingly first guarantees shutdown
		// wins as soon as it's ready, even if inbound is also ready.
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher shutting down")
			return
		default:
		}

		select {
		case <-ctx.Done():
			d.log.Info("dispatcher shutting down")
			return

		case msg, ok := <-d.inbound:
			if !ok {
				d.log.Info("inbound channel closed, dispatcher exiting")
				return
			}

			d.log.Debug("dispatching message", zap.String("type", string(msg.Type)), zap.String("id", msg.ID))
			resp := d.dispatch(ctx, msg)
			if resp.Type == protocol.MessageUnknown {
				continue
			}

			select {
			case d.outbound <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatch routes one message to its handler. The zero-value
// RpcMessage (Type == protocol.MessageUnknown) means "no reply" —
// returned for message types this agent doesn't handle and, rarely,
// when a handler fails to serialize its own response.
func (d *Dispatcher) dispatch(ctx context.Context, msg protocol.RpcMessage) protocol.RpcMessage {
	current := d.modeStore.Current()

	switch msg.Type {
	case protocol.MessageConfigPush, protocol.MessageConfigFull:
		return d.handleConfig(ctx, msg, current)
	case protocol.MessageExec:
		return d.handleExec(ctx, msg, current)
	case protocol.MessageStatusRequest:
		return d.handleStatusRequest(ctx, msg)
	case protocol.MessagePing:
		return handlePing(msg)
	case protocol.MessageReboot:
		return d.handleReboot(msg, current)
	case protocol.MessageUpgrade:
		return d.handleUpgrade(ctx, msg, current)
	case protocol.MessageModeUpdate:
		return d.handleModeUpdate(msg)
	default:
		d.log.Debug("ignoring unhandled message type", zap.String("type", string(msg.Type)))
		return protocol.RpcMessage{}
	}
}

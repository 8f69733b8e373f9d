package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// defaultExecTimeout applies when an ExecCommand carries no explicit
// timeout_secs.
const defaultExecTimeout = 30 * time.Second

func (d *Dispatcher) handleExec(ctx context.Context, msg protocol.RpcMessage, current protocol.ModeConfig) protocol.RpcMessage {
	var cmd protocol.ExecCommand
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		d.log.Warn("invalid ExecCommand payload", zap.String("id", msg.ID), zap.Error(err))
		return execErrorResponse(msg.ID, "unknown", "invalid payload: "+err.Error())
	}

	base := baseCommand(cmd.Command)

	if !isAllowed(base) {
		d.log.Warn("command not in allowlist", zap.String("command", cmd.Command), zap.String("command_id", cmd.CommandID))
		return execErrorResponse(msg.ID, cmd.CommandID, fmt.Sprintf("command %q is not in the allowlist", base))
	}

	diagnostic := isDiagnostic(base)
	if !diagnostic && !current.CanExecMutating() {
		d.log.Warn("exec denied, mode does not allow mutating commands",
			zap.String("command", cmd.Command), zap.String("mode", string(current.Mode)))
		return execErrorResponse(msg.ID, cmd.CommandID,
			fmt.Sprintf("command %q requires takeover mode (current: %s)", base, current.Mode))
	}
	if diagnostic && !current.CanExecDiagnostic() {
		d.log.Warn("diagnostic exec denied", zap.String("command", cmd.Command), zap.String("mode", string(current.Mode)))
		return execErrorResponse(msg.ID, cmd.CommandID,
			fmt.Sprintf("diagnostics require at least shadow mode (current: %s)", current.Mode))
	}

	timeout := defaultExecTimeout
	if cmd.TimeoutSec != nil {
		timeout = time.Duration(*cmd.TimeoutSec) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	d.log.Info("executing command",
		zap.String("command_id", cmd.CommandID), zap.String("command", cmd.Command),
		zap.Strings("args", cmd.Args), zap.Duration("timeout", timeout))

	proc := exec.CommandContext(runCtx, cmd.Command, cmd.Args...)
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	runErr := proc.Run()
	duration := time.Since(start)

	result := protocol.ExecResult{CommandID: cmd.CommandID, DurationMs: uint64(duration.Milliseconds())}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		d.log.Warn("command timed out", zap.String("command", cmd.Command), zap.Duration("timeout", timeout))
		result.ExitCode = -1
		result.Stderr = strPtr(fmt.Sprintf("command timed out after %s", timeout))
	case runErr != nil:
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			out := stdout.String()
			result.Stdout = &out
			errOut := stderr.String()
			result.Stderr = &errOut
		} else {
			d.log.Error("process spawn failed", zap.String("command", cmd.Command), zap.Error(runErr))
			result.ExitCode = -1
			result.Stderr = strPtr("failed to execute: " + runErr.Error())
		}
	default:
		result.ExitCode = 0
		out := stdout.String()
		result.Stdout = &out
		errOut := stderr.String()
		result.Stderr = &errOut
	}

	resp, err := protocol.WithID(msg.ID, protocol.MessageExecResult, result)
	if err != nil {
		d.log.Error("failed to serialize ExecResult", zap.Error(err))
		return protocol.RpcMessage{}
	}
	return resp
}

package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// nvramGet runs `nvram get <key>` and returns the trimmed stdout. The
// Asuswrt-Merlin firmware family stores most router settings here.
func nvramGet(ctx context.Context, key string) (string, error) {
	out, err := runCommand(ctx, "nvram", "get", key)
	if err != nil {
		return "", fmt.Errorf("nvram get %s: %w", key, err)
	}
	return strings.TrimSpace(out), nil
}

// nvramSet runs `nvram set key=value`.
func nvramSet(ctx context.Context, key, value string) error {
	if _, err := runCommand(ctx, "nvram", "set", key+"="+value); err != nil {
		return fmt.Errorf("nvram set %s=%s: %w", key, value, err)
	}
	return nil
}

// nvramCommit persists staged NVRAM changes to flash.
func nvramCommit(ctx context.Context) error {
	if _, err := runCommand(ctx, "nvram", "commit"); err != nil {
		return fmt.Errorf("nvram commit: %w", err)
	}
	return nil
}

// nvramShowAll runs `nvram show` and parses every key=value line.
func nvramShowAll(ctx context.Context) (map[string]string, error) {
	out, err := runCommand(ctx, "nvram", "show")
	if err != nil {
		return nil, fmt.Errorf("nvram show: %w", err)
	}

	m := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		pos := strings.IndexByte(line, '=')
		if pos < 0 {
			continue
		}
		m[line[:pos]] = line[pos+1:]
	}
	return m, nil
}

// nvramGetPrefix returns every NVRAM key that starts with prefix.
func nvramGetPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	all, err := nvramShowAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for k, v := range all {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

// runCommand executes name with args and returns its stdout as-is
// (untrimmed), folding stderr into the returned error on a non-zero exit.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return stdout.String(), nil
}

// Package main is the entry point for the ngfw-agent binary.
// It wires all internal packages together and starts the connection loop.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Load and validate config.toml
//  3. Build logger
//  4. Load persisted mode and build the adapter registry + rollback store
//  5. Build connection manager, dispatcher, and metrics sampler
//  6. Start them concurrently
//  7. Block until SIGINT/SIGTERM, then graceful shutdown
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/adapter"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/config"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/connection"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/dispatcher"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/metrics"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/mode"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
	"github.com/danielbodnar/ngfw.sh-sub000/internal/rollback"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliConfig struct {
	configPath string
	logLevel   string
	check      bool
	daemon     bool
}

const pidFile = "/tmp/ngfw-agent.pid"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "ngfw-agent",
		Short: "ngfw.sh router agent — thin-client control plane for asuswrt-merlin routers",
		Long: `ngfw-agent runs on a router. It connects to the ngfw.sh cloud
control server over a persistent WebSocket, receives configuration and
commands, reports telemetry, and manages router subsystems through a
fixed set of adapters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.configPath, "config", envOrDefault("NGFW_CONFIG", config.DefaultConfigPath), "path to config.toml")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("NGFW_LOG_LEVEL", ""), "log level override (debug, info, warn, error); defaults to config.toml's agent.log_level")
	root.PersistentFlags().BoolVar(&cfg.check, "check", false, "validate config.toml and print a summary, then exit")
	root.PersistentFlags().BoolVar(&cfg.daemon, "daemon", false, "write a PID file to /tmp/ngfw-agent.pid while running")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ngfw-agent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cli *cliConfig) error {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", cli.configPath, err)
	}

	if cli.check {
		printCheckSummary(cfg)
		return nil
	}

	level := cli.logLevel
	if level == "" && cfg.Agent.LogLevel != nil {
		level = *cfg.Agent.LogLevel
	}
	logger, err := buildLogger(level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting ngfw agent",
		zap.String("version", version),
		zap.String("device_id", cfg.Agent.DeviceID),
		zap.String("websocket_url", cfg.Agent.WebsocketURL),
	)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cli.daemon {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
			logger.Error("failed to write PID file", zap.Error(err))
		}
		defer os.Remove(pidFile)
	}

	// --- Mode, rollback, and adapter wiring ---
	modeStore := mode.NewStore(mode.DefaultModeFile, logger)
	rollbackStore := rollback.NewStore(rollback.DefaultDir, logger)
	registry := buildRegistry(cfg)

	inbound := make(chan protocol.RpcMessage, 256)
	outbound := make(chan protocol.RpcMessage, 256)

	connMgr := connection.New(cfg, inbound, outbound, logger)
	disp := dispatcher.New(cfg, registry, rollbackStore, modeStore, inbound, outbound, logger)
	sampler := metrics.NewSampler(time.Duration(cfg.Agent.MetricsIntervalSecs)*time.Second, outbound, logger)

	// --- Start ---
	// The dispatcher and metrics sampler run concurrently; both respect
	// ctx cancellation for graceful shutdown.
	go disp.Run(ctx)
	go sampler.Run(ctx)

	// Run blocks until ctx is cancelled (SIGINT/SIGTERM), reconnecting
	// with backoff in the meantime.
	connMgr.Run(ctx)

	logger.Info("ngfw agent stopped")
	return nil
}

// buildRegistry wires every concrete adapter the config enables,
// falling back to the generic file-backed adapter for sections that
// have no subsystem-specific implementation (wan, lan, ids, qos) or
// whose dedicated adapter was switched off in [adapters].
func buildRegistry(cfg config.AgentConfig) *adapter.Registry {
	const genericDir = "/jffs/ngfw/adapters"

	adapters := []adapter.Adapter{
		adapter.NewGenericAdapter(protocol.SectionWan, genericDir),
		adapter.NewGenericAdapter(protocol.SectionLan, genericDir),
		adapter.NewGenericAdapter(protocol.SectionIds, genericDir),
		adapter.NewGenericAdapter(protocol.SectionQos, genericDir),
	}

	if cfg.Adapters.System {
		adapters = append(adapters, adapter.NewSystemAdapter())
	} else {
		adapters = append(adapters, adapter.NewGenericAdapter(protocol.SectionSystem, genericDir))
	}
	if cfg.Adapters.Wifi {
		adapters = append(adapters, adapter.NewWifiAdapter())
	} else {
		adapters = append(adapters, adapter.NewGenericAdapter(protocol.SectionWifi, genericDir))
	}
	if cfg.Adapters.Iptables {
		adapters = append(adapters, adapter.NewFirewallAdapter(), adapter.NewNatAdapter())
	} else {
		adapters = append(adapters,
			adapter.NewGenericAdapter(protocol.SectionFirewall, genericDir),
			adapter.NewGenericAdapter(protocol.SectionNat, genericDir),
		)
	}
	if cfg.Adapters.Dnsmasq {
		adapters = append(adapters, adapter.NewDnsAdapter(), adapter.NewDhcpAdapter())
	} else {
		adapters = append(adapters,
			adapter.NewGenericAdapter(protocol.SectionDns, genericDir),
			adapter.NewGenericAdapter(protocol.SectionDhcp, genericDir),
		)
	}
	if cfg.Adapters.Wireguard {
		adapters = append(adapters, adapter.NewVpnAdapter())
	} else {
		adapters = append(adapters, adapter.NewGenericAdapter(protocol.SectionVpn, genericDir))
	}

	return adapter.NewRegistry(adapters...)
}

func printCheckSummary(cfg config.AgentConfig) {
	fmt.Println("Configuration OK:")
	fmt.Printf("  device_id: %s\n", cfg.Agent.DeviceID)
	fmt.Printf("  websocket_url: %s\n", cfg.Agent.WebsocketURL)
	keyPreview := cfg.Agent.APIKey
	if len(keyPreview) > 8 {
		keyPreview = keyPreview[:8]
	}
	fmt.Printf("  api_key: %s...\n", keyPreview)
	level := "(default)"
	if cfg.Agent.LogLevel != nil {
		level = *cfg.Agent.LogLevel
	}
	fmt.Printf("  log_level: %s\n", level)
	fmt.Printf("  metrics_interval: %ds\n", cfg.Agent.MetricsIntervalSecs)
	fmt.Printf("  mode: %s\n", cfg.Mode.Default)
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Package config loads the agent's TOML configuration file: device
// identity, the control-server URL, logging, metrics cadence, and
// which adapters are enabled on this host.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

const (
	DefaultWebsocketURL  = "wss://api.ngfw.sh/ws"
	DefaultMetricsSecs   = uint64(5)
	DefaultMode          = "observe"
	DefaultConfigPath    = "/jffs/ngfw/config.toml"
)

// AgentSection is the required [agent] table.
type AgentSection struct {
	DeviceID            string  `toml:"device_id"`
	APIKey              string  `toml:"api_key"`
	WebsocketURL        string  `toml:"websocket_url"`
	LogLevel            *string `toml:"log_level"`
	MetricsIntervalSecs uint64  `toml:"metrics_interval_secs"`
}

// ModeSection is the optional [mode] table.
type ModeSection struct {
	Default string `toml:"default"`
}

// AdaptersSection is the optional [adapters] table; every flag defaults
// to true except wireguard, which ships off until a VPN section is
// actually pushed.
type AdaptersSection struct {
	Iptables  bool `toml:"iptables"`
	Dnsmasq   bool `toml:"dnsmasq"`
	Wifi      bool `toml:"wifi"`
	Wireguard bool `toml:"wireguard"`
	System    bool `toml:"system"`
}

// AgentConfig is the full parsed contents of config.toml.
type AgentConfig struct {
	Agent    AgentSection    `toml:"agent"`
	Mode     ModeSection     `toml:"mode"`
	Adapters AdaptersSection `toml:"adapters"`
}

func defaultAdapters() AdaptersSection {
	return AdaptersSection{Iptables: true, Dnsmasq: true, Wifi: true, Wireguard: false, System: true}
}

// Load reads and parses path, filling in defaults for every field the
// file omits, then validates that the required agent identity fields
// were actually supplied.
func Load(path string) (AgentConfig, error) {
	cfg := AgentConfig{
		Agent: AgentSection{
			WebsocketURL:        DefaultWebsocketURL,
			MetricsIntervalSecs: DefaultMetricsSecs,
		},
		Mode:     ModeSection{Default: DefaultMode},
		Adapters: defaultAdapters(),
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return AgentConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validate(meta, cfg, path); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// Parse behaves like Load but reads from an in-memory TOML document,
// used by tests.
func Parse(data []byte) (AgentConfig, error) {
	cfg := AgentConfig{
		Agent: AgentSection{
			WebsocketURL:        DefaultWebsocketURL,
			MetricsIntervalSecs: DefaultMetricsSecs,
		},
		Mode:     ModeSection{Default: DefaultMode},
		Adapters: defaultAdapters(),
	}

	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return AgentConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(meta, cfg, "<memory>"); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

func validate(meta toml.MetaData, cfg AgentConfig, source string) error {
	if !meta.IsDefined("agent") {
		return fmt.Errorf("config %s: missing [agent] section", source)
	}
	if cfg.Agent.DeviceID == "" {
		return fmt.Errorf("config %s: agent.device_id is required", source)
	}
	if cfg.Agent.APIKey == "" {
		return fmt.Errorf("config %s: agent.api_key is required", source)
	}
	return nil
}

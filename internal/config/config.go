package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LinkConfig describes one end of an acoustic link: the serial modem,
// the speed profile used on air, and the monitor HTTP surface.
type LinkConfig struct {
	Name        string        `toml:"name"`
	Serial      SerialConfig  `toml:"serial"`
	Protocol    string        `toml:"protocol"`
	Scheme      string        `toml:"scheme"`
	Monitor     MonitorConfig `toml:"monitor"`
	Receive     ReceiveConfig `toml:"receive"`
	OutboxDir   string        `toml:"outbox_dir"`
	InboxDir    string        `toml:"inbox_dir"`
	GCMinutes   int           `toml:"gc_minutes"`
	Compression bool          `toml:"compression"`
}

type SerialConfig struct {
	Port     string `toml:"port"`
	BaudRate int    `toml:"baud_rate"`
}

type MonitorConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type ReceiveConfig struct {
	BaseSeconds      int `toml:"base_seconds"`
	PerPacketSeconds int `toml:"per_packet_seconds"`
	MinSeconds       int `toml:"min_seconds"`
}

func LoadLinkConfig(path string) (LinkConfig, error) {
	var cfg LinkConfig
	if err := loadToml(path, &cfg); err != nil {
		return LinkConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "wavectl"
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "NORMAL"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "STRONG_OVERLAPPING_3"
	}
	if cfg.Monitor.Addr == "" {
		cfg.Monitor.Addr = ":9300"
	}
	if cfg.Serial.BaudRate == 0 {
		cfg.Serial.BaudRate = 115200
	}
	if cfg.GCMinutes == 0 {
		cfg.GCMinutes = 60
	}
	if err := ValidateLinkConfig(cfg); err != nil {
		return LinkConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateLinkConfig(cfg LinkConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("link config missing name")
	}
	if strings.TrimSpace(cfg.Monitor.Addr) == "" {
		return fmt.Errorf("link config missing monitor addr")
	}
	switch cfg.Protocol {
	case "NORMAL", "FAST", "FASTEST":
	default:
		return fmt.Errorf("unknown protocol tag: %s", cfg.Protocol)
	}
	if cfg.Serial.Port != "" && cfg.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial baud rate must be positive")
	}
	if cfg.GCMinutes < 0 {
		return fmt.Errorf("gc minutes must not be negative")
	}
	if err := validateReceive(cfg.Receive); err != nil {
		return err
	}
	return nil
}

func validateReceive(cfg ReceiveConfig) error {
	if cfg.BaseSeconds < 0 || cfg.PerPacketSeconds < 0 || cfg.MinSeconds < 0 {
		return fmt.Errorf("receive timeouts must not be negative")
	}
	return nil
}

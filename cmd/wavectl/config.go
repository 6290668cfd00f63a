package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/wavectl/internal/config"
)

const defaultConfigPath = "wavectl.toml"

// fileOverrides is the CLI-side overlay: only keys actually present in the
// file override the loaded link config, so a two-line file stays two lines.
type fileOverrides struct {
	Protocol    string `toml:"protocol"`
	Scheme      string `toml:"scheme"`
	Compression bool   `toml:"compression"`
	SerialPort  string `toml:"serial_port"`
	BaudRate    int    `toml:"baud_rate"`
	MonitorAddr string `toml:"monitor_addr"`
	OutboxDir   string `toml:"outbox_dir"`
	InboxDir    string `toml:"inbox_dir"`
	GCMinutes   int    `toml:"gc_minutes"`
}

// loadLinkConfig resolves the effective config: full link file when present,
// built-in defaults otherwise, then the local override file on top.
func loadLinkConfig(path, overridePath string) (config.LinkConfig, error) {
	cfg := defaultLinkConfig()
	if path != "" {
		loaded, err := config.LoadLinkConfig(path)
		if err != nil {
			return config.LinkConfig{}, err
		}
		cfg = loaded
	}
	if overridePath == "" {
		return cfg, nil
	}
	// The override file is optional; only a present-but-unreadable one is fatal.
	if _, err := os.Stat(overridePath); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return config.LinkConfig{}, fmt.Errorf("override config: %w", err)
	}
	return applyOverrides(cfg, overridePath)
}

func defaultLinkConfig() config.LinkConfig {
	return config.LinkConfig{
		Name:      "wavectl",
		Protocol:  "NORMAL",
		Scheme:    "STRONG_OVERLAPPING_3",
		Monitor:   config.MonitorConfig{Addr: ":9300"},
		Serial:    config.SerialConfig{BaudRate: 115200},
		InboxDir:  "inbox",
		GCMinutes: 60,
	}
}

func applyOverrides(cfg config.LinkConfig, path string) (config.LinkConfig, error) {
	var raw fileOverrides
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.LinkConfig{}, fmt.Errorf("load override config: %w", err)
	}

	if meta.IsDefined("protocol") {
		cfg.Protocol = strings.ToUpper(strings.TrimSpace(raw.Protocol))
	}
	if meta.IsDefined("scheme") {
		cfg.Scheme = strings.ToUpper(strings.TrimSpace(raw.Scheme))
	}
	if meta.IsDefined("compression") {
		cfg.Compression = raw.Compression
	}
	if meta.IsDefined("serial_port") {
		cfg.Serial.Port = strings.TrimSpace(raw.SerialPort)
	}
	if meta.IsDefined("baud_rate") {
		cfg.Serial.BaudRate = raw.BaudRate
	}
	if meta.IsDefined("monitor_addr") {
		cfg.Monitor.Addr = strings.TrimSpace(raw.MonitorAddr)
	}
	if meta.IsDefined("outbox_dir") {
		cfg.OutboxDir = strings.TrimSpace(raw.OutboxDir)
	}
	if meta.IsDefined("inbox_dir") {
		cfg.InboxDir = strings.TrimSpace(raw.InboxDir)
	}
	if meta.IsDefined("gc_minutes") {
		cfg.GCMinutes = raw.GCMinutes
	}

	if err := config.ValidateLinkConfig(cfg); err != nil {
		return config.LinkConfig{}, err
	}
	return cfg, nil
}

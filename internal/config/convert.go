package config

import (
	"time"

	"github.com/danmuck/wavectl/internal/fec"
	"github.com/danmuck/wavectl/internal/receiver"
	"github.com/danmuck/wavectl/internal/transport"
)

// FECScheme resolves the configured token, falling back to the default
// scheme for anything unrecognised, same as the on-air flag handling.
func (c LinkConfig) FECScheme() fec.Scheme {
	return fec.ResolveOrDefault(c.Scheme)
}

func (c LinkConfig) SerialModemConfig() transport.SerialConfig {
	return transport.SerialConfig{
		Port:     c.Serial.Port,
		BaudRate: c.Serial.BaudRate,
	}
}

// Timeouts maps the receive section onto the reassembly timer knobs;
// unset fields keep their defaults.
func (c LinkConfig) Timeouts() receiver.Timeouts {
	t := receiver.DefaultTimeouts()
	if c.Receive.BaseSeconds > 0 {
		t.Base = time.Duration(c.Receive.BaseSeconds) * time.Second
	}
	if c.Receive.PerPacketSeconds > 0 {
		t.PerPacket = time.Duration(c.Receive.PerPacketSeconds) * time.Second
	}
	if c.Receive.MinSeconds > 0 {
		t.Min = time.Duration(c.Receive.MinSeconds) * time.Second
	}
	return t
}

func (c LinkConfig) GCAge() time.Duration {
	return time.Duration(c.GCMinutes) * time.Minute
}

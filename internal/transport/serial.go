package transport

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SerialConfig selects the port a hardware modem is attached to.
type SerialConfig struct {
	Port     string
	BaudRate int
}

func (c SerialConfig) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("transport: serial port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("transport: invalid baud rate %d", c.BaudRate)
	}
	return nil
}

// SerialModem drives an external acoustic modem over a serial line. Frames
// travel newline-delimited; the modem firmware owns modulation and reports
// playback completion by draining the write.
type SerialModem struct {
	mu        sync.Mutex
	port      serial.Port
	frames    chan string
	closed    bool
	closeOnce sync.Once
}

// OpenSerial opens the port and starts the frame reader.
func OpenSerial(cfg SerialConfig) (*SerialModem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: cfg.BaudRate}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Port, err)
	}
	m := &SerialModem{
		port:   port,
		frames: make(chan string, 64),
	}
	go m.readLoop()
	return m, nil
}

func (m *SerialModem) readLoop() {
	defer m.closeOnce.Do(func() { close(m.frames) })
	scanner := bufio.NewScanner(m.port)
	scanner.Buffer(make([]byte, 4096), 4096)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		m.frames <- line
	}
}

func (m *SerialModem) Transmit(ctx context.Context, frame string, protocol string) error {
	if len(frame) > MaxFrameLen {
		return ErrFrameTooLong
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, err := m.port.Write([]byte(frame + "\n")); err != nil {
		return fmt.Errorf("transport: serial write: %w", err)
	}
	if err := m.port.Drain(); err != nil {
		return fmt.Errorf("transport: serial drain: %w", err)
	}
	return nil
}

func (m *SerialModem) Frames() <-chan string {
	return m.frames
}

func (m *SerialModem) Protocols() []string {
	return []string{TagNormal, TagFast, TagFastest}
}

func (m *SerialModem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.port.Close()
}

// Package serial opens the UART the controller shares with the first module
// of the chain
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// ErrNoDevice is returned by Open when no device path is configured
var ErrNoDevice = errors.New("no serial device configured")

// Port is the byte pipe to the chain. chain.Port implements it for
// simulated chains.
type Port interface {
	io.ReadWriteCloser

	// Flush discards bytes received but not yet read
	Flush() error
}

// Config selects and sets up the chain UART. The line format is always 8N1.
type Config struct {
	Device      string        // e.g. "/dev/ttyUSB0", "COM3"
	Baud        int           // Chain UART rate
	ReadTimeout time.Duration // 0 blocks until data arrives
}

// DefaultConfig returns the line settings the module firmware uses
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 10 * time.Millisecond,
	}
}

// tarmPort adapts a tarm/serial port to Port
type tarmPort struct {
	*serial.Port
	device string
}

func (p *tarmPort) String() string {
	return p.device
}

// Open opens the device in cfg
func Open(cfg Config) (Port, error) {
	if cfg.Device == "" {
		return nil, ErrNoDevice
	}
	if cfg.Baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", cfg.Baud)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return &tarmPort{Port: port, device: cfg.Device}, nil
}

package link

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

const DefaultBaud = 115200

// SerialConfig describes the radio module UART.
type SerialConfig struct {
	Name        string        `yaml:"name"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// OpenSerial opens the port 8N1. Zero values select 115200 baud and a 100 ms read timeout,
// so a Link reader notices shutdown.
func OpenSerial(cfg SerialConfig) (*serial.Port, error) {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	c := &serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", cfg.Name, err)
	}
	return port, nil
}

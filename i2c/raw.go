package i2c

import (
	"context"
	"fmt"

	"github.com/mklimuk/flightboard"
)

var _ flightboard.RegisterBus = &RawBus{}

// RawBus layers the register-pointer convention over a plain address read/write bus
// such as the MCP2221 USB bridge: the pointer is written, then the data is read back.
type RawBus struct {
	bus flightboard.I2CBus
}

func NewRawBus(bus flightboard.I2CBus) *RawBus {
	return &RawBus{bus: bus}
}

func (b *RawBus) ReadRegister(ctx context.Context, address, reg byte) (byte, error) {
	buf := []byte{0}
	if err := b.ReadRegisters(ctx, address, reg, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *RawBus) ReadRegisters(ctx context.Context, address, reg byte, buffer []byte) error {
	if len(buffer) == 0 {
		return errEmptyRead
	}
	err := b.bus.WriteToAddr(ctx, address, []byte{reg})
	if err != nil {
		return fmt.Errorf("could not set register pointer %#x of %#x: %w", reg, address, err)
	}
	err = b.bus.ReadFromAddr(ctx, address, buffer)
	if err != nil {
		return fmt.Errorf("could not read register %#x of %#x: %w", reg, address, err)
	}
	return nil
}

func (b *RawBus) WriteRegister(ctx context.Context, address, reg, value byte) error {
	return b.WriteRegisters(ctx, address, reg, []byte{value})
}

func (b *RawBus) WriteRegisters(ctx context.Context, address, reg byte, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	if err := b.bus.WriteToAddr(ctx, address, buf); err != nil {
		return fmt.Errorf("could not write register %#x of %#x: %w", reg, address, err)
	}
	return nil
}

// Release frees the underlying bus (e.g. after an aborted adapter transfer).
func (b *RawBus) Release(ctx context.Context) error {
	return b.bus.Release(ctx)
}

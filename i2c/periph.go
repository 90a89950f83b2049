package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	pi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/flightboard"
	"github.com/mklimuk/flightboard/snsctx"
)

var _ flightboard.RegisterBus = &PeriphBus{}
var _ flightboard.I2CBus = &PeriphBus{}

// PeriphBus talks to a Linux I2C character device (e.g. "/dev/i2c-1" or "1") through periph.io.
type PeriphBus struct {
	mx  sync.Mutex
	bus pi2c.BusCloser
}

func NewPeriphBus(dev string) (*PeriphBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	if err := bus.SetSpeed(400 * physic.KiloHertz); err != nil {
		// not all adapters allow changing the clock from user space
		slog.Warn("could not set i2c bus speed", "bus", dev, "error", err)
	}
	return &PeriphBus{
		bus: bus,
	}, nil
}

func (b *PeriphBus) ReadRegister(ctx context.Context, address, reg byte) (byte, error) {
	buf := []byte{0}
	if err := b.ReadRegisters(ctx, address, reg, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *PeriphBus) ReadRegisters(ctx context.Context, address, reg byte, buffer []byte) error {
	snsctx.Trace(ctx, "i2c read", "addr", fmt.Sprintf("%#x", address), "reg", fmt.Sprintf("%#x", reg), "len", len(buffer))
	return b.tx(address, []byte{reg}, buffer)
}

func (b *PeriphBus) WriteRegister(ctx context.Context, address, reg, value byte) error {
	return b.WriteRegisters(ctx, address, reg, []byte{value})
}

func (b *PeriphBus) WriteRegisters(ctx context.Context, address, reg byte, data []byte) error {
	snsctx.Trace(ctx, "i2c write", "addr", fmt.Sprintf("%#x", address), "reg", fmt.Sprintf("%#x", reg), "data", fmt.Sprintf("% x", data))
	return b.tx(address, append([]byte{reg}, data...), nil)
}

func (b *PeriphBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(address, nil, buffer)
}

func (b *PeriphBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(address, buffer, nil)
}

func (b *PeriphBus) Release(ctx context.Context) error {
	return nil
}

func (b *PeriphBus) Close() error {
	return b.bus.Close()
}

func (b *PeriphBus) tx(address byte, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	err := b.bus.Tx(uint16(address), w, r)
	if err != nil {
		return fmt.Errorf("i2c transaction with %#x failed: %w", address, err)
	}
	return nil
}

package i2c

import (
	"context"
	"fmt"
	"sync"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/flightboard"
	"github.com/mklimuk/flightboard/snsctx"
)

var _ flightboard.RegisterBus = &GobotBus{}

// GobotBus runs register transactions through a gobot adaptor (e.g. nanopi.NewNeoAdaptor()).
// Connections are opened lazily per device address and cached until Close.
type GobotBus struct {
	mx        sync.Mutex
	connector gi2c.Connector
	bus       int
	conns     map[byte]gi2c.Connection
}

// NewGobotBus uses bus number busNr of the connector. A negative busNr selects the adaptor default.
func NewGobotBus(connector gi2c.Connector, busNr int) *GobotBus {
	if busNr < 0 {
		busNr = connector.DefaultI2cBus()
	}
	return &GobotBus{
		connector: connector,
		bus:       busNr,
		conns:     make(map[byte]gi2c.Connection),
	}
}

func (b *GobotBus) ReadRegister(ctx context.Context, address, reg byte) (byte, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return 0, err
	}
	v, err := conn.ReadByteData(reg)
	if err != nil {
		return 0, fmt.Errorf("could not read register %#x of %#x: %w", reg, address, err)
	}
	return v, nil
}

func (b *GobotBus) ReadRegisters(ctx context.Context, address, reg byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	snsctx.Trace(ctx, "i2c read", "bus", b.bus, "addr", fmt.Sprintf("%#x", address), "reg", fmt.Sprintf("%#x", reg), "len", len(buffer))
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err := conn.ReadBlockData(reg, buffer); err != nil {
		return fmt.Errorf("could not read %d bytes from %#x at %#x: %w", len(buffer), address, reg, err)
	}
	return nil
}

func (b *GobotBus) WriteRegister(ctx context.Context, address, reg, value byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err := conn.WriteByteData(reg, value); err != nil {
		return fmt.Errorf("could not write register %#x of %#x: %w", reg, address, err)
	}
	return nil
}

func (b *GobotBus) WriteRegisters(ctx context.Context, address, reg byte, data []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	snsctx.Trace(ctx, "i2c write", "bus", b.bus, "addr", fmt.Sprintf("%#x", address), "reg", fmt.Sprintf("%#x", reg), "data", fmt.Sprintf("% x", data))
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err := conn.WriteBlockData(reg, data); err != nil {
		return fmt.Errorf("could not write %d bytes to %#x at %#x: %w", len(data), address, reg, err)
	}
	return nil
}

// Close closes every cached connection. The adaptor itself is finalized by its owner.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = fmt.Errorf("could not close connection to %#x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	return first
}

func (b *GobotBus) connection(address byte) (gi2c.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.bus)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %#x on bus %d: %w", address, b.bus, err)
	}
	b.conns[address] = conn
	return conn, nil
}

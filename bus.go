package flightboard

import (
	"context"
	"fmt"
)

// ErrBusBusy is returned when a bridge still reports the previous command in progress.
var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrBusTimeout is returned when a bus condition was not observed within the wait timeout.
var ErrBusTimeout = fmt.Errorf("I2C bus wait timed out")

// ErrNack is returned when the addressed device did not acknowledge.
var ErrNack = fmt.Errorf("I2C device did not acknowledge")

// ErrDeviceNotFound is returned when the identity register does not hold the expected signature.
var ErrDeviceNotFound = fmt.Errorf("device identity mismatch")

// AddressableReader reads raw bytes from a 7-bit device address.
type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

// AddressableWriter writes raw bytes to a 7-bit device address; Release frees a stuck bus.
type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus moves raw bytes to and from a 7-bit address with no register convention.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// RegisterReader reads from register offsets of a device (write register pointer, then read).
type RegisterReader interface {
	ReadRegister(ctx context.Context, address, reg byte) (byte, error)
	ReadRegisters(ctx context.Context, address, reg byte, buffer []byte) error
}

// RegisterWriter writes to register offsets of a device.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, address, reg, value byte) error
	WriteRegisters(ctx context.Context, address, reg byte, data []byte) error
}

// RegisterBus is the contract every sensor driver is written against.
type RegisterBus interface {
	RegisterReader
	RegisterWriter
}

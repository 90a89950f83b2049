package i2c

import (
	"fmt"
)

// Direction is the R/W bit appended to the 7-bit address.
type Direction byte

const (
	Transmitter Direction = 0
	Receiver    Direction = 1
)

// Event is a master-mode status condition reported by the peripheral.
type Event int

const (
	// EventModeSelect: start (or repeated start) condition generated, bus owned.
	EventModeSelect Event = iota
	// EventTransmitterSelected: address sent in write mode and acknowledged.
	EventTransmitterSelected
	// EventReceiverSelected: address sent in read mode and acknowledged.
	EventReceiverSelected
	// EventByteTransmitted: data register shifted out and acknowledged.
	EventByteTransmitted
	// EventByteReceived: a data byte is waiting in the receive register.
	EventByteReceived
)

func (e Event) String() string {
	switch e {
	case EventModeSelect:
		return "MODE_SELECT"
	case EventTransmitterSelected:
		return "TRANSMITTER_SELECTED"
	case EventReceiverSelected:
		return "RECEIVER_SELECTED"
	case EventByteTransmitted:
		return "BYTE_TRANSMITTED"
	case EventByteReceived:
		return "BYTE_RECEIVED"
	default:
		return fmt.Sprintf("EVENT(%d)", int(e))
	}
}

// Controller is the register-level capability of one master peripheral.
// Every method must return immediately; waiting is the engine's job.
type Controller interface {
	// Busy reports whether the bus is held (by us or another master).
	Busy() bool
	GenerateStart()
	GenerateStop()
	// StopPending reports whether a requested stop condition is still being generated.
	StopPending() bool
	// SendAddress puts the 7-bit address and direction bit on the wire.
	SendAddress(address byte, dir Direction)
	SendData(b byte)
	ReceiveData() byte
	// SetAck enables or disables acknowledgment of received bytes.
	SetAck(enable bool)
	CheckEvent(ev Event) bool
	// AckFailure reports (and clears) a NACK received from the slave.
	AckFailure() bool
}

// Step names the phase of a transaction, used in errors.
type Step string

const (
	StepIdle     Step = "wait idle"
	StepStart    Step = "start"
	StepAddress  Step = "address"
	StepRegister Step = "register"
	StepRestart  Step = "repeated start"
	StepWrite    Step = "write data"
	StepRead     Step = "read data"
	StepStop     Step = "stop"
)

// BusError describes a transaction that failed at a given step.
type BusError struct {
	Bus     string
	Address byte
	Step    Step
	Err     error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%s: device %#x: %s: %v", e.Bus, e.Address, e.Step, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

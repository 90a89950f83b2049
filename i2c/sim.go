package i2c

import (
	"fmt"
	"sync"
)

var _ Controller = &SimBus{}

// SignalKind identifies a control or data symbol observed on the simulated wire.
type SignalKind int

const (
	SignalStart SignalKind = iota
	SignalRestart
	SignalAddress
	SignalWrite
	SignalRead
	SignalAck
	SignalNack
	SignalStop
)

// Signal is one entry of the simulated wire trace. Value holds the address byte
// (7-bit address << 1 | R/W) for SignalAddress and the data byte for SignalWrite/SignalRead.
type Signal struct {
	Kind  SignalKind
	Value byte
}

func (s Signal) String() string {
	switch s.Kind {
	case SignalStart:
		return "S"
	case SignalRestart:
		return "Sr"
	case SignalAddress:
		return fmt.Sprintf("A(%#02x)", s.Value)
	case SignalWrite:
		return fmt.Sprintf("W(%#02x)", s.Value)
	case SignalRead:
		return fmt.Sprintf("R(%#02x)", s.Value)
	case SignalAck:
		return "ACK"
	case SignalNack:
		return "NACK"
	case SignalStop:
		return "P"
	default:
		return "?"
	}
}

// Device is a simulated slave with a register pointer convention.
type Device interface {
	ReadRegister(reg byte) byte
	WriteRegister(reg, value byte)
}

// SimBus is an in-memory master peripheral with attached slave devices.
// It records every symbol it puts on the wire and supports fault injection.
type SimBus struct {
	mx      sync.Mutex
	devices map[byte]Device
	trace   []Signal

	active     bool
	modeSelect bool
	selected   bool
	dir        Direction
	target     Device
	pointerSet bool
	pointer    byte
	txDone     bool
	rxPending  bool
	rxByte     byte
	ack        bool
	nack       bool

	stuckBusy bool
	stalled   map[Event]bool
	stopStall bool
}

func NewSimBus() *SimBus {
	return &SimBus{
		devices: make(map[byte]Device),
		stalled: make(map[Event]bool),
		ack:     true,
	}
}

// Attach connects dev at the 7-bit address.
func (s *SimBus) Attach(address byte, dev Device) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.devices[address] = dev
}

// Detach removes the device at address; later transactions to it are NACKed.
func (s *SimBus) Detach(address byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	delete(s.devices, address)
}

// SetStuckBusy keeps the bus reported as busy (another master or a stuck line).
func (s *SimBus) SetStuckBusy(busy bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.stuckBusy = busy
}

// Stall makes ev never fire until Unstall is called.
func (s *SimBus) Stall(ev Event) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.stalled[ev] = true
}

func (s *SimBus) Unstall(ev Event) {
	s.mx.Lock()
	defer s.mx.Unlock()
	delete(s.stalled, ev)
}

// StallStop keeps the stop condition pending.
func (s *SimBus) StallStop(stall bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.stopStall = stall
}

// Trace returns a copy of the recorded wire symbols.
func (s *SimBus) Trace() []Signal {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]Signal, len(s.trace))
	copy(out, s.trace)
	return out
}

func (s *SimBus) ResetTrace() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.trace = nil
}

// AckEnabled reports the current acknowledgment setting.
func (s *SimBus) AckEnabled() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.ack
}

func (s *SimBus) Busy() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.stuckBusy || s.active
}

func (s *SimBus) GenerateStart() {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.active {
		s.record(SignalRestart, 0)
	} else {
		s.record(SignalStart, 0)
	}
	s.active = true
	s.modeSelect = true
	s.selected = false
	s.txDone = false
	s.rxPending = false
}

func (s *SimBus) GenerateStop() {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.active {
		return
	}
	s.record(SignalStop, 0)
	s.active = false
	s.modeSelect = false
	s.selected = false
	s.target = nil
	s.txDone = false
	s.rxPending = false
}

func (s *SimBus) StopPending() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.stopStall
}

func (s *SimBus) SendAddress(address byte, dir Direction) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.record(SignalAddress, address<<1|byte(dir))
	s.modeSelect = false
	dev, ok := s.devices[address]
	if !ok {
		s.record(SignalNack, 0)
		s.nack = true
		return
	}
	s.record(SignalAck, 0)
	s.selected = true
	s.dir = dir
	s.target = dev
	if dir == Transmitter {
		s.pointerSet = false
	}
}

func (s *SimBus) SendData(b byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.record(SignalWrite, b)
	s.txDone = false
	if !s.selected || s.dir != Transmitter {
		s.record(SignalNack, 0)
		s.nack = true
		return
	}
	if !s.pointerSet {
		s.pointer = b
		s.pointerSet = true
	} else {
		s.target.WriteRegister(s.pointer, b)
		s.pointer++
	}
	s.record(SignalAck, 0)
	s.txDone = true
}

func (s *SimBus) ReceiveData() byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.rxPending = false
	return s.rxByte
}

func (s *SimBus) SetAck(enable bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.ack = enable
}

func (s *SimBus) AckFailure() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	nack := s.nack
	s.nack = false
	return nack
}

func (s *SimBus) CheckEvent(ev Event) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.stalled[ev] {
		return false
	}
	switch ev {
	case EventModeSelect:
		return s.modeSelect
	case EventTransmitterSelected:
		return s.selected && s.dir == Transmitter
	case EventReceiverSelected:
		return s.selected && s.dir == Receiver
	case EventByteTransmitted:
		return s.txDone
	case EventByteReceived:
		if !s.selected || s.dir != Receiver {
			return false
		}
		if !s.rxPending {
			s.clockIn()
		}
		return true
	}
	return false
}

// clockIn shifts the next byte from the device and answers it with the current ack setting.
func (s *SimBus) clockIn() {
	s.rxByte = s.target.ReadRegister(s.pointer)
	s.pointer++
	s.rxPending = true
	s.record(SignalRead, s.rxByte)
	if s.ack {
		s.record(SignalAck, 0)
	} else {
		s.record(SignalNack, 0)
	}
}

func (s *SimBus) record(kind SignalKind, value byte) {
	s.trace = append(s.trace, Signal{Kind: kind, Value: value})
}

// RegisterWrite is one register update observed by a RegisterFile.
type RegisterWrite struct {
	Reg   byte
	Value byte
}

// RegisterFile is a Device backed by 256 byte-wide registers.
type RegisterFile struct {
	mx     sync.Mutex
	regs   [256]byte
	writes []RegisterWrite
	onRead func(reg byte)
}

func NewRegisterFile() *RegisterFile {
	return &RegisterFile{}
}

// Set stores values at consecutive registers starting at reg.
func (r *RegisterFile) Set(reg byte, values ...byte) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for i, v := range values {
		r.regs[reg+byte(i)] = v
	}
}

func (r *RegisterFile) Get(reg byte) byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.regs[reg]
}

// OnRead registers a hook called before each register read, outside the file lock.
func (r *RegisterFile) OnRead(hook func(reg byte)) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.onRead = hook
}

// Writes returns the register updates in the order they happened.
func (r *RegisterFile) Writes() []RegisterWrite {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]RegisterWrite, len(r.writes))
	copy(out, r.writes)
	return out
}

func (r *RegisterFile) ReadRegister(reg byte) byte {
	r.mx.Lock()
	hook := r.onRead
	r.mx.Unlock()
	if hook != nil {
		hook(reg)
	}
	return r.Get(reg)
}

func (r *RegisterFile) WriteRegister(reg, value byte) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.regs[reg] = value
	r.writes = append(r.writes, RegisterWrite{Reg: reg, Value: value})
}

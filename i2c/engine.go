package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/mklimuk/flightboard"
	"github.com/mklimuk/flightboard/snsctx"
)

var _ flightboard.RegisterBus = &Engine{}

var errEmptyRead = fmt.Errorf("read of zero bytes requested")

type EngineOpts struct {
	Name         string
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

type EngineOpt func(*EngineOpts)

// WithName labels the bus instance in errors and logs (e.g. "i2c1").
func WithName(name string) EngineOpt {
	return func(o *EngineOpts) {
		o.Name = name
	}
}

// WithTimeout bounds every single wait inside a transaction.
func WithTimeout(timeout time.Duration) EngineOpt {
	return func(o *EngineOpts) {
		o.Timeout = timeout
	}
}

// WithPollInterval sets the sleep between status polls. Zero yields the processor instead of sleeping.
func WithPollInterval(interval time.Duration) EngineOpt {
	return func(o *EngineOpts) {
		o.PollInterval = interval
	}
}

func WithLogger(logger *slog.Logger) EngineOpt {
	return func(o *EngineOpts) {
		o.Logger = logger
	}
}

// Engine drives master-mode register transactions over one Controller.
// Calls are serialised; every wait is bounded by the configured timeout and by ctx.
type Engine struct {
	mx     sync.Mutex
	ctrl   Controller
	config EngineOpts
}

func NewEngine(ctrl Controller, opts ...EngineOpt) *Engine {
	config := EngineOpts{
		Name:    "i2c",
		Timeout: 10 * time.Millisecond,
		Logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Engine{ctrl: ctrl, config: config}
}

func (e *Engine) Name() string {
	return e.config.Name
}

// ReadRegister reads a single byte from reg.
func (e *Engine) ReadRegister(ctx context.Context, address, reg byte) (byte, error) {
	buf := []byte{0}
	if err := e.ReadRegisters(ctx, address, reg, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadRegisters fills buffer starting at reg. Acknowledgment is withheld on the final byte only.
func (e *Engine) ReadRegisters(ctx context.Context, address, reg byte, buffer []byte) error {
	if len(buffer) == 0 {
		return errEmptyRead
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	snsctx.Trace(ctx, "i2c read", "bus", e.config.Name, "addr", fmt.Sprintf("%#x", address), "reg", fmt.Sprintf("%#x", reg), "len", len(buffer))

	if err := e.begin(ctx, address, reg); err != nil {
		return err
	}
	e.ctrl.GenerateStart()
	if err := e.wait(ctx, address, StepRestart, e.event(EventModeSelect)); err != nil {
		return e.abort(err)
	}
	e.ctrl.SendAddress(address, Receiver)
	if err := e.wait(ctx, address, StepAddress, e.event(EventReceiverSelected)); err != nil {
		return e.abort(err)
	}
	for i := range buffer {
		if i == len(buffer)-1 {
			e.ctrl.SetAck(false)
		}
		if err := e.wait(ctx, address, StepRead, e.event(EventByteReceived)); err != nil {
			return e.abort(err)
		}
		buffer[i] = e.ctrl.ReceiveData()
	}
	if err := e.stop(ctx, address); err != nil {
		return err
	}
	snsctx.Trace(ctx, "i2c read done", "bus", e.config.Name, "data", fmt.Sprintf("% x", buffer))
	return nil
}

// WriteRegister writes a single byte to reg.
func (e *Engine) WriteRegister(ctx context.Context, address, reg, value byte) error {
	return e.WriteRegisters(ctx, address, reg, []byte{value})
}

// WriteRegisters writes data starting at reg.
func (e *Engine) WriteRegisters(ctx context.Context, address, reg byte, data []byte) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	snsctx.Trace(ctx, "i2c write", "bus", e.config.Name, "addr", fmt.Sprintf("%#x", address), "reg", fmt.Sprintf("%#x", reg), "data", fmt.Sprintf("% x", data))

	if err := e.begin(ctx, address, reg); err != nil {
		return err
	}
	for _, b := range data {
		e.ctrl.SendData(b)
		if err := e.wait(ctx, address, StepWrite, e.event(EventByteTransmitted)); err != nil {
			return e.abort(err)
		}
	}
	return e.stop(ctx, address)
}

// begin waits for an idle bus, addresses the device for writing and sends the register pointer.
func (e *Engine) begin(ctx context.Context, address, reg byte) error {
	if err := e.wait(ctx, address, StepIdle, func() bool { return !e.ctrl.Busy() }); err != nil {
		// nothing was put on the wire, no stop needed
		return err
	}
	e.ctrl.GenerateStart()
	if err := e.wait(ctx, address, StepStart, e.event(EventModeSelect)); err != nil {
		return e.abort(err)
	}
	e.ctrl.SendAddress(address, Transmitter)
	if err := e.wait(ctx, address, StepAddress, e.event(EventTransmitterSelected)); err != nil {
		return e.abort(err)
	}
	e.ctrl.SendData(reg)
	if err := e.wait(ctx, address, StepRegister, e.event(EventByteTransmitted)); err != nil {
		return e.abort(err)
	}
	return nil
}

func (e *Engine) stop(ctx context.Context, address byte) error {
	e.ctrl.GenerateStop()
	err := e.wait(ctx, address, StepStop, func() bool { return !e.ctrl.StopPending() })
	e.ctrl.SetAck(true)
	return err
}

// abort releases the bus after a failed step and restores acknowledgment.
func (e *Engine) abort(err error) error {
	e.ctrl.GenerateStop()
	e.ctrl.SetAck(true)
	e.config.Logger.Debug("i2c transaction aborted", "bus", e.config.Name, "error", err)
	return err
}

func (e *Engine) event(ev Event) func() bool {
	return func() bool { return e.ctrl.CheckEvent(ev) }
}

// wait polls cond until it holds, the slave NACKs, the timeout expires or ctx is done.
func (e *Engine) wait(ctx context.Context, address byte, step Step, cond func() bool) error {
	fail := func(err error) error {
		return &BusError{Bus: e.config.Name, Address: address, Step: step, Err: err}
	}
	deadline := time.Now().Add(e.config.Timeout)
	for {
		if e.ctrl.AckFailure() {
			return fail(flightboard.ErrNack)
		}
		if cond() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if time.Now().After(deadline) {
			return fail(flightboard.ErrBusTimeout)
		}
		if e.config.PollInterval > 0 {
			time.Sleep(e.config.PollInterval)
		} else {
			runtime.Gosched()
		}
	}
}

package i2c

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/flightboard"
)

func newTestEngine(t *testing.T, opts ...EngineOpt) (*Engine, *SimBus, *RegisterFile) {
	t.Helper()
	sim := NewSimBus()
	dev := NewRegisterFile()
	sim.Attach(0x76, dev)
	opts = append([]EngineOpt{WithName("i2c1"), WithTimeout(2 * time.Millisecond)}, opts...)
	return NewEngine(sim, opts...), sim, dev
}

func TestEngine_ReadRegisters(t *testing.T) {
	engine, sim, dev := newTestEngine(t)
	dev.Set(0xD0, 0x58, 0x11)

	buf := make([]byte, 2)
	err := engine.ReadRegisters(context.Background(), 0x76, 0xD0, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x58, 0x11}, buf)

	expected := []Signal{
		{Kind: SignalStart},
		{Kind: SignalAddress, Value: 0xEC},
		{Kind: SignalAck},
		{Kind: SignalWrite, Value: 0xD0},
		{Kind: SignalAck},
		{Kind: SignalRestart},
		{Kind: SignalAddress, Value: 0xED},
		{Kind: SignalAck},
		{Kind: SignalRead, Value: 0x58},
		{Kind: SignalAck},
		{Kind: SignalRead, Value: 0x11},
		{Kind: SignalNack},
		{Kind: SignalStop},
	}
	assert.Equal(t, expected, sim.Trace())
	assert.True(t, sim.AckEnabled(), "acknowledgment must be re-enabled after a read")
}

func TestEngine_ReadRegister(t *testing.T) {
	engine, sim, dev := newTestEngine(t)
	dev.Set(0x75, 0x71)

	v, err := engine.ReadRegister(context.Background(), 0x76, 0x75)
	require.NoError(t, err)
	assert.Equal(t, byte(0x71), v)

	trace := sim.Trace()
	require.Len(t, trace, 11)
	// single byte read is not acknowledged
	assert.Equal(t, Signal{Kind: SignalRead, Value: 0x71}, trace[8])
	assert.Equal(t, Signal{Kind: SignalNack}, trace[9])
	assert.Equal(t, Signal{Kind: SignalStop}, trace[10])
}

func TestEngine_ReadAcknowledgesAllButLast(t *testing.T) {
	engine, sim, dev := newTestEngine(t)
	dev.Set(0x88, 1, 2, 3, 4, 5, 6, 7, 8)

	buf := make([]byte, 8)
	require.NoError(t, engine.ReadRegisters(context.Background(), 0x76, 0x88, buf))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf)

	var acks []SignalKind
	trace := sim.Trace()
	for i, s := range trace {
		if s.Kind == SignalRead {
			acks = append(acks, trace[i+1].Kind)
		}
	}
	require.Len(t, acks, 8)
	for i := 0; i < 7; i++ {
		assert.Equal(t, SignalAck, acks[i], "byte %d", i)
	}
	assert.Equal(t, SignalNack, acks[7])
}

func TestEngine_WriteRegisters(t *testing.T) {
	engine, sim, dev := newTestEngine(t)

	err := engine.WriteRegisters(context.Background(), 0x76, 0xF4, []byte{0x73, 0xA0})
	require.NoError(t, err)

	expected := []Signal{
		{Kind: SignalStart},
		{Kind: SignalAddress, Value: 0xEC},
		{Kind: SignalAck},
		{Kind: SignalWrite, Value: 0xF4},
		{Kind: SignalAck},
		{Kind: SignalWrite, Value: 0x73},
		{Kind: SignalAck},
		{Kind: SignalWrite, Value: 0xA0},
		{Kind: SignalAck},
		{Kind: SignalStop},
	}
	assert.Equal(t, expected, sim.Trace())
	assert.Equal(t, []RegisterWrite{{Reg: 0xF4, Value: 0x73}, {Reg: 0xF5, Value: 0xA0}}, dev.Writes())
	assert.True(t, sim.AckEnabled())
}

func TestEngine_WriteRegister(t *testing.T) {
	engine, _, dev := newTestEngine(t)
	require.NoError(t, engine.WriteRegister(context.Background(), 0x76, 0xE0, 0xB6))
	assert.Equal(t, byte(0xB6), dev.Get(0xE0))
}

func TestEngine_AbsentDevice(t *testing.T) {
	engine, sim, _ := newTestEngine(t)

	_, err := engine.ReadRegister(context.Background(), 0x42, 0x00)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flightboard.ErrNack))

	var busErr *BusError
	require.True(t, errors.As(err, &busErr))
	assert.Equal(t, StepAddress, busErr.Step)
	assert.Equal(t, byte(0x42), busErr.Address)
	assert.Equal(t, "i2c1", busErr.Bus)

	expected := []Signal{
		{Kind: SignalStart},
		{Kind: SignalAddress, Value: 0x84},
		{Kind: SignalNack},
		{Kind: SignalStop},
	}
	assert.Equal(t, expected, sim.Trace())
	assert.True(t, sim.AckEnabled())

	// the bus is usable again afterwards
	sim.ResetTrace()
	_, err = engine.ReadRegister(context.Background(), 0x76, 0x00)
	assert.NoError(t, err)
}

func TestEngine_Timeouts(t *testing.T) {
	tests := []struct {
		name   string
		read   bool
		inject func(sim *SimBus)
		step   Step
	}{
		{
			name:   "bus held by another master",
			read:   true,
			inject: func(sim *SimBus) { sim.SetStuckBusy(true) },
			step:   StepIdle,
		},
		{
			name:   "start never completes",
			read:   true,
			inject: func(sim *SimBus) { sim.Stall(EventModeSelect) },
			step:   StepStart,
		},
		{
			name:   "address phase hangs",
			read:   false,
			inject: func(sim *SimBus) { sim.Stall(EventTransmitterSelected) },
			step:   StepAddress,
		},
		{
			name:   "register byte hangs",
			read:   false,
			inject: func(sim *SimBus) { sim.Stall(EventByteTransmitted) },
			step:   StepRegister,
		},
		{
			name:   "receiver never selected",
			read:   true,
			inject: func(sim *SimBus) { sim.Stall(EventReceiverSelected) },
			step:   StepAddress,
		},
		{
			name:   "data byte never arrives",
			read:   true,
			inject: func(sim *SimBus) { sim.Stall(EventByteReceived) },
			step:   StepRead,
		},
		{
			name:   "stop stays pending",
			read:   false,
			inject: func(sim *SimBus) { sim.StallStop(true) },
			step:   StepStop,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, sim, _ := newTestEngine(t, WithPollInterval(100*time.Microsecond))
			tt.inject(sim)

			start := time.Now()
			var err error
			if tt.read {
				_, err = engine.ReadRegister(context.Background(), 0x76, 0xF7)
			} else {
				err = engine.WriteRegister(context.Background(), 0x76, 0xF4, 0x73)
			}
			elapsed := time.Since(start)

			require.Error(t, err)
			assert.True(t, errors.Is(err, flightboard.ErrBusTimeout))
			var busErr *BusError
			require.True(t, errors.As(err, &busErr))
			assert.Equal(t, tt.step, busErr.Step)
			assert.Less(t, elapsed, time.Second, "wait must be bounded")
			assert.True(t, sim.AckEnabled())
		})
	}
}

func TestEngine_IdleTimeoutPutsNothingOnTheWire(t *testing.T) {
	engine, sim, _ := newTestEngine(t)
	sim.SetStuckBusy(true)

	_, err := engine.ReadRegister(context.Background(), 0x76, 0xD0)
	require.Error(t, err)
	assert.Empty(t, sim.Trace())
}

func TestEngine_ContextCancelled(t *testing.T) {
	engine, sim, _ := newTestEngine(t, WithTimeout(time.Minute))
	sim.Stall(EventByteReceived)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	buf := make([]byte, 6)
	err := engine.ReadRegisters(ctx, 0x76, 0xF7, buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var busErr *BusError
	require.True(t, errors.As(err, &busErr))
	assert.Equal(t, StepRead, busErr.Step)
	trace := sim.Trace()
	assert.Equal(t, Signal{Kind: SignalStop}, trace[len(trace)-1])
}

func TestEngine_EmptyRead(t *testing.T) {
	engine, sim, _ := newTestEngine(t)
	err := engine.ReadRegisters(context.Background(), 0x76, 0xF7, nil)
	assert.Error(t, err)
	assert.Empty(t, sim.Trace())
}

func TestEngine_ConcurrentCallers(t *testing.T) {
	engine, _, dev := newTestEngine(t, WithTimeout(time.Second))
	dev.Set(0xD0, 0x58)

	var wg sync.WaitGroup
	errs := make(chan error, 80)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				v, err := engine.ReadRegister(context.Background(), 0x76, 0xD0)
				if err == nil && v != 0x58 {
					err = errors.New("unexpected value")
				}
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestBusError_Error(t *testing.T) {
	err := &BusError{Bus: "i2c1", Address: 0x76, Step: StepRead, Err: flightboard.ErrBusTimeout}
	assert.Equal(t, "i2c1: device 0x76: read data: I2C bus wait timed out", err.Error())
}

package control

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/sousvide/internal/gpio"
	"github.com/sweeney/sousvide/internal/max31855"
)

// Frames are in quarter degrees Celsius; each step of 1 is 0.45 degF.
// With the setpoint at fahrenheit(200) (122 degF):
//
//	198 => 0.9 below   (heat)
//	199 => 0.45 below  (inside band)
//	200 => at setpoint (inside band)
//	201 => 0.45 above  (stop heating)
const setpointTC = 200

func fahrenheit(tc uint16) float64 {
	f, _ := max31855.Decode(max31855.Frame(tc, 0)).Fahrenheit().Get()
	return f
}

type rig struct {
	src    *max31855.FakeSource
	pump   *gpio.FakePin
	heater *gpio.FakePin
	ctl    *Controller
}

func newRig(t *testing.T, opts ...Option) *rig {
	t.Helper()
	r := &rig{
		src:    max31855.NewFakeSource(max31855.Frame(setpointTC, 0)),
		pump:   gpio.NewFakePin(),
		heater: gpio.NewFakePin(),
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	ctl, err := New(r.src, r.pump, r.heater, opts...)
	require.NoError(t, err)
	r.ctl = ctl
	return r
}

func (r *rig) stepAt(tc uint16) {
	r.src.Set(max31855.Frame(tc, 0), nil)
	r.ctl.Step()
}

func TestNewDrivesOutputsOff(t *testing.T) {
	r := newRig(t)

	assert.Equal(t, []gpio.State{gpio.Low}, r.pump.Writes)
	assert.Equal(t, []gpio.State{gpio.Low}, r.heater.Writes)
	assert.False(t, r.ctl.PumpState())
	assert.False(t, r.ctl.HeaterState())
	assert.False(t, r.ctl.Setpoint().IsKnown())
	assert.False(t, r.ctl.CurrentTemperature().IsKnown())
}

func TestNewFailsWhenOutputCannotBeDriven(t *testing.T) {
	writeErr := errors.New("permission denied")
	pump := gpio.NewFakePin()
	pump.WriteError = writeErr

	_, err := New(max31855.NewFakeSource(), pump, gpio.NewFakePin())
	require.Error(t, err)
	assert.True(t, errors.Is(err, writeErr))
}

func TestSetpointAccessors(t *testing.T) {
	r := newRig(t)

	r.ctl.ChangeSetpoint(135)
	v, ok := r.ctl.Setpoint().Get()
	require.True(t, ok)
	assert.Equal(t, 135.0, v)

	r.ctl.ClearSetpoint()
	assert.False(t, r.ctl.Setpoint().IsKnown())
}

func TestNonFiniteSetpointClears(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		r := newRig(t)
		r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
		r.stepAt(100)
		require.True(t, r.ctl.HeaterState())
		r.ctl.DrainEvents()

		r.ctl.ChangeSetpoint(v)
		assert.False(t, r.ctl.Setpoint().IsKnown(), "setpoint %v", v)

		r.stepAt(100)
		assert.False(t, r.ctl.PumpState(), "setpoint %v", v)
		assert.False(t, r.ctl.HeaterState(), "setpoint %v", v)
		assert.Equal(t, gpio.Low, r.pump.Level)

		events := r.ctl.DrainEvents()
		require.NotEmpty(t, events)
		assert.Equal(t, EventSetpointCleared, events[0].Type)
	}
}

func TestStepReadsCurrentTemperature(t *testing.T) {
	r := newRig(t)
	r.stepAt(400)

	v, ok := r.ctl.CurrentTemperature().Get()
	require.True(t, ok)
	assert.InDelta(t, 212.0, v, 1e-9)
}

func TestStepDisabledWithoutSetpoint(t *testing.T) {
	r := newRig(t)

	for i := 0; i < 3; i++ {
		r.stepAt(100)
		assert.False(t, r.ctl.PumpState())
		assert.False(t, r.ctl.HeaterState())
	}
	// only the initial writes from New
	assert.Equal(t, 1, r.pump.WriteCount())
	assert.Equal(t, 1, r.heater.WriteCount())
}

func TestStepDisabledWhenReadingUnknown(t *testing.T) {
	tests := []struct {
		name string
		raw  uint32
		err  error
	}{
		{"short read", 0, max31855.ErrShortRead},
		{"io error", 0, errors.New("bus fault")},
		{"open circuit", max31855.FaultFrame(0b001), nil},
		{"fault without detail", max31855.FaultFrame(0), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
			r.stepAt(100) // far below: heating
			require.True(t, r.ctl.PumpState())
			require.True(t, r.ctl.HeaterState())

			r.src.Set(tt.raw, tt.err)
			r.ctl.Step()

			assert.False(t, r.ctl.CurrentTemperature().IsKnown())
			assert.False(t, r.ctl.PumpState())
			assert.False(t, r.ctl.HeaterState())
			assert.Equal(t, gpio.Low, r.pump.Level)
			assert.Equal(t, gpio.Low, r.heater.Level)
		})
	}
}

func TestClearSetpointDisablesOnNextStep(t *testing.T) {
	r := newRig(t)
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
	r.stepAt(100)
	require.True(t, r.ctl.HeaterState())

	r.ctl.ClearSetpoint()
	// state is only changed by the step
	assert.True(t, r.ctl.HeaterState())

	r.stepAt(100)
	assert.False(t, r.ctl.PumpState())
	assert.False(t, r.ctl.HeaterState())
}

func TestStepHysteresis(t *testing.T) {
	r := newRig(t)
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))

	steps := []struct {
		tc     uint16
		heater bool
	}{
		{setpointTC, false},     // at setpoint, heater was off: stays off
		{setpointTC - 1, false}, // inside band: stays off
		{setpointTC - 2, true},  // below band: on
		{setpointTC - 1, true},  // inside band: stays on
		{setpointTC, true},      // at setpoint: stays on
		{setpointTC + 1, false}, // above: off
		{setpointTC, false},     // back inside: stays off
		{setpointTC - 1, false},
		{setpointTC - 3, true},
	}

	for i, s := range steps {
		r.stepAt(s.tc)
		assert.True(t, r.ctl.PumpState(), "step %d", i)
		assert.Equal(t, s.heater, r.ctl.HeaterState(), "step %d (tc=%d)", i, s.tc)
		assert.Equal(t, gpio.StateOf(s.heater), r.heater.Level, "step %d (tc=%d)", i, s.tc)
	}
}

func TestStepIdempotentActuation(t *testing.T) {
	r := newRig(t)
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))

	for i := 0; i < 10; i++ {
		r.stepAt(setpointTC - 4)
	}
	// New wrote Low once; the steps wrote High once.
	assert.Equal(t, []gpio.State{gpio.Low, gpio.High}, r.pump.Writes)
	assert.Equal(t, []gpio.State{gpio.Low, gpio.High}, r.heater.Writes)

	for i := 0; i < 10; i++ {
		r.stepAt(setpointTC + 4)
	}
	assert.Equal(t, 2, r.pump.WriteCount())
	assert.Equal(t, []gpio.State{gpio.Low, gpio.High, gpio.Low}, r.heater.Writes)
}

func TestStepRetriesFailedWrite(t *testing.T) {
	r := newRig(t)
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
	r.heater.WriteError = errors.New("write failed")

	r.stepAt(100)
	// logical state follows the decision even though the write failed
	assert.True(t, r.ctl.HeaterState())
	assert.Equal(t, gpio.Low, r.heater.Level)

	r.heater.WriteError = nil
	r.stepAt(100)
	assert.Equal(t, gpio.High, r.heater.Level)
	assert.Equal(t, []gpio.State{gpio.Low, gpio.High}, r.heater.Writes)
}

func TestStepHeaterWaitsForPump(t *testing.T) {
	r := newRig(t)
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
	r.pump.WriteError = errors.New("write failed")

	r.stepAt(100)
	assert.Equal(t, gpio.Low, r.pump.Level)
	assert.Equal(t, gpio.Low, r.heater.Level, "heater must not be driven while the pump is off")

	r.pump.WriteError = nil
	r.stepAt(100)
	assert.Equal(t, gpio.High, r.pump.Level)
	assert.Equal(t, gpio.High, r.heater.Level)
}

func TestStepTiming(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		delay   time.Duration
		ok      bool
	}{
		{"instant", 0, time.Second, true},
		{"partial", 300 * time.Millisecond, 700 * time.Millisecond, true},
		{"almost", 999 * time.Millisecond, time.Millisecond, true},
		{"exact", time.Second, 0, false},
		{"overrun", 1500 * time.Millisecond, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := clock.NewMock()
			r := newRig(t, WithClock(mock))
			r.src.OnRead = func() { mock.Add(tt.elapsed) }

			delay, ok := r.ctl.Step()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.delay, delay)
		})
	}
}

func TestStepTimingWallClock(t *testing.T) {
	r := newRig(t)
	r.src.OnRead = func() { time.Sleep(20 * time.Millisecond) }

	delay, ok := r.ctl.Step()
	require.True(t, ok)
	assert.LessOrEqual(t, delay, 980*time.Millisecond)
	assert.Greater(t, delay, 500*time.Millisecond)
}

func TestCalibration(t *testing.T) {
	r := newRig(t, WithCalibration(OffsetCalibration(-3)))
	r.stepAt(400)

	v, ok := r.ctl.CurrentTemperature().Get()
	require.True(t, ok)
	assert.InDelta(t, 209.0, v, 1e-9)
}

func TestAccessorsUsableDuringSample(t *testing.T) {
	r := newRig(t)
	done := make(chan struct{})
	r.src.OnRead = func() {
		// would deadlock if Step held the lock across the read
		go func() {
			r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
			_ = r.ctl.Snapshot()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("accessor blocked while sampling")
		}
	}

	r.stepAt(100)
	assert.True(t, r.ctl.HeaterState())
}

func TestEvents(t *testing.T) {
	r := newRig(t)

	r.stepAt(100)
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
	r.stepAt(100)
	r.stepAt(setpointTC + 1)
	r.src.Set(0, max31855.ErrShortRead)
	r.ctl.Step()

	var types []EventType
	for _, e := range r.ctl.DrainEvents() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{
		EventReadingRestored,
		EventSetpointChanged,
		EventPumpOn,
		EventHeaterOn,
		EventHeaterOff,
		EventReadingLost,
		EventPumpOff,
	}, types)

	assert.Empty(t, r.ctl.DrainEvents())
	assert.Equal(t, EventCounts{PumpOn: 1, PumpOff: 1, HeaterOn: 1, HeaterOff: 1}, r.ctl.Counts())
}

func TestEventCarriesState(t *testing.T) {
	r := newRig(t)
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
	r.ctl.DrainEvents()

	r.stepAt(100)
	events := r.ctl.DrainEvents()
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventHeaterOn, last.Type)
	assert.Equal(t, ModeHeating, last.State.Mode())
	assert.True(t, last.State.Current.IsKnown())
}

func TestPendingEventsBounded(t *testing.T) {
	r := newRig(t)
	for i := 0; i < maxPendingEvents+10; i++ {
		r.ctl.ChangeSetpoint(float64(i))
	}
	assert.Len(t, r.ctl.DrainEvents(), maxPendingEvents)
}

func TestOff(t *testing.T) {
	r := newRig(t)
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
	r.stepAt(100)

	require.NoError(t, r.ctl.Off())
	assert.False(t, r.ctl.PumpState())
	assert.False(t, r.ctl.HeaterState())
	assert.Equal(t, gpio.Low, r.pump.Level)
	assert.Equal(t, gpio.Low, r.heater.Level)
}

func TestRunDrivesOutputsOffOnCancel(t *testing.T) {
	mock := clock.NewMock()
	r := newRig(t, WithClock(mock))
	stepped := make(chan struct{}, 64)
	r.src.OnRead = func() { stepped <- struct{}{} }
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
	r.src.Set(max31855.Frame(100, 0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ctl.Run(ctx) }()

	<-stepped
	// the next step starts only once the clock passes the returned delay
	require.Eventually(t, func() bool {
		mock.Add(StepPeriod)
		select {
		case <-stepped:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.False(t, r.ctl.PumpState())
	assert.False(t, r.ctl.HeaterState())
	assert.Equal(t, gpio.Low, r.pump.Level)
	assert.Equal(t, gpio.Low, r.heater.Level)
}

func TestDrainSteps(t *testing.T) {
	mock := clock.NewMock()
	r := newRig(t, WithClock(mock))
	r.ctl.ChangeSetpoint(fahrenheit(setpointTC))
	assert.Empty(t, r.ctl.DrainSteps())

	t0 := mock.Now()
	r.stepAt(100)
	mock.Add(StepPeriod)
	r.src.Set(0, max31855.ErrShortRead)
	r.ctl.Step()

	steps := r.ctl.DrainSteps()
	require.Len(t, steps, 2)
	assert.Equal(t, t0, steps[0].Timestamp)
	assert.Equal(t, ModeHeating, steps[0].State.Mode())
	assert.True(t, steps[0].State.Setpoint.IsKnown())
	assert.Equal(t, t0.Add(StepPeriod), steps[1].Timestamp)
	assert.Equal(t, ModeDisabled, steps[1].State.Mode())
	assert.False(t, steps[1].State.Current.IsKnown())

	assert.Empty(t, r.ctl.DrainSteps())
}

func TestPendingStepsBounded(t *testing.T) {
	r := newRig(t)
	for i := 0; i < maxPendingSteps+5; i++ {
		r.ctl.Step()
	}
	assert.Len(t, r.ctl.DrainSteps(), maxPendingSteps)
	assert.Equal(t, uint64(maxPendingSteps+5), r.ctl.Steps())
}

func TestStepsCounted(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, uint64(0), r.ctl.Steps())

	r.stepAt(setpointTC)
	r.src.Set(0, max31855.ErrShortRead)
	r.ctl.Step()
	assert.Equal(t, uint64(2), r.ctl.Steps())
}

package control

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/sousvide/internal/gpio"
	"github.com/sweeney/sousvide/internal/temp"
)

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for step timing. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithCalibration sets the correction applied to every Fahrenheit reading.
func WithCalibration(f func(fahrenheit float64) float64) Option {
	return func(ctl *Controller) { ctl.calibrate = f }
}

// OffsetCalibration returns a correction that adds delta degrees Fahrenheit.
func OffsetCalibration(delta float64) func(float64) float64 {
	return func(f float64) float64 { return f + delta }
}

// Controller runs the control loop. Only the goroutine calling Step (or Run)
// touches the pins and the temperature source; every other method only takes
// the lock to copy or set a field.
type Controller struct {
	source    TemperatureSource
	pump      PinDriver
	heater    PinDriver
	clock     clock.Clock
	logger    *zap.SugaredLogger
	calibrate func(float64) float64

	// Last successfully written levels. Owned by the stepping goroutine.
	pumpActuated   bool
	heaterActuated bool

	mu     sync.Mutex
	state  State
	events  []Event
	history []StepRecord
	counts  EventCounts
	steps  uint64
}

// New creates a controller and drives both outputs off.
// Failure to drive either output is fatal, like failing to open it.
func New(source TemperatureSource, pump, heater PinDriver, opts ...Option) (*Controller, error) {
	c := &Controller{
		source:    source,
		pump:      pump,
		heater:    heater,
		clock:     clock.New(),
		logger:    zap.NewNop().Sugar(),
		calibrate: func(f float64) float64 { return f },
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := heater.Write(gpio.Low); err != nil {
		return nil, fmt.Errorf("init heater: %w", err)
	}
	if err := pump.Write(gpio.Low); err != nil {
		return nil, fmt.Errorf("init pump: %w", err)
	}
	return c, nil
}

// ChangeSetpoint sets the target temperature in degrees Fahrenheit.
// NaN and infinite values clear the setpoint instead.
func (c *Controller) ChangeSetpoint(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.logger.Warnf("set_temp: rejected %g, clearing", v)
		c.ClearSetpoint()
		return
	}
	c.logger.Infof("set_temp: %g", v)
	c.mu.Lock()
	c.state.Setpoint = temp.Known(v)
	c.recordLocked(EventSetpointChanged)
	c.mu.Unlock()
}

// ClearSetpoint removes the target; the next step disables the bath.
func (c *Controller) ClearSetpoint() {
	c.logger.Infof("set_temp: cleared")
	c.mu.Lock()
	c.state.Setpoint = temp.Unknown
	c.recordLocked(EventSetpointCleared)
	c.mu.Unlock()
}

// Setpoint returns the target temperature.
func (c *Controller) Setpoint() temp.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Setpoint
}

// CurrentTemperature returns the last reading, Unknown if it failed.
func (c *Controller) CurrentTemperature() temp.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Current
}

// PumpState reports whether the pump is on.
func (c *Controller) PumpState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Pump
}

// HeaterState reports whether the heater is on.
func (c *Controller) HeaterState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Heater
}

// Snapshot returns all four fields read under one lock.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counts returns actuator transition counts since startup.
func (c *Controller) Counts() EventCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// Steps returns the number of completed steps.
func (c *Controller) Steps() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}

// DrainEvents returns the events recorded since the previous call.
func (c *Controller) DrainEvents() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.events
	c.events = nil
	return events
}

// DrainSteps returns one record per step completed since the previous call.
func (c *Controller) DrainSteps() []StepRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := c.history
	c.history = nil
	return history
}

// Step runs one iteration of the loop. It returns the delay until the next
// step should start, or ok=false if this step overran StepPeriod and the next
// one should start immediately. Errors never escape; a failed sample makes
// the reading Unknown, which disables the bath.
func (c *Controller) Step() (delay time.Duration, ok bool) {
	start := c.clock.Now()

	current := c.sample()

	c.mu.Lock()
	prev := c.state
	next := Decide(prev.Setpoint, current, prev.Heater)
	c.state.Current = current
	c.state.Pump = next.Pump
	c.state.Heater = next.Heater
	c.recordTransitionsLocked(prev, c.state)
	c.steps++
	if len(c.history) >= maxPendingSteps {
		c.history = c.history[1:]
	}
	c.history = append(c.history, StepRecord{Timestamp: start, State: c.state})
	c.mu.Unlock()

	// Heater goes off before the pump, and only comes on once the pump is on.
	if next.Heater {
		c.actuate("pump", c.pump, &c.pumpActuated, next.Pump)
		if c.pumpActuated {
			c.actuate("heater", c.heater, &c.heaterActuated, next.Heater)
		}
	} else {
		c.actuate("heater", c.heater, &c.heaterActuated, next.Heater)
		c.actuate("pump", c.pump, &c.pumpActuated, next.Pump)
	}

	elapsed := c.clock.Since(start)
	if elapsed < StepPeriod {
		return StepPeriod - elapsed, true
	}
	c.logger.Debugf("step overran: %v", elapsed)
	return 0, false
}

// Run calls Step until ctx is cancelled, sleeping the returned delay between
// steps. On exit both outputs are driven off.
func (c *Controller) Run(ctx context.Context) error {
	for {
		delay, ok := c.Step()
		if !ok {
			if ctx.Err() != nil {
				return c.Off()
			}
			continue
		}

		timer := c.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return c.Off()
		case <-timer.C:
		}
	}
}

// Off drives both outputs off. Call it only from the stepping goroutine,
// or after Run has returned.
func (c *Controller) Off() error {
	c.mu.Lock()
	prev := c.state
	c.state.Pump = false
	c.state.Heater = false
	c.recordTransitionsLocked(prev, c.state)
	c.mu.Unlock()

	var err error
	if herr := c.heater.Write(gpio.Low); herr != nil {
		err = multierr.Append(err, fmt.Errorf("heater off: %w", herr))
	} else {
		c.heaterActuated = false
	}
	if perr := c.pump.Write(gpio.Low); perr != nil {
		err = multierr.Append(err, fmt.Errorf("pump off: %w", perr))
	} else {
		c.pumpActuated = false
	}
	return err
}

// sample reads the thermocouple and converts to calibrated Fahrenheit.
func (c *Controller) sample() temp.Reading {
	s, err := c.source.ReadSample()
	if err != nil {
		c.logger.Debugf("cur_temp: unknown (%v)", err)
		return temp.Unknown
	}
	if s.Fault {
		c.logger.Debugf("cur_temp: unknown (%s)", s)
		return temp.Unknown
	}
	cur := s.Fahrenheit().Map(c.calibrate)
	c.logger.Debugf("cur_temp: %s", cur)
	return cur
}

// actuate writes the pin only when want differs from the last written level.
// A failed write leaves *actuated unchanged so the next step retries it.
func (c *Controller) actuate(name string, pin PinDriver, actuated *bool, want bool) {
	if *actuated == want {
		return
	}
	c.logger.Infof("%s: %v", name, want)
	if err := pin.Write(gpio.StateOf(want)); err != nil {
		c.logger.Errorf("%s: write failed: %v", name, err)
		return
	}
	*actuated = want
}

func (c *Controller) recordTransitionsLocked(prev, next State) {
	switch {
	case prev.Current.IsKnown() && !next.Current.IsKnown():
		c.logger.Warnf("cur_temp: reading lost")
		c.recordLocked(EventReadingLost)
	case !prev.Current.IsKnown() && next.Current.IsKnown():
		c.logger.Infof("cur_temp: reading restored (%s)", next.Current)
		c.recordLocked(EventReadingRestored)
	}

	if next.Pump != prev.Pump {
		if next.Pump {
			c.counts.PumpOn++
			c.recordLocked(EventPumpOn)
		} else {
			c.counts.PumpOff++
			c.recordLocked(EventPumpOff)
		}
	}
	if next.Heater != prev.Heater {
		if next.Heater {
			c.counts.HeaterOn++
			c.recordLocked(EventHeaterOn)
		} else {
			c.counts.HeaterOff++
			c.recordLocked(EventHeaterOff)
		}
	}
}

func (c *Controller) recordLocked(t EventType) {
	if len(c.events) >= maxPendingEvents {
		c.events = c.events[1:]
	}
	c.events = append(c.events, Event{
		Timestamp: c.clock.Now(),
		Type:      t,
		State:     c.state,
	})
}

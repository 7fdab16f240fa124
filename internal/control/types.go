// Package control implements the bang-bang control loop that holds a water
// bath at a setpoint by switching a pump and a heater.
//
// The decision logic (Decide) is pure. Controller wraps it with sampling,
// edge-triggered actuation, step timing and a lock-protected state that
// other goroutines may read and change through the accessor methods.
package control

import (
	"time"

	"github.com/sweeney/sousvide/internal/gpio"
	"github.com/sweeney/sousvide/internal/max31855"
	"github.com/sweeney/sousvide/internal/temp"
)

const (
	// HeatThreshold is how far below the setpoint the bath may fall before heating starts.
	HeatThreshold = 0.5

	// CoolThreshold is how far above the setpoint the bath may rise before heating stops.
	CoolThreshold = 0.0

	// StepPeriod is the target interval between steps.
	StepPeriod = time.Second
)

// maxPendingEvents bounds the undrained event queue; the oldest are dropped.
const maxPendingEvents = 256

// maxPendingSteps bounds the undrained step history, about an hour of steps.
const maxPendingSteps = 3600

// TemperatureSource yields thermocouple samples.
type TemperatureSource interface {
	ReadSample() (max31855.Sample, error)
}

// PinDriver drives one output line.
type PinDriver interface {
	Write(gpio.State) error
}

// Mode is the conceptual state of the loop.
type Mode string

const (
	ModeDisabled Mode = "DISABLED" // setpoint or reading unknown, everything off
	ModeIdle     Mode = "IDLE"     // pump on, heater off
	ModeHeating  Mode = "HEATING"  // pump on, heater on
)

// Actuators is the pair of output states computed by a step.
type Actuators struct {
	Pump   bool
	Heater bool
}

// Mode returns the conceptual state these outputs correspond to.
func (a Actuators) Mode() Mode {
	switch {
	case a.Heater:
		return ModeHeating
	case a.Pump:
		return ModeIdle
	default:
		return ModeDisabled
	}
}

// State is a consistent copy of the controller state.
type State struct {
	Setpoint temp.Reading
	Current  temp.Reading
	Pump     bool
	Heater   bool
}

// Mode returns the conceptual state.
func (s State) Mode() Mode {
	return Actuators{Pump: s.Pump, Heater: s.Heater}.Mode()
}

// EventType identifies a state transition.
type EventType string

const (
	EventPumpOn          EventType = "PUMP_ON"
	EventPumpOff         EventType = "PUMP_OFF"
	EventHeaterOn        EventType = "HEATER_ON"
	EventHeaterOff       EventType = "HEATER_OFF"
	EventSetpointChanged EventType = "SETPOINT_CHANGED"
	EventSetpointCleared EventType = "SETPOINT_CLEARED"
	EventReadingLost     EventType = "READING_LOST"
	EventReadingRestored EventType = "READING_RESTORED"
)

// Event is a transition recorded by the controller, with the state right after it.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
}

// StepRecord is the state left by one completed step.
type StepRecord struct {
	Timestamp time.Time // when the step started
	State     State
}

// EventCounts tracks actuator transitions since startup.
type EventCounts struct {
	PumpOn    int
	PumpOff   int
	HeaterOn  int
	HeaterOff int
}

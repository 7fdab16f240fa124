// Package status provides a thread-safe status tracker for the sousvide daemon.
// It is read by HTTP handlers and used to build MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sousvide/internal/control"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Thermocouple string // driver and device, e.g. "spidev:/dev/spidev0.0"
	GPIO         string // driver, e.g. "sysfs"
	PumpPin      int
	HeaterPin    int
	CalibrationF float64
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
	Influx       string // empty = disabled
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Control       control.State
	Counts        control.EventCounts
	Stepped       bool // at least one step has completed
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTPending   int    // messages held while disconnected
	MQTTDropped   uint64 // messages lost to a full outbox
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the control state and transition counts.
// Called from the run loop after every step.
func (t *Tracker) Update(state control.State, counts control.EventCounts) {
	t.mu.Lock()
	t.snap.Control = state
	t.snap.Counts = counts
	t.snap.Stepped = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffer sets the MQTT outbox counters.
func (t *Tracker) SetMQTTBuffer(pending int, dropped uint64) {
	t.mu.Lock()
	t.snap.MQTTPending = pending
	t.snap.MQTTDropped = dropped
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

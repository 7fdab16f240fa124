// Package mqtt provides MQTT publishing and setpoint commands with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/sousvide/internal/control"
	"github.com/sweeney/sousvide/internal/temp"
)

// DefaultTopicPrefix is the root of every topic used by the daemon.
const DefaultTopicPrefix = "sousvide"

// Topics are the MQTT topics derived from a prefix.
type Topics struct {
	Events   string // control events
	System   string // lifecycle events (retained)
	Setpoint string // incoming setpoint commands
}

// NewTopics builds the topic set under prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Events:   prefix + "/events",
		System:   prefix + "/system",
		Setpoint: prefix + "/setpoint/set",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a control event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event control.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active and how
// much has been held back while it was not.
type ConnectionStatus interface {
	IsConnected() bool
	BufferStats() BufferStats
}

// SetpointHandler receives setpoint commands. *control.Controller implements it.
type SetpointHandler interface {
	ChangeSetpoint(v float64)
	ClearSetpoint()
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	SousVide EventPayload `json:"sousvide"`
}

// EventPayload contains the control event details.
type EventPayload struct {
	Timestamp string       `json:"timestamp"`
	Event     string       `json:"event"`
	Mode      string       `json:"mode"`
	Pump      bool         `json:"pump"`
	Heater    bool         `json:"heater"`
	CurTemp   temp.Reading `json:"cur_temp"`
	SetTemp   temp.Reading `json:"set_temp"`
}

// FormatPayload creates the JSON payload for a control event.
func FormatPayload(event control.Event) ([]byte, error) {
	payload := Payload{
		SousVide: EventPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Mode:      string(event.State.Mode()),
			Pump:      event.State.Pump,
			Heater:    event.State.Heater,
			CurTemp:   event.State.Current,
			SetTemp:   event.State.Setpoint,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// SetpointCommand is a decoded message from the setpoint topic.
type SetpointCommand struct {
	Clear bool
	Value float64
}

// ParseSetpointCommand decodes a setpoint message. Accepted forms are a bare
// number ("135.5"), a JSON object ({"value": 135.5}), or an empty payload,
// "clear" or "null" to clear the setpoint.
func ParseSetpointCommand(payload []byte) (SetpointCommand, error) {
	s := strings.TrimSpace(string(payload))
	switch strings.ToLower(s) {
	case "", "clear", "null":
		return SetpointCommand{Clear: true}, nil
	}

	var v float64
	if strings.HasPrefix(s, "{") {
		var body struct {
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal([]byte(s), &body); err != nil {
			return SetpointCommand{}, fmt.Errorf("decode setpoint: %w", err)
		}
		if body.Value == nil {
			return SetpointCommand{Clear: true}, nil
		}
		v = *body.Value
	} else {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return SetpointCommand{}, fmt.Errorf("parse setpoint %q: %w", s, err)
		}
		v = f
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return SetpointCommand{}, fmt.Errorf("setpoint out of range: %v", v)
	}
	return SetpointCommand{Value: v}, nil
}

// Apply hands the command to h.
func (c SetpointCommand) Apply(h SetpointHandler) {
	if c.Clear {
		h.ClearSetpoint()
		return
	}
	h.ChangeSetpoint(c.Value)
}

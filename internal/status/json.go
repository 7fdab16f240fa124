package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sousvide/internal/temp"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Mode          string       `json:"mode"`
	Pump          bool         `json:"pump"`
	Heater        bool         `json:"heater"`
	CurTemp       temp.Reading `json:"cur_temp"`
	SetTemp       temp.Reading `json:"set_temp"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Pending   int    `json:"pending"`
	Dropped   uint64 `json:"dropped"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	PumpOn    int `json:"pump_on"`
	PumpOff   int `json:"pump_off"`
	HeaterOn  int `json:"heater_on"`
	HeaterOff int `json:"heater_off"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Thermocouple string  `json:"thermocouple"`
	GPIO         string  `json:"gpio"`
	PumpPin      int     `json:"pump_pin"`
	HeaterPin    int     `json:"heater_pin"`
	CalibrationF float64 `json:"calibration_f"`
	HeartbeatMs  int64   `json:"heartbeat_ms"`
	Broker       string  `json:"broker"`
	HTTPAddr     string  `json:"http_addr"`
	Influx       string  `json:"influx,omitempty"`
}

// ModeString returns the control mode, or UNKNOWN before the first step.
func ModeString(snap Snapshot) string {
	if !snap.Stepped {
		return "UNKNOWN"
	}
	return string(snap.Control.Mode())
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Mode:          ModeString(snap),
		Pump:          snap.Control.Pump,
		Heater:        snap.Control.Heater,
		CurTemp:       snap.Control.Current,
		SetTemp:       snap.Control.Setpoint,
		Ready:         snap.Stepped,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Pending:   snap.MQTTPending,
			Dropped:   snap.MQTTDropped,
		},
		Counts: CountsJSON{
			PumpOn:    snap.Counts.PumpOn,
			PumpOff:   snap.Counts.PumpOff,
			HeaterOn:  snap.Counts.HeaterOn,
			HeaterOff: snap.Counts.HeaterOff,
		},
		Config: ConfigJSON{
			Thermocouple: snap.Config.Thermocouple,
			GPIO:         snap.Config.GPIO,
			PumpPin:      snap.Config.PumpPin,
			HeaterPin:    snap.Config.HeaterPin,
			CalibrationF: snap.Config.CalibrationF,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			Influx:       snap.Config.Influx,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sousvide/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sous Vide</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Sous Vide</h1>

<h2>Bath</h2>
<table>
<tr><th>Mode</th><td id="mode">{{.Mode}}</td></tr>
<tr><th>Temperature</th><td id="cur-temp" class="{{if not .Control.Current.IsKnown}}unknown{{end}}">{{.Control.Current}}</td></tr>
<tr><th>Setpoint</th><td id="set-temp" class="{{if not .Control.Setpoint.IsKnown}}unknown{{end}}">{{.Control.Setpoint}}</td></tr>
<tr><th>Pump</th><td id="pump" class="{{if .Control.Pump}}on{{else}}off{{end}}">{{onOff .Control.Pump}}</td></tr>
<tr><th>Heater</th><td id="heater" class="{{if .Control.Heater}}on{{else}}off{{end}}">{{onOff .Control.Heater}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>MQTT outbox</th><td id="mqtt-outbox">{{.MQTTPending}} pending, {{.MQTTDropped}} dropped</td></tr>{{end}}
<tr><th>InfluxDB</th><td>{{if .Config.Influx}}{{.Config.Influx}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Pump ON</th><td>{{.Counts.PumpOn}}</td></tr>
<tr><th>Pump OFF</th><td>{{.Counts.PumpOff}}</td></tr>
<tr><th>Heater ON</th><td>{{.Counts.HeaterOn}}</td></tr>
<tr><th>Heater OFF</th><td>{{.Counts.HeaterOff}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Thermocouple</th><td>{{.Config.Thermocouple}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.GPIO}} (pump {{.Config.PumpPin}}, heater {{.Config.HeaterPin}})</td></tr>
<tr><th>Calibration</th><td>{{printf "%+g" .Config.CalibrationF}} &deg;F</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
<tr><th>Version</th><td>{{.Version}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/rest/state">REST</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Mode    string
		Version string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Mode:     status.ModeString(snap),
		Version:  Version(),
	}
	indexTmpl.Execute(w, data)
}

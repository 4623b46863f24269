package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/kiln-control/internal/control"
	"github.com/sweeney/kiln-control/internal/status"
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
	"temp": func(s status.Snapshot) string {
		if s.Sample.Time.IsZero() {
			return "no sample yet"
		}
		return fmt.Sprintf("%.2f °C", s.Sample.Celsius)
	},
	"stateClass": func(state control.LoopState) string {
		switch state {
		case control.StateRunning:
			return "running"
		case control.StateFaulted:
			return "faulted"
		case control.StateStopped:
			return "stopped"
		default:
			return "idle"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Kiln Control</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.faulted { color: red; font-weight: bold; }
.stopped { color: #888; }
.idle { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Kiln Control</h1>

<h2>Loop</h2>
<table>
<tr><th>State</th><td class="{{stateClass .State}}">{{.State}}</td></tr>
{{if .Reason}}<tr><th>Reason</th><td>{{.Reason}}</td></tr>{{end}}
<tr><th>Temperature</th><td>{{temp .Snapshot}}</td></tr>
<tr><th>Setpoint</th><td>{{printf "%.1f" .Setpoint}} °C</td></tr>
<tr><th>Power</th><td>{{printf "%.1f" .Power}} %</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}}</td></tr>
</table>

<h2>Tuning</h2>
<table>
<tr><th>Kp</th><td>{{.Params.Kp}}</td></tr>
<tr><th>Ki</th><td>{{.Params.Ki}}</td></tr>
<tr><th>Kd</th><td>{{.Params.Kd}}</td></tr>
<tr><th>Live reload</th><td>{{if .Params.TuningMode}}enabled{{else}}disabled{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Mode</th><td>{{.Config.Mode}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Smoothing</th><td>{{.Config.Smoothing}} samples</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tuning file</th><td>{{.Config.TuningPath}}</td></tr>
<tr><th>Relay pin</th><td>GPIO{{.Config.RelayPin}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}

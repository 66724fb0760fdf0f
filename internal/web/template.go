package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/callbutton/internal/status"
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
	"inputState": status.InputStateString,
	"onOff": func(on bool) string {
		if on {
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
<meta http-equiv="refresh" content="5">
<title>Call Button {{.Config.DeviceID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.alarm { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Call Button {{.Config.DeviceID}}</h1>

<h2>State</h2>
<table>
<tr><th>Emergency</th><td id="emergency" class="{{if .Emergency}}alarm{{else}}off{{end}}">{{if .Emergency}}ACTIVE{{else}}clear{{end}}</td></tr>
<tr><th>Battery</th><td>{{.Battery}}%</td></tr>
{{range .Inputs}}<tr><th>{{.Name}} ({{.Role}})</th><td class="{{if .Active}}on{{else}}off{{end}}">{{inputState .Active}}</td></tr>
{{end}}</table>

<h2>LEDs</h2>
<table>
<tr><th>Connection</th><td class="{{if .LEDs.Connection}}on{{else}}off{{end}}">{{onOff .LEDs.Connection}}</td></tr>
<tr><th>Battery</th><td class="{{if .LEDs.Battery}}on{{else}}off{{end}}">{{onOff .LEDs.Battery}}</td></tr>
<tr><th>Emergency</th><td class="{{if .LEDs.Emergency}}on{{else}}off{{end}}">{{onOff .LEDs.Emergency}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Connect attempts</th><td>{{.ReconnectAttempts}}</td></tr>
<tr><th>Status topic</th><td>{{.Config.StatusTopic}}</td></tr>
<tr><th>Event topic</th><td>{{.Config.EventTopic}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Events</h2>
<table>
<tr><th>SOS</th><td>{{.Counts.SOS}}</td></tr>
<tr><th>ASSIST</th><td>{{.Counts.Assist}}</td></tr>
<tr><th>GREEN_BTN</th><td>{{.Counts.Green}}</td></tr>
<tr><th>BLUE_BTN</th><td>{{.Counts.Blue}}</td></tr>
{{with .LastEvent}}<tr><th>Last</th><td id="last-event">{{.Type}} {{.Status}} at {{.At.UTC.Format "2006-01-02T15:04:05Z"}}{{if not .Published}} (dropped: {{.Error}}){{end}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Reconnect</th><td>{{.Config.ReconnectMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
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

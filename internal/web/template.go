package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/reflex-trigger/internal/status"
	"github.com/sweeney/reflex-trigger/internal/trigger"
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
	"phaseOrUnknown": func(p status.Phase) string {
		if p == "" {
			return "UNKNOWN"
		}
		return string(p)
	},
	"lastSeen": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Reflex Trigger</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.startup { color: orange; }
.stopped { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Reflex Trigger</h1>

<h2>State</h2>
<table>
<tr><th>Phase</th><td id="phase" class="{{if eq .Phase "RUNNING"}}running{{else if eq .Phase "STARTUP"}}startup{{else}}stopped{{end}}">{{phaseOrUnknown .Phase}}</td></tr>
<tr><th>Detections</th><td>{{.TotalConfirmed}}</td></tr>
</table>

<h2>Channels</h2>
<table>
<tr><th>Input</th><td>Output</td><td>Confirmed</td><td>Rejected</td><td>Last</td></tr>
{{range .Rows}}<tr><th>{{.ID}}</th><td>{{.Output}}</td><td>{{.Confirmed}}</td><td>{{.Rejected}}</td><td>{{lastSeen .LastConfirmed}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Chip</th><td>{{.Config.Chip}}</td></tr>
<tr><th>Inputs</th><td>{{.Config.DetectPins}}</td></tr>
<tr><th>Outputs</th><td>{{.Config.HitPins}}</td></tr>
<tr><th>Indicator</th><td>{{.Config.LEDPin}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type channelRow struct {
	ID     string
	Output string
	status.ChannelStats
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has methods but the template needs plain fields.
	rows := make([]channelRow, 0, len(snap.Channels))
	for i, c := range snap.Channels {
		ch := trigger.Channel(i)
		rows = append(rows, channelRow{ID: ch.String(), Output: trigger.Route(ch).String(), ChannelStats: c})
	}
	data := struct {
		status.Snapshot
		Uptime         time.Duration
		TotalConfirmed int
		Rows           []channelRow
	}{
		Snapshot:       snap,
		Uptime:         snap.Uptime(),
		TotalConfirmed: snap.TotalConfirmed(),
		Rows:           rows,
	}
	indexTmpl.Execute(w, data)
}

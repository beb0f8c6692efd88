package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/quickshifter/internal/logic"
	"github.com/sweeney/quickshifter/internal/status"
)

// page is the index template input. Snapshot has an Uptime method but the
// template needs a plain field.
type page struct {
	status.Snapshot
	Uptime  time.Duration
	Records []logic.CutRecord
}

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
	"ms": func(d time.Duration) int64 { return d.Milliseconds() },
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("15:04:05.000")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Quickshifter</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.locked { color: red; font-weight: bold; }
.unlocked { color: green; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Quickshifter</h1>

<h2>Engine</h2>
<table>
<tr><th>RPM</th><td id="rpm">{{.Cut.RPM}}</td></tr>
<tr><th>Mode</th><td>{{.Mode}}</td></tr>
<tr><th>Controller</th><td>{{.Cut.State}} ({{.Cut.Reason}})</td></tr>
<tr><th>Can cut</th><td id="can-cut">{{if .Cut.CanCut}}yes{{else}}no{{end}}</td></tr>
<tr><th>Last cut</th><td>{{.Cut.LastCutMs}}ms at {{clock .Cut.LastCutAt}}</td></tr>
<tr><th>Hold-off left</th><td>{{ms .Cut.HoldoffRemaining}}ms</td></tr>
<tr><th>Shift sensor</th><td>{{if .TriggerRaw}}pressed{{else}}released{{end}}</td></tr>
</table>

<h2>Lock</h2>
<table>
<tr><th>Enabled</th><td>{{if .Lock.Enabled}}yes{{else}}no{{end}}</td></tr>
<tr><th>State</th><td class="{{if .Lock.Locked}}locked{{else}}unlocked{{end}}">{{if .Lock.Locked}}LOCKED{{else}}unlocked{{end}}</td></tr>
{{if .Lock.Locked}}<tr><th>Stage</th><td>{{.Lock.Stage}} ({{.Lock.SeqLen}} bits)</td></tr>
<tr><th>Retries</th><td>{{.Lock.Retries}}</td></tr>
{{if .Lock.Frozen}}<tr><th>Frozen</th><td class="locked">{{.Lock.Frozen}}</td></tr>{{end}}{{end}}
</table>

<h2>Recent cuts</h2>
{{if .Records}}<table>
<tr><th>Time</th><th>RPM</th><th>Cut</th><th>Line</th></tr>
{{range .Records}}<tr><td>{{clock .Timestamp}}</td><td>{{.RPM}}</td><td>{{.CutMs}}ms{{if .Backfire}} bf{{end}}</td><td>{{.Line}}</td></tr>
{{end}}</table>{{else}}<p>none</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
{{if .Config.ConfigPath}}<tr><th>Config</th><td>{{.Config.ConfigPath}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/log">Log</a> | <a href="/api/config">Config</a></p>
<script>
(function() {
  var rpm = document.getElementById("rpm");
  var canCut = document.getElementById("can-cut");
  setInterval(function() {
    fetch("/api/rpm").then(function(r) { return r.json(); }).then(function(d) {
      rpm.textContent = d.rpm;
      canCut.textContent = d.can_cut ? "yes" : "no";
    }).catch(function() {});
  }, 500);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, p page) {
	indexTmpl.Execute(w, p)
}

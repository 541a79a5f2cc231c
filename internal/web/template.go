package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/boiler-controller/internal/status"
	"github.com/sweeney/boiler-controller/internal/store"
)

// indexPage is the data rendered by the index template.
type indexPage struct {
	HasSample bool
	Latest    store.Sample
	Snapshot  *status.Snapshot // nil without a running controller
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
	"stamp": func(t time.Time) string {
		return t.UTC().Format(store.TimeLayout[:19])
	},
	"celsius": func(v float64) string {
		return fmt.Sprintf("%.2f °C", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Boiler Controller</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.stopped { color: red; }
.connected { color: green; }
.disconnected { color: red; }
#temp { font-size: 2em; }
pre { font-size: 0.8em; overflow-x: auto; }
</style>
</head>
<body>
<h1>Boiler Controller</h1>

<h2>Now</h2>
<table>
{{if .HasSample}}<tr><th>Temperature</th><td id="temp">{{celsius .Latest.Temperature}}</td></tr>
<tr><th>Recorded</th><td id="time">{{stamp .Latest.Timestamp}}</td></tr>
<tr><th>Duty cycle</th><td id="duty">{{printf "%.1f" .Latest.DutyCycle}}%</td></tr>
{{else}}<tr><th>Temperature</th><td id="temp">no samples yet</td></tr>{{end}}
</table>
{{with .Snapshot}}
<h2>Controller</h2>
<table>
<tr><th>Phase</th><td class="{{if eq (printf "%s" .Phase) "RUNNING"}}running{{else}}stopped{{end}}">{{.Phase}}</td></tr>
<tr><th>Sensor</th><td>{{.SensorID}}</td></tr>
<tr><th>Set point</th><td>{{celsius .Config.SetPoint}}</td></tr>
<tr><th>Gains</th><td>K_p={{.Config.Kp}} K_i={{.Config.Ki}} K_d={{.Config.Kd}}</td></tr>
<tr><th>Integral limits</th><td>max_i={{.Config.MaxIntegral}} max_error_accumulation={{.Config.MaxErrorAccumulation}}</td></tr>
{{if .HasSample}}<tr><th>Last terms</th><td>error={{printf "%.3f" .Last.Proportional}} integral={{printf "%.3f" .Last.Integral}} derivative={{printf "%.3f" .Last.Derivative}}</td></tr>{{end}}
<tr><th>Cycles</th><td>{{.Counts.Cycles}} ({{.Counts.Skipped}} skipped, {{.Counts.StoreFaults}} store faults)</td></tr>
{{if .Fault}}<tr><th>Fault</th><td class="stopped">{{.Fault}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample period</th><td>{{.Config.SamplePeriodMs}}ms</td></tr>
<tr><th>PWM</th><td>{{.Config.PWMFrequency}} Hz on pin {{.Config.RelayPin}}</td></tr>
<tr><th>Retention</th><td>{{.Config.RetentionCapacity}} samples</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Config.Broker}}{{if .MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Config.Broker}}){{else}}disabled{{end}}</td></tr>
</table>
{{end}}
<h2>Last hour</h2>
<pre id="plot"></pre>

<p><a href="/status">status</a> · <a href="/index.json">index.json</a> · <a href="/history.json">history.json</a> · <a href="/temps.txt">temps.txt</a> · <a href="/metrics">metrics</a></p>
<script>
(function() {
  var temp = document.getElementById("temp");
  var time = document.getElementById("time");
  var plot = document.getElementById("plot");

  function refresh() {
    fetch("/status").then(function(r) { return r.ok ? r.json() : null; }).then(function(s) {
      if (!s) return;
      temp.textContent = s.temp.toFixed(2) + " °C";
      if (time) time.textContent = s.time.substring(0, 19);
    }).catch(function() {});
    fetch("/temps.txt?window=1h").then(function(r) { return r.text(); }).then(function(t) {
      plot.textContent = t;
    }).catch(function() {});
  }

  refresh();
  setInterval(refresh, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, page indexPage) error {
	// Snapshot has an Uptime method; the template wants a Duration field.
	type snapshotView struct {
		status.Snapshot
		Uptime time.Duration
	}
	data := struct {
		HasSample bool
		Latest    store.Sample
		Snapshot  *snapshotView
	}{
		HasSample: page.HasSample,
		Latest:    page.Latest,
	}
	if page.Snapshot != nil {
		data.Snapshot = &snapshotView{Snapshot: *page.Snapshot, Uptime: page.Snapshot.Uptime()}
	}
	return indexTmpl.Execute(w, data)
}

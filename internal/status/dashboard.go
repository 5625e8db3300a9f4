package status

import (
	"html/template"
	"net/http"
	"time"

	"github.com/aleister1102/webwatch/internal/statestore"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="10">
<title>webwatch</title>
<style>
body { font-family: sans-serif; margin: 2rem; background: #f7f7f7; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; width: 100%; background: #fff; margin-bottom: 2rem; }
th, td { border: 1px solid #ddd; padding: 0.4rem 0.7rem; text-align: left; font-size: 0.85rem; }
th { background: #eee; }
tr.ok td.state { color: #1a7f37; }
tr.error td.state { color: #cf222e; background: #ffefef; }
tr.pending td.state { color: #888; }
.muted { color: #888; }
</style>
</head>
<body>
<h1>webwatch — {{.WatchCount}} watches, up {{.Uptime}}</h1>
<table>
<tr><th>Name</th><th>ID</th><th>URL</th><th>Schedule</th><th>Status</th><th>Last check</th><th>Changes</th><th>Errors</th></tr>
{{range .Watches}}
<tr class="{{.RowClass}}">
<td>{{.Name}}</td>
<td class="muted">{{.ID}}</td>
<td><a href="{{.URL}}">{{.URL}}</a></td>
<td>{{.Schedule}}</td>
<td class="state">{{.State}}</td>
<td>{{.LastCheck}}</td>
<td>{{.Changes}}</td>
<td>{{.ErrorCount}}</td>
</tr>
{{end}}
</table>
{{if .History}}
<h1>Recent runs</h1>
<table>
<tr><th>Watch</th><th>Started</th><th>Duration</th><th>Result</th><th>Changes</th><th>Error</th></tr>
{{range .History}}
<tr class="{{if .Success}}ok{{else}}error{{end}}">
<td>{{.WatchName}}</td>
<td>{{.StartedAt.Format "2006-01-02 15:04:05"}}</td>
<td>{{.Duration}}</td>
<td class="state">{{if .Success}}ok{{else}}failed{{end}}</td>
<td>{{.ChangeCount}}</td>
<td class="muted">{{.Error}}</td>
</tr>
{{end}}
</table>
{{end}}
</body>
</html>`))

type dashboardRow struct {
	watchView
	RowClass string
	State    string
}

type historyRow struct {
	statestore.HistoryEntry
	Duration time.Duration
}

type dashboardData struct {
	WatchCount int
	Uptime     string
	Watches    []dashboardRow
	History    []historyRow
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	views := s.watchViews()

	rows := make([]dashboardRow, 0, len(views))
	for _, v := range views {
		row := dashboardRow{watchView: v}
		switch {
		case !v.Checked:
			row.RowClass, row.State = "pending", "pending"
		case v.Success:
			row.RowClass, row.State = "ok", "ok"
		default:
			row.RowClass, row.State = "error", "failed"
		}
		rows = append(rows, row)
	}

	data := dashboardData{
		WatchCount: len(rows),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Watches:    rows,
	}

	if s.history != nil {
		if entries, err := s.history.Recent(20); err == nil {
			for _, e := range entries {
				data.History = append(data.History, historyRow{
					HistoryEntry: e,
					Duration:     e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond),
				})
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render dashboard")
	}
}

package report

import (
	"bytes"
	"html/template"
	"io"

	"github.com/shopspring/decimal"
)

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"fixed": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(htmlTemplate))

// WriteHTML renders the report as a standalone HTML page.
func WriteHTML(w io.Writer, r Report) error {
	return htmlTmpl.Execute(w, struct {
		R        Report
		Sections []string
	}{R: r, Sections: SectionOrder})
}

// HTML renders the report to a string.
func HTML(r Report) (string, error) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var htmlTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Evidence report {{.R.Info.ProfileID}}</title>
  <style>
    body { font-family: 'Helvetica Neue', Arial, sans-serif; margin: 24px; color: #0f172a; font-size: 12px; }
    h1 { margin: 0 0 8px; }
    h2 { border-bottom: 1px solid #e2e8f0; padding-bottom: 4px; margin-top: 24px; }
    .entry { border: 1px solid #e2e8f0; border-radius: 6px; padding: 8px; margin-bottom: 8px; }
    .gap { background: #fef3c7; border: 1px dashed #d97706; padding: 6px; margin-bottom: 8px; }
    .meta { color: #475569; }
    .rev { color: #7c2d12; }
    table { width: 100%; border-collapse: collapse; }
    th, td { border-bottom: 1px solid #e2e8f0; padding: 4px; text-align: left; }
  </style>
</head>
<body>
  <h1>Evidence report</h1>

  <h2>{{index .Sections 0}}</h2>
  <table>
    <tr><th>Profile</th><td>{{.R.Info.ProfileID}}</td></tr>
    <tr><th>Generated</th><td>{{.R.Info.GeneratedAt}}</td></tr>
    <tr><th>Period</th><td>{{.R.Info.Window}}</td></tr>
    <tr><th>Evidence mode</th><td>{{.R.Info.EvidenceMode}}</td></tr>
  </table>

  <h2>{{index .Sections 1}}</h2>
  {{with .R.Summary}}
  <table>
    <tr><th>Daily logs</th><td>{{.DailyLogs}}</td><th>Activity logs</th><td>{{.ActivityLogs}}</td></tr>
    <tr><th>Finalized</th><td>{{.Finalized}}</td><th>Drafts</th><td>{{.Drafts}}</td></tr>
    <tr><th>Revisions</th><td>{{.Revisions}}</td><th>Evidence-stamped</th><td>{{.Stamped}}</td></tr>
    <tr><th>Retrospective</th><td>{{.Retrospective}}</td><th>Gaps</th><td>{{.Gaps}} ({{.UnexplainedGaps}} unexplained)</td></tr>
    {{if .FirstDate}}<tr><th>Records span</th><td colspan="3">{{.FirstDate}} to {{.LastDate}}</td></tr>{{end}}
  </table>
  {{end}}

  <h2>{{index .Sections 2}}</h2>
  {{range .R.Entries}}
    {{if .Gap}}
    <div class="gap">{{.Gap.Marker}}</div>
    {{else}}
    <div class="entry">
      <strong>{{.EventDate}} {{.Kind}}</strong> <span class="meta">[{{.ID}}] {{.Status}}</span>
      <div class="meta">created {{.CreatedAt}} ({{.DelayLabel}}), updated {{.UpdatedAt}}</div>
      {{if .EvidenceTimestamp}}<div class="meta">evidence timestamp {{.EvidenceTimestamp}}</div>{{end}}
      {{if .FinalizedAt}}<div class="meta">finalized {{.FinalizedAt}}</div>{{end}}
      {{if .Retrospective}}<div class="meta">retrospective: {{.Retrospective}}</div>{{end}}
      <ul>{{range .Details}}<li>{{.}}</li>{{end}}</ul>
      {{range .Revisions}}<div class="rev">revision {{.CreatedAt}} {{.FieldPath}}: {{.Original}} &rarr; {{.New}} ({{.Reason}})</div>{{end}}
    </div>
    {{end}}
  {{else}}
    <p>No records.</p>
  {{end}}

  <h2>{{index .Sections 3}}</h2>
  {{if or .R.Medications .R.Appointments}}
  <ul>
    {{range .R.Medications}}<li>Medication: {{.Name}}{{if .Dose}}, {{.Dose}}{{end}}{{if .Frequency}}, {{.Frequency}}{{end}}{{if .StartDate}}, from {{.StartDate}}{{end}}{{if .EndDate}} until {{.EndDate}}{{end}}{{if .Notes}} ({{.Notes}}){{end}}</li>{{end}}
    {{range .R.Appointments}}<li>Appointment: {{.Date}} {{.Provider}}{{if .Purpose}}, {{.Purpose}}{{end}}{{if .Notes}} ({{.Notes}}){{end}}</li>{{end}}
  </ul>
  {{else}}
  <p>None recorded.</p>
  {{end}}

  <h2>{{index .Sections 4}}</h2>
  <table>
    <tr><th>Series</th><th>n</th><th>Mean</th><th>Median</th><th>Std dev</th><th>0-3</th><th>4-6</th><th>7-10</th></tr>
    {{range .R.Metrics.Series}}
    <tr><td>{{.Name}}</td><td>{{.Count}}</td><td>{{fixed .Mean}}</td><td>{{fixed .Median}}</td><td>{{fixed .StdDev}}</td>{{range .Histogram}}<td>{{.Count}}</td>{{end}}</tr>
    {{end}}
  </table>

  <h2>{{index .Sections 5}}</h2>
  <ul>{{range .R.Narratives}}<li>{{.Text}}</li>{{end}}</ul>

  <h2>{{index .Sections 6}}</h2>
  <p>{{.R.Disclaimer}}</p>
</body>
</html>
`

package export

import (
	"bytes"
	"html/template"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/models/reports"
)

var htmlReportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, Helvetica, sans-serif; margin: 24px; color: #222; }
h1 { font-size: 20px; margin-bottom: 4px; }
p.meta { color: #666; margin-top: 0; }
table { border-collapse: collapse; width: 100%; margin-top: 12px; }
th, td { border: 1px solid #ccc; padding: 6px 8px; font-size: 13px; text-align: left; }
th { background: #f0f0f0; }
tr:nth-child(even) td { background: #fafafa; }
dl.summary { margin-top: 16px; }
dl.summary dt { font-weight: bold; float: left; clear: left; width: 140px; }
dl.summary dd { margin-left: 150px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{.Meta}}</p>
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
<dl class="summary">
{{range .Summary}}<dt>{{index . 0}}</dt><dd>{{index . 1}}</dd>
{{end}}</dl>
</body>
</html>
`))

type htmlReportData struct {
	Title   string
	Meta    string
	Headers []string
	Rows    [][]string
	Summary [][2]string
}

// renderHTML writes a self-contained page: inline styles, no external
// assets, openable directly from disk.
func renderHTML(table Table, summary *reports.SummaryReport, title, meta string, generatedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := htmlReportTemplate.Execute(&buf, htmlReportData{
		Title:   title,
		Meta:    meta,
		Headers: table.Headers,
		Rows:    table.Rows,
		Summary: summaryLines(summary, generatedAt),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

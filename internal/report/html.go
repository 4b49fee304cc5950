package report

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/telhawk-systems/tracelens/internal/risk"
)

// HTMLFileName is the name of the rendered report inside the report directory.
const HTMLFileName = "tracelens_report.html"

var htmlTemplate = template.Must(template.New("report").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>TraceLens Report</title>
<style>
body { background:#0f172a; color:#e5e7eb; font-family:Segoe UI, Arial; padding:30px; }
.card { background:#111827; padding:24px; border-radius:16px; max-width:900px; margin:auto; }
.score { font-size:42px; font-weight:bold; margin: 10px 0 18px 0; }
.info { color:#94a3b8; }
.low { color:#22c55e; }
.medium { color:#f59e0b; }
.high { color:#ef4444; }
pre { background:#020617; padding:14px; border-radius:12px; white-space:pre-wrap; }
</style>
</head>
<body>
<div class="card">
<h1>TraceLens Report</h1>
<div class="score {{.Class}}">Risk Score: {{.Score}}/100 ({{.Label}})</div>
<pre>{{.Findings}}</pre>
</div>
</body>
</html>
`))

type htmlData struct {
	Class    string
	Score    int
	Label    risk.Label
	Findings string
}

// RenderHTML writes the findings as a standalone HTML document.
func RenderHTML(w io.Writer, res risk.Result, lines []string) error {
	return htmlTemplate.Execute(w, htmlData{
		Class:    strings.ToLower(string(res.Label)),
		Score:    res.Score,
		Label:    res.Label,
		Findings: strings.Join(lines, "\n"),
	})
}

// WriteHTML renders the report into dir, creating it if needed, and returns
// the written path. Any failure means the requested report does not exist.
func WriteHTML(dir string, res risk.Result, lines []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(dir, HTMLFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := RenderHTML(f, res, lines); err != nil {
		f.Close()
		return "", fmt.Errorf("render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/tracelens/internal/risk"
)

var meta = Meta{
	ScanID:    "scan-1",
	Target:    "/evidence/dc01",
	StartedAt: time.Date(2025, 3, 2, 8, 30, 0, 0, time.UTC),
}

func suspectedResult() risk.Result {
	return risk.Result{
		Counts:      map[int]int{4625: 25, 4624: 3, 1102: 0, 4720: 1},
		TotalEvents: 40,
		BruteForce: &risk.Verdict{
			EventID:     4625,
			Suspected:   true,
			WindowCount: 25,
			Threshold:   20,
			Window:      10 * time.Minute,
		},
		TopTargetedUser: &risk.Frequency{Value: "alice", Count: 25},
		TopSourceIP:     &risk.Frequency{Value: "10.0.0.5", Count: 25},
		Score:           45,
		Label:           risk.LabelLow,
	}
}

func TestLines(t *testing.T) {
	want := []string{
		"[+] TraceLens scan @ 2025-03-02 08:30:00",
		"[+] Target: /evidence/dc01",
		"",
		"RISK SCORE: 45/100 (LOW)",
		"Total events parsed: 40",
		"Event counts:",
		"- 4624: 3",
		"- 4625: 25",
		"- 4720: 1",
		"",
		"Brute-force: SUSPECTED | 4625 in last 10 min = 25 (threshold 20)",
		"Top targeted user: alice (25)",
		"Top source IP: 10.0.0.5 (25)",
	}
	assert.Equal(t, want, Lines(suspectedResult(), meta))
}

func TestLines_NoFailedLogons(t *testing.T) {
	res := risk.Result{Counts: map[int]int{4624: 0}, Label: risk.LabelInfo}

	lines := Lines(res, meta)
	assert.Equal(t, "Event counts:", lines[len(lines)-2])
	assert.Equal(t, "", lines[len(lines)-1])
	for _, l := range lines {
		assert.NotContains(t, l, "Brute-force")
	}
}

func TestLines_MissingTallies(t *testing.T) {
	res := suspectedResult()
	res.BruteForce.Suspected = false
	res.TopTargetedUser = nil
	res.TopSourceIP = nil

	lines := Lines(res, meta)
	assert.Contains(t, lines, "Brute-force: NOT SUSPECTED | 4625 in last 10 min = 25 (threshold 20)")
	assert.Contains(t, lines, "Top targeted user: (not present in events)")
	assert.Contains(t, lines, "Top source IP: (not present in events)")
}

func TestWindowText(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{10 * time.Minute, "10 min"},
		{90 * time.Minute, "90 min"},
		{90 * time.Second, "1m30s"},
		{0, "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, windowText(tt.in))
		})
	}
}

func TestRenderHTML(t *testing.T) {
	res := suspectedResult()
	res.TopTargetedUser = &risk.Frequency{Value: "<script>alert(1)</script>", Count: 25}

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, res, Lines(res, meta)))

	html := buf.String()
	assert.Contains(t, html, `<div class="score low">Risk Score: 45/100 (LOW)</div>`)
	assert.Contains(t, html, "Brute-force: SUSPECTED")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestWriteHTML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")

	path, err := WriteHTML(dir, suspectedResult(), Lines(suspectedResult(), meta))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, HTMLFileName, filepath.Base(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "<!doctype html>"))
}

func TestWriteHTML_Unwritable(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := WriteHTML(filepath.Join(blocker, "reports"), suspectedResult(), nil)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, suspectedResult()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 45, decoded["score"])
	assert.Equal(t, "LOW", decoded["label"])
	assert.Contains(t, buf.String(), "  value: alice")
}

func TestWriteLinesAndJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLines(&buf, []string{"a", "", "b"}))
	assert.Equal(t, "a\n\nb\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, map[string]int{"score": 30}))
	assert.Equal(t, "{\n  \"score\": 30\n}\n", buf.String())
}

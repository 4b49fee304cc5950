package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/tracelens/internal/risk"
)

func newTestPrinter() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(&out, &errOut), &out, &errOut
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name     string
		call     func(p *Printer)
		toErr    bool
		contains []string
	}{
		{"success", func(p *Printer) { p.Success("Created %d items", 5) }, false, []string{"✓", "Created 5 items"}},
		{"info", func(p *Printer) { p.Info("wrote %s", "report.html") }, false, []string{"wrote report.html"}},
		{"error", func(p *Printer) { p.Error("failed: %v", "boom") }, true, []string{"✗", "failed: boom"}},
		{"warn", func(p *Printer) { p.Warn("history unavailable") }, true, []string{"⚠", "history unavailable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out, errOut := newTestPrinter()
			tt.call(p)

			got, other := out.String(), errOut.String()
			if tt.toErr {
				got, other = other, got
			}
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			assert.Empty(t, other)
		})
	}
}

func TestJSON(t *testing.T) {
	p, out, _ := newTestPrinter()
	require.NoError(t, p.JSON(map[string]int{"score": 30}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 30, got["score"])
	assert.Contains(t, out.String(), "\n  ")
}

func TestReport(t *testing.T) {
	p, out, _ := newTestPrinter()
	lines := []string{"[+] Target: /logs", "", "RISK SCORE: 30/100 (LOW)", "Brute-force: SUSPECTED | 4625 in last 10 min = 21 (threshold 20)"}
	p.Report(lines, risk.LabelLow)

	got := out.String()
	for _, l := range lines {
		assert.Contains(t, got, l)
	}
	assert.Equal(t, len(lines), strings.Count(got, "\n"))
}

func TestLabelColor(t *testing.T) {
	for _, label := range []risk.Label{risk.LabelInfo, risk.LabelLow, risk.LabelMedium, risk.LabelHigh} {
		assert.NotNil(t, LabelColor(label), label)
	}
}

func TestTable(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })

	table := NewTable([]string{"SCAN", "SCORE"})
	table.AddRow([]string{"abc", "30"})
	table.AddRow([]string{"a-much-longer-id", "100", "extra"})

	var buf bytes.Buffer
	table.Render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SCAN"))
	assert.Equal(t, strings.Repeat("-", len("a-much-longer-id"))+"  -----  ", lines[1])
	assert.NotContains(t, buf.String(), "extra")
}

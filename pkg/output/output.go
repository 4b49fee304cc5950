// Package output prints human-facing CLI messages, scan reports and tables.
// Colour is applied only when the destination is a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/telhawk-systems/tracelens/internal/risk"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

// Printer writes messages to an output and an error stream.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New returns a Printer on the given streams.
func New(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

// Std returns a Printer on stdout and stderr.
func Std() *Printer {
	return New(os.Stdout, os.Stderr)
}

func (p *Printer) Success(format string, a ...any) {
	successColor.Fprintf(p.Out, "✓ "+format+"\n", a...)
}

func (p *Printer) Error(format string, a ...any) {
	errorColor.Fprintf(p.Err, "✗ "+format+"\n", a...)
}

func (p *Printer) Info(format string, a ...any) {
	infoColor.Fprintf(p.Out, format+"\n", a...)
}

func (p *Printer) Warn(format string, a ...any) {
	warnColor.Fprintf(p.Err, "⚠ "+format+"\n", a...)
}

func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// LabelColor returns the colour used for a risk label.
func LabelColor(label risk.Label) *color.Color {
	switch label {
	case risk.LabelHigh:
		return color.New(color.FgRed, color.Bold)
	case risk.LabelMedium:
		return color.New(color.FgYellow, color.Bold)
	case risk.LabelLow:
		return color.New(color.FgCyan, color.Bold)
	default:
		return color.New(color.FgGreen)
	}
}

// Report prints report lines, highlighting the score and a suspected
// brute-force verdict.
func (p *Printer) Report(lines []string, label risk.Label) {
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "RISK SCORE:"):
			LabelColor(label).Fprintln(p.Out, line)
		case strings.HasPrefix(line, "Brute-force: SUSPECTED"):
			errorColor.Fprintln(p.Out, line)
		case strings.HasPrefix(line, "[+]"):
			infoColor.Fprintln(p.Out, line)
		default:
			fmt.Fprintln(p.Out, line)
		}
	}
}

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers []string) *Table {
	return &Table{
		headers: headers,
		rows:    [][]string{},
	}
}

func (t *Table) AddRow(row []string) {
	t.rows = append(t.rows, row)
}

// Render writes the table to w. Cells beyond the header count are dropped.
func (t *Table) Render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, header := range t.headers {
		headerColor.Fprintf(w, "%-*s  ", widths[i], header)
	}
	fmt.Fprintln(w)

	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(w)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}

package report

import (
	"fmt"
	"slices"
	"time"

	"github.com/telhawk-systems/tracelens/internal/risk"
)

// Meta describes the scan a result came from.
type Meta struct {
	ScanID    string    `json:"scan_id" yaml:"scan_id"`
	Target    string    `json:"target" yaml:"target"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
}

// Lines renders the human-readable findings. It only formats res; nothing is
// recomputed.
func Lines(res risk.Result, meta Meta) []string {
	lines := []string{
		fmt.Sprintf("[+] TraceLens scan @ %s", meta.StartedAt.Format(time.DateTime)),
		fmt.Sprintf("[+] Target: %s", meta.Target),
		"",
		fmt.Sprintf("RISK SCORE: %d/100 (%s)", res.Score, res.Label),
		fmt.Sprintf("Total events parsed: %d", res.TotalEvents),
		"Event counts:",
	}

	ids := make([]int, 0, len(res.Counts))
	for id := range res.Counts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if n := res.Counts[id]; n > 0 {
			lines = append(lines, fmt.Sprintf("- %d: %d", id, n))
		}
	}
	lines = append(lines, "")

	if v := res.BruteForce; v != nil {
		lines = append(lines,
			fmt.Sprintf("Brute-force: %s | %d in last %s = %d (threshold %d)",
				v.Status(), v.EventID, windowText(v.Window), v.WindowCount, v.Threshold),
			topLine("Top targeted user", res.TopTargetedUser),
			topLine("Top source IP", res.TopSourceIP),
		)
	}

	return lines
}

func topLine(title string, f *risk.Frequency) string {
	if f == nil {
		return title + ": (not present in events)"
	}
	return fmt.Sprintf("%s: %s (%d)", title, f.Value, f.Count)
}

func windowText(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%d min", int(d/time.Minute))
	}
	return d.String()
}

package risk

import (
	"slices"
	"time"
)

// Label is the severity band a score falls into.
type Label string

const (
	LabelInfo   Label = "INFO"
	LabelLow    Label = "LOW"
	LabelMedium Label = "MEDIUM"
	LabelHigh   Label = "HIGH"
)

const (
	minScore = 0
	maxScore = 100
)

// Verdict is the outcome of brute-force detection.
type Verdict struct {
	EventID     int           `json:"event_id" yaml:"event_id"`
	Suspected   bool          `json:"suspected" yaml:"suspected"`
	WindowCount int           `json:"window_count" yaml:"window_count"`
	Threshold   int           `json:"threshold" yaml:"threshold"`
	Window      time.Duration `json:"window" yaml:"window"`
	Latest      time.Time     `json:"latest" yaml:"latest"`
}

// Status renders the verdict the way reports print it.
func (v *Verdict) Status() string {
	if v.Suspected {
		return "SUSPECTED"
	}
	return "NOT SUSPECTED"
}

// Result is the outcome of a scan. It is derived only from the event stream
// and the policy and is not modified after it is returned.
type Result struct {
	Counts          map[int]int `json:"counts" yaml:"counts"`
	TotalEvents     int         `json:"total_events" yaml:"total_events"`
	BruteForce      *Verdict    `json:"brute_force,omitempty" yaml:"brute_force,omitempty"`
	TopTargetedUser *Frequency  `json:"top_targeted_user,omitempty" yaml:"top_targeted_user,omitempty"`
	TopSourceIP     *Frequency  `json:"top_source_ip,omitempty" yaml:"top_source_ip,omitempty"`
	Score           int         `json:"score" yaml:"score"`
	Label           Label       `json:"label" yaml:"label"`
}

// BruteForceSuspected reports whether a verdict exists and is positive.
func (r Result) BruteForceSuspected() bool {
	return r.BruteForce != nil && r.BruteForce.Suspected
}

// Score adds the weight of every signal seen at least once plus the
// brute-force weight, clamped to [0,100]. Raw failed-logon counts only
// matter through the brute-force verdict.
func Score(counts map[int]int, bruteForce bool, p Policy) int {
	ids := make([]int, 0, len(p.Weights))
	for id := range p.Weights {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	score := 0
	for _, id := range ids {
		if counts[id] > 0 {
			score += p.Weights[id]
		}
	}
	if bruteForce {
		score += p.BruteForceWeight
	}
	return clamp(score, minScore, maxScore)
}

// LabelFor maps a score to its label.
func LabelFor(score int) Label {
	switch {
	case score >= 80:
		return LabelHigh
	case score >= 50:
		return LabelMedium
	case score >= 20:
		return LabelLow
	default:
		return LabelInfo
	}
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}

package risk

import (
	"maps"
	"slices"
	"time"

	"github.com/telhawk-systems/tracelens/internal/model"
)

// Aggregator folds a stream of events into the counters, tallies and
// failed-logon samples needed to score a scan. It is not safe for concurrent
// use; parallel scans give every worker its own Aggregator and Merge them.
type Aggregator struct {
	policy       Policy
	watched      map[int]struct{}
	ignoredUsers map[string]struct{}
	ignoredIPs   map[string]struct{}

	counts      map[int]int
	total       int
	failTimes   []time.Time
	badTimes    int
	failedUsers *frequencyTable
	failedIPs   *frequencyTable
}

// NewAggregator returns an empty aggregator for p. The policy is assumed valid.
func NewAggregator(p Policy) *Aggregator {
	a := &Aggregator{
		policy:       p,
		watched:      setOf(p.WatchList),
		ignoredUsers: setOf(p.IgnoredUsers),
		ignoredIPs:   setOf(p.IgnoredIPs),
		counts:       make(map[int]int),
		failedUsers:  newFrequencyTable(),
		failedIPs:    newFrequencyTable(),
	}
	for id := range a.watched {
		a.counts[id] = 0
	}
	return a
}

// Add folds one event into the aggregate.
func (a *Aggregator) Add(ev *model.Event) {
	if ev == nil {
		return
	}
	a.total++
	if _, ok := a.watched[ev.EventID]; ok {
		a.counts[ev.EventID]++
	}
	if ev.EventID != a.policy.FailedLogonID {
		return
	}

	if t, err := ParseTimestamp(ev.TimeCreated); err == nil {
		a.failTimes = append(a.failTimes, t)
	} else {
		a.badTimes++
	}

	if user := ev.Field("TargetUserName"); user != "" {
		if _, skip := a.ignoredUsers[user]; !skip {
			a.failedUsers.add(user, 1)
		}
	}
	if ip := ev.Field("IpAddress"); ip != "" {
		if _, skip := a.ignoredIPs[ip]; !skip {
			a.failedIPs.add(ip, 1)
		}
	}
}

// Merge folds a partial aggregate into a. Merging partials in input order
// gives the same result as adding their events to a single aggregator.
func (a *Aggregator) Merge(other *Aggregator) {
	if other == nil {
		return
	}
	a.total += other.total
	a.badTimes += other.badTimes
	for id, n := range other.counts {
		a.counts[id] += n
	}
	a.failTimes = append(a.failTimes, other.failTimes...)
	a.failedUsers.merge(other.failedUsers)
	a.failedIPs.merge(other.failedIPs)
}

// TotalEvents returns the number of events added so far.
func (a *Aggregator) TotalEvents() int {
	return a.total
}

// UnparsedTimestamps returns how many failed logons had no usable timestamp.
func (a *Aggregator) UnparsedTimestamps() int {
	return a.badTimes
}

// Result computes the verdict, score and label for everything added so far.
// The aggregator is left untouched and can keep accepting events.
func (a *Aggregator) Result() Result {
	verdict := DetectBruteForce(a.failTimes, a.policy.Window, a.policy.Threshold)
	if verdict != nil {
		verdict.EventID = a.policy.FailedLogonID
	}
	suspected := verdict != nil && verdict.Suspected
	score := Score(a.counts, suspected, a.policy)

	return Result{
		Counts:          maps.Clone(a.counts),
		TotalEvents:     a.total,
		BruteForce:      verdict,
		TopTargetedUser: a.failedUsers.top(),
		TopSourceIP:     a.failedIPs.top(),
		Score:           score,
		Label:           LabelFor(score),
	}
}

// DetectBruteForce anchors a window of the given length at the latest sample
// and counts the samples inside it, bounds included. It returns nil when
// there are no samples. An earlier burst that is not the latest cluster is
// not detected.
func DetectBruteForce(samples []time.Time, window time.Duration, threshold int) *Verdict {
	if len(samples) == 0 {
		return nil
	}
	latest := slices.MaxFunc(samples, func(x, y time.Time) int { return x.Compare(y) })
	start := latest.Add(-window)

	count := 0
	for _, t := range samples {
		if !t.Before(start) && !t.After(latest) {
			count++
		}
	}

	return &Verdict{
		Suspected:   count >= threshold,
		WindowCount: count,
		Threshold:   threshold,
		Window:      window,
		Latest:      latest.UTC(),
	}
}

func setOf[T comparable](items []T) map[T]struct{} {
	set := make(map[T]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

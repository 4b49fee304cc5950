package risk

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/tracelens/internal/model"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func failure(at time.Time, user, ip string) *model.Event {
	return &model.Event{
		EventID:     EventLogonFailure,
		TimeCreated: at.Format("2006-01-02T15:04:05.0000000Z"),
		Data:        map[string]string{"TargetUserName": user, "IpAddress": ip},
	}
}

func burst(n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * step)
	}
	return out
}

func TestDetectBruteForce(t *testing.T) {
	tests := []struct {
		name          string
		samples       []time.Time
		wantSuspected bool
		wantCount     int
	}{
		{"at threshold", burst(20, 10*time.Second), true, 20},
		{"one below threshold", burst(19, 10*time.Second), false, 19},
		{"window bound is inclusive", burst(21, 30*time.Second), true, 21},
		{"spread too thin", burst(25, time.Minute), false, 11},
		{"single sample", burst(1, 0), false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DetectBruteForce(tt.samples, 10*time.Minute, 20)
			require.NotNil(t, v)
			assert.Equal(t, tt.wantSuspected, v.Suspected)
			assert.Equal(t, tt.wantCount, v.WindowCount)
			assert.Equal(t, 20, v.Threshold)
		})
	}

	assert.Nil(t, DetectBruteForce(nil, 10*time.Minute, 20))
}

func TestDetectBruteForce_AnchorsAtLatest(t *testing.T) {
	// an early burst followed by one straggler an hour later is not detected
	samples := append(burst(30, time.Second), base.Add(time.Hour))

	v := DetectBruteForce(samples, 10*time.Minute, 20)
	assert.False(t, v.Suspected)
	assert.Equal(t, 1, v.WindowCount)
	assert.Equal(t, base.Add(time.Hour), v.Latest)

	// order of samples does not matter
	reversed := []time.Time{base.Add(time.Hour)}
	reversed = append(reversed, burst(30, time.Second)...)
	assert.Equal(t, v, DetectBruteForce(reversed, 10*time.Minute, 20))
}

func TestScore(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name       string
		counts     map[int]int
		bruteForce bool
		want       int
	}{
		{"nothing", map[int]int{}, false, 0},
		{"only logons", map[int]int{EventLogonSuccess: 500, EventLogonFailure: 5}, false, 0},
		{"brute force only", map[int]int{EventLogonFailure: 25}, true, 30},
		{"log cleared once", map[int]int{EventAuditLogCleared: 1}, false, 35},
		{"repeat counts do not add", map[int]int{EventAuditLogCleared: 40}, false, 35},
		{"rdp and privilege", map[int]int{EventRDPAuthenticated: 2, EventSpecialPrivilege: 9}, false, 40},
		{"clamped", map[int]int{EventRDPAuthenticated: 1, EventSpecialPrivilege: 1, EventAuditLogCleared: 1, EventAccountCreated: 1}, true, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.counts, tt.bruteForce, p))
		})
	}
}

func TestScore_NeverDecreasesWithMoreSignals(t *testing.T) {
	p := DefaultPolicy()
	counts := map[int]int{}
	prev := Score(counts, false, p)
	for _, id := range []int{EventAccountCreated, EventSpecialPrivilege, EventRDPAuthenticated, EventAuditLogCleared} {
		counts[id]++
		got := Score(counts, false, p)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, 100)
		prev = got
	}
	assert.GreaterOrEqual(t, Score(counts, true, p), prev)
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		score int
		want  Label
	}{
		{0, LabelInfo},
		{19, LabelInfo},
		{20, LabelLow},
		{49, LabelLow},
		{50, LabelMedium},
		{79, LabelMedium},
		{80, LabelHigh},
		{100, LabelHigh},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, LabelFor(tt.score))
		})
	}
}

func TestAggregator_Result(t *testing.T) {
	a := NewAggregator(DefaultPolicy())
	a.Add(&model.Event{EventID: EventLogonSuccess})
	a.Add(&model.Event{EventID: 4688})
	a.Add(&model.Event{EventID: EventAccountCreated})
	for i := 0; i < 21; i++ {
		a.Add(failure(base.Add(time.Duration(i)*time.Second), "alice", "10.0.0.5"))
	}
	a.Add(nil)

	res := a.Result()
	assert.Equal(t, 24, res.TotalEvents)
	assert.Equal(t, map[int]int{
		EventLogonSuccess:     1,
		EventLogonFailure:     21,
		EventSpecialPrivilege: 0,
		EventAccountCreated:   1,
		EventAuditLogCleared:  0,
		EventRDPAuthenticated: 0,
	}, res.Counts)
	require.NotNil(t, res.BruteForce)
	assert.True(t, res.BruteForceSuspected())
	assert.Equal(t, EventLogonFailure, res.BruteForce.EventID)
	assert.Equal(t, 45, res.Score)
	assert.Equal(t, LabelLow, res.Label)
	assert.Equal(t, &Frequency{Value: "alice", Count: 21}, res.TopTargetedUser)
	assert.Equal(t, &Frequency{Value: "10.0.0.5", Count: 21}, res.TopSourceIP)
}

func TestAggregator_NoFailures(t *testing.T) {
	res := NewAggregator(DefaultPolicy()).Result()
	assert.Nil(t, res.BruteForce)
	assert.False(t, res.BruteForceSuspected())
	assert.Nil(t, res.TopTargetedUser)
	assert.Nil(t, res.TopSourceIP)
	assert.Equal(t, LabelInfo, res.Label)
}

func TestAggregator_IgnoredValues(t *testing.T) {
	a := NewAggregator(DefaultPolicy())
	for _, ip := range []string{"-", "::1", "127.0.0.1", "-", ""} {
		a.Add(failure(base, "-", ip))
	}
	a.Add(failure(base, "carol", "192.168.1.20"))

	res := a.Result()
	assert.Equal(t, &Frequency{Value: "carol", Count: 1}, res.TopTargetedUser)
	assert.Equal(t, &Frequency{Value: "192.168.1.20", Count: 1}, res.TopSourceIP)
	assert.Equal(t, 6, res.BruteForce.WindowCount)
}

func TestAggregator_TieKeepsFirstSeen(t *testing.T) {
	a := NewAggregator(DefaultPolicy())
	for _, u := range []string{"bob", "alice", "alice", "bob"} {
		a.Add(failure(base, u, "10.0.0.1"))
	}
	assert.Equal(t, "bob", a.Result().TopTargetedUser.Value)
}

func TestAggregator_UnparsedTimestamps(t *testing.T) {
	a := NewAggregator(DefaultPolicy())
	a.Add(&model.Event{EventID: EventLogonFailure, TimeCreated: "yesterday"})
	a.Add(&model.Event{EventID: EventLogonFailure})
	a.Add(failure(base, "dave", "10.1.1.1"))

	assert.Equal(t, 2, a.UnparsedTimestamps())
	res := a.Result()
	assert.Equal(t, 3, res.Counts[EventLogonFailure])
	assert.Equal(t, 1, res.BruteForce.WindowCount)
}

func TestAggregator_MergeEqualsSequential(t *testing.T) {
	var events []*model.Event
	for i := 0; i < 40; i++ {
		user := []string{"alice", "bob", "carol"}[i%3]
		ip := fmt.Sprintf("10.0.0.%d", i%4)
		events = append(events, failure(base.Add(time.Duration(i)*7*time.Second), user, ip))
		if i%9 == 0 {
			events = append(events, &model.Event{EventID: EventAuditLogCleared})
		}
	}

	seq := NewAggregator(DefaultPolicy())
	for _, ev := range events {
		seq.Add(ev)
	}

	merged := NewAggregator(DefaultPolicy())
	for start := 0; start < len(events); start += 13 {
		part := NewAggregator(DefaultPolicy())
		for _, ev := range events[start:min(start+13, len(events))] {
			part.Add(ev)
		}
		merged.Merge(part)
	}
	merged.Merge(nil)

	assert.Equal(t, seq.Result(), merged.Result())
	assert.Equal(t, seq.TotalEvents(), merged.TotalEvents())
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2025-03-01T12:00:00.1234567Z", want: base.Add(123456700)},
		{in: "2025-03-01T12:00:00Z", want: base},
		{in: "2025-03-01T14:00:00+02:00", want: base},
		{in: "2025-03-01T14:00:00+0200", want: base},
		{in: "2025-03-01 12:00:00Z", want: base},
		{in: "2025-03-01T12:00:00", want: base},
		{in: "2025-03-01 12:00:00.5", want: base.Add(500 * time.Millisecond)},
		{in: " 2025-03-01T12:00 ", want: base},
		{in: "2025-03-01", want: base.Add(-12 * time.Hour)},
		{in: "", wantErr: true},
		{in: "03/01/2025 12:00", wantErr: true},
		{in: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
		ok     bool
	}{
		{"default", func(*Policy) {}, true},
		{"empty watch list", func(p *Policy) { p.WatchList = nil }, false},
		{"zero window", func(p *Policy) { p.Window = 0 }, false},
		{"zero threshold", func(p *Policy) { p.Threshold = 0 }, false},
		{"negative brute force weight", func(p *Policy) { p.BruteForceWeight = -1 }, false},
		{"failed logon not watched", func(p *Policy) { p.FailedLogonID = 4771 }, false},
		{"weight for unwatched id", func(p *Policy) { p.Weights[4698] = 10 }, false},
		{"negative weight", func(p *Policy) { p.Weights[EventAccountCreated] = -5 }, false},
		{"extra watched id without weight", func(p *Policy) { p.WatchList = append(p.WatchList, 4698) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPolicy)
			}
		})
	}
}

func TestPolicy_Watched(t *testing.T) {
	p := Policy{WatchList: []int{4625, 1102, 4625, 4624}}
	assert.Equal(t, []int{1102, 4624, 4625}, p.Watched())
	assert.Equal(t, []int{4625, 1102, 4625, 4624}, p.WatchList)
}

func TestVerdict_Status(t *testing.T) {
	assert.Equal(t, "SUSPECTED", (&Verdict{Suspected: true}).Status())
	assert.Equal(t, "NOT SUSPECTED", (&Verdict{}).Status())
}

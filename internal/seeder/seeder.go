// Package seeder writes synthetic Windows event exports: background noise
// plus selected attack patterns, for demos and end-to-end tests.
package seeder

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// ErrUnknownPattern is returned for an attack name missing from the Registry.
var ErrUnknownPattern = errors.New("unknown attack pattern")

// Options configures one generated export.
type Options struct {
	// Now is the end of the timeline; zero means time.Now.
	Now time.Time
	// Span is the length of the background timeline.
	Span time.Duration
	// Noise is the number of background events.
	Noise int
	// Computer is the host name written into every event; random when empty.
	Computer string
	// Attacks lists pattern names from the Registry.
	Attacks []string
	// Params override pattern parameters, shared by all selected patterns.
	Params map[string]any
	// Seed makes the output reproducible; zero picks a random seed.
	Seed int64
}

// DefaultOptions returns one hour of light noise with no attacks.
func DefaultOptions() Options {
	return Options{
		Span:  time.Hour,
		Noise: 200,
	}
}

// Summary describes what was generated.
type Summary struct {
	Events   int         `json:"events" yaml:"events"`
	ByID     map[int]int `json:"by_id" yaml:"by_id"`
	Attacks  []string    `json:"attacks" yaml:"attacks"`
	Computer string      `json:"computer" yaml:"computer"`
}

// noiseIDs are benign ids mixed into the background, weighted by repetition.
var noiseIDs = []int{4624, 4624, 4624, 4624, 4634, 4634, 4688, 4688, 4798, 5379}

// Generate writes an export to w. Events are ordered by time and numbered
// with increasing record ids.
func Generate(w io.Writer, opts Options) (Summary, error) {
	if opts.Noise < 0 {
		return Summary{}, fmt.Errorf("noise must not be negative: %d", opts.Noise)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(seed)

	if opts.Computer == "" {
		opts.Computer = "WS-" + faker.LetterN(6)
	}

	cfg := &Config{
		Now:        opts.Now,
		TimeSpread: opts.Span,
		Computer:   opts.Computer,
		Faker:      faker,
		Params:     opts.Params,
	}

	records := noise(cfg, opts.Noise)
	for _, name := range opts.Attacks {
		pattern, ok := Get(name)
		if !ok {
			return Summary{}, fmt.Errorf("%w: %s", ErrUnknownPattern, name)
		}
		generated, err := pattern.Generate(cfg)
		if err != nil {
			return Summary{}, fmt.Errorf("generate %s: %w", name, err)
		}
		records = append(records, generated...)
	}

	slices.SortStableFunc(records, func(a, b Record) int { return a.Time.Compare(b.Time) })

	byID := make(map[int]int)
	for i := range records {
		records[i].RecordID = int64(i + 1)
		byID[records[i].EventID]++
	}

	if err := WriteExport(w, records); err != nil {
		return Summary{}, err
	}

	return Summary{
		Events:   len(records),
		ByID:     byID,
		Attacks:  slices.Clone(opts.Attacks),
		Computer: opts.Computer,
	}, nil
}

func noise(cfg *Config, n int) []Record {
	users := make([]string, 8)
	for i := range users {
		users[i] = cfg.Faker.Username()
	}

	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		id := noiseIDs[cfg.Faker.Number(0, len(noiseIDs)-1)]
		at := jitteredTime(cfg.Faker, cfg.Now, cfg.TimeSpread, i, n)
		user := cfg.Faker.RandomString(users)

		var data []DataField
		switch id {
		case 4624:
			data = []DataField{
				field("TargetUserName", user),
				field("LogonType", cfg.Faker.RandomString([]string{"2", "3", "10"})),
				field("IpAddress", cfg.Faker.IPv4Address()),
			}
		case 4688:
			data = []DataField{
				field("SubjectUserName", user),
				field("NewProcessName", `C:\Windows\System32\`+cfg.Faker.RandomString([]string{"svchost.exe", "cmd.exe", "notepad.exe", "taskhostw.exe"})),
			}
		default:
			data = []DataField{
				field("SubjectUserName", user),
				field("SubjectLogonId", "0x"+strconv.FormatInt(int64(cfg.Faker.Number(0x10000, 0xfffff)), 16)),
			}
		}
		records = append(records, securityRecord(cfg, id, at, data...))
	}
	return records
}

// Describe returns every registered pattern with its description and
// default parameters, sorted by name.
func Describe() []PatternInfo {
	infos := make([]PatternInfo, 0, len(Registry))
	for _, name := range List() {
		p := Registry[name]
		infos = append(infos, PatternInfo{
			Name:        name,
			Description: p.Description(),
			Params:      slices.Sorted(maps.Keys(p.DefaultParams())),
		})
	}
	return infos
}

// PatternInfo is the listing entry of one pattern.
type PatternInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Params      []string `json:"params" yaml:"params"`
}

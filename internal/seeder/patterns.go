package seeder

import (
	"slices"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Config holds configuration for attack pattern generation.
type Config struct {
	// Now is the end of the generated timeline.
	Now time.Time
	// TimeSpread is how far before Now a pattern may place events.
	TimeSpread time.Duration
	// Computer is written into every record.
	Computer string
	// Faker is the random source; a seeded faker makes runs reproducible.
	Faker *gofakeit.Faker

	// Attack-specific parameters (flexible key-value store)
	// Common parameters: target-user, source-ip, count
	Params map[string]any
}

// Pattern generates the events of one suspicious activity.
type Pattern interface {
	// Name returns the MITRE ATT&CK technique ID (e.g., "T1110.001")
	Name() string

	// Description returns a human-readable description
	Description() string

	// Generate creates the attack events based on the configuration
	Generate(cfg *Config) ([]Record, error)

	// DefaultParams returns default parameters for this attack pattern
	DefaultParams() map[string]any
}

// Registry holds all registered attack patterns.
var Registry = make(map[string]Pattern)

// Register adds an attack pattern to the registry.
func Register(pattern Pattern) {
	Registry[pattern.Name()] = pattern
}

// Get retrieves an attack pattern by name.
func Get(name string) (Pattern, bool) {
	p, ok := Registry[name]
	return p, ok
}

// List returns all registered attack pattern names, sorted.
func List() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetIntParam extracts an integer parameter, parsing from string if necessary.
func GetIntParam(cfg *Config, key string, defaultValue int) int {
	if cfg.Params == nil {
		return defaultValue
	}

	switch v := cfg.Params[key].(type) {
	case int:
		return v
	case string:
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetStringParam extracts a string parameter.
func GetStringParam(cfg *Config, key string, defaultValue string) string {
	if cfg.Params == nil {
		return defaultValue
	}
	if v, ok := cfg.Params[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

// jitteredTime spreads total events evenly over the spread ending at now,
// moving each by up to 40% of the interval so the timeline looks natural.
func jitteredTime(f *gofakeit.Faker, now time.Time, spread time.Duration, index, total int) time.Time {
	if spread == 0 || total == 0 {
		return now
	}

	interval := float64(spread) / float64(total)
	base := time.Duration(float64(index) * interval)
	jitter := time.Duration((f.Float64()*2.0 - 1.0) * interval * 0.4)

	offset := min(max(base+jitter, 0), spread)
	return now.Add(-(spread - offset))
}

// within returns a random instant in the spread ending at now.
func within(f *gofakeit.Faker, now time.Time, spread time.Duration) time.Time {
	if spread <= 0 {
		return now
	}
	secs := f.Number(0, int(spread/time.Second))
	return now.Add(-time.Duration(secs) * time.Second)
}

func securityRecord(cfg *Config, id int, at time.Time, data ...DataField) Record {
	return Record{
		EventID:  id,
		Time:     at,
		Computer: cfg.Computer,
		Channel:  "Security",
		Provider: "Microsoft-Windows-Security-Auditing",
		Data:     data,
	}
}

func field(name, value string) DataField {
	return DataField{Name: name, Value: value}
}

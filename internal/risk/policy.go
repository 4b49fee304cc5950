package risk

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Windows Security and RDP event identifiers tracked by the default policy.
const (
	EventLogonSuccess     = 4624
	EventLogonFailure     = 4625
	EventSpecialPrivilege = 4672
	EventAccountCreated   = 4720
	EventAuditLogCleared  = 1102
	EventRDPAuthenticated = 1149
)

// ErrInvalidPolicy is wrapped by every Policy validation error.
var ErrInvalidPolicy = errors.New("invalid policy")

// Policy is the complete scoring configuration: which ids are counted, what
// each signal is worth and how the failed-logon burst is detected.
type Policy struct {
	// WatchList holds the event ids counted per signal.
	WatchList []int `json:"watch_list" yaml:"watch_list" mapstructure:"watch_list"`
	// Weights maps a watched id to the score added when it occurs at least once.
	Weights map[int]int `json:"weights" yaml:"weights" mapstructure:"weights"`
	// FailedLogonID is the id sampled for brute-force detection.
	FailedLogonID int `json:"failed_logon_id" yaml:"failed_logon_id" mapstructure:"failed_logon_id"`
	// BruteForceWeight is added once when the burst threshold is met.
	BruteForceWeight int `json:"brute_force_weight" yaml:"brute_force_weight" mapstructure:"brute_force_weight"`
	// Window is the trailing interval ending at the latest failed logon.
	Window time.Duration `json:"window" yaml:"window" mapstructure:"window"`
	// Threshold is the minimum failed logons inside Window to flag brute force.
	Threshold int `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	// IgnoredUsers are placeholder user names left out of the user tally.
	IgnoredUsers []string `json:"ignored_users" yaml:"ignored_users" mapstructure:"ignored_users"`
	// IgnoredIPs are placeholder and loopback addresses left out of the IP tally.
	IgnoredIPs []string `json:"ignored_ips" yaml:"ignored_ips" mapstructure:"ignored_ips"`
}

// DefaultPolicy returns the built-in scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		WatchList: []int{
			EventLogonSuccess,
			EventLogonFailure,
			EventSpecialPrivilege,
			EventAccountCreated,
			EventAuditLogCleared,
			EventRDPAuthenticated,
		},
		Weights: map[int]int{
			EventRDPAuthenticated: 20,
			EventSpecialPrivilege: 20,
			EventAuditLogCleared:  35,
			EventAccountCreated:   15,
		},
		FailedLogonID:    EventLogonFailure,
		BruteForceWeight: 30,
		Window:           10 * time.Minute,
		Threshold:        20,
		IgnoredUsers:     []string{"-"},
		IgnoredIPs:       []string{"-", "::1", "127.0.0.1"},
	}
}

// Validate checks that the policy is internally consistent.
func (p Policy) Validate() error {
	if len(p.WatchList) == 0 {
		return fmt.Errorf("%w: watch_list is required", ErrInvalidPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidPolicy)
	}
	if p.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be greater than 0", ErrInvalidPolicy)
	}
	if p.BruteForceWeight < 0 {
		return fmt.Errorf("%w: brute_force_weight must be non-negative", ErrInvalidPolicy)
	}
	if !slices.Contains(p.WatchList, p.FailedLogonID) {
		return fmt.Errorf("%w: failed_logon_id %d is not watched", ErrInvalidPolicy, p.FailedLogonID)
	}
	for id, w := range p.Weights {
		if !slices.Contains(p.WatchList, id) {
			return fmt.Errorf("%w: weight for unwatched event %d", ErrInvalidPolicy, id)
		}
		if w < 0 {
			return fmt.Errorf("%w: weight for event %d must be non-negative", ErrInvalidPolicy, id)
		}
	}
	return nil
}

// Watched returns the watch list sorted ascending without duplicates.
func (p Policy) Watched() []int {
	ids := slices.Clone(p.WatchList)
	slices.Sort(ids)
	return slices.Compact(ids)
}

package seeder

import (
	"fmt"
	"strconv"
	"time"
)

// T1110 implements MITRE ATT&CK T1110.001 - Brute Force: Password Guessing.
// It generates a burst of failed network logons against one account from
// one source address.
type T1110 struct{}

func init() {
	Register(&T1110{})
}

func (a *T1110) Name() string {
	return "T1110.001"
}

func (a *T1110) Description() string {
	return "Brute Force: Password Guessing - burst of failed logons (4625) against one user"
}

func (a *T1110) DefaultParams() map[string]any {
	return map[string]any{
		"attempts":    25,      // Failed logons in the burst
		"target-user": "admin", // Username being targeted
		"source-ip":   "",      // Random when empty
		"burst":       "5m",    // Length of the burst ending at Now
	}
}

func (a *T1110) Generate(cfg *Config) ([]Record, error) {
	attempts := GetIntParam(cfg, "attempts", 25)
	if attempts < 0 {
		return nil, fmt.Errorf("attempts must not be negative: %d", attempts)
	}
	user := GetStringParam(cfg, "target-user", "admin")
	ip := GetStringParam(cfg, "source-ip", cfg.Faker.IPv4Address())
	burst, err := time.ParseDuration(GetStringParam(cfg, "burst", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid burst: %w", err)
	}

	records := make([]Record, 0, attempts)
	for i := 0; i < attempts; i++ {
		at := jitteredTime(cfg.Faker, cfg.Now, burst, i, attempts)
		records = append(records, securityRecord(cfg, 4625, at,
			field("TargetUserName", user),
			field("TargetDomainName", "CORP"),
			field("Status", selectFailureStatus(cfg)),
			field("LogonType", "3"),
			field("WorkstationName", cfg.Faker.Noun()),
			field("IpAddress", ip),
			field("IpPort", strconv.Itoa(cfg.Faker.Number(1024, 65535))),
		))
	}
	return records, nil
}

// selectFailureStatus returns a random NTSTATUS for a failed logon.
func selectFailureStatus(cfg *Config) string {
	return cfg.Faker.RandomString([]string{
		"0xc000006d", // bad user name or password
		"0xc000006a", // wrong password
		"0xc0000234", // account locked out
		"0xc0000064", // no such user
	})
}

package seeder

import (
	"fmt"
	"strings"
)

func init() {
	Register(&T1136{})
	Register(&T1070{})
	Register(&T1021{})
	Register(&T1078{})
}

// T1136 implements MITRE ATT&CK T1136.001 - Create Account: Local Account.
type T1136 struct{}

func (a *T1136) Name() string { return "T1136.001" }

func (a *T1136) Description() string {
	return "Create Account: Local Account - new user accounts (4720)"
}

func (a *T1136) DefaultParams() map[string]any {
	return map[string]any{
		"count":   1,
		"creator": "admin",
	}
}

func (a *T1136) Generate(cfg *Config) ([]Record, error) {
	count := GetIntParam(cfg, "count", 1)
	if count < 0 {
		return nil, fmt.Errorf("count must not be negative: %d", count)
	}
	creator := GetStringParam(cfg, "creator", "admin")

	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, securityRecord(cfg, 4720, within(cfg.Faker, cfg.Now, cfg.TimeSpread),
			field("TargetUserName", strings.ToLower(cfg.Faker.Username())),
			field("TargetDomainName", cfg.Computer),
			field("TargetSid", fmt.Sprintf("S-1-5-21-%d-%d", cfg.Faker.Number(100000, 999999), cfg.Faker.Number(1000, 9999))),
			field("SubjectUserName", creator),
		))
	}
	return records, nil
}

// T1070 implements MITRE ATT&CK T1070.001 - Indicator Removal: Clear Windows Event Logs.
type T1070 struct{}

func (a *T1070) Name() string { return "T1070.001" }

func (a *T1070) Description() string {
	return "Indicator Removal: Clear Windows Event Logs - security log cleared (1102)"
}

func (a *T1070) DefaultParams() map[string]any {
	return map[string]any{"user": "admin"}
}

func (a *T1070) Generate(cfg *Config) ([]Record, error) {
	r := securityRecord(cfg, 1102, within(cfg.Faker, cfg.Now, cfg.TimeSpread),
		field("SubjectUserName", GetStringParam(cfg, "user", "admin")),
		field("SubjectDomainName", "CORP"),
	)
	r.Provider = "Microsoft-Windows-Eventlog"
	return []Record{r}, nil
}

// T1021 implements MITRE ATT&CK T1021.001 - Remote Services: Remote Desktop Protocol.
type T1021 struct{}

func (a *T1021) Name() string { return "T1021.001" }

func (a *T1021) Description() string {
	return "Remote Services: RDP - successful RDP network authentication (1149)"
}

func (a *T1021) DefaultParams() map[string]any {
	return map[string]any{
		"count": 1,
		"user":  "admin",
	}
}

func (a *T1021) Generate(cfg *Config) ([]Record, error) {
	count := GetIntParam(cfg, "count", 1)
	if count < 0 {
		return nil, fmt.Errorf("count must not be negative: %d", count)
	}
	user := GetStringParam(cfg, "user", "admin")

	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, Record{
			EventID:  1149,
			Time:     within(cfg.Faker, cfg.Now, cfg.TimeSpread),
			Computer: cfg.Computer,
			Channel:  "Microsoft-Windows-TerminalServices-RemoteConnectionManager/Operational",
			Provider: "Microsoft-Windows-TerminalServices-RemoteConnectionManager",
			Data: []DataField{
				field("Param1", user),
				field("Param2", "CORP"),
				field("Param3", cfg.Faker.IPv4Address()),
			},
		})
	}
	return records, nil
}

// T1078 implements MITRE ATT&CK T1078 - Valid Accounts, seen as special
// privileges assigned to a new logon.
type T1078 struct{}

func (a *T1078) Name() string { return "T1078" }

func (a *T1078) Description() string {
	return "Valid Accounts - special privileges assigned to new logon (4672)"
}

func (a *T1078) DefaultParams() map[string]any {
	return map[string]any{
		"count": 1,
		"user":  "admin",
	}
}

func (a *T1078) Generate(cfg *Config) ([]Record, error) {
	count := GetIntParam(cfg, "count", 1)
	if count < 0 {
		return nil, fmt.Errorf("count must not be negative: %d", count)
	}
	user := GetStringParam(cfg, "user", "admin")

	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, securityRecord(cfg, 4672, within(cfg.Faker, cfg.Now, cfg.TimeSpread),
			field("SubjectUserName", user),
			field("SubjectDomainName", "CORP"),
			field("PrivilegeList", "SeDebugPrivilege SeBackupPrivilege SeTakeOwnershipPrivilege"),
		))
	}
	return records, nil
}

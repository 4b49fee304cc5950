package model

// EventNamespace is the schema namespace used by wevtutil and Get-WinEvent exports.
const EventNamespace = "http://schemas.microsoft.com/win/2004/08/events/event"

// Event is one normalized Windows event log record.
type Event struct {
	EventID     int               `json:"event_id"`
	TimeCreated string            `json:"time_created"`
	Computer    string            `json:"computer"`
	Channel     string            `json:"channel"`
	Provider    string            `json:"provider"`
	RecordID    *int64            `json:"record_id,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Source      string            `json:"source"`
}

// Field returns a named payload value, or "" when absent.
func (e *Event) Field(name string) string {
	if e == nil || e.Data == nil {
		return ""
	}
	return e.Data[name]
}

package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/tracelens/internal/model"
	"github.com/telhawk-systems/tracelens/internal/reader"
	"github.com/telhawk-systems/tracelens/internal/xmltree"
)

const failedLogon = `<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event">
  <System>
    <Provider Name="Microsoft-Windows-Security-Auditing" Guid="{54849625-5478-4994-a5ba-3e3b0328c30d}"/>
    <EventID>4625</EventID>
    <TimeCreated SystemTime="2025-03-01T12:00:00.1234567Z"/>
    <EventRecordID>90210</EventRecordID>
    <Channel>Security</Channel>
    <Computer>DC01.corp.local</Computer>
  </System>
  <EventData>
    <Data Name="TargetUserName">alice</Data>
    <Data Name="IpAddress"> 10.0.0.5 </Data>
    <Data>unnamed</Data>
  </EventData>
</Event>`

const bareLogon = `<Event><System><EventID> 4624 </EventID><Computer>WS7</Computer>` +
	`<Provider Name="Security"/><TimeCreated SystemTime="2025-03-01 12:00:00"/></System>` +
	`<EventData><Data Name="TargetUserName">bob</Data></EventData></Event>`

func element(t *testing.T, frag string) *xmltree.Element {
	t.Helper()
	el, err := xmltree.ParseFragment([]byte(frag), "Event")
	require.NoError(t, err)
	return el
}

func TestNormalize_Namespaced(t *testing.T) {
	n := New()

	for name, c := range map[string]reader.Candidate{
		"fragment": {Source: "a.xml", Fragment: []byte(failedLogon)},
		"element":  {Source: "a.xml", Element: element(t, failedLogon)},
	} {
		t.Run(name, func(t *testing.T) {
			ev, err := n.Normalize(c)
			require.NoError(t, err)

			assert.Equal(t, 4625, ev.EventID)
			assert.Equal(t, "2025-03-01T12:00:00.1234567Z", ev.TimeCreated)
			assert.Equal(t, "DC01.corp.local", ev.Computer)
			assert.Equal(t, "Security", ev.Channel)
			assert.Equal(t, "Microsoft-Windows-Security-Auditing", ev.Provider)
			require.NotNil(t, ev.RecordID)
			assert.Equal(t, int64(90210), *ev.RecordID)
			assert.Equal(t, map[string]string{"TargetUserName": "alice", "IpAddress": "10.0.0.5"}, ev.Data)
			assert.Equal(t, "a.xml", ev.Source)
		})
	}
}

func TestNormalize_WithoutNamespace(t *testing.T) {
	ev, err := New().Normalize(reader.Candidate{Source: "b.xml", Fragment: []byte(bareLogon)})
	require.NoError(t, err)

	assert.Equal(t, 4624, ev.EventID)
	assert.Equal(t, "WS7", ev.Computer)
	assert.Equal(t, "Security", ev.Provider)
	assert.Equal(t, "2025-03-01 12:00:00", ev.TimeCreated)
	assert.Empty(t, ev.Channel)
	assert.Nil(t, ev.RecordID)
	assert.Equal(t, "bob", ev.Field("TargetUserName"))
	assert.Empty(t, ev.Field("IpAddress"))
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		frag    string
		wantErr error
	}{
		{"missing event id", `<Event><System><Computer>X</Computer></System></Event>`, ErrNoEventID},
		{"empty event id", `<Event><System><EventID></EventID></System></Event>`, ErrNoEventID},
		{"non-numeric event id", `<Event><System><EventID>abc</EventID></System></Event>`, ErrBadEventID},
		{"blank event id", `<Event><System><EventID>   </EventID></System></Event>`, ErrBadEventID},
		{"no event element", `<Other/>`, xmltree.ErrNoElement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Normalize(reader.Candidate{Source: "c.xml", Fragment: []byte(tt.frag)})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalize_EmptyCandidate(t *testing.T) {
	_, err := New().Normalize(reader.Candidate{Source: "d.xml"})
	assert.ErrorIs(t, err, ErrEmptyCandidate)
}

func TestNormalize_QualifiedDataWins(t *testing.T) {
	frag := `<Event xmlns="` + model.EventNamespace + `"><System><EventID>4720</EventID></System>` +
		`<EventData><Data Name="TargetUserName">svc-backup</Data></EventData></Event>`

	ev, err := New().Normalize(reader.Candidate{Fragment: []byte(frag)})
	require.NoError(t, err)
	assert.Equal(t, "svc-backup", ev.Field("TargetUserName"))
}

func TestNormalize_EmptyQualifiedAttributeFallsBack(t *testing.T) {
	frag := `<Event xmlns="` + model.EventNamespace + `">` +
		`<System><EventID>4688</EventID><TimeCreated/><Provider Guid="{54849625-5478-4994-a5ba-3e3b0328c30d}"/></System>` +
		`<System xmlns=""><TimeCreated SystemTime="2025-03-01T12:00:00Z"/><Provider Name="Security"/></System>` +
		`</Event>`

	for name, c := range map[string]reader.Candidate{
		"fragment": {Fragment: []byte(frag)},
		"element":  {Element: element(t, frag)},
	} {
		t.Run(name, func(t *testing.T) {
			ev, err := New().Normalize(c)
			require.NoError(t, err)
			assert.Equal(t, 4688, ev.EventID)
			assert.Equal(t, "2025-03-01T12:00:00Z", ev.TimeCreated)
			assert.Equal(t, "Security", ev.Provider)
		})
	}
}

func TestParseRecordID(t *testing.T) {
	tests := []struct {
		in   string
		want *int64
	}{
		{"", nil},
		{"42", ptr(42)},
		{"007", ptr(7)},
		{"-1", nil},
		{"12a", nil},
		{" 12", nil},
		{"99999999999999999999", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRecordID(tt.in))
		})
	}
}

func ptr(v int64) *int64 { return &v }

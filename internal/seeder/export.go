package seeder

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// Record is one synthetic Windows event before serialization.
type Record struct {
	EventID  int
	Time     time.Time
	Computer string
	Channel  string
	Provider string
	RecordID int64
	Data     []DataField
}

// DataField is one named <Data> value of an event payload.
type DataField struct {
	Name  string
	Value string
}

type xmlEvent struct {
	XMLName   xml.Name     `xml:"http://schemas.microsoft.com/win/2004/08/events/event Event"`
	System    xmlSystem    `xml:"System"`
	EventData xmlEventData `xml:"EventData"`
}

type xmlSystem struct {
	Provider      xmlProvider `xml:"Provider"`
	EventID       int         `xml:"EventID"`
	TimeCreated   xmlTime     `xml:"TimeCreated"`
	EventRecordID int64       `xml:"EventRecordID"`
	Channel       string      `xml:"Channel"`
	Computer      string      `xml:"Computer"`
}

type xmlProvider struct {
	Name string `xml:"Name,attr"`
}

type xmlTime struct {
	SystemTime string `xml:"SystemTime,attr"`
}

type xmlEventData struct {
	Data []xmlData `xml:"Data"`
}

type xmlData struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

// systemTimeLayout matches the 7-digit fraction wevtutil writes.
const systemTimeLayout = "2006-01-02T15:04:05.0000000Z"

// WriteExport writes records as a wevtutil-style XML export: an <Events>
// wrapper holding one namespaced <Event> per record.
func WriteExport(w io.Writer, records []Record) error {
	if _, err := io.WriteString(w, xml.Header+"<Events>\n"); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(toXML(r)); err != nil {
			return fmt.Errorf("encode event %d: %w", r.RecordID, err)
		}
		if err := enc.Flush(); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "</Events>\n")
	return err
}

func toXML(r Record) xmlEvent {
	data := make([]xmlData, 0, len(r.Data))
	for _, d := range r.Data {
		data = append(data, xmlData{Name: d.Name, Value: d.Value})
	}
	return xmlEvent{
		System: xmlSystem{
			Provider:      xmlProvider{Name: r.Provider},
			EventID:       r.EventID,
			TimeCreated:   xmlTime{SystemTime: r.Time.UTC().Format(systemTimeLayout)},
			EventRecordID: r.RecordID,
			Channel:       r.Channel,
			Computer:      r.Computer,
		},
		EventData: xmlEventData{Data: data},
	}
}

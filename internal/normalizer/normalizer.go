package normalizer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/telhawk-systems/tracelens/internal/model"
	"github.com/telhawk-systems/tracelens/internal/reader"
	"github.com/telhawk-systems/tracelens/internal/xmltree"
)

var (
	// ErrNoEventID marks a candidate without a System/EventID value.
	ErrNoEventID = errors.New("event has no EventID")
	// ErrBadEventID marks a candidate whose EventID is not an integer.
	ErrBadEventID = errors.New("event has a non-numeric EventID")
	// ErrEmptyCandidate marks a candidate carrying neither a fragment nor an element.
	ErrEmptyCandidate = errors.New("empty candidate")
)

// WindowsXMLNormalizer converts exported Windows event XML into model.Event
// records. Every lookup is attempted in Namespace first and then without a
// namespace, because exporting tools disagree on whether to declare it.
type WindowsXMLNormalizer struct {
	Namespace string
}

// New returns a normalizer for the standard Windows event schema namespace.
func New() *WindowsXMLNormalizer {
	return &WindowsXMLNormalizer{Namespace: model.EventNamespace}
}

// Normalize converts one candidate into an event. Any failure, including a
// panic while walking a malformed tree, is returned as an error so the caller
// can skip the candidate and keep going.
func (n *WindowsXMLNormalizer) Normalize(c reader.Candidate) (ev *model.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev = nil
			err = fmt.Errorf("normalize %s: recovered: %v", c.Source, r)
		}
	}()

	el := c.Element
	if el == nil {
		if len(c.Fragment) == 0 {
			return nil, ErrEmptyCandidate
		}
		el, err = xmltree.ParseFragment(c.Fragment, "Event")
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", c.Source, err)
		}
	}

	return n.fromElement(el, c.Source)
}

func (n *WindowsXMLNormalizer) fromElement(el *xmltree.Element, source string) (*model.Event, error) {
	idText := n.text(el, "System", "EventID")
	if idText == "" {
		return nil, ErrNoEventID
	}
	eventID, err := strconv.Atoi(strings.TrimSpace(idText))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadEventID, idText)
	}

	ev := &model.Event{
		EventID:     eventID,
		TimeCreated: n.attr(el, "SystemTime", "System", "TimeCreated"),
		Computer:    n.text(el, "System", "Computer"),
		Channel:     n.text(el, "System", "Channel"),
		Provider:    n.attr(el, "Name", "System", "Provider"),
		RecordID:    parseRecordID(n.text(el, "System", "EventRecordID")),
		Data:        n.eventData(el),
		Source:      source,
	}
	return ev, nil
}

// text returns the first non-empty text found on the qualified path, then on the unqualified one.
func (n *WindowsXMLNormalizer) text(el *xmltree.Element, path ...string) string {
	if v := el.Find(n.Namespace, path...).Text(); v != "" {
		return v
	}
	return el.Find("", path...).Text()
}

// attr returns the first non-empty attribute value found on the qualified path, then on the unqualified one.
func (n *WindowsXMLNormalizer) attr(el *xmltree.Element, name string, path ...string) string {
	if v := el.Find(n.Namespace, path...).Attr(name); v != "" {
		return v
	}
	return el.Find("", path...).Attr(name)
}

func (n *WindowsXMLNormalizer) eventData(el *xmltree.Element) map[string]string {
	data := collectData(el.Find(n.Namespace, "EventData"), n.Namespace)
	if len(data) == 0 {
		data = collectData(el.Find("", "EventData"), "")
	}
	return data
}

func collectData(section *xmltree.Element, space string) map[string]string {
	data := make(map[string]string)
	for _, d := range section.ChildrenNamed(space, "Data") {
		name := d.Attr("Name")
		if name == "" {
			continue
		}
		data[name] = strings.TrimSpace(d.Text())
	}
	return data
}

// parseRecordID accepts only a run of ASCII digits.
func parseRecordID(s string) *int64 {
	if s == "" {
		return nil
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Package xmltree builds small, detached element trees from an XML token
// stream. A tree covers exactly one event element and holds no reference to
// the decoder or to sibling elements, so it can be dropped as soon as the
// caller has read it.
package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoElement is returned when a fragment contains no element with the requested name.
var ErrNoElement = errors.New("xmltree: element not found")

// Element is a decoded XML element with its attributes, character data and children.
type Element struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Element

	text strings.Builder
}

// Text returns the element's own character data.
func (e *Element) Text() string {
	if e == nil {
		return ""
	}
	return e.text.String()
}

// Attr returns the value of the unqualified attribute with the given local name.
func (e *Element) Attr(local string) string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attrs {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

// Child returns the first direct child named local in namespace space.
// An empty space matches only elements without a namespace.
func (e *Element) Child(space, local string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Name.Local == local && c.Name.Space == space {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every direct child named local in namespace space.
func (e *Element) ChildrenNamed(space, local string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, c := range e.Children {
		if c.Name.Local == local && c.Name.Space == space {
			out = append(out, c)
		}
	}
	return out
}

// Find walks a relative path where every step is qualified with space.
func (e *Element) Find(space string, path ...string) *Element {
	cur := e
	for _, step := range path {
		cur = cur.Child(space, step)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// NewDecoder returns a lenient decoder for already UTF-8 decoded input.
// Unknown entities are passed through, mismatched end tags are closed
// implicitly and any encoding declared in a prolog is ignored because the
// reader transcodes to UTF-8 before the decoder sees the bytes.
func NewDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return d
}

// Builder assembles one element tree from tokens fed to it in document order.
type Builder struct {
	root  *Element
	stack []*Element
}

// NewBuilder starts a tree rooted at start.
func NewBuilder(start xml.StartElement) *Builder {
	root := newElement(start)
	return &Builder{root: root, stack: []*Element{root}}
}

// Add feeds the next token and reports whether the root element is closed.
// Tokens after that are ignored.
func (b *Builder) Add(tok xml.Token) bool {
	if len(b.stack) == 0 {
		return true
	}
	top := b.stack[len(b.stack)-1]
	switch t := tok.(type) {
	case xml.StartElement:
		child := newElement(t)
		top.Children = append(top.Children, child)
		b.stack = append(b.stack, child)
	case xml.EndElement:
		b.stack = b.stack[:len(b.stack)-1]
	case xml.CharData:
		top.text.Write(t)
	}
	return len(b.stack) == 0
}

// Root returns the tree built so far.
func (b *Builder) Root() *Element {
	return b.root
}

// Build consumes tokens from d up to the end element matching start and
// returns the tree rooted at start. On a decoding error the partially built
// tree is returned together with the error.
func Build(d *xml.Decoder, start xml.StartElement) (*Element, error) {
	b := NewBuilder(start)
	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return b.Root(), fmt.Errorf("build %s: %w", start.Name.Local, err)
		}
		if b.Add(tok) {
			return b.Root(), nil
		}
	}
}

// ParseFragment decodes the first element named local found in frag.
// Syntax errors after the element has started are tolerated: whatever was
// decoded before the error is returned along with a nil error, mirroring a
// recovering parser. Errors before the element starts are returned as is.
func ParseFragment(frag []byte, local string) (*Element, error) {
	d := NewDecoder(bytes.NewReader(frag))
	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, ErrNoElement
			}
			return nil, fmt.Errorf("parse fragment: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != local {
			continue
		}
		el, _ := Build(d, start)
		return el, nil
	}
}

func newElement(start xml.StartElement) *Element {
	attrs := make([]xml.Attr, len(start.Attr))
	copy(attrs, start.Attr)
	return &Element{Name: start.Name, Attrs: attrs}
}

// Package reader turns a large, possibly damaged Windows event XML export
// into a lazy sequence of event candidates. Memory use is bounded by the
// chunk size and the largest single event, never by the size of the input.
package reader

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/telhawk-systems/tracelens/internal/xmltree"
)

// Strategy selects how event boundaries are found.
type Strategy string

const (
	// StrategyStream pull-parses the whole input and, after the first syntax
	// error, falls back to fragment scanning from the start of the event
	// being decoded.
	StrategyStream Strategy = "stream"
	// StrategyFragment only scans raw text for <Event>...</Event> regions.
	StrategyFragment Strategy = "fragment"
)

const (
	DefaultChunkSize        = 1 << 20
	DefaultMaxFragmentBytes = 8 << 20
)

// Options configures a Reader.
type Options struct {
	ChunkSize        int      `json:"chunk_size" yaml:"chunk_size"`
	MaxFragmentBytes int      `json:"max_fragment_bytes" yaml:"max_fragment_bytes"`
	Strategy         Strategy `json:"strategy" yaml:"strategy"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		ChunkSize:        DefaultChunkSize,
		MaxFragmentBytes: DefaultMaxFragmentBytes,
		Strategy:         StrategyStream,
	}
}

// Validate checks the options for usable values.
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be greater than 0")
	}
	if o.MaxFragmentBytes < o.ChunkSize {
		return fmt.Errorf("max_fragment_bytes must be at least chunk_size")
	}
	switch o.Strategy {
	case StrategyStream, StrategyFragment:
	default:
		return fmt.Errorf("invalid strategy: %s", o.Strategy)
	}
	return nil
}

// Candidate is one not-yet-validated event region. Exactly one of Fragment
// and Element is set.
type Candidate struct {
	Source   string
	Fragment []byte
	Element  *xmltree.Element
}

// Stats describes what a Reader did with its input so far.
type Stats struct {
	BytesRead  int64
	FellBack   bool
	Discarded  int
	Candidates int
	Truncated  bool
}

// Reader yields candidates from one input stream.
type Reader struct {
	source  string
	counter *countingReader
	buf     *bufio.Reader
	rec     *recorder
	dec     *xml.Decoder
	frags   *fragmentScanner
	opts    Options
	stats   Stats
}

// New wraps r. Input is decoded permissively: a UTF-8 or UTF-16 byte order
// mark selects the decoding and invalid UTF-8 is replaced with U+FFFD.
func New(r io.Reader, source string, opts Options) *Reader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxFragmentBytes < opts.ChunkSize {
		opts.MaxFragmentBytes = max(DefaultMaxFragmentBytes, opts.ChunkSize)
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyStream
	}

	counter := &countingReader{r: r}
	decoded := transform.NewReader(counter, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	buf := bufio.NewReaderSize(decoded, opts.ChunkSize)

	rd := &Reader{
		source:  source,
		counter: counter,
		buf:     buf,
		opts:    opts,
	}
	if opts.Strategy == StrategyStream {
		rd.rec = &recorder{r: buf}
		rd.dec = xmltree.NewDecoder(rd.rec)
	} else {
		rd.frags = newFragmentScanner(buf, opts.ChunkSize, opts.MaxFragmentBytes)
	}
	return rd
}

// Next returns the next candidate, or io.EOF once the input is exhausted.
// Any other error comes from the underlying reader.
func (r *Reader) Next() (Candidate, error) {
	if r.dec != nil {
		el, err := r.nextElement()
		switch {
		case err == nil:
			r.stats.Candidates++
			return Candidate{Source: r.source, Element: el}, nil
		case errors.Is(err, io.EOF), isUnexpectedEOF(err):
			// A truncated trailing event is dropped, not yielded.
			return Candidate{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.stats.Truncated = true
			return Candidate{}, io.EOF
		case isSyntaxError(err):
			r.fallBack()
		default:
			return Candidate{}, fmt.Errorf("read %s: %w", r.source, err)
		}
	}

	frag, err := r.frags.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Candidate{}, io.EOF
		}
		return Candidate{}, fmt.Errorf("read %s: %w", r.source, err)
	}
	r.stats.Candidates++
	return Candidate{Source: r.source, Fragment: frag}, nil
}

// Stats returns counters for the input consumed so far.
func (r *Reader) Stats() Stats {
	s := r.stats
	if r.frags != nil {
		s.Discarded += r.frags.discarded
	}
	s.BytesRead = r.counter.n
	s.Truncated = s.Truncated || r.counter.truncated
	return s
}

// nextElement pulls tokens until an Event element closes. An Event opening
// inside another one replaces it, and one growing past MaxFragmentBytes is
// dropped; both count as discarded, as in fragment scanning.
func (r *Reader) nextElement() (*xmltree.Element, error) {
	var (
		b     *xmltree.Builder
		start int64
	)
	for {
		off := r.dec.InputOffset()
		if b == nil {
			r.rec.mark(off)
		}
		tok, err := r.dec.Token()
		if err != nil {
			return nil, err
		}

		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Event" {
			if b != nil {
				r.stats.Discarded++
				r.rec.mark(off)
			}
			b, start = xmltree.NewBuilder(se), off
			continue
		}
		if b == nil {
			continue
		}
		if b.Add(tok) {
			return b.Root(), nil
		}
		if r.dec.InputOffset()-start > int64(r.opts.MaxFragmentBytes) {
			r.stats.Discarded++
			b = nil
		}
	}
}

// fallBack abandons pull parsing and continues with fragment scanning from
// the start of the event that failed, or from the failing token when no
// event was open.
func (r *Reader) fallBack() {
	rest := io.MultiReader(bytes.NewReader(r.rec.pending), r.buf)
	r.dec = nil
	r.rec = nil
	r.stats.FellBack = true
	r.frags = newFragmentScanner(rest, r.opts.ChunkSize, r.opts.MaxFragmentBytes)
}

// isUnexpectedEOF reports the decoder's complaint about input ending inside
// an open element.
func isUnexpectedEOF(err error) bool {
	var se *xml.SyntaxError
	return errors.As(err, &se) && strings.HasPrefix(se.Msg, "unexpected EOF")
}

func isSyntaxError(err error) bool {
	var se *xml.SyntaxError
	return errors.As(err, &se)
}

// countingReader counts raw input bytes and remembers whether the source
// ended early, as a cut gzip or zstd stream does.
type countingReader struct {
	r         io.Reader
	n         int64
	truncated bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		c.truncated = true
	}
	return n, err
}

// recorder hands bytes to the decoder one at a time and keeps those read
// since the last mark, so a failed region can be rescanned as text.
type recorder struct {
	r       *bufio.Reader
	pending []byte
	base    int64
}

func (rc *recorder) ReadByte() (byte, error) {
	c, err := rc.r.ReadByte()
	if err == nil {
		rc.pending = append(rc.pending, c)
	}
	return c, err
}

func (rc *recorder) Read(p []byte) (int, error) {
	n, err := rc.r.Read(p)
	rc.pending = append(rc.pending, p[:n]...)
	return n, err
}

// mark forgets the bytes before decoder offset off. Bytes the decoder has
// read ahead stay recorded.
func (rc *recorder) mark(off int64) {
	d := int(off - rc.base)
	if d <= 0 {
		return
	}
	d = min(d, len(rc.pending))
	rc.pending = append(rc.pending[:0], rc.pending[d:]...)
	rc.base = off
}

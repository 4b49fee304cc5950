package reader

import (
	"bytes"
	"errors"
	"io"
)

var (
	startMarker = []byte("<Event")
	endMarker   = []byte("</Event>")
)

// fragmentScanner finds <Event ...>...</Event> regions in raw text read in
// fixed-size chunks. Text after the last complete region is carried over to
// the next chunk so a region split across a chunk boundary is yielded once.
type fragmentScanner struct {
	r           io.Reader
	chunk       []byte
	buf         []byte
	maxFragment int
	eof         bool
	discarded   int
}

func newFragmentScanner(r io.Reader, chunkSize, maxFragment int) *fragmentScanner {
	return &fragmentScanner{
		r:           r,
		chunk:       make([]byte, chunkSize),
		maxFragment: maxFragment,
	}
}

// next returns the next complete region. A region still open at the end of
// input is dropped.
func (s *fragmentScanner) next() ([]byte, error) {
	for {
		if frag := s.extract(); frag != nil {
			return frag, nil
		}
		if s.eof {
			s.buf = nil
			return nil, io.EOF
		}

		n, err := s.r.Read(s.chunk)
		s.buf = append(s.buf, s.chunk[:n]...)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, err
			}
			// A truncated compressed stream ends the input like EOF does.
			s.eof = true
		}
	}
}

// extract pops one complete region from the buffer, trimming whatever can no
// longer belong to a region.
func (s *fragmentScanner) extract() []byte {
	for {
		start := indexStart(s.buf, 0)
		if start < 0 {
			// Keep a tail long enough to hold a marker split across chunks.
			if keep := len(startMarker); len(s.buf) > keep {
				s.shift(len(s.buf) - keep)
			}
			return nil
		}

		rel := bytes.Index(s.buf[start:], endMarker)
		if rel < 0 {
			s.shift(start)
			if len(s.buf) > s.maxFragment {
				s.shift(len(startMarker))
				s.discarded++
				continue
			}
			return nil
		}
		end := start + rel + len(endMarker)

		// A later opening marker inside the region means the earlier one
		// was never closed; keep only the last region.
		if later := lastIndexStart(s.buf[:start+rel], start+1); later > start {
			s.discarded++
			start = later
		}

		frag := make([]byte, end-start)
		copy(frag, s.buf[start:end])
		s.shift(end)
		return frag
	}
}

func (s *fragmentScanner) shift(n int) {
	s.buf = append(s.buf[:0], s.buf[n:]...)
}

// indexStart finds "<Event" followed by whitespace, '>' or '/', so an
// <Events> wrapper never matches. A marker at the very end of b is not
// reported because the next byte is still unknown.
func indexStart(b []byte, from int) int {
	for from < len(b) {
		i := bytes.Index(b[from:], startMarker)
		if i < 0 {
			return -1
		}
		i += from
		next := i + len(startMarker)
		if next >= len(b) {
			return -1
		}
		switch b[next] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return i
		}
		from = i + 1
	}
	return -1
}

func lastIndexStart(b []byte, from int) int {
	last := -1
	for {
		i := indexStart(b, from)
		if i < 0 {
			return last
		}
		last = i
		from = i + 1
	}
}

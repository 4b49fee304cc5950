package scanner

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrNoInput is returned when the target does not exist or holds no XML export.
var ErrNoInput = errors.New("no input found")

var xmlSuffixes = []string{".xml", ".xml.gz", ".xml.zst"}

// Inputs is the result of walking a scan target.
type Inputs struct {
	XML  []string
	EVTX []string
}

// Discover resolves a file or directory into scan inputs. A file is taken as
// is whatever its name; a directory is walked recursively for XML exports
// (plain, gzip or zstd compressed) and .evtx logs, in lexical order.
func Discover(target string) (Inputs, error) {
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Inputs{}, fmt.Errorf("%w: path not found: %s", ErrNoInput, target)
		}
		return Inputs{}, fmt.Errorf("stat %s: %w", target, err)
	}

	if !info.IsDir() {
		if isEVTX(target) {
			return Inputs{EVTX: []string{target}}, nil
		}
		return Inputs{XML: []string{target}}, nil
	}

	var in Inputs
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case isXMLExport(path):
			in.XML = append(in.XML, path)
		case isEVTX(path):
			in.EVTX = append(in.EVTX, path)
		}
		return nil
	})
	if err != nil {
		return Inputs{}, fmt.Errorf("walk %s: %w", target, err)
	}
	return in, nil
}

func isXMLExport(path string) bool {
	lower := strings.ToLower(path)
	for _, s := range xmlSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func isEVTX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".evtx")
}

// Open returns the decompressed contents of path. Damage inside a gzip or
// zstd stream, including a bad header or checksum, ends the input early
// instead of failing it; see Input.Damage. Read errors from the file itself
// are returned as is.
func Open(path string) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src := &fileReader{r: f}
	in := &Input{r: src, closers: []io.Closer{f}}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(src)
		if err != nil {
			if isFileError(err) {
				f.Close()
				return nil, fmt.Errorf("gzip %s: %w", path, err)
			}
			in.damage = &damageError{err: fmt.Errorf("gzip: %w", err)}
			return in, nil
		}
		in.r = zr
		in.closers = []io.Closer{zr, f}
	case ".zst":
		zr, err := zstd.NewReader(src)
		if err != nil {
			if isFileError(err) {
				f.Close()
				return nil, fmt.Errorf("zstd %s: %w", path, err)
			}
			in.damage = &damageError{err: fmt.Errorf("zstd: %w", err)}
			return in, nil
		}
		rc := zr.IOReadCloser()
		in.r = rc
		in.closers = []io.Closer{rc, f}
	}
	return in, nil
}

// Input is an opened scan input.
type Input struct {
	r       io.Reader
	closers []io.Closer
	damage  *damageError
}

// Read reads decompressed bytes. Once the compressed stream turns out to be
// damaged every read returns an error matching io.ErrUnexpectedEOF, which
// the reader treats as a truncated input.
func (in *Input) Read(p []byte) (int, error) {
	if in.damage != nil {
		return 0, in.damage
	}
	n, err := in.r.Read(p)
	if err != nil && err != io.EOF && !isFileError(err) {
		in.damage = &damageError{err: err}
		err = in.damage
	}
	return n, err
}

// Damage returns what cut the input short, or nil.
func (in *Input) Damage() error {
	if in.damage == nil {
		return nil
	}
	return in.damage.err
}

// Close closes the decompressor and then the file under it.
func (in *Input) Close() error {
	var errs []error
	for _, c := range in.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type damageError struct {
	err error
}

func (e *damageError) Error() string { return e.err.Error() }

func (e *damageError) Unwrap() []error { return []error{io.ErrUnexpectedEOF, e.err} }

// fileReader marks errors coming from the file so they are never mistaken
// for damage in the compressed stream above it.
type fileReader struct {
	r io.Reader
}

func (fr *fileReader) Read(p []byte) (int, error) {
	n, err := fr.r.Read(p)
	if err != nil && err != io.EOF {
		err = &fileError{err: err}
	}
	return n, err
}

type fileError struct {
	err error
}

func (e *fileError) Error() string { return e.err.Error() }

func (e *fileError) Unwrap() error { return e.err }

func isFileError(err error) bool {
	var fe *fileError
	return errors.As(err, &fe)
}

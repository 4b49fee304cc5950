// Package scanner runs the full scan: discover inputs, stream every file
// through the reader and normalizer, and fold the records into one risk
// result.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/tracelens/internal/export"
	"github.com/telhawk-systems/tracelens/internal/logging"
	"github.com/telhawk-systems/tracelens/internal/metrics"
	"github.com/telhawk-systems/tracelens/internal/normalizer"
	"github.com/telhawk-systems/tracelens/internal/reader"
	"github.com/telhawk-systems/tracelens/internal/report"
	"github.com/telhawk-systems/tracelens/internal/risk"
)

// ctxCheckInterval is how many candidates are processed between cancellation checks.
const ctxCheckInterval = 1024

// Options configures a Scanner.
type Options struct {
	Reader  reader.Options
	Policy  risk.Policy
	Workers int
	// ConvertEVTX converts .evtx inputs with wevtutil when no XML is found.
	ConvertEVTX bool
	Converter   *export.Converter
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// FileStats summarizes one scanned input file.
type FileStats struct {
	Path       string        `json:"path" yaml:"path"`
	Events     int           `json:"events" yaml:"events"`
	Skipped    int           `json:"skipped" yaml:"skipped"`
	BytesRead  int64         `json:"bytes_read" yaml:"bytes_read"`
	FellBack   bool          `json:"fell_back,omitempty" yaml:"fell_back,omitempty"`
	Truncated  bool          `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Damage     string        `json:"damage,omitempty" yaml:"damage,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	BadTimes   int           `json:"unparsed_timestamps,omitempty" yaml:"unparsed_timestamps,omitempty"`
	Candidates int           `json:"candidates" yaml:"candidates"`
}

// Outcome is everything a scan produced.
type Outcome struct {
	report.Meta `yaml:",inline"`
	Files       []FileStats `json:"files" yaml:"files"`
	Result      risk.Result `json:"result" yaml:"result"`
	Lines       []string    `json:"lines" yaml:"lines"`
}

// Scanner scans Windows event exports with a fixed policy.
type Scanner struct {
	opts       Options
	normalizer *normalizer.WindowsXMLNormalizer
	watched    map[int]struct{}
}

// New validates opts and returns a Scanner.
func New(opts Options) (*Scanner, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Reader.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reader options: %w", err)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Converter == nil {
		opts.Converter = export.NewConverter()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	watched := make(map[int]struct{}, len(opts.Policy.WatchList))
	for _, id := range opts.Policy.WatchList {
		watched[id] = struct{}{}
	}

	return &Scanner{
		opts:       opts,
		normalizer: normalizer.New(),
		watched:    watched,
	}, nil
}

// Scan discovers the inputs under target and scans them. It returns
// ErrNoInput when target is missing or contains nothing to scan.
func (s *Scanner) Scan(ctx context.Context, target string) (*Outcome, error) {
	started := s.opts.Now()

	in, err := Discover(target)
	if err != nil {
		return nil, err
	}

	files := in.XML
	if len(files) == 0 && len(in.EVTX) > 0 {
		if !s.opts.ConvertEVTX {
			return nil, fmt.Errorf("%w: only .evtx files under %s (enable evtx conversion)", ErrNoInput, target)
		}
		tmp, err := os.MkdirTemp("", "tracelens-evtx-")
		if err != nil {
			return nil, fmt.Errorf("create conversion dir: %w", err)
		}
		defer os.RemoveAll(tmp)

		files, err = s.convert(ctx, in.EVTX, tmp)
		if err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no XML under %s", ErrNoInput, target)
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	return s.ScanFiles(ctx, abs, started, files)
}

// ScanFiles scans an explicit list of files in order and folds them into a
// single result.
func (s *Scanner) ScanFiles(ctx context.Context, target string, started time.Time, files []string) (*Outcome, error) {
	if len(files) == 0 {
		return nil, ErrNoInput
	}

	meta := report.Meta{
		ScanID:    logging.ScanIDFrom(ctx),
		Target:    target,
		StartedAt: started,
	}
	if meta.ScanID == "" {
		meta.ScanID = logging.NewScanID()
		ctx = logging.WithScanID(ctx, meta.ScanID)
	}

	var (
		agg   *risk.Aggregator
		stats []FileStats
		err   error
	)
	if s.opts.Workers > 1 && len(files) > 1 {
		agg, stats, err = s.scanParallel(ctx, files)
	} else {
		agg, stats, err = s.scanSequential(ctx, files)
	}
	if err != nil {
		return nil, err
	}

	res := agg.Result()
	s.opts.Metrics.RiskScore.Set(float64(res.Score))
	s.opts.Logger.InfoContext(ctx, "scan complete",
		logging.Events(res.TotalEvents),
		logging.Score(res.Score),
		logging.Label(string(res.Label)),
	)

	return &Outcome{
		Meta:   meta,
		Files:  stats,
		Result: res,
		Lines:  report.Lines(res, meta),
	}, nil
}

func (s *Scanner) scanSequential(ctx context.Context, files []string) (*risk.Aggregator, []FileStats, error) {
	agg := risk.NewAggregator(s.opts.Policy)
	stats := make([]FileStats, 0, len(files))
	for _, path := range files {
		st, err := s.scanFile(ctx, path, agg)
		if err != nil {
			return nil, nil, err
		}
		stats = append(stats, st)
	}
	return agg, stats, nil
}

// scanParallel gives every file its own partial aggregate and merges the
// partials in file order, which reproduces the sequential result exactly.
func (s *Scanner) scanParallel(ctx context.Context, files []string) (*risk.Aggregator, []FileStats, error) {
	partials := make([]*risk.Aggregator, len(files))
	stats := make([]FileStats, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			partial := risk.NewAggregator(s.opts.Policy)
			st, err := s.scanFile(gctx, path, partial)
			if err != nil {
				return err
			}
			partials[i] = partial
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	agg := risk.NewAggregator(s.opts.Policy)
	for _, p := range partials {
		agg.Merge(p)
	}
	return agg, stats, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string, agg *risk.Aggregator) (FileStats, error) {
	start := time.Now()
	st := FileStats{Path: path}

	in, err := Open(path)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	badTimesBefore := agg.UnparsedTimestamps()
	rd := reader.New(in, path, s.opts.Reader)
	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}

		c, err := rd.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return st, fmt.Errorf("scan %s: %w", path, err)
		}

		ev, err := s.normalizer.Normalize(c)
		if err != nil {
			reason := skipReason(err)
			st.Skipped++
			s.opts.Metrics.ObserveSkip(reason)
			s.opts.Logger.DebugContext(ctx, "skipping event candidate",
				logging.File(path), logging.Reason(reason), logging.Error(err))
			continue
		}

		agg.Add(ev)
		st.Events++
		_, watched := s.watched[ev.EventID]
		s.opts.Metrics.ObserveEvent(ev.EventID, watched)
	}

	rs := rd.Stats()
	st.Candidates = rs.Candidates
	st.BytesRead = rs.BytesRead
	st.FellBack = rs.FellBack
	st.Truncated = rs.Truncated
	st.Skipped += rs.Discarded
	st.BadTimes = agg.UnparsedTimestamps() - badTimesBefore
	st.Duration = time.Since(start)
	if dmg := in.Damage(); dmg != nil {
		st.Truncated = true
		st.Damage = dmg.Error()
		s.opts.Logger.WarnContext(ctx, "compressed input is damaged, keeping events read before the damage",
			logging.File(path), logging.Error(dmg), logging.Events(st.Events))
	}

	for i := 0; i < rs.Discarded; i++ {
		s.opts.Metrics.ObserveSkip("unterminated")
	}
	if rs.FellBack {
		s.opts.Metrics.ReaderFallbacks.Inc()
	}
	s.opts.Metrics.FilesScanned.Inc()
	s.opts.Metrics.BytesRead.Add(float64(rs.BytesRead))
	s.opts.Metrics.FileScanDuration.Observe(st.Duration.Seconds())

	s.opts.Logger.InfoContext(ctx, "scanned file",
		logging.File(path),
		logging.Events(st.Events),
		logging.Skipped(st.Skipped),
		logging.Bytes(st.BytesRead),
		logging.Duration(st.Duration.Milliseconds()),
	)
	return st, nil
}

func (s *Scanner) convert(ctx context.Context, evtx []string, dir string) ([]string, error) {
	out := make([]string, 0, len(evtx))
	for _, path := range evtx {
		dst := export.OutputName(dir, path)
		if err := s.opts.Converter.Convert(ctx, path, dst); err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
		s.opts.Logger.InfoContext(ctx, "converted evtx", logging.File(path))
		out = append(out, dst)
	}
	return out, nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, normalizer.ErrNoEventID):
		return "missing_event_id"
	case errors.Is(err, normalizer.ErrBadEventID):
		return "invalid_event_id"
	default:
		return "malformed"
	}
}

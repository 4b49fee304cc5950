package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/tracelens/internal/history"
	"github.com/telhawk-systems/tracelens/internal/logging"
	"github.com/telhawk-systems/tracelens/internal/metrics"
	"github.com/telhawk-systems/tracelens/internal/publish"
	"github.com/telhawk-systems/tracelens/internal/report"
	"github.com/telhawk-systems/tracelens/internal/scanner"
	"github.com/telhawk-systems/tracelens/pkg/output"
)

// sideEffectTimeout bounds history and publish calls after a scan.
const sideEffectTimeout = 10 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Scan a Windows event log export",
	Long: `Scan an XML export (or a directory of them) and print a risk report.

Directories are walked recursively for .xml, .xml.gz and .xml.zst files.
Native .evtx logs are converted with wevtutil when --convert-evtx is set and
no XML export is present (Windows only).`,
	Example: `  tracelens scan ./logs
  tracelens scan security.xml --html --report-dir ./out
  tracelens scan ./logs --workers 4 --output json
  tracelens scan ./logs --threshold 10 --window 5m --history`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("html", false, "also write an HTML report")
	scanCmd.Flags().String("report-dir", "", "directory for the HTML report (default from config)")
	scanCmd.Flags().Int("workers", 0, "files scanned in parallel (default from config)")
	scanCmd.Flags().String("strategy", "", "event boundary strategy: stream, fragment")
	scanCmd.Flags().Int("chunk-size", 0, "read chunk size in bytes")
	scanCmd.Flags().Int("max-fragment-bytes", 0, "largest single event kept in memory, in bytes")
	scanCmd.Flags().Int("threshold", 0, "failed logons inside the window that flag brute force")
	scanCmd.Flags().Duration("window", 0, "brute-force window ending at the latest failed logon")
	scanCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	scanCmd.Flags().Bool("convert-evtx", false, "convert .evtx logs with wevtutil when no XML is found")
	scanCmd.Flags().Bool("history", false, "save the result to the Redis scan history")
	scanCmd.Flags().Bool("publish", false, "publish the result to NATS")
}

// applyScanFlags overrides config values with the flags that were set.
func applyScanFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("html") {
		cfg.Report.HTML, _ = flags.GetBool("html")
	}
	if flags.Changed("report-dir") {
		cfg.Report.Dir, _ = flags.GetString("report-dir")
	}
	if flags.Changed("workers") {
		cfg.Scan.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("strategy") {
		cfg.Scan.Strategy, _ = flags.GetString("strategy")
	}
	if flags.Changed("chunk-size") {
		cfg.Scan.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("max-fragment-bytes") {
		cfg.Scan.MaxFragmentBytes, _ = flags.GetInt("max-fragment-bytes")
	}
	if flags.Changed("threshold") {
		cfg.Policy.Threshold, _ = flags.GetInt("threshold")
	}
	if flags.Changed("window") {
		cfg.Policy.Window, _ = flags.GetDuration("window")
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile, _ = flags.GetString("metrics-file")
	}
	if flags.Changed("convert-evtx") {
		cfg.Scan.ConvertEVTX, _ = flags.GetBool("convert-evtx")
	}
	if flags.Changed("history") {
		cfg.History.Enabled, _ = flags.GetBool("history")
	}
	if flags.Changed("publish") {
		cfg.Publish.Enabled, _ = flags.GetBool("publish")
	}
	if v, _ := flags.GetString("output"); v != "" {
		cfg.Report.Format = v
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	applyScanFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cmd)
	out := printer(cmd)
	format, _ := report.ParseFormat(cfg.Report.Format)
	policy, _ := cfg.Policy()

	m := metrics.New()
	s, err := scanner.New(scanner.Options{
		Reader:      cfg.Reader(),
		Policy:      policy,
		Workers:     cfg.Scan.Workers,
		ConvertEVTX: cfg.Scan.ConvertEVTX,
		Logger:      logger,
		Metrics:     m,
	})
	if err != nil {
		return err
	}

	ctx := logging.WithScanID(cmd.Context(), logging.NewScanID())
	outcome, err := s.Scan(ctx, args[0])
	if err != nil {
		return err
	}

	if err := render(cmd, out, format, outcome); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if cfg.Report.HTML {
		path, err := report.WriteHTML(cfg.Report.Dir, outcome.Result, outcome.Lines)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		notice(out, format, "[+] HTML report written: %s", path)
	}

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.WarnContext(ctx, "failed to write metrics textfile", logging.File(cfg.Metrics.Textfile), logging.Error(err))
		}
	}

	record := recordOf(outcome)
	if cfg.History.Enabled {
		saveHistory(ctx, logger, out, record)
	}
	if cfg.Publish.Enabled {
		publishRecord(ctx, logger, out, record)
	}
	return nil
}

func render(cmd *cobra.Command, out *output.Printer, format report.Format, outcome *scanner.Outcome) error {
	switch format {
	case report.FormatJSON:
		return report.WriteJSON(cmd.OutOrStdout(), outcome)
	case report.FormatYAML:
		return report.WriteYAML(cmd.OutOrStdout(), outcome)
	default:
		out.Report(outcome.Lines, outcome.Result.Label)
		return nil
	}
}

// notice prints a status line without corrupting machine-readable output.
func notice(out *output.Printer, format report.Format, msg string, a ...any) {
	if format == report.FormatText {
		out.Info(msg, a...)
		return
	}
	fmt.Fprintf(out.Err, msg+"\n", a...)
}

func recordOf(o *scanner.Outcome) history.Record {
	skipped := 0
	for _, f := range o.Files {
		skipped += f.Skipped
	}
	return history.NewRecord(o.ScanID, o.Target, o.StartedAt, len(o.Files), skipped, o.Result)
}

func saveHistory(ctx context.Context, logger *logging.Logger, out *output.Printer, r history.Record) {
	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	store, err := history.Connect(ctx, cfg.History.RedisURL, cfg.History.Retention)
	if err != nil {
		out.Warn("scan history unavailable: %v", err)
		return
	}
	defer store.Close()

	if err := store.Save(ctx, r); err != nil {
		out.Warn("failed to save scan history: %v", err)
		return
	}
	logger.InfoContext(ctx, "saved scan history")
}

func publishRecord(ctx context.Context, logger *logging.Logger, out *output.Printer, r history.Record) {
	ncfg := publish.DefaultNATSConfig()
	ncfg.URL = cfg.Publish.NATSURL

	pub, err := publish.NewNATSPublisher(ncfg)
	if err != nil {
		out.Warn("publishing unavailable: %v", err)
		return
	}
	n := publish.NewNotifier(pub, cfg.Publish.Subject)
	defer n.Close()

	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	if err := n.ScanCompleted(ctx, r); err != nil {
		out.Warn("failed to publish scan: %v", err)
		return
	}
	logger.InfoContext(ctx, "published scan", "subject", n.Subject())
}

package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/tracelens/internal/history"
	"github.com/telhawk-systems/tracelens/internal/report"
	"github.com/telhawk-systems/tracelens/pkg/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous scans",
	Long:  "List scans saved to the Redis history with 'tracelens scan --history', newest first",
	Example: `  tracelens history
  tracelens history --limit 5 --output json
  tracelens history show 3f0c...`,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Show one saved scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.PersistentFlags().String("redis-url", "", "Redis URL (default from config)")
	historyCmd.Flags().Int("limit", 20, "maximum number of scans to list")
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	url := cfg.History.RedisURL
	if v, _ := cmd.Flags().GetString("redis-url"); v != "" {
		url = v
	}
	return history.Connect(cmd.Context(), url, cfg.History.Retention)
}

func outputFormat(cmd *cobra.Command) (report.Format, error) {
	v, _ := cmd.Flags().GetString("output")
	if v == "" {
		v = cfg.Report.Format
	}
	return report.ParseFormat(v)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return writeRecords(cmd, format, records)
}

func writeRecords(cmd *cobra.Command, format report.Format, records []history.Record) error {
	switch format {
	case report.FormatJSON:
		return report.WriteJSON(cmd.OutOrStdout(), records)
	case report.FormatYAML:
		return report.WriteYAML(cmd.OutOrStdout(), records)
	}

	if len(records) == 0 {
		printer(cmd).Info("No scans in history")
		return nil
	}

	table := output.NewTable([]string{"SCAN ID", "STARTED", "TARGET", "EVENTS", "SCORE", "LABEL", "BRUTE-FORCE"})
	for _, r := range records {
		table.AddRow([]string{
			r.ScanID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Target,
			strconv.Itoa(r.TotalEvents),
			strconv.Itoa(r.Score),
			string(r.Label),
			strconv.FormatBool(r.BruteForce),
		})
	}
	table.Render(cmd.OutOrStdout())
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.Get(cmd.Context(), args[0])
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("scan %s not found (it may have expired)", args[0])
	}
	if err != nil {
		return err
	}

	if format == report.FormatYAML {
		return report.WriteYAML(cmd.OutOrStdout(), r)
	}
	return report.WriteJSON(cmd.OutOrStdout(), r)
}

package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hakierspejs/ksiemgowy/pkg/db"
	"github.com/hakierspejs/ksiemgowy/pkg/report"
)

var reportDryRun bool

// reportCmd builds the current financial report and publishes it when
// it is fresher than the one already published.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build and publish the periodic financial report",
	Long: `Build the financial report from the full ledger and write it
as JSON to the configured report path.

An existing report is only overwritten when the newly built one carries
a strictly newer last-updated stamp; a report derived from older data
never clobbers a fresher published one.`,
	Run: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportDryRun, "dry-run", false, "build the report but do not publish it")
}

func runReport(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	exitOnError(err, "failed to load configuration")

	conn, err := db.Open(cfg.DatabasePath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	ledger := db.NewLedger(conn)
	incoming, err := ledger.ScanIncoming()
	exitOnError(err, "failed to scan incoming entries")
	outgoing, err := ledger.ScanOutgoing()
	exitOnError(err, "failed to scan outgoing entries")

	builder := report.NewBuilder(cfg.Report, log)
	current, err := builder.Build(time.Now(), incoming, outgoing)
	exitOnError(err, "failed to build report")

	previous, err := readPublishedReport(cfg.ReportPath)
	exitOnError(err, "failed to read published report")

	publish, err := report.ShouldPublish(current, previous)
	exitOnError(err, "failed to compare reports")
	if !publish {
		log.Info().Msg("published report is at least as fresh, not publishing")
		return
	}

	data, err := json.MarshalIndent(current, "", "  ")
	exitOnError(err, "failed to serialize report")
	if reportDryRun {
		log.Info().Str("path", cfg.ReportPath).Msg("dry run, skipping publish")
		os.Stdout.Write(append(data, '\n'))
		return
	}
	exitOnError(os.WriteFile(cfg.ReportPath, data, 0644), "failed to publish report")
	log.Info().Str("path", cfg.ReportPath).Msg("report published")
}

// readPublishedReport loads the previously published report, or nil
// when none exists yet.
func readPublishedReport(path string) (*report.Report, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hakierspejs/ksiemgowy/pkg/bookkeeping"
	"github.com/hakierspejs/ksiemgowy/pkg/db"
	"github.com/hakierspejs/ksiemgowy/pkg/statement"
)

// processCmd reconciles every notification document in the spool
// directory against the ledger.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Reconcile spooled notification documents into the ledger",
	Long: `Process all bank-notification documents found in the spool
directory.

Each document's file name is its notification identifier: a document
whose identifier was already processed is skipped, so re-running over
the same spool is safe. One malformed document is logged and does not
block the rest of the batch.`,
	Run: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	exitOnError(err, "failed to load configuration")
	if cfg.SpoolDir == "" {
		exitOnError(errors.New("spool_dir is not configured"), "invalid configuration")
	}

	conn, err := db.Open(cfg.DatabasePath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	ledger := db.NewLedger(conn)
	contacts := db.NewContacts(conn)
	parser := statement.NewParser(log)
	engine := bookkeeping.NewEngine(bookkeeping.EngineConfig{
		Ledger:           ledger,
		Contacts:         contacts,
		Sender:           newOutboxSender(cfg.OutboxDir),
		Logger:           log,
		WatchedAccounts:  cfg.WatchedAccounts,
		AnonymizationKey: cfg.Pepper(),
		SendMail:         cfg.SendMail,
		FromAddress:      cfg.FromAddress,
	})

	entries, err := os.ReadDir(cfg.SpoolDir)
	exitOnError(err, "failed to read spool directory")

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	processed, failed := 0, 0
	for _, name := range names {
		document, err := os.ReadFile(filepath.Join(cfg.SpoolDir, name))
		if err != nil {
			log.Error().Err(err).Str("document", name).Msg("failed to read document")
			failed++
			continue
		}
		transfers, err := parser.Parse(document)
		if err != nil {
			// One bad document must not block the rest of the batch.
			log.Error().Err(err).Str("document", name).Msg("failed to parse document")
			failed++
			continue
		}
		if err := engine.ProcessNotification(name, transfers); err != nil {
			log.Error().Err(err).Str("document", name).Msg("failed to reconcile document")
			failed++
			continue
		}
		processed++
	}
	log.Info().Int("processed", processed).Int("failed", failed).Msg("spool processed")
	if failed > 0 {
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hakierspejs/ksiemgowy/pkg/db"
	"github.com/hakierspejs/ksiemgowy/pkg/statement"
)

// statsCmd prints ledger counters for diagnostics.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics",
	Long: `Show how many entries and notifications the ledger holds and
the current ledger-derived balance of every watched account.`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	exitOnError(err, "failed to load configuration")

	conn, err := db.Open(cfg.DatabasePath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	ledger := db.NewLedger(conn)
	stats, err := ledger.GetStats()
	exitOnError(err, "failed to read ledger statistics")

	fmt.Println("Ledger statistics")
	fmt.Println("=================")
	fmt.Printf("Incoming entries:    %d (%s PLN)\n", stats.IncomingCount, stats.IncomingSum.StringFixed(2))
	fmt.Printf("Outgoing entries:    %d (%s PLN)\n", stats.OutgoingCount, stats.OutgoingSum.StringFixed(2))
	fmt.Printf("Notifications seen:  %d\n", stats.NotificationsSeen)

	now := time.Now()
	for _, account := range cfg.WatchedAccounts {
		hashed := statement.Anonymize(account, cfg.Pepper())
		balance, err := ledger.BalanceContribution(hashed, now)
		exitOnError(err, "failed to compute balance")
		fmt.Printf("Balance %s…: %s PLN\n", hashed[:8], balance.StringFixed(2))
	}
}

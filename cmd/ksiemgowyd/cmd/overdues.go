package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hakierspejs/ksiemgowy/pkg/db"
	"github.com/hakierspejs/ksiemgowy/pkg/overdues"
)

// overduesCmd reminds members whose dues stopped arriving.
var overduesCmd = &cobra.Command{
	Use:   "overdues",
	Short: "Send reminders to members with overdue dues",
	Long: `Find members whose latest recorded due arrived between 55 and
35 days ago and drop a reminder for each into the outbox. Reminded
members are not reminded again for a few days.`,
	Run: runOverdues,
}

func runOverdues(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	exitOnError(err, "failed to load configuration")

	conn, err := db.Open(cfg.DatabasePath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	err = overdues.Notify(
		db.NewLedger(conn),
		db.NewContacts(conn),
		newOutboxSender(cfg.OutboxDir),
		cfg.FromAddress,
		time.Now(),
		log,
	)
	exitOnError(err, "failed to send overdue reminders")
}

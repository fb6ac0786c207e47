// Package overdues reminds members whose dues stopped arriving. A
// member is reminded when their latest due landed between 55 and 35
// days ago; older silences are considered lapsed rather than late.
package overdues

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hakierspejs/ksiemgowy/pkg/bookkeeping"
	"github.com/hakierspejs/ksiemgowy/pkg/db"
	"github.com/hakierspejs/ksiemgowy/pkg/statement"
)

const (
	overdueAfter    = 35 * 24 * time.Hour
	forgottenAfter  = 55 * 24 * time.Hour
	reminderSubject = "Hey, is everything OK?"
)

// Notify sends one reminder to every eligible overdue member and
// postpones their next reminder. Eligibility comes from the contacts
// store; payment recency comes from the ledger's incoming scan.
func Notify(
	ledger *db.Ledger,
	contacts *db.Contacts,
	sender bookkeeping.MailSender,
	fromAddr string,
	now time.Time,
	log zerolog.Logger,
) error {
	incoming, err := ledger.ScanIncoming()
	if err != nil {
		return err
	}

	latest := make(map[string]statement.Transfer)
	for _, t := range incoming {
		if prev, ok := latest[t.SenderAccount]; !ok || t.Timestamp.After(prev.Timestamp) {
			latest[t.SenderAccount] = t
		}
	}

	eligible, err := contacts.PotentiallyOverdueAccounts(now)
	if err != nil {
		return err
	}

	overdueSince := now.Add(-overdueAfter)
	forgottenSince := now.Add(-forgottenAfter)
	for account, due := range latest {
		if !due.Timestamp.After(forgottenSince) || !due.Timestamp.Before(overdueSince) {
			continue
		}
		email, ok := eligible[account]
		if !ok {
			continue
		}
		if err := sender.Send(buildReminderMail(fromAddr, email)); err != nil {
			return fmt.Errorf("failed to send overdue reminder: %w", err)
		}
		if err := contacts.PostponeNextNotification(account, now); err != nil {
			return err
		}
		log.Info().Str("to", email).Msg("sent an overdue reminder")
	}
	return nil
}

// buildReminderMail prepares the overdue reminder payload.
func buildReminderMail(fromAddr, toAddr string) bookkeeping.Mail {
	return bookkeeping.Mail{
		From:    fromAddr,
		To:      toAddr,
		Bcc:     fromAddr,
		Subject: reminderSubject,
		Body: `Hey,

more than 35 days have passed since your last membership due arrived,
so I wanted to check in: is everything OK? If so, please send the next
due - or better yet, set up a monthly standing order.

Thank you for everything you have contributed so far! Regular dues are
what keeps the organization's rent paid and its reserves growing.

This message is sent automatically every few days by ksiemgowy:

https://github.com/hakierspejs/ksiemgowy
`,
	}
}

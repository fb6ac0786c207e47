package db

import (
	"database/sql"
	"fmt"
	"time"
)

// overduePostponement is how long the next overdue reminder for an
// account is pushed out after one was sent.
const overduePostponement = 3*24*time.Hour + 5*time.Hour

// Contact describes a payer we know how to reach, keyed by the
// anonymized account digest their dues arrive from.
type Contact struct {
	Account                    string
	Email                      string
	NotifyArrived              bool
	NotifyOverdue              bool
	NotifyOverdueNoEarlierThan *time.Time
	IsMember                   bool
}

// Contacts manages the member-contact table.
type Contacts struct {
	conn *Connection
}

// NewContacts creates a Contacts store backed by conn.
func NewContacts(conn *Connection) *Contacts {
	return &Contacts{conn: conn}
}

// Upsert inserts or replaces a contact.
func (c *Contacts) Upsert(contact Contact) error {
	var noEarlier interface{}
	if contact.NotifyOverdueNoEarlierThan != nil {
		noEarlier = contact.NotifyOverdueNoEarlierThan.Format(timestampLayout)
	}
	_, err := c.conn.Exec(`
		INSERT INTO member_contacts
			(account, email, notify_arrived, notify_overdue,
			 notify_overdue_no_earlier_than, is_member)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			email = excluded.email,
			notify_arrived = excluded.notify_arrived,
			notify_overdue = excluded.notify_overdue,
			notify_overdue_no_earlier_than = excluded.notify_overdue_no_earlier_than,
			is_member = excluded.is_member`,
		contact.Account,
		contact.Email,
		boolToInt(contact.NotifyArrived),
		boolToInt(contact.NotifyOverdue),
		noEarlier,
		boolToInt(contact.IsMember),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contact %q: %w", contact.Account, err)
	}
	return nil
}

// EmailForAccount returns the e-mail address for an account, or ""
// when the account is unknown or opted out of arrival notifications.
func (c *Contacts) EmailForAccount(account string) (string, error) {
	var email string
	err := c.conn.QueryRow(
		`SELECT email FROM member_contacts WHERE account = ? AND notify_arrived = 1`,
		account,
	).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up contact %q: %w", account, err)
	}
	return email, nil
}

// PotentiallyOverdueAccounts returns account→email for every contact
// that opted into overdue reminders and whose postponement date, if
// any, has passed.
func (c *Contacts) PotentiallyOverdueAccounts(now time.Time) (map[string]string, error) {
	rows, err := c.conn.Query(`
		SELECT account, email FROM member_contacts
		WHERE notify_overdue = 1
		  AND (notify_overdue_no_earlier_than IS NULL
		       OR notify_overdue_no_earlier_than < ?)`,
		now.Format(timestampLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue candidates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var account, email string
		if err := rows.Scan(&account, &email); err != nil {
			return nil, fmt.Errorf("failed to read contact: %w", err)
		}
		out[account] = email
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list overdue candidates: %w", err)
	}
	return out, nil
}

// PostponeNextNotification pushes the next overdue reminder for an
// account out by a few days, counting from the stored date when it is
// later than now. Read and update run in one transaction so two
// concurrent reminder passes cannot stack postponements.
func (c *Contacts) PostponeNextNotification(account string, now time.Time) error {
	return c.conn.Transaction(func(tx *sql.Tx) error {
		var stored sql.NullTime
		err := tx.QueryRow(
			`SELECT notify_overdue_no_earlier_than FROM member_contacts WHERE account = ?`,
			account,
		).Scan(&stored)
		if err == sql.ErrNoRows {
			return fmt.Errorf("account %q not found in contacts", account)
		}
		if err != nil {
			return fmt.Errorf("failed to look up contact %q: %w", account, err)
		}

		base := now
		if stored.Valid && stored.Time.After(base) {
			base = stored.Time
		}

		_, err = tx.Exec(
			`UPDATE member_contacts SET notify_overdue_no_earlier_than = ? WHERE account = ?`,
			base.Add(overduePostponement).Format(timestampLayout),
			account,
		)
		if err != nil {
			return fmt.Errorf("failed to postpone notification for %q: %w", account, err)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package db

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hakierspejs/ksiemgowy/pkg/statement"
)

// timestampLayout is how transfer timestamps are stored. The notification
// feed has minute precision; seconds are always zero.
const timestampLayout = "2006-01-02 15:04:05"

// Ledger is the append-only store of accepted transfers plus the
// deduplication set of already-processed notification identifiers.
type Ledger struct {
	conn *Connection
}

// NewLedger creates a Ledger backed by conn.
func NewLedger(conn *Connection) *Ledger {
	return &Ledger{conn: conn}
}

// WasNotificationSeen tells whether a notification ID was already
// processed. It must be consulted before any side effect derived from
// that notification.
func (l *Ledger) WasNotificationSeen(notificationID string) (bool, error) {
	var count int
	err := l.conn.QueryRow(
		`SELECT COUNT(*) FROM observed_notifications WHERE notification_id = ?`,
		notificationID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check notification %q: %w", notificationID, err)
	}
	return count > 0, nil
}

// MarkNotificationSeen records a notification ID as processed. Callers
// must do this only after every ledger insert derived from the
// notification succeeded; a crash before the mark re-processes the
// notification on the next run, which is the accepted worst case.
func (l *Ledger) MarkNotificationSeen(notificationID string) error {
	_, err := l.conn.Exec(
		`INSERT INTO observed_notifications (notification_id) VALUES (?)`,
		notificationID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %q seen: %w", notificationID, err)
	}
	return nil
}

// AppendIncoming inserts an incoming transfer. Entries are immutable
// once written.
func (l *Ledger) AppendIncoming(t statement.Transfer) error {
	t.Direction = statement.Incoming
	return l.append(t)
}

// AppendOutgoing inserts an outgoing transfer.
func (l *Ledger) AppendOutgoing(t statement.Transfer) error {
	t.Direction = statement.Outgoing
	return l.append(t)
}

func (l *Ledger) append(t statement.Transfer) error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("ledger entry amount must be positive, got %s", t.Amount)
	}
	_, err := l.conn.Exec(`
		INSERT INTO ledger_entries
			(sender_account, recipient_account, amount, counterparty,
			 description, reported_balance, timestamp, direction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SenderAccount,
		t.RecipientAccount,
		t.Amount.String(),
		t.Counterparty,
		t.Description,
		t.ReportedBalance.String(),
		t.Timestamp.Format(timestampLayout),
		string(t.Direction),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// ScanIncoming returns all incoming entries in insertion order. Callers
// needing chronological order sort by timestamp themselves.
func (l *Ledger) ScanIncoming() ([]statement.Transfer, error) {
	return l.scan(statement.Incoming)
}

// ScanOutgoing returns all outgoing entries in insertion order.
func (l *Ledger) ScanOutgoing() ([]statement.Transfer, error) {
	return l.scan(statement.Outgoing)
}

func (l *Ledger) scan(direction statement.Direction) ([]statement.Transfer, error) {
	rows, err := l.conn.Query(`
		SELECT sender_account, recipient_account, amount, counterparty,
		       description, reported_balance, timestamp, direction
		FROM ledger_entries
		WHERE direction = ?
		ORDER BY id ASC`,
		string(direction),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger: %w", err)
	}
	defer rows.Close()

	var entries []statement.Transfer
	for rows.Next() {
		var (
			t               statement.Transfer
			amount, balance string
			dirText         string
		)
		if err := rows.Scan(
			&t.SenderAccount, &t.RecipientAccount, &amount, &t.Counterparty,
			&t.Description, &balance, &t.Timestamp, &dirText,
		); err != nil {
			return nil, fmt.Errorf("failed to read ledger entry: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount %q in ledger: %w", amount, err)
		}
		if t.ReportedBalance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("corrupt balance %q in ledger: %w", balance, err)
		}
		t.Direction = statement.Direction(dirText)
		entries = append(entries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan ledger: %w", err)
	}
	return entries, nil
}

// BalanceContribution computes the signed sum of all entries touching
// the given account with a timestamp at or before asOf. Incoming
// entries add to the sum, outgoing ones subtract. The value is derived
// on every call, never stored.
func (l *Ledger) BalanceContribution(account string, asOf time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero

	incoming, err := l.ScanIncoming()
	if err != nil {
		return decimal.Decimal{}, err
	}
	for _, t := range incoming {
		if t.RecipientAccount != account || t.Timestamp.After(asOf) {
			continue
		}
		sum = sum.Add(t.Amount)
	}

	outgoing, err := l.ScanOutgoing()
	if err != nil {
		return decimal.Decimal{}, err
	}
	for _, t := range outgoing {
		if t.SenderAccount != account || t.Timestamp.After(asOf) {
			continue
		}
		sum = sum.Sub(t.Amount)
	}

	return sum, nil
}

// Stats summarizes the ledger for diagnostics.
type Stats struct {
	IncomingCount     int64
	OutgoingCount     int64
	IncomingSum       decimal.Decimal
	OutgoingSum       decimal.Decimal
	NotificationsSeen int64
}

// GetStats counts entries per direction and sums their amounts.
func (l *Ledger) GetStats() (Stats, error) {
	stats := Stats{IncomingSum: decimal.Zero, OutgoingSum: decimal.Zero}

	incoming, err := l.ScanIncoming()
	if err != nil {
		return stats, err
	}
	for _, t := range incoming {
		stats.IncomingCount++
		stats.IncomingSum = stats.IncomingSum.Add(t.Amount)
	}

	outgoing, err := l.ScanOutgoing()
	if err != nil {
		return stats, err
	}
	for _, t := range outgoing {
		stats.OutgoingCount++
		stats.OutgoingSum = stats.OutgoingSum.Add(t.Amount)
	}

	err = l.conn.QueryRow(`SELECT COUNT(*) FROM observed_notifications`).
		Scan(&stats.NotificationsSeen)
	if err != nil {
		return stats, fmt.Errorf("failed to count notifications: %w", err)
	}
	return stats, nil
}

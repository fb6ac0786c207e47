package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Ledger entries
-- One row per accepted transfer. Rows are only ever inserted; balance
-- corrections are additional rows, so the full audit history survives.
CREATE TABLE IF NOT EXISTS ledger_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sender_account TEXT NOT NULL,      -- anonymized account digest
    recipient_account TEXT NOT NULL,   -- anonymized account digest
    amount TEXT NOT NULL,              -- positive decimal, PLN
    counterparty TEXT NOT NULL,
    description TEXT NOT NULL,
    reported_balance TEXT NOT NULL,    -- bank-reported balance after the transfer
    timestamp TIMESTAMP NOT NULL,
    direction TEXT NOT NULL,           -- 'incoming' or 'outgoing'
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_direction
    ON ledger_entries(direction);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_timestamp
    ON ledger_entries(timestamp);

-- Observed notifications
-- Deduplication set of notification identifiers. A notification ID is
-- marked here only after all ledger inserts derived from it succeeded.
CREATE TABLE IF NOT EXISTS observed_notifications (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    notification_id TEXT NOT NULL UNIQUE,
    observed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Member contacts
-- Maps anonymized payer accounts to e-mail addresses and stores the
-- overdue-reminder scheduling state.
CREATE TABLE IF NOT EXISTS member_contacts (
    account TEXT PRIMARY KEY,          -- anonymized account digest
    email TEXT NOT NULL,
    notify_arrived INTEGER NOT NULL DEFAULT 1,
    notify_overdue INTEGER NOT NULL DEFAULT 1,
    notify_overdue_no_earlier_than TIMESTAMP,
    is_member INTEGER NOT NULL DEFAULT 0
);
`

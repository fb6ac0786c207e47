// Package statement parses mBank daily-notification documents into
// transfer records and anonymizes the fields that identify people.
package statement

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// Direction says which way money moved relative to the account the bank
// reported on.
type Direction string

const (
	// Incoming is a transfer credited to the recipient account.
	Incoming Direction = "incoming"
	// Outgoing is a transfer debited from the sender account.
	Outgoing Direction = "outgoing"
)

// Transfer is one bank-reported money movement. ReportedBalance is the
// balance the bank reported after this movement, not a value we compute.
type Transfer struct {
	SenderAccount    string
	RecipientAccount string
	Amount           decimal.Decimal
	Counterparty     string
	Description      string
	ReportedBalance  decimal.Decimal
	Timestamp        time.Time
	Direction        Direction
}

// Anonymize one-way transforms a value using key as cryptographic pepper.
// The same value and key always produce the same digest.
func Anonymize(value string, key []byte) string {
	sum := sha256.Sum256(append([]byte(value), key...))
	return hex.EncodeToString(sum[:])
}

// Anonymized returns a copy of the transfer with all identifying fields
// replaced by their digests. Amount, balance, timestamp and direction
// carry no identity and stay as they are.
func (t Transfer) Anonymized(key []byte) Transfer {
	out := t
	out.SenderAccount = Anonymize(t.SenderAccount, key)
	out.RecipientAccount = Anonymize(t.RecipientAccount, key)
	out.Counterparty = Anonymize(t.Counterparty, key)
	out.Description = Anonymize(t.Description, key)
	return out
}

package bookkeeping

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hakierspejs/ksiemgowy/pkg/db"
	"github.com/hakierspejs/ksiemgowy/pkg/statement"
)

const (
	watchedAccount = "1234567890"
	fromAddress    = "bookkeeper@example.com"
)

var testKey = []byte("test-pepper")

type recordingSender struct {
	sent []Mail
}

func (r *recordingSender) Send(msg Mail) error {
	r.sent = append(r.sent, msg)
	return nil
}

type fixedCalendar struct {
	safe bool
}

func (c fixedCalendar) SettlementSafe(time.Time) bool { return c.safe }

type testEnv struct {
	engine   *Engine
	ledger   *db.Ledger
	contacts *db.Contacts
	sender   *recordingSender
}

func newTestEnv(t *testing.T, calendar SettlementCalendar, sendMail bool) *testEnv {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	env := &testEnv{
		ledger:   db.NewLedger(conn),
		contacts: db.NewContacts(conn),
		sender:   &recordingSender{},
	}
	env.engine = NewEngine(EngineConfig{
		Ledger:           env.ledger,
		Contacts:         env.contacts,
		Sender:           env.sender,
		Calendar:         calendar,
		Logger:           zerolog.Nop(),
		WatchedAccounts:  []string{watchedAccount},
		AnonymizationKey: testKey,
		SendMail:         sendMail,
		FromAddress:      fromAddress,
	})
	return env
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedIncoming inserts a prior due so the watched account's derived
// balance is non-zero before the notification under test arrives.
func seedIncoming(t *testing.T, ledger *db.Ledger, amount string, ts time.Time) {
	t.Helper()
	err := ledger.AppendIncoming(statement.Transfer{
		SenderAccount:    "seed-sender",
		RecipientAccount: statement.Anonymize(watchedAccount, testKey),
		Amount:           mustDecimal(amount),
		Counterparty:     "seed-counterparty",
		Description:      "seed-description",
		ReportedBalance:  mustDecimal(amount),
		Timestamp:        ts,
	})
	if err != nil {
		t.Fatalf("failed to seed ledger: %v", err)
	}
}

func incomingTransfer(amount, balance string, ts time.Time) statement.Transfer {
	return statement.Transfer{
		SenderAccount:    "5555666677",
		RecipientAccount: watchedAccount,
		Amount:           mustDecimal(amount),
		Counterparty:     "JAN KOWALSKI",
		Description:      "skladka czlonkowska",
		ReportedBalance:  mustDecimal(balance),
		Timestamp:        ts,
		Direction:        statement.Incoming,
	}
}

func outgoingTransfer(amount, balance string, ts time.Time) statement.Transfer {
	return statement.Transfer{
		SenderAccount:    watchedAccount,
		RecipientAccount: "5555666677",
		Amount:           mustDecimal(amount),
		Counterparty:     "Landlord Ltd",
		Description:      "rent",
		ReportedBalance:  mustDecimal(balance),
		Timestamp:        ts,
		Direction:        statement.Outgoing,
	}
}

func correctionEntries(entries []statement.Transfer) []statement.Transfer {
	var out []statement.Transfer
	for _, e := range entries {
		if e.Counterparty == CorrectionTag {
			out = append(out, e)
		}
	}
	return out
}

func TestProcessConsistentBalance(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, false)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)
	seedIncoming(t, env.ledger, "596.03", base.Add(-24*time.Hour))

	transfer := incomingTransfer("200", "796.03", base)
	if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	incoming, err := env.ledger.ScanIncoming()
	if err != nil {
		t.Fatal(err)
	}
	if len(incoming) != 2 {
		t.Fatalf("got %d incoming entries, expected 2", len(incoming))
	}
	if got := correctionEntries(incoming); len(got) != 0 {
		t.Errorf("balance was consistent but %d corrections were inserted", len(got))
	}

	// Identity fields must be stored as digests, not plaintext.
	recorded := incoming[1]
	if recorded.SenderAccount == transfer.SenderAccount {
		t.Error("sender account stored in plaintext")
	}
	if recorded.Counterparty == transfer.Counterparty {
		t.Error("counterparty stored in plaintext")
	}
	if !recorded.Amount.Equal(transfer.Amount) {
		t.Errorf("recorded amount = %s, expected %s", recorded.Amount, transfer.Amount)
	}
}

func TestProcessInsertsIncomingCorrection(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, false)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)
	seedIncoming(t, env.ledger, "3500", base.Add(-24*time.Hour))

	// Ledger-derived balance after the expense is 2700; the bank says
	// 3575.04, so an incoming correction of 875.04 closes the gap.
	transfer := outgoingTransfer("800", "3575.04", base)
	if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	incoming, err := env.ledger.ScanIncoming()
	if err != nil {
		t.Fatal(err)
	}
	corrections := correctionEntries(incoming)
	if len(corrections) != 1 {
		t.Fatalf("got %d incoming corrections, expected 1", len(corrections))
	}
	if !corrections[0].Amount.Equal(mustDecimal("875.04")) {
		t.Errorf("correction amount = %s, expected 875.04", corrections[0].Amount)
	}

	// After correction the derived balance matches the bank exactly.
	hashed := statement.Anonymize(watchedAccount, testKey)
	sum, err := env.ledger.BalanceContribution(hashed, base)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Equal(mustDecimal("3575.04")) {
		t.Errorf("derived balance after correction = %s, expected 3575.04", sum)
	}
}

func TestProcessInsertsOutgoingCorrection(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, false)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)
	seedIncoming(t, env.ledger, "1000", base.Add(-24*time.Hour))

	// Derived balance would be 1200, the bank says 1100: money left the
	// account unobserved, so the correction is an expense of 100.
	transfer := incomingTransfer("200", "1100", base)
	if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	outgoing, err := env.ledger.ScanOutgoing()
	if err != nil {
		t.Fatal(err)
	}
	corrections := correctionEntries(outgoing)
	if len(corrections) != 1 {
		t.Fatalf("got %d outgoing corrections, expected 1", len(corrections))
	}
	if !corrections[0].Amount.Equal(mustDecimal("100")) {
		t.Errorf("correction amount = %s, expected 100", corrections[0].Amount)
	}

	hashed := statement.Anonymize(watchedAccount, testKey)
	sum, err := env.ledger.BalanceContribution(hashed, base)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Equal(mustDecimal("1100")) {
		t.Errorf("derived balance after correction = %s, expected 1100", sum)
	}
}

func TestProcessToleratesSubGroszDifference(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, false)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)

	transfer := incomingTransfer("200", "200.004", base)
	if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	incoming, err := env.ledger.ScanIncoming()
	if err != nil {
		t.Fatal(err)
	}
	outgoing, err := env.ledger.ScanOutgoing()
	if err != nil {
		t.Fatal(err)
	}
	if n := len(correctionEntries(incoming)) + len(correctionEntries(outgoing)); n != 0 {
		t.Errorf("got %d corrections for a sub-tolerance difference, expected none", n)
	}
}

func TestProcessAmbiguousAnchorsSkipCorrection(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, false)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)

	// Both balances disagree with the ledger, but two transfers anchor
	// the same account within one notification.
	transfers := []statement.Transfer{
		incomingTransfer("200", "999", base),
		incomingTransfer("100", "777", base.Add(time.Minute)),
	}
	if err := env.engine.ProcessNotification("msg-1", transfers); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	incoming, err := env.ledger.ScanIncoming()
	if err != nil {
		t.Fatal(err)
	}
	if len(incoming) != 2 {
		t.Fatalf("got %d incoming entries, expected 2", len(incoming))
	}
	if got := correctionEntries(incoming); len(got) != 0 {
		t.Errorf("ambiguous anchors produced %d corrections, expected none", len(got))
	}
}

func TestProcessUnsafeDateSkipsCorrection(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: false}, false)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)

	transfer := incomingTransfer("200", "999", base)
	if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	incoming, err := env.ledger.ScanIncoming()
	if err != nil {
		t.Fatal(err)
	}
	if len(incoming) != 1 {
		t.Fatalf("got %d incoming entries, expected 1", len(incoming))
	}
	if got := correctionEntries(incoming); len(got) != 0 {
		t.Errorf("non-settlement-safe date produced %d corrections", len(got))
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, true)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)
	transfer := incomingTransfer("200", "200", base)

	for i := 0; i < 2; i++ {
		if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
			t.Fatalf("ProcessNotification() run %d returned error: %v", i+1, err)
		}
	}

	incoming, err := env.ledger.ScanIncoming()
	if err != nil {
		t.Fatal(err)
	}
	if len(incoming) != 1 {
		t.Errorf("got %d incoming entries after re-processing, expected 1", len(incoming))
	}
	if len(env.sender.sent) != 1 {
		t.Errorf("got %d confirmation mails after re-processing, expected 1", len(env.sender.sent))
	}
}

func TestProcessDropsUnrelatedTransfers(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, false)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)

	transfer := statement.Transfer{
		SenderAccount:    "0000111122",
		RecipientAccount: "3333444455",
		Amount:           mustDecimal("42"),
		Counterparty:     "SOMEONE ELSE",
		Description:      "unrelated",
		ReportedBalance:  mustDecimal("42"),
		Timestamp:        base,
		Direction:        statement.Incoming,
	}
	if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	incoming, err := env.ledger.ScanIncoming()
	if err != nil {
		t.Fatal(err)
	}
	if len(incoming) != 0 {
		t.Errorf("got %d incoming entries for an unrelated transfer, expected none", len(incoming))
	}

	// The notification itself still counts as processed.
	seen, err := env.ledger.WasNotificationSeen("msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("notification with no relevant transfers was not marked seen")
	}
}

func TestConfirmationMailAddressing(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, true)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)

	transfer := incomingTransfer("200", "200", base)
	err := env.contacts.Upsert(db.Contact{
		Account:       statement.Anonymize(transfer.SenderAccount, testKey),
		Email:         "member@example.com",
		NotifyArrived: true,
		IsMember:      true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	if len(env.sender.sent) != 1 {
		t.Fatalf("got %d mails, expected 1", len(env.sender.sent))
	}
	msg := env.sender.sent[0]
	if msg.To != "member@example.com" {
		t.Errorf("To = %q, expected the member's address", msg.To)
	}
	if msg.Cc != fromAddress {
		t.Errorf("Cc = %q, expected the bookkeeper's address", msg.Cc)
	}
}

func TestConfirmationMailFallsBackToBookkeeper(t *testing.T) {
	env := newTestEnv(t, fixedCalendar{safe: true}, true)
	base := time.Date(2021, 9, 1, 17, 0, 0, 0, time.UTC)

	transfer := incomingTransfer("200", "200", base)
	if err := env.engine.ProcessNotification("msg-1", []statement.Transfer{transfer}); err != nil {
		t.Fatalf("ProcessNotification() returned error: %v", err)
	}

	if len(env.sender.sent) != 1 {
		t.Fatalf("got %d mails, expected 1", len(env.sender.sent))
	}
	msg := env.sender.sent[0]
	if msg.To != fromAddress {
		t.Errorf("To = %q, expected the bookkeeper's address", msg.To)
	}
	if msg.Cc != "" {
		t.Errorf("Cc = %q, expected empty", msg.Cc)
	}
}

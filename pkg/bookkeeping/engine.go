// Package bookkeeping reconciles freshly parsed bank transfers against
// the ledger: it deduplicates notifications, appends entries for the
// watched account and synthesizes correction entries when the
// bank-reported balance disagrees with the ledger-derived one.
package bookkeeping

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hakierspejs/ksiemgowy/pkg/db"
	"github.com/hakierspejs/ksiemgowy/pkg/statement"
)

// CorrectionTag marks the counterparty fields of synthetic entries
// inserted to reconcile a balance discrepancy.
const CorrectionTag = "AUTOCORRECTION"

// balanceTolerance is half a grosz. Reported and derived balances that
// differ by no more than this are considered equal.
var balanceTolerance = decimal.New(5, -3)

// EngineConfig wires an Engine. AnonymizationKey is the shared pepper;
// only digests ever reach the ledger. Sender and Contacts may be nil
// when SendMail is false.
type EngineConfig struct {
	Ledger           *db.Ledger
	Contacts         *db.Contacts
	Sender           MailSender
	Calendar         SettlementCalendar
	Logger           zerolog.Logger
	WatchedAccounts  []string
	AnonymizationKey []byte
	SendMail         bool
	FromAddress      string
}

// Engine consumes one notification's worth of transfers at a time.
type Engine struct {
	ledger   *db.Ledger
	contacts *db.Contacts
	sender   MailSender
	calendar SettlementCalendar
	log      zerolog.Logger
	watched  []string
	key      []byte
	sendMail bool
	fromAddr string
}

// NewEngine creates a reconciliation engine. When cfg.Calendar is nil
// the Polish settlement calendar is used.
func NewEngine(cfg EngineConfig) *Engine {
	calendar := cfg.Calendar
	if calendar == nil {
		calendar = PolishCalendar{}
	}
	return &Engine{
		ledger:   cfg.Ledger,
		contacts: cfg.Contacts,
		sender:   cfg.Sender,
		calendar: calendar,
		log:      cfg.Logger,
		watched:  cfg.WatchedAccounts,
		key:      cfg.AnonymizationKey,
		sendMail: cfg.SendMail,
		fromAddr: cfg.FromAddress,
	}
}

// ProcessNotification handles all transfers reported by a single
// notification. A notification already marked seen is skipped entirely,
// so re-running on the same input neither duplicates entries nor sends
// a second confirmation. The seen-mark is written last, after every
// insert succeeded.
func (e *Engine) ProcessNotification(notificationID string, transfers []statement.Transfer) error {
	seen, err := e.ledger.WasNotificationSeen(notificationID)
	if err != nil {
		return err
	}
	log := e.log.With().
		Str("run_id", uuid.NewString()).
		Str("notification_id", notificationID).
		Logger()
	if seen {
		log.Debug().Msg("notification already processed, skipping")
		return nil
	}

	// Transfers anchoring this notification, bucketed per watched
	// account. Autocorrection needs a single unambiguous anchor.
	bucket := make(map[string][]statement.Transfer, len(e.watched))
	for _, account := range e.watched {
		bucket[account] = nil
	}

	for _, t := range transfers {
		switch {
		case t.Direction == statement.Incoming && e.isWatched(t.RecipientAccount):
			if err := e.ledger.AppendIncoming(t.Anonymized(e.key)); err != nil {
				return fmt.Errorf("notification %q: %w", notificationID, err)
			}
			bucket[t.RecipientAccount] = append(bucket[t.RecipientAccount], t)
			log.Debug().Str("amount", t.Amount.String()).Msg("recorded an incoming transfer")
			if err := e.maybeSendConfirmation(log, t); err != nil {
				return fmt.Errorf("notification %q: %w", notificationID, err)
			}

		case t.Direction == statement.Outgoing && e.isWatched(t.SenderAccount):
			if err := e.ledger.AppendOutgoing(t.Anonymized(e.key)); err != nil {
				return fmt.Errorf("notification %q: %w", notificationID, err)
			}
			bucket[t.SenderAccount] = append(bucket[t.SenderAccount], t)
			log.Debug().Str("amount", t.Amount.String()).Msg("recorded an expense")

		default:
			log.Info().
				Str("direction", string(t.Direction)).
				Msg("transfer does not involve the watched account, dropping")
		}
	}

	if err := e.applyAutocorrections(log, bucket); err != nil {
		return fmt.Errorf("notification %q: %w", notificationID, err)
	}

	return e.ledger.MarkNotificationSeen(notificationID)
}

func (e *Engine) isWatched(account string) bool {
	for _, a := range e.watched {
		if a == account {
			return true
		}
	}
	return false
}

// applyAutocorrections checks, for every watched account anchored by
// exactly one transfer in this notification, whether the bank-reported
// balance matches the ledger-derived one, and inserts a correction
// entry for the difference when it does not. Zero or multiple anchors
// make the discrepancy unattributable, so nothing is corrected then.
func (e *Engine) applyAutocorrections(log zerolog.Logger, bucket map[string][]statement.Transfer) error {
	for account, anchors := range bucket {
		if len(anchors) == 0 {
			continue
		}
		if len(anchors) > 1 {
			log.Info().
				Int("transfers", len(anchors)).
				Msg("multiple transfers anchor this account, reconciliation would be ambiguous")
			continue
		}
		anchor := anchors[0]
		if !e.calendar.SettlementSafe(anchor.Timestamp) {
			log.Debug().
				Time("timestamp", anchor.Timestamp).
				Msg("date not settlement-safe, skipping autocorrection")
			continue
		}

		hashed := statement.Anonymize(account, e.key)
		actual := anchor.ReportedBalance
		expected, err := e.ledger.BalanceContribution(hashed, anchor.Timestamp)
		if err != nil {
			return err
		}

		difference := actual.Sub(expected)
		if difference.Abs().LessThanOrEqual(balanceTolerance) {
			continue
		}
		log.Warn().
			Str("expected", expected.String()).
			Str("actual", actual.String()).
			Str("difference", difference.String()).
			Msg("ledger disagrees with the bank-reported balance, correcting")

		if err := e.insertCorrection(hashed, difference, anchor); err != nil {
			return err
		}
	}
	return nil
}

// insertCorrection appends a synthetic entry closing the gap between
// the bank-reported and the ledger-derived balance. A positive
// difference means the bank saw money the ledger missed, so the
// correction is incoming; a negative one is recorded as an expense.
func (e *Engine) insertCorrection(hashedAccount string, difference decimal.Decimal, anchor statement.Transfer) error {
	correction := statement.Transfer{
		Amount:          difference.Abs(),
		Counterparty:    CorrectionTag,
		Description:     CorrectionTag,
		ReportedBalance: anchor.ReportedBalance,
		Timestamp:       anchor.Timestamp,
	}
	if difference.IsPositive() {
		correction.SenderAccount = CorrectionTag
		correction.RecipientAccount = hashedAccount
		return e.ledger.AppendIncoming(correction)
	}
	correction.SenderAccount = hashedAccount
	correction.RecipientAccount = CorrectionTag
	return e.ledger.AppendOutgoing(correction)
}

// maybeSendConfirmation notifies the payer that their due was recorded.
// Address lookup happens on the anonymized sender account.
func (e *Engine) maybeSendConfirmation(log zerolog.Logger, t statement.Transfer) error {
	if !e.sendMail || e.sender == nil {
		return nil
	}
	toAddr := ""
	if e.contacts != nil {
		addr, err := e.contacts.EmailForAccount(statement.Anonymize(t.SenderAccount, e.key))
		if err != nil {
			return err
		}
		toAddr = addr
	}
	if err := e.sender.Send(buildConfirmationMail(e.fromAddr, toAddr, t)); err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	log.Info().Str("to", toAddr).Msg("sent a confirmation e-mail")
	return nil
}

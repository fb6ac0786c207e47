package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/hakierspejs/ksiemgowy/pkg/statement"
)

// Amount is a decimal config value. The YAML decoder cannot populate a
// decimal.Decimal directly, so configuration amounts go through this
// wrapper.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	d, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", value.Value, err)
	}
	a.Decimal = d
	return nil
}

// ErrUnknownAccountLabel is returned when a ledger entry references an
// account with no configured label. A partially labeled report would
// silently misattribute money, so the whole build fails instead.
var ErrUnknownAccountLabel = errors.New("no label configured for account")

// CategoryRule labels an expense. Rules are evaluated in order and the
// first match wins. When Amount is set the rule additionally requires
// an exact amount match; the landlord account, for example, receives
// both rent (a fixed amount) and utility payments.
type CategoryRule struct {
	RecipientAccount string  `yaml:"recipient_account"`
	Amount           *Amount `yaml:"amount,omitempty"`
	Label            string  `yaml:"label"`
}

// RecurringDue is a due known to exist but never observed through the
// bank feed (such as a self-transfer the bank does not notify about).
// It contributes Amount to every month between Start and End.
type RecurringDue struct {
	AccountLabel string    `yaml:"account_label"`
	Amount       Amount    `yaml:"amount"`
	Start        time.Time `yaml:"start"`
	End          time.Time `yaml:"end"`
}

// Config is the report-builder configuration, validated once at load
// time. All overlay values are added to computed cells, never replace
// them.
type Config struct {
	AccountLabels             map[string]string            `yaml:"account_labels"`
	CategoryRules             []CategoryRule               `yaml:"category_rules"`
	AccountCorrections        map[string]Amount            `yaml:"account_corrections"`
	MonthlyIncomeCorrections  map[string]map[string]Amount `yaml:"monthly_income_corrections"`
	MonthlyExpenseCorrections map[string]map[string]Amount `yaml:"monthly_expense_corrections"`
	RecurringDues             []RecurringDue               `yaml:"recurring_dues"`
	BaselineActivePayers      int                          `yaml:"baseline_active_payers"`
	ExtraReservationsStart    time.Time                    `yaml:"extra_reservations_start"`
	ExtraReservationAmount    Amount                       `yaml:"extra_reservation_amount"`
}

// DefaultCategory labels expenses no rule matched.
const DefaultCategory = "Other"

// Builder turns ledger scans into Reports.
type Builder struct {
	cfg Config
	log zerolog.Logger
}

// NewBuilder creates a report builder for a fixed configuration.
func NewBuilder(cfg Config, log zerolog.Logger) *Builder {
	return &Builder{cfg: cfg, log: log}
}

// Build derives a Report from full ledger scans. It is pure: the same
// snapshot, configuration and now produce an identical report.
func (b *Builder) Build(now time.Time, incoming, outgoing []statement.Transfer) (*Report, error) {
	balances := make(map[string]decimal.Decimal)
	var lastUpdated time.Time

	monthlyExpenses, err := b.applyExpenses(outgoing, balances, &lastUpdated)
	if err != nil {
		return nil, err
	}

	monthlyIncome, total, subscribers, err := b.applyIncoming(now, incoming, balances, &lastUpdated)
	if err != nil {
		return nil, err
	}

	b.applyRecurringDues(monthlyIncome, balances)

	for label, correction := range b.cfg.AccountCorrections {
		if _, ok := balances[label]; !ok {
			return nil, fmt.Errorf("account correction for %q matches no known balance", label)
		}
		balances[label] = balances[label].Add(correction.Decimal)
	}
	applyCellCorrections(monthlyIncome, b.cfg.MonthlyIncomeCorrections)
	applyCellCorrections(monthlyExpenses, b.cfg.MonthlyExpenseCorrections)

	months := monthKeys(monthlyIncome, monthlyExpenses)
	monthlyBalance := make(map[string]map[string]decimal.Decimal)
	runningBalance := make(map[string]map[string]decimal.Decimal)
	balanceSoFar := decimal.Zero
	for _, month := range months {
		income := sumCells(monthlyIncome[month])
		expenses := sumCells(monthlyExpenses[month])
		monthlyBalance[month] = map[string]decimal.Decimal{IncomeCategory: income.Sub(expenses)}
		balanceSoFar = balanceSoFar.Add(income).Sub(expenses)
		runningBalance[month] = map[string]decimal.Decimal{IncomeCategory: balanceSoFar}
	}

	report := &Report{
		DuesTotalLastMonth:       total,
		DuesLastUpdated:          lastUpdated.Format(lastUpdatedLayout),
		DuesNumSubscribers:       subscribers,
		ExtraMonthlyReservations: b.extraReservations(now),
		BalanceSoFar:             balanceSoFar,
		BalancesByAccountLabels:  balances,
		Monthly: MonthlyTables{
			Expenses:       monthlyExpenses,
			Income:         monthlyIncome,
			Balance:        monthlyBalance,
			RunningBalance: runningBalance,
		},
	}
	b.log.Debug().
		Int("months", len(months)).
		Int("subscribers", subscribers).
		Str("balance", balanceSoFar.String()).
		Msg("built a report")
	return report, nil
}

// applyExpenses buckets outgoing entries by month and category and
// subtracts them from the per-label balances.
func (b *Builder) applyExpenses(
	outgoing []statement.Transfer,
	balances map[string]decimal.Decimal,
	lastUpdated *time.Time,
) (map[string]map[string]decimal.Decimal, error) {
	monthlyExpenses := make(map[string]map[string]decimal.Decimal)
	for _, t := range outgoing {
		label, ok := b.cfg.AccountLabels[t.SenderAccount]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAccountLabel, t.SenderAccount)
		}
		balances[label] = balances[label].Sub(t.Amount)
		addCell(monthlyExpenses, monthKey(t.Timestamp), b.categorize(t), t.Amount)
		if t.Timestamp.After(*lastUpdated) {
			*lastUpdated = t.Timestamp
		}
	}
	return monthlyExpenses, nil
}

// applyIncoming buckets incoming entries by month, adds them to the
// per-label balances and tracks subscriber activity over the trailing
// 31 days. The baseline counts the member whose self-transfers never
// show up in the bank feed.
func (b *Builder) applyIncoming(
	now time.Time,
	incoming []statement.Transfer,
	balances map[string]decimal.Decimal,
	lastUpdated *time.Time,
) (map[string]map[string]decimal.Decimal, decimal.Decimal, int, error) {
	monthlyIncome := make(map[string]map[string]decimal.Decimal)
	total := decimal.Zero
	subscribers := b.cfg.BaselineActivePayers
	monthAgo := now.AddDate(0, 0, -31)
	seenAccounts := make(map[string]bool)
	seenPayers := make(map[string]bool)

	for _, t := range incoming {
		label, ok := b.cfg.AccountLabels[t.RecipientAccount]
		if !ok {
			return nil, decimal.Decimal{}, 0, fmt.Errorf("%w: %q", ErrUnknownAccountLabel, t.RecipientAccount)
		}
		balances[label] = balances[label].Add(t.Amount)
		addCell(monthlyIncome, monthKey(t.Timestamp), IncomeCategory, t.Amount)

		if t.Timestamp.Before(monthAgo) {
			continue
		}
		if t.Timestamp.After(*lastUpdated) {
			*lastUpdated = t.Timestamp
		}
		if !seenAccounts[t.SenderAccount] && !seenPayers[t.Counterparty] {
			subscribers++
			seenAccounts[t.SenderAccount] = true
			seenPayers[t.Counterparty] = true
		}
		total = total.Add(t.Amount)
	}
	return monthlyIncome, total, subscribers, nil
}

// categorize assigns the first matching rule's label, defaulting to
// DefaultCategory.
func (b *Builder) categorize(t statement.Transfer) string {
	for _, rule := range b.cfg.CategoryRules {
		if rule.RecipientAccount != t.RecipientAccount {
			continue
		}
		if rule.Amount != nil && !rule.Amount.Equal(t.Amount) {
			continue
		}
		return rule.Label
	}
	return DefaultCategory
}

func (b *Builder) applyRecurringDues(
	monthlyIncome map[string]map[string]decimal.Decimal,
	balances map[string]decimal.Decimal,
) {
	for _, due := range b.cfg.RecurringDues {
		for ts := due.Start; !ts.After(due.End); ts = ts.AddDate(0, 1, 0) {
			addCell(monthlyIncome, monthKey(ts), IncomeCategory, due.Amount.Decimal)
			balances[due.AccountLabel] = balances[due.AccountLabel].Add(due.Amount.Decimal)
		}
	}
}

// extraReservations reports the informational reservation total: one
// fixed amount per month elapsed since the configured start date. It
// does not feed the running balance.
func (b *Builder) extraReservations(now time.Time) decimal.Decimal {
	if b.cfg.ExtraReservationsStart.IsZero() {
		return decimal.Zero
	}
	total := decimal.Zero
	for ts := b.cfg.ExtraReservationsStart; !ts.After(now); ts = ts.AddDate(0, 1, 0) {
		total = total.Add(b.cfg.ExtraReservationAmount.Decimal)
	}
	return total
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

func addCell(table map[string]map[string]decimal.Decimal, month, category string, amount decimal.Decimal) {
	if table[month] == nil {
		table[month] = make(map[string]decimal.Decimal)
	}
	table[month][category] = table[month][category].Add(amount)
}

func applyCellCorrections(table map[string]map[string]decimal.Decimal, corrections map[string]map[string]Amount) {
	for month, cells := range corrections {
		for category, amount := range cells {
			addCell(table, month, category, amount.Decimal)
		}
	}
}

func sumCells(cells map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range cells {
		sum = sum.Add(v)
	}
	return sum
}

func monthKeys(tables ...map[string]map[string]decimal.Decimal) []string {
	set := make(map[string]bool)
	for _, table := range tables {
		for month := range table {
			set[month] = true
		}
	}
	months := make([]string, 0, len(set))
	for month := range set {
		months = append(months, month)
	}
	sort.Strings(months)
	return months
}

// Package report derives the periodic financial summary from the full
// ledger: per-month income and expenses by category, per-account
// balances, active-payer counts and the running balance, with manual
// correction overlays applied on top.
package report

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// lastUpdatedLayout is the date stamp format published with the report.
const lastUpdatedLayout = "02-01-2006"

// IncomeCategory is the single category all dues are reported under.
const IncomeCategory = "Total"

// MonthlyTables holds the per-period breakdown, keyed by "YYYY-MM" and
// then by category label.
type MonthlyTables struct {
	Expenses       map[string]map[string]decimal.Decimal `json:"expenses"`
	Income         map[string]map[string]decimal.Decimal `json:"income"`
	Balance        map[string]map[string]decimal.Decimal `json:"balance"`
	RunningBalance map[string]map[string]decimal.Decimal `json:"running_balance"`
}

// Report is the value object handed to the publisher. Given the same
// ledger snapshot, configuration and clock it is reproduced bit for
// bit, which is what the publisher's change detection relies on.
type Report struct {
	DuesTotalLastMonth       decimal.Decimal            `json:"dues_total_lastmonth"`
	DuesLastUpdated          string                     `json:"dues_last_updated"`
	DuesNumSubscribers       int                        `json:"dues_num_subscribers"`
	ExtraMonthlyReservations decimal.Decimal            `json:"extra_monthly_reservations"`
	BalanceSoFar             decimal.Decimal            `json:"balance_so_far"`
	BalancesByAccountLabels  map[string]decimal.Decimal `json:"balances_by_account_labels"`
	Monthly                  MonthlyTables              `json:"monthly"`
}

// ShouldPublish implements the publisher's freshness rule: a computed
// report may replace a previously published one only when its
// last-updated stamp is strictly newer. A nil previous report is always
// replaced.
func ShouldPublish(next *Report, previous *Report) (bool, error) {
	if previous == nil {
		return true, nil
	}
	nextStamp, err := time.Parse(lastUpdatedLayout, next.DuesLastUpdated)
	if err != nil {
		return false, fmt.Errorf("invalid last-updated stamp %q: %w", next.DuesLastUpdated, err)
	}
	prevStamp, err := time.Parse(lastUpdatedLayout, previous.DuesLastUpdated)
	if err != nil {
		return false, fmt.Errorf("invalid last-updated stamp %q: %w", previous.DuesLastUpdated, err)
	}
	return nextStamp.After(prevStamp), nil
}
